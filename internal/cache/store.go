package cache

import (
	"sync"

	"github.com/cihanisildar/abroado-client/internal/content"
)

// Kind identifies a family of cache views over one entity collection.
type Kind string

const (
	KindPosts          Kind = "posts"
	KindPost           Kind = "post"
	KindSavedPosts     Kind = "saved-posts"
	KindUserPosts      Kind = "user-posts"
	KindComments       Kind = "comments"
	KindCityReviews    Kind = "city-reviews"
	KindCityReview     Kind = "city-review"
	KindSavedReviews   Kind = "saved-reviews"
	KindReviewComments Kind = "review-comments"
	KindRoomMessages   Kind = "room-messages"
	KindRooms          Kind = "rooms"
	KindRoom           Kind = "room"
)

// View families: the closed sets of kinds that can hold copies of one
// logical entity. Propagation scans exactly one family.
var (
	PostKinds          = []Kind{KindPosts, KindPost, KindSavedPosts, KindUserPosts}
	CommentKinds       = []Kind{KindComments}
	CityReviewKinds    = []Kind{KindCityReviews, KindCityReview, KindSavedReviews}
	ReviewCommentKinds = []Kind{KindReviewComments}
	RoomKinds          = []Kind{KindRooms, KindRoom}
	MessageKinds       = []Kind{KindRoomMessages}
)

// ViewKey addresses one independently fetched cache view.
type ViewKey struct {
	Kind     Kind
	Selector string
}

// String returns the canonical serialization used in snapshots and logs.
func (k ViewKey) String() string {
	if k.Selector == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + "/" + k.Selector
}

// SavedView captures one view's prior content for rollback.
type SavedView struct {
	Key      ViewKey
	Entities []content.Entity
}

// Snapshot maps serialized view keys to prior content. It is valid for
// exactly one mutation attempt: discarded on success, replayed on failure.
type Snapshot map[string]SavedView

// Store holds every cache view. It is an explicit service object passed by
// reference to coordinators and merge handlers, never reached ambiently.
// The mutex makes each enumerate-and-replace atomic for callers on any
// goroutine.
type Store struct {
	mu    sync.RWMutex
	views map[ViewKey][]content.Entity
}

func NewStore() *Store {
	return &Store{views: make(map[ViewKey][]content.Entity)}
}

// Put installs or replaces a view's content, typically from a fetch.
func (s *Store) Put(key ViewKey, entities []content.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[key] = cloneEntities(entities)
}

// Get returns a deep copy of the view's content. Callers cannot mutate
// cached state except through store operations.
func (s *Store) Get(key ViewKey) ([]content.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entities, ok := s.views[key]
	if !ok {
		return nil, false
	}
	return cloneEntities(entities), true
}

// Drop evicts a view, typically on navigation away.
func (s *Store) Drop(key ViewKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, key)
}

// HasView reports whether a view is currently held.
func (s *Store) HasView(key ViewKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.views[key]
	return ok
}

// Keys lists every held view key.
func (s *Store) Keys() []ViewKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]ViewKey, 0, len(s.views))
	for key := range s.views {
		keys = append(keys, key)
	}
	return keys
}

// Len reports the number of held views.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}

// Append adds an entity to the end of a view. It reports false without
// modifying anything when the view is not held or an entry with the same
// id already exists, which guards against duplicate push delivery.
func (s *Store) Append(key ViewKey, entity content.Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities, ok := s.views[key]
	if !ok {
		return false
	}
	for _, existing := range entities {
		if existing.EntityID() == entity.EntityID() {
			return false
		}
	}
	s.views[key] = append(entities, entity.CloneEntity())
	return true
}

// Remove deletes the entry with the given id from a view. Reports whether
// an entry was removed; a missing view or id is "nothing to do".
func (s *Store) Remove(key ViewKey, entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities, ok := s.views[key]
	if !ok {
		return false
	}
	for i, existing := range entities {
		if existing.EntityID() == entityID {
			s.views[key] = append(entities[:i:i], entities[i+1:]...)
			return true
		}
	}
	return false
}

// ReplaceByID swaps the entry carrying oldID for the provided entity in
// place, preserving order. Used to reconcile an optimistic echo with the
// server-confirmed record.
func (s *Store) ReplaceByID(key ViewKey, oldID string, entity content.Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities, ok := s.views[key]
	if !ok {
		return false
	}
	for i, existing := range entities {
		if existing.EntityID() == oldID {
			entities[i] = entity.CloneEntity()
			return true
		}
	}
	return false
}

func cloneEntities(entities []content.Entity) []content.Entity {
	clones := make([]content.Entity, len(entities))
	for i, entity := range entities {
		clones[i] = entity.CloneEntity()
	}
	return clones
}
