package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/cihanisildar/abroado-client/internal/cache"
	"github.com/cihanisildar/abroado-client/internal/content"
	"github.com/cihanisildar/abroado-client/internal/push"
	"go.uber.org/zap"
)

var errMissingStore = errors.New("cache store is required")

// MergerConfig bundles the merge handler's collaborators.
type MergerConfig struct {
	Store    *cache.Store
	Notifier *Notifier
	Logger   *zap.Logger
}

// Merger is the single reducer for push-delivered events: each event
// updates exactly the cache views relevant to its room, never duplicating
// an entry. It also tracks which rooms the client currently has open,
// serving as the push channel's RoomSource for rejoin-on-reconnect, and
// holds the volatile typing state that lives outside the durable store.
type Merger struct {
	store    *cache.Store
	notifier *Notifier
	logger   *zap.Logger

	mu        sync.RWMutex
	openRooms map[string]struct{}
	typing    map[string]map[string]struct{}
}

// NewMerger constructs a Merger with validated configuration.
func NewMerger(cfg MergerConfig) (*Merger, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		logger:    logger,
		openRooms: make(map[string]struct{}),
		typing:    make(map[string]map[string]struct{}),
	}, nil
}

// OpenRoom records that the client has the room open in the UI.
func (m *Merger) OpenRoom(roomID string) {
	if roomID == "" {
		return
	}
	m.mu.Lock()
	m.openRooms[roomID] = struct{}{}
	m.mu.Unlock()
}

// CloseRoom forgets the room and clears its volatile typing state.
func (m *Merger) CloseRoom(roomID string) {
	m.mu.Lock()
	delete(m.openRooms, roomID)
	delete(m.typing, roomID)
	m.mu.Unlock()
}

// ActiveRooms lists the rooms currently open, sorted for determinism.
func (m *Merger) ActiveRooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]string, 0, len(m.openRooms))
	for roomID := range m.openRooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// TypingUsers lists users currently typing in the room, sorted.
func (m *Merger) TypingUsers(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]string, 0, len(m.typing[roomID]))
	for userID := range m.typing[roomID] {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Run consumes the push channel's event stream until the context ends or
// the stream closes. It is the only goroutine applying push events.
func (m *Merger) Run(ctx context.Context, events <-chan push.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.Apply(event)
		}
	}
}

// Apply merges one push event into the cache. Events for rooms not held in
// any view are dropped silently; there is nothing to update and caches are
// never pre-populated speculatively.
func (m *Merger) Apply(event push.Event) {
	switch event.Type {
	case push.EventNewMessage:
		m.applyNewMessage(event)
	case push.EventOnlineMembers:
		m.applyOnlineMembers(event)
	case push.EventTyping:
		m.applyTyping(event)
	default:
		m.logger.Debug("ignoring unhandled push event", zap.String("type", string(event.Type)))
	}
}

// applyNewMessage appends a server-sourced record from another participant
// or delivery path. It never touches optimistic echoes: those are
// reconciled by the mutation's own success handler, correlated by the
// temporary id local to that call.
func (m *Merger) applyNewMessage(event push.Event) {
	if event.Message == nil || event.RoomID == "" {
		return
	}
	key := cache.ViewKey{Kind: cache.KindRoomMessages, Selector: event.RoomID}
	if !m.store.HasView(key) {
		m.logger.Debug("dropping message for room without cached view",
			zap.String("room_id", event.RoomID))
		return
	}
	if !m.store.Append(key, event.Message) {
		// Duplicate delivery, typically reconnect replay.
		m.logger.Debug("dropping duplicate message",
			zap.String("room_id", event.RoomID), zap.String("message_id", event.Message.ID))
		return
	}
	m.publish(RoomUpdate{RoomID: event.RoomID, Kind: UpdateMessage})
}

// applyOnlineMembers replaces the room's online set wholesale; the server
// is authoritative for the full set, so no field-level merge is attempted.
func (m *Merger) applyOnlineMembers(event push.Event) {
	if event.RoomID == "" {
		return
	}
	snapshot := m.store.Propagate(cache.RoomKinds, event.RoomID,
		content.ReplaceOnlineMembers(event.OnlineMembers))
	if len(snapshot) == 0 {
		m.logger.Debug("dropping presence update for unknown room",
			zap.String("room_id", event.RoomID))
		return
	}
	m.publish(RoomUpdate{RoomID: event.RoomID, Kind: UpdatePresence})
}

// applyTyping updates the volatile per-room typing map. No cache views and
// no rollback semantics are involved.
func (m *Merger) applyTyping(event push.Event) {
	if event.RoomID == "" || event.UserID == "" {
		return
	}
	m.mu.Lock()
	if _, open := m.openRooms[event.RoomID]; !open {
		m.mu.Unlock()
		m.logger.Debug("dropping typing update for closed room",
			zap.String("room_id", event.RoomID))
		return
	}
	users := m.typing[event.RoomID]
	if users == nil {
		users = make(map[string]struct{})
		m.typing[event.RoomID] = users
	}
	if event.IsTyping {
		users[event.UserID] = struct{}{}
	} else {
		delete(users, event.UserID)
	}
	m.mu.Unlock()

	m.publish(RoomUpdate{RoomID: event.RoomID, Kind: UpdateTyping})
}

func (m *Merger) publish(update RoomUpdate) {
	if m.notifier == nil {
		return
	}
	m.notifier.Publish(update)
}
