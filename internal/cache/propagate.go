package cache

import "github.com/cihanisildar/abroado-client/internal/content"

// Propagate applies the transform to every copy of the entity across all
// held views of the given family, and returns a snapshot of each touched
// view's prior content keyed by serialized view key. Views that do not hold
// the entity are left untouched; an empty snapshot means the entity is not
// visible anywhere, which is a correct no-op.
//
// The whole operation runs under the store lock: no caller can observe two
// views disagreeing about the entity mid-propagation.
func (s *Store) Propagate(kinds []Kind, entityID string, transform content.Transform) Snapshot {
	family := make(map[Kind]struct{}, len(kinds))
	for _, kind := range kinds {
		family[kind] = struct{}{}
	}

	snapshot := make(Snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entities := range s.views {
		if _, ok := family[key.Kind]; !ok {
			continue
		}
		touched := false
		for _, entity := range entities {
			if entity.EntityID() == entityID {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}

		snapshot[key.String()] = SavedView{Key: key, Entities: cloneEntities(entities)}

		updated := make([]content.Entity, len(entities))
		for i, entity := range entities {
			if entity.EntityID() == entityID {
				updated[i] = transform(entity)
			} else {
				updated[i] = entity
			}
		}
		s.views[key] = updated
	}

	return snapshot
}

// Restore replays a snapshot verbatim against every recorded view. A view
// that has been dropped since the snapshot was taken is skipped: a late
// rollback against an evicted view is nothing to do, not an error.
func (s *Store) Restore(snapshot Snapshot) {
	if len(snapshot) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, saved := range snapshot {
		if _, ok := s.views[saved.Key]; !ok {
			continue
		}
		s.views[saved.Key] = cloneEntities(saved.Entities)
	}
}

// FindEntity returns a copy of the first entity with the given id held in
// any view of the family. Which view supplies it is unspecified; after a
// successful propagation all copies agree.
func (s *Store) FindEntity(kinds []Kind, entityID string) (content.Entity, bool) {
	family := make(map[Kind]struct{}, len(kinds))
	for _, kind := range kinds {
		family[kind] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, entities := range s.views {
		if _, ok := family[key.Kind]; !ok {
			continue
		}
		for _, entity := range entities {
			if entity.EntityID() == entityID {
				return entity.CloneEntity(), true
			}
		}
	}
	return nil, false
}

// ContainsEntity reports whether any held view of the family holds the
// entity id.
func (s *Store) ContainsEntity(kinds []Kind, entityID string) bool {
	family := make(map[Kind]struct{}, len(kinds))
	for _, kind := range kinds {
		family[kind] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, entities := range s.views {
		if _, ok := family[key.Kind]; !ok {
			continue
		}
		for _, entity := range entities {
			if entity.EntityID() == entityID {
				return true
			}
		}
	}
	return false
}
