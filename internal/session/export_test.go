package session

import "gorm.io/gorm"

// StoreDB exposes the store's database handle to external tests.
func StoreDB(s *Store) *gorm.DB {
	return s.db
}
