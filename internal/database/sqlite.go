package database

import (
	"fmt"

	"github.com/cihanisildar/abroado-client/internal/session"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes the local state database and performs schema
// migrations. The sync core keeps no persisted state of its own; only the
// session credentials live here.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("state database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&session.Credentials{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("state database initialized", zap.String("path", path))
	}

	return db, nil
}
