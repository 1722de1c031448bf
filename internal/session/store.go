package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNoCredentials indicates that no session has been established yet.
	ErrNoCredentials = errors.New("session: no stored credentials")

	errMissingDatabase = errors.New("database handle is required")
)

// StoreConfig bundles the credential store's collaborators.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store persists the session token pair in the local state database.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewStore constructs a Store with validated configuration.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, clock: clock}, nil
}

// Save upserts the token pair.
func (s *Store) Save(ctx context.Context, accessToken, refreshToken string) error {
	record := Credentials{
		ID:               credentialsRowID,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
}

// Load returns the stored token pair, or ErrNoCredentials.
func (s *Store) Load(ctx context.Context) (Credentials, error) {
	var record Credentials
	err := s.db.WithContext(ctx).
		Where("id = ?", credentialsRowID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, err
	}
	return record, nil
}

// Clear removes the stored session, typically after a terminal expiry.
func (s *Store) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("id = ?", credentialsRowID).
		Delete(&Credentials{}).Error
}
