package session

// Credentials is the persisted token pair for the authenticated session.
// A headless client has no browser cookie jar; tokens survive restarts in
// the local state database. Exactly one row exists.
type Credentials struct {
	ID               int64  `gorm:"column:id;primaryKey"`
	AccessToken      string `gorm:"column:access_token;type:text;not null"`
	RefreshToken     string `gorm:"column:refresh_token;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Credentials) TableName() string {
	return "credentials"
}

const credentialsRowID = 1
