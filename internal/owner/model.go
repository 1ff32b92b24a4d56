package owner

import "time"

// Owner is an account that can receive messages. ID is the opaque
// identifier issued by the identity provider.
type Owner struct {
	ID         string  `gorm:"primaryKey;type:text"`
	Email      *string `gorm:"type:text;index"`
	ProviderID *string `gorm:"type:text"`
	Username   *string `gorm:"type:text;uniqueIndex"`

	// Legacy email columns written by older importers. Read only.
	EmailAddress *string `gorm:"type:text;index"`
	UserEmail    *string `gorm:"type:text;index"`
	Mail         *string `gorm:"type:text;index"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// Reservation is the sole source of truth for whether a username is taken.
type Reservation struct {
	Username  string    `gorm:"primaryKey;type:text"`
	OwnerID   string    `gorm:"type:text;index;not null"`
	CreatedAt time.Time `gorm:"not null;default:now()"`
}

// Identity is what the identity provider tells us about a signed-in caller.
type Identity struct {
	OwnerID    string
	Email      string
	ProviderID string
}

// legacyEmailColumns are tried in order when a reservation points at an
// email that no owner row carries in its email column.
var legacyEmailColumns = []string{"email_address", "user_email", "mail"}
