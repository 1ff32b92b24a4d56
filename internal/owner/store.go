package owner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"anonuplift/internal/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists owners and username reservations in Postgres.
type Store struct {
	DB      *gorm.DB
	Timeout time.Duration
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

// IsAvailable is advisory; Reserve is the authoritative check.
func (s *Store) IsAvailable(ctx context.Context, username string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := s.DB.WithContext(ctx).Model(&Reservation{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, apperr.Unavailable(err)
	}
	return n == 0, nil
}

// Reserve claims username for ownerID. The reservation insert and the owner
// upsert commit together or not at all; the reservation primary key makes
// concurrent claims for the same name fail with ErrUsernameTaken.
func (s *Store) Reserve(ctx context.Context, username, ownerID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Owner
		res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", ownerID).
			Limit(1).
			Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 && existing.Username != nil {
			if *existing.Username == username {
				return errSameUsername
			}
			return ErrUsernameAlreadySet
		}

		if err := tx.Create(&Reservation{Username: username, OwnerID: ownerID, CreatedAt: now}).Error; err != nil {
			return err
		}

		o := Owner{ID: ownerID, Username: &username, CreatedAt: now, UpdatedAt: now}
		if looksLikeEmail(ownerID) {
			o.Email = &ownerID
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
		}).Create(&o).Error
	})

	switch {
	case err == nil, errors.Is(err, errSameUsername):
		return nil
	case errors.Is(err, ErrUsernameAlreadySet):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrUsernameTaken.WithCause(err)
	default:
		return apperr.Unavailable(err)
	}
}

var errSameUsername = errors.New("owner already holds this username")

// EnsureOwner creates the owner row on first sign-in and returns the stored
// row. Existing rows are not modified.
func (s *Store) EnsureOwner(ctx context.Context, id Identity) (*Owner, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	o := Owner{ID: id.OwnerID, Email: optional(id.Email), ProviderID: optional(id.ProviderID)}
	db := s.DB.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&o).Error; err != nil {
		return nil, apperr.Unavailable(err)
	}

	var out Owner
	if err := db.Where("id = ?", id.OwnerID).First(&out).Error; err != nil {
		return nil, apperr.Unavailable(err)
	}
	return &out, nil
}

func (s *Store) GetOwner(ctx context.Context, id string) (*Owner, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var o Owner
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, apperr.Unavailable(err)
	}
	return &o, nil
}

func (s *Store) LookupReservation(ctx context.Context, username string) (*Reservation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var r Reservation
	if err := s.DB.WithContext(ctx).Where("username = ?", username).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, apperr.Unavailable(err)
	}
	return &r, nil
}

// FindOwnerByEmail looks an owner up by one of the email columns. Rows whose
// id equals the email are skipped: callers want the opaque id.
func (s *Store) FindOwnerByEmail(ctx context.Context, column, email string) (*Owner, error) {
	if !isEmailColumn(column) {
		return nil, fmt.Errorf("owner: unknown email column %q", column)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var o Owner
	err := s.DB.WithContext(ctx).
		Where(column+" = ? AND id <> ?", email, email).
		Order("created_at asc").
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, apperr.Unavailable(err)
	}
	return &o, nil
}

func (s *Store) BackfillEmail(ctx context.Context, ownerID, email string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.DB.WithContext(ctx).Model(&Owner{}).
		Where("id = ? AND email IS NULL", ownerID).
		Updates(map[string]any{"email": email, "updated_at": time.Now()}).Error
	if err != nil {
		return apperr.Unavailable(err)
	}
	return nil
}

func (s *Store) CreateOwner(ctx context.Context, o *Owner) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(o).Error; err != nil {
		return apperr.Unavailable(err)
	}
	return nil
}

// RepointReservation rewrites the owner id a reservation maps to.
func (s *Store) RepointReservation(ctx context.Context, username, ownerID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.DB.WithContext(ctx).Model(&Reservation{}).
		Where("username = ?", username).
		Update("owner_id", ownerID)
	if res.Error != nil {
		return apperr.Unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// BackfillOwnerEmails sets email on rows keyed by an email that lack one.
func (s *Store) BackfillOwnerEmails(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.DB.WithContext(ctx).Model(&Owner{}).
		Where("email IS NULL AND id LIKE ?", "%@%").
		Updates(map[string]any{"email": gorm.Expr("id"), "updated_at": time.Now()})
	if res.Error != nil {
		return 0, apperr.Unavailable(res.Error)
	}
	return res.RowsAffected, nil
}

func isEmailColumn(c string) bool {
	if c == "email" {
		return true
	}
	for _, l := range legacyEmailColumns {
		if c == l {
			return true
		}
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
