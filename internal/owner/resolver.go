package owner

import (
	"context"
	"errors"
	"time"

	"anonuplift/internal/logging"
)

// Directory is the subset of Store the resolver reads and heals through.
type Directory interface {
	LookupReservation(ctx context.Context, username string) (*Reservation, error)
	GetOwner(ctx context.Context, id string) (*Owner, error)
	FindOwnerByEmail(ctx context.Context, column, email string) (*Owner, error)
	BackfillEmail(ctx context.Context, ownerID, email string) error
	CreateOwner(ctx context.Context, o *Owner) error
}

// RepairQueue schedules a rewrite of a reservation that still points at an
// email.
type RepairQueue interface {
	EnqueueReservationRepair(ctx context.Context, username string) error
}

type Resolver struct {
	Dir    Directory
	Repair RepairQueue // optional
	Log    logging.Logger
}

// Resolve maps a public username to the owner id it currently belongs to.
// It returns ErrNotFound when no reservation exists.
func (r *Resolver) Resolve(ctx context.Context, username string) (string, error) {
	res, err := r.Dir.LookupReservation(ctx, username)
	if err != nil {
		return "", err
	}
	if res.OwnerID == "" {
		return "", ErrNotFound
	}
	if !looksLikeEmail(res.OwnerID) {
		return res.OwnerID, nil
	}
	return r.migrateLegacyReservation(ctx, username, res.OwnerID)
}

// migrateLegacyReservation handles reservations written by an old release
// that stored the owner's email instead of the opaque id. New writes never
// produce this shape; each trigger is logged. A repair is queued only when
// an owner with an opaque id carries the email.
func (r *Resolver) migrateLegacyReservation(ctx context.Context, username, email string) (string, error) {
	r.Log.Warn(ctx, "legacy reservation resolved through compatibility path", "username", username)

	// a. an owner keyed by the email itself
	o, err := r.Dir.GetOwner(ctx, email)
	switch {
	case err == nil:
		if o.Email == nil {
			if err := r.Dir.BackfillEmail(ctx, o.ID, email); err != nil {
				r.Log.Error(ctx, "email backfill failed", "username", username, "err", err)
			}
		}
		return o.ID, nil
	case !errors.Is(err, ErrNotFound):
		return "", err
	}

	// b, c. an owner carrying the email in the current or a legacy column
	columns := append([]string{"email"}, legacyEmailColumns...)
	for _, col := range columns {
		o, err := r.Dir.FindOwnerByEmail(ctx, col, email)
		if err == nil {
			r.Log.Info(ctx, "legacy reservation matched owner", "username", username, "column", col)
			r.queueRepair(ctx, username)
			return o.ID, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}

	// d. nothing matches; synthesize an owner keyed by the email
	now := time.Now()
	synth := &Owner{
		ID:        email,
		Email:     &email,
		Username:  &username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Dir.CreateOwner(ctx, synth); err != nil {
		return "", err
	}
	r.Log.Warn(ctx, "synthesized owner for legacy reservation", "username", username)
	return email, nil
}

func (r *Resolver) queueRepair(ctx context.Context, username string) {
	if r.Repair == nil {
		return
	}
	if err := r.Repair.EnqueueReservationRepair(ctx, username); err != nil {
		r.Log.Error(ctx, "enqueue reservation repair failed", "username", username, "err", err)
	}
}
