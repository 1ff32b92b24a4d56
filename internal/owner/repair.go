package owner

import (
	"context"
	"errors"

	"anonuplift/internal/logging"
)

type RepairStore interface {
	LookupReservation(ctx context.Context, username string) (*Reservation, error)
	GetOwner(ctx context.Context, id string) (*Owner, error)
	FindOwnerByEmail(ctx context.Context, column, email string) (*Owner, error)
	RepointReservation(ctx context.Context, username, ownerID string) error
	BackfillOwnerEmails(ctx context.Context) (int64, error)
}

// Repair holds the one-off data migrations run by the job worker.
type Repair struct {
	Store RepairStore
	Log   logging.Logger
}

// RepairReservation points an email-valued reservation at the opaque id of
// the owner carrying that email. It reports whether the reservation is
// settled afterwards: repointed, already opaque, or pointing at an owner row
// keyed by the email with no opaque owner to move to.
func (r *Repair) RepairReservation(ctx context.Context, username string) (bool, error) {
	res, err := r.Store.LookupReservation(ctx, username)
	if err != nil {
		return false, err
	}
	if !looksLikeEmail(res.OwnerID) {
		return true, nil
	}

	columns := append([]string{"email"}, legacyEmailColumns...)
	for _, col := range columns {
		o, err := r.Store.FindOwnerByEmail(ctx, col, res.OwnerID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if err := r.Store.RepointReservation(ctx, username, o.ID); err != nil {
			return false, err
		}
		r.Log.Info(ctx, "reservation repaired", "username", username, "column", col)
		return true, nil
	}

	if _, err := r.Store.GetOwner(ctx, res.OwnerID); err == nil {
		r.Log.Info(ctx, "reservation already points at an email-keyed owner", "username", username)
		return true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	r.Log.Warn(ctx, "reservation repair found no owner", "username", username)
	return false, nil
}

func (r *Repair) BackfillOwnerEmails(ctx context.Context) (int64, error) {
	n, err := r.Store.BackfillOwnerEmails(ctx)
	if err != nil {
		return 0, err
	}
	r.Log.Info(ctx, "owner emails backfilled", "count", n)
	return n, nil
}
