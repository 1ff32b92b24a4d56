package jobs

import "time"

const (
	TypeRepairReservation   = "REPAIR_RESERVATION"
	TypeBackfillOwnerEmails = "BACKFILL_OWNER_EMAILS"
)

const (
	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

type Job struct {
	ID uint64 `gorm:"primaryKey"`

	Type    string `gorm:"type:text;not null"` // REPAIR_RESERVATION/BACKFILL_OWNER_EMAILS
	Payload []byte `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	// DedupeKey collapses repeated enqueues while a job is still open.
	DedupeKey string `gorm:"type:text;not null"`

	RunAt  time.Time `gorm:"index;not null"`
	Status string    `gorm:"index;not null;default:'PENDING'"` // PENDING/RUNNING/DONE/FAILED

	Attempts    int `gorm:"not null;default:0"`
	MaxAttempts int `gorm:"not null;default:8"`

	LockedBy *string    `gorm:"type:text"`
	LockedAt *time.Time `gorm:"type:timestamptz"`

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

type repairPayload struct {
	Username string `json:"username"`
}
