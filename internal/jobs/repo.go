package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"anonuplift/internal/apperr"

	"gorm.io/gorm"
)

type Repo struct {
	DB      *gorm.DB
	Timeout time.Duration
}

func (r *Repo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.Timeout)
}

// EnqueueReservationRepair schedules a REPAIR_RESERVATION job for username.
func (r *Repo) EnqueueReservationRepair(ctx context.Context, username string) error {
	_, err := r.EnqueueRepair(ctx, username)
	return err
}

func (r *Repo) EnqueueRepair(ctx context.Context, username string) (uint64, error) {
	payload, _ := json.Marshal(repairPayload{Username: username})
	return r.Enqueue(ctx, TypeRepairReservation, payload, TypeRepairReservation+":"+username)
}

func (r *Repo) EnqueueBackfill(ctx context.Context) (uint64, error) {
	return r.Enqueue(ctx, TypeBackfillOwnerEmails, []byte(`{}`), TypeBackfillOwnerEmails)
}

// Enqueue inserts a due job unless one with the same dedupe key is still
// pending or running, in which case the open job's id is returned.
func (r *Repo) Enqueue(ctx context.Context, typ string, payload []byte, dedupeKey string) (uint64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var id uint64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint64
		if err := tx.Raw(`
insert into jobs (type, payload, dedupe_key, run_at, status, attempts, max_attempts, created_at, updated_at)
values (?, ?, ?, now(), 'PENDING', 0, 8, now(), now())
on conflict (dedupe_key) where status in ('PENDING','RUNNING') do nothing
returning id
`, typ, string(payload), dedupeKey).Scan(&ids).Error; err != nil {
			return err
		}
		if len(ids) > 0 {
			id = ids[0]
			return nil
		}
		return tx.Raw(`
select id from jobs
where dedupe_key = ? and status in ('PENDING','RUNNING')
order by id desc
limit 1
`, dedupeKey).Scan(&id).Error
	})
	if err != nil {
		return 0, apperr.Unavailable(err)
	}
	return id, nil
}

// Claim one due job atomically using SKIP LOCKED.
// Works on Postgres.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var job Job
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// requeue stuck RUNNING jobs
		if err := tx.Exec(`
update jobs
set status='PENDING', locked_by=null, locked_at=null, updated_at=now()
where status='RUNNING' and locked_at is not null and locked_at < now() - interval '5 minutes'
`).Error; err != nil {
			return err
		}

		// FOR UPDATE SKIP LOCKED ensures no double-claim
		q := tx.Raw(`
with cte as (
  select id
  from jobs
  where status='PENDING' and run_at <= now()
  order by run_at asc
  for update skip locked
  limit 1
)
update jobs
set status='RUNNING', locked_by=?, locked_at=now(), updated_at=now()
where id in (select id from cte)
returning *;
`, workerID)

		return q.Scan(&job).Error
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *Repo) MarkDone(ctx context.Context, id uint64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.DB.WithContext(ctx).Exec(`update jobs set status='DONE', locked_by=null, locked_at=null, updated_at=now() where id=?`, id).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.DB.WithContext(ctx).Exec(`update jobs set status='FAILED', locked_by=null, locked_at=null, last_error=?, updated_at=now() where id=?`, errMsg, id).Error
}

func (r *Repo) RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.DB.WithContext(ctx).Exec(`
update jobs
set status='PENDING',
    attempts=?,
    run_at=?,
    locked_by=null,
    locked_at=null,
    last_error=?,
    updated_at=now()
where id=?`, attempts, runAt, errMsg, id).Error
}

// Get is used by the admin surface and tests.
func (r *Repo) Get(ctx context.Context, id uint64) (*Job, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var j Job
	if err := r.DB.WithContext(ctx).First(&j, id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// EnsureIndexes creates the indexes the claim and dedupe queries rely on.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []string{
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
		`create unique index if not exists uq_jobs_open_dedupe on jobs(dedupe_key) where status in ('PENDING','RUNNING');`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}
	return nil
}
