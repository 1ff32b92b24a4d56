package jobs

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"anonuplift/internal/logging"
)

// Queue is the part of Repo the worker drives.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*Job, error)
	MarkDone(ctx context.Context, id uint64) error
	MarkFailed(ctx context.Context, id uint64, errMsg string) error
	RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error
}

// Repairer runs the owner data repairs.
type Repairer interface {
	RepairReservation(ctx context.Context, username string) (bool, error)
	BackfillOwnerEmails(ctx context.Context) (int64, error)
}

type Worker struct {
	ID       string
	Queue    Queue
	Repairer Repairer
	Log      logging.Logger
	Interval time.Duration

	now func() time.Time
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce claims and handles at most one job. It reports whether a job was
// claimed.
func (w *Worker) RunOnce(ctx context.Context) bool {
	job, err := w.Queue.Claim(ctx, w.ID)
	if err != nil {
		w.Log.Error(ctx, "worker claim error", "err", err)
		return false
	}
	if job == nil {
		return false
	}
	w.handle(ctx, job)
	return true
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	log := w.Log.With("job_id", job.ID, "type", job.Type)

	switch job.Type {
	case TypeRepairReservation:
		var p repairPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil || p.Username == "" {
			w.fail(ctx, log, job, "bad payload")
			return
		}
		clean, err := w.Repairer.RepairReservation(ctx, p.Username)
		if err != nil {
			w.retry(ctx, log, job, err.Error())
			return
		}
		if !clean {
			w.retry(ctx, log, job, "no opaque owner for reservation yet")
			return
		}
	case TypeBackfillOwnerEmails:
		if _, err := w.Repairer.BackfillOwnerEmails(ctx); err != nil {
			w.retry(ctx, log, job, err.Error())
			return
		}
	default:
		w.fail(ctx, log, job, "unknown job type")
		return
	}

	if err := w.Queue.MarkDone(ctx, job.ID); err != nil {
		log.Error(ctx, "mark job done failed", "err", err)
	}
}

func (w *Worker) fail(ctx context.Context, log logging.Logger, job *Job, errMsg string) {
	log.Error(ctx, "job failed", "err", errMsg, "attempts", job.Attempts)
	if err := w.Queue.MarkFailed(ctx, job.ID, errMsg); err != nil {
		log.Error(ctx, "mark job failed failed", "err", err)
	}
}

func (w *Worker) retry(ctx context.Context, log logging.Logger, job *Job, errMsg string) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		w.fail(ctx, log, job, errMsg)
		return
	}

	now := time.Now()
	if w.now != nil {
		now = w.now()
	}
	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	next := now.Add(time.Duration(sec) * time.Second)

	log.Warn(ctx, "job retry scheduled", "err", errMsg, "attempts", attempts, "run_at", next)
	if err := w.Queue.RetryLater(ctx, job.ID, attempts, next, errMsg); err != nil {
		log.Error(ctx, "job retry failed", "err", err)
	}
}
