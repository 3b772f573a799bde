package worker

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/trialbooking/internal/jobs"
	"github.com/geocoder89/trialbooking/internal/notifications"
	"github.com/geocoder89/trialbooking/internal/queue/redisqueue"
)

const bookkeepingTimeout = 2 * time.Second

// ProcessOne takes at most one job off the queue and runs it. It reports
// whether a job was taken; job failures are handled here and are not errors.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	j, err := w.queue.Dequeue(ctx, w.cfg.DequeueTimeout)
	if err != nil {
		if errors.Is(err, redisqueue.ErrEmpty) || ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}

	if w.cfg.MaxAttempts > 0 {
		j.MaxAttempts = w.cfg.MaxAttempts
	}

	w.metrics.IncClaimed()
	done := w.prom.TrackJob()
	defer done()

	log := w.log.With("job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)

	// a claimed job is finished even when shutdown starts mid-way
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()

	start := w.now()
	err = w.execute(execCtx, j)
	elapsed := w.now().Sub(start)
	w.metrics.ObserveDuration(elapsed)

	if err != nil {
		return true, w.handleFailure(context.WithoutCancel(ctx), j, err, elapsed)
	}

	w.metrics.IncDone()
	w.prom.ObserveJob(string(j.Type), "done", elapsed)
	log.Info("job done", "duration", elapsed)

	ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer ackCancel()

	// an unacknowledged job is redelivered after Recover, so a send may repeat
	if err := w.queue.Ack(ackCtx, j); err != nil {
		return true, err
	}
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j jobs.Job) error {
	payload, err := jobs.DecodePayload(j)
	if err != nil {
		return err
	}

	if err := jobs.ValidatePayload(j.Type, payload); err != nil {
		return err
	}

	switch p := payload.(type) {
	case jobs.TrialConfirmationPayload:
		return w.notifier.SendTrialConfirmation(ctx, notifications.TrialConfirmationInput{
			DocumentID: p.DocumentID,
			ParentName: p.ParentName,
			ChildName:  p.ChildName,
			Email:      p.Email,
			WhatsApp:   p.WhatsApp,
			TrialDate:  p.TrialDate,
			TrialTime:  p.TrialTime,
		})
	default:
		return jobs.ErrInvalidJobType
	}
}

// permanent errors can never succeed on retry
func permanent(err error) bool {
	return errors.Is(err, jobs.ErrInvalidJobType) ||
		errors.Is(err, jobs.ErrInvalidJobPayload) ||
		errors.Is(err, jobs.ErrPayloadTypeMismatch)
}

// handleFailure reschedules the job with backoff, or dead-letters it once it
// is out of attempts. Both settle the claim. The returned error is only about
// the queue itself; on error the job stays claimed for Recover.
func (w *Worker) handleFailure(ctx context.Context, j jobs.Job, cause error, elapsed time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, bookkeepingTimeout)
	defer cancel()

	log := w.log.With("job_id", j.ID, "job_type", j.Type)
	failed := j.Retry(cause, time.Time{})

	if permanent(cause) || failed.Exhausted() {
		w.metrics.IncFailed()
		w.metrics.IncDeadLettered()
		w.prom.ObserveJob(string(j.Type), "failed", elapsed)
		log.Error("job dead-lettered", "attempts", failed.Attempts, "err", cause)

		return w.queue.DeadLetter(ctx, failed)
	}

	runAt := w.now().Add(w.backoff(failed.Attempts - 1))

	w.metrics.IncRetried()
	w.prom.ObserveJob(string(j.Type), "retry", elapsed)
	log.Warn("job failed, retry scheduled", "attempts", failed.Attempts, "run_at", runAt, "err", cause)

	return w.queue.Schedule(ctx, failed, runAt)
}
