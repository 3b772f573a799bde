package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/geocoder89/trialbooking/internal/jobs"
	"github.com/geocoder89/trialbooking/internal/notifications"
	"github.com/geocoder89/trialbooking/internal/observability"
)

// Queue is what the worker needs from the job queue. A dequeued job is
// claimed until Ack, Schedule or DeadLetter settles it.
type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (jobs.Job, error)
	Ack(ctx context.Context, j jobs.Job) error
	Recover(ctx context.Context) (int, error)
	Schedule(ctx context.Context, j jobs.Job, at time.Time) error
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	DeadLetter(ctx context.Context, j jobs.Job) error
	Ping(ctx context.Context) error
}

type Config struct {
	PollInterval   time.Duration
	DequeueTimeout time.Duration
	JobTimeout     time.Duration
	WorkerID       string
	Concurrency    int
	// MaxAttempts overrides the attempts a job was enqueued with when > 0.
	MaxAttempts    int
	ShutdownGrace  time.Duration
}

type Worker struct {
	cfg      Config
	queue    Queue
	notifier notifications.Notifier
	log      *slog.Logger
	prom     *observability.Prom
	metrics  *observability.JobMetrics

	backoff func(attempt int) time.Duration
	now     func() time.Time

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, queue Queue, notifier notifications.Notifier, log *slog.Logger, prom *observability.Prom) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 2 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.WorkerID == "" {
		host, _ := os.Hostname()
		cfg.WorkerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	return &Worker{
		cfg:      cfg,
		queue:    queue,
		notifier: notifier,
		log:      log.With("worker_id", cfg.WorkerID),
		prom:     prom,
		metrics:  observability.NewJobMetrics(),
		backoff:  ExponentialBackoff,
		now:      time.Now,
	}
}

func (w *Worker) Metrics() observability.JobMetricsSnapshot {
	return w.metrics.Snapshot()
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) isReady() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

// Run starts the promoter and cfg.Concurrency consumers and blocks until ctx
// is cancelled. Jobs already executing get up to ShutdownGrace to finish.
func (w *Worker) Run(ctx context.Context) error {
	n, err := w.queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover in-flight jobs: %w", err)
	}
	if n > 0 {
		w.log.Warn("requeued jobs left in flight by a previous run", "count", n)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promoteLoop(ctx)
	}()

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	w.setReady(true)
	w.log.Info("worker started", "concurrency", w.cfg.Concurrency)

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker received shutdown signal")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Error("worker shutdown grace exceeded, abandoning in-flight jobs")
	}

	s := w.metrics.Snapshot()
	w.log.Info("worker stopped",
		"claimed", s.Claimed,
		"done", s.Done,
		"retried", s.Retried,
		"failed", s.Failed,
		"dead_lettered", s.DeadLettered,
		"avg_duration", s.AverageDuration,
	)
	return nil
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.queue.PromoteDue(ctx, w.now())
			if err != nil {
				if ctx.Err() == nil {
					w.log.Warn("promote due jobs failed", "err", err)
				}
				continue
			}
			if n > 0 {
				w.log.Debug("promoted due jobs", "count", n)
			}
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, err := w.ProcessOne(ctx)
		if err != nil {
			w.log.Warn("process job failed", "slot", slot, "err", err)

			// back off from a failing queue instead of spinning
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.PollInterval):
			}
		}
	}
}
