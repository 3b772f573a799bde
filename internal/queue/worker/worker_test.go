package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geocoder89/trialbooking/internal/jobs"
	"github.com/geocoder89/trialbooking/internal/notifications"
	"github.com/geocoder89/trialbooking/internal/queue/redisqueue"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQueue struct {
	mu sync.Mutex

	dequeueFn  func(ctx context.Context, timeout time.Duration) (jobs.Job, error)
	ackFn      func(ctx context.Context, j jobs.Job) error
	scheduleFn func(ctx context.Context, j jobs.Job, at time.Time) error
	recoverFn  func(ctx context.Context) (int, error)
	pingFn     func(ctx context.Context) error

	acked     []jobs.Job
	scheduled []scheduledJob
	dead      []jobs.Job
	promoted  atomic.Int64
	recovered atomic.Int64
}

type scheduledJob struct {
	job jobs.Job
	at  time.Time
}

func (f *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (jobs.Job, error) {
	if f.dequeueFn != nil {
		return f.dequeueFn(ctx, timeout)
	}
	return jobs.Job{}, redisqueue.ErrEmpty
}

func (f *fakeQueue) Ack(ctx context.Context, j jobs.Job) error {
	if f.ackFn != nil {
		if err := f.ackFn(ctx, j); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, j)
	return nil
}

func (f *fakeQueue) Recover(ctx context.Context) (int, error) {
	f.recovered.Add(1)
	if f.recoverFn != nil {
		return f.recoverFn(ctx)
	}
	return 0, nil
}

func (f *fakeQueue) Schedule(ctx context.Context, j jobs.Job, at time.Time) error {
	if f.scheduleFn != nil {
		if err := f.scheduleFn(ctx, j, at); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduledJob{job: j, at: at})
	return nil
}

func (f *fakeQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	f.promoted.Add(1)
	return 0, nil
}

func (f *fakeQueue) DeadLetter(ctx context.Context, j jobs.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = append(f.dead, j)
	return nil
}

func (f *fakeQueue) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, in notifications.TrialConfirmationInput) error
	sent   []notifications.TrialConfirmationInput
}

func (f *fakeNotifier) SendTrialConfirmation(ctx context.Context, in notifications.TrialConfirmationInput) error {
	f.mu.Lock()
	f.sent = append(f.sent, in)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, in)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func confirmationJob(t *testing.T, email string) jobs.Job {
	t.Helper()

	raw, err := jobs.EncodePayload(jobs.TypeTrialConfirmation, jobs.TrialConfirmationPayload{
		DocumentID: "doc-1",
		ParentName: "Ana",
		ChildName:  "Leo",
		Email:      email,
		TrialDate:  "2025-05-01",
		TrialTime:  "10:00",
	})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	j, err := jobs.NewJob(jobs.TypeTrialConfirmation, raw, time.Time{})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return j
}

// once hands out j on the first Dequeue and reports an empty queue afterwards
func once(j jobs.Job) func(context.Context, time.Duration) (jobs.Job, error) {
	var taken atomic.Bool
	return func(context.Context, time.Duration) (jobs.Job, error) {
		if taken.CompareAndSwap(false, true) {
			return j, nil
		}
		return jobs.Job{}, redisqueue.ErrEmpty
	}
}

func newTestWorker(q Queue, n notifications.Notifier, cfg Config) *Worker {
	w := New(cfg, q, n, discardLogger(), nil)
	w.backoff = func(int) time.Duration { return time.Minute }
	return w
}

func TestProcessOne_Empty(t *testing.T) {
	w := newTestWorker(&fakeQueue{}, &fakeNotifier{}, Config{})

	took, err := w.ProcessOne(context.Background())
	if err != nil || took {
		t.Fatalf("got took=%v err=%v, want false,nil", took, err)
	}
}

func TestProcessOne_QueueError(t *testing.T) {
	q := &fakeQueue{dequeueFn: func(context.Context, time.Duration) (jobs.Job, error) {
		return jobs.Job{}, errors.New("connection refused")
	}}
	w := newTestWorker(q, &fakeNotifier{}, Config{})

	if _, err := w.ProcessOne(context.Background()); err == nil {
		t.Fatalf("expected queue error")
	}
}

func TestProcessOne_SendsConfirmation(t *testing.T) {
	j := confirmationJob(t, "a@b.com")
	q := &fakeQueue{dequeueFn: once(j)}
	n := &fakeNotifier{}
	w := newTestWorker(q, n, Config{})

	took, err := w.ProcessOne(context.Background())
	if err != nil || !took {
		t.Fatalf("got took=%v err=%v", took, err)
	}

	if len(n.sent) != 1 || n.sent[0].Email != "a@b.com" || n.sent[0].ChildName != "Leo" {
		t.Fatalf("unexpected sends %+v", n.sent)
	}
	if len(q.scheduled) != 0 || len(q.dead) != 0 {
		t.Fatalf("a delivered job must not be rescheduled or dead-lettered")
	}
	if len(q.acked) != 1 || q.acked[0].ID != j.ID {
		t.Fatalf("a delivered job must be acknowledged, got %+v", q.acked)
	}

	if s := w.Metrics(); s.Claimed != 1 || s.Done != 1 {
		t.Fatalf("unexpected metrics %+v", s)
	}
}

func TestProcessOne_RetriesWithBackoff(t *testing.T) {
	j := confirmationJob(t, "a@b.com")
	q := &fakeQueue{dequeueFn: once(j)}
	n := &fakeNotifier{sendFn: func(context.Context, notifications.TrialConfirmationInput) error {
		return errors.New("provider down")
	}}
	w := newTestWorker(q, n, Config{})

	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if len(q.scheduled) != 1 {
		t.Fatalf("expected one reschedule, got %d", len(q.scheduled))
	}
	got := q.scheduled[0]
	if got.job.Attempts != 1 || got.job.LastError == nil || *got.job.LastError != "provider down" {
		t.Fatalf("unexpected retried job %+v", got.job)
	}
	if !got.at.Equal(now.Add(time.Minute)) {
		t.Fatalf("got run-at %v, want %v", got.at, now.Add(time.Minute))
	}
	if s := w.Metrics(); s.Retried != 1 {
		t.Fatalf("unexpected metrics %+v", s)
	}
}

func TestProcessOne_AckFailureIsReported(t *testing.T) {
	j := confirmationJob(t, "a@b.com")
	q := &fakeQueue{
		dequeueFn: once(j),
		ackFn:     func(context.Context, jobs.Job) error { return errors.New("redis gone") },
	}
	w := newTestWorker(q, &fakeNotifier{}, Config{})

	took, err := w.ProcessOne(context.Background())
	if !took || err == nil {
		t.Fatalf("got took=%v err=%v, want the ack error", took, err)
	}
}

func TestProcessOne_FailedRescheduleIsNotAcknowledged(t *testing.T) {
	j := confirmationJob(t, "a@b.com")
	q := &fakeQueue{
		dequeueFn:  once(j),
		scheduleFn: func(context.Context, jobs.Job, time.Time) error { return errors.New("redis gone") },
	}
	n := &fakeNotifier{sendFn: func(context.Context, notifications.TrialConfirmationInput) error {
		return errors.New("provider down")
	}}
	w := newTestWorker(q, n, Config{})

	if _, err := w.ProcessOne(context.Background()); err == nil {
		t.Fatalf("expected the schedule error")
	}
	if len(q.acked) != 0 {
		t.Fatalf("a job whose retry was not recorded must stay claimed")
	}
}

func TestRun_RecoversBeforeConsuming(t *testing.T) {
	q := &fakeQueue{recoverFn: func(context.Context) (int, error) {
		return 0, errors.New("redis gone")
	}}
	w := newTestWorker(q, &fakeNotifier{}, Config{})

	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected Run to fail when recovery fails")
	}
	if w.isReady() {
		t.Fatalf("worker must not report ready")
	}
}

func TestProcessOne_DeadLettersWhenExhausted(t *testing.T) {
	j := confirmationJob(t, "a@b.com")
	j.Attempts = 2

	q := &fakeQueue{dequeueFn: once(j)}
	n := &fakeNotifier{sendFn: func(context.Context, notifications.TrialConfirmationInput) error {
		return errors.New("provider down")
	}}
	w := newTestWorker(q, n, Config{MaxAttempts: 3})

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if len(q.scheduled) != 0 || len(q.dead) != 1 {
		t.Fatalf("got scheduled=%d dead=%d, want 0/1", len(q.scheduled), len(q.dead))
	}
	if q.dead[0].Attempts != 3 {
		t.Fatalf("got attempts %d", q.dead[0].Attempts)
	}
	if s := w.Metrics(); s.DeadLettered != 1 || s.Failed != 1 {
		t.Fatalf("unexpected metrics %+v", s)
	}
}

func TestProcessOne_InvalidPayloadIsNotRetried(t *testing.T) {
	j := confirmationJob(t, "") // no contact address
	q := &fakeQueue{dequeueFn: once(j)}
	n := &fakeNotifier{}
	w := newTestWorker(q, n, Config{})

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if len(n.sent) != 0 {
		t.Fatalf("invalid payload must not reach the notifier")
	}
	if len(q.dead) != 1 || len(q.scheduled) != 0 {
		t.Fatalf("got scheduled=%d dead=%d, want 0/1", len(q.scheduled), len(q.dead))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	jobsLeft := make(chan jobs.Job, 3)
	for i := 0; i < 3; i++ {
		jobsLeft <- confirmationJob(t, "a@b.com")
	}

	q := &fakeQueue{dequeueFn: func(ctx context.Context, timeout time.Duration) (jobs.Job, error) {
		select {
		case j := <-jobsLeft:
			return j, nil
		case <-ctx.Done():
			return jobs.Job{}, ctx.Err()
		case <-time.After(timeout):
			return jobs.Job{}, redisqueue.ErrEmpty
		}
	}}
	n := &fakeNotifier{}
	w := newTestWorker(q, n, Config{
		Concurrency:    2,
		PollInterval:   5 * time.Millisecond,
		DequeueTimeout: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if w.Metrics().Done == 3 && q.promoted.Load() > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("jobs not processed, metrics=%+v", w.Metrics())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}

	if w.isReady() {
		t.Fatalf("worker must report not ready after shutdown")
	}
	if q.recovered.Load() != 1 {
		t.Fatalf("Run should recover in-flight jobs once, got %d", q.recovered.Load())
	}
	if len(q.acked) != 3 {
		t.Fatalf("got %d acks, want 3", len(q.acked))
	}
}

func TestHealthHandler(t *testing.T) {
	q := &fakeQueue{}
	w := newTestWorker(q, &fakeNotifier{}, Config{})
	h := w.HealthHandler(nil)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz: got %d", rec.Code)
	}
	if rec := get("/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before Run: got %d", rec.Code)
	}

	w.setReady(true)
	if rec := get("/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz: got %d", rec.Code)
	}

	q.pingFn = func(context.Context) error { return errors.New("redis down") }
	if rec := get("/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with queue down: got %d", rec.Code)
	}

	rec := get("/stats")
	var stats map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if _, ok := stats["deadLettered"]; !ok {
		t.Fatalf("stats missing counters: %v", stats)
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{attempt: 0, base: 2 * time.Second},
		{attempt: 1, base: 4 * time.Second},
		{attempt: 2, base: 8 * time.Second},
		{attempt: 10, base: 5 * time.Minute},
		{attempt: 500, base: 5 * time.Minute},
	}

	for _, tt := range tests {
		got := ExponentialBackoff(tt.attempt)
		if got < tt.base || got >= tt.base+250*time.Millisecond {
			t.Fatalf("attempt %d: got %v, want %v plus jitter", tt.attempt, got, tt.base)
		}
	}
}
