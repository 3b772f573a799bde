package redisqueue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/geocoder89/trialbooking/internal/jobs"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestKeysFor(t *testing.T) {
	k := KeysFor("")
	if k.Ready != "trialbooking:jobs:ready" || k.Processing != "trialbooking:jobs:processing" ||
		k.Delayed != "trialbooking:jobs:delayed" || k.Dead != "trialbooking:jobs:dead" {
		t.Fatalf("unexpected default keys %+v", k)
	}

	if got := KeysFor("x").Ready; got != "x:ready" {
		t.Fatalf("got %q", got)
	}
}

func TestWithConsumer(t *testing.T) {
	q := New(nil, "x")
	c := q.WithConsumer("w1")

	if got := c.Keys().Processing; got != "x:processing:w1" {
		t.Fatalf("got processing key %q", got)
	}
	if c.Keys().Ready != "x:ready" || c.Keys().Delayed != "x:delayed" {
		t.Fatalf("consumers share the other keys, got %+v", c.Keys())
	}
	if q.Keys().Processing != "x:processing" {
		t.Fatalf("WithConsumer must not modify the parent queue, got %+v", q.Keys())
	}
	if q.WithConsumer("").Keys().Processing != "x:processing" {
		t.Fatalf("empty consumer id keeps the shared processing list")
	}
}

// setupQueue needs a reachable redis (TEST_REDIS_ADDR); each test gets its
// own key prefix.
func setupQueue(t *testing.T) *Queue {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	q := New(rdb, "test:"+uuid.NewString())
	t.Cleanup(func() {
		k := q.Keys()
		_ = rdb.Del(context.Background(), k.Ready, k.Processing, k.Delayed, k.Dead).Err()
	})
	return q
}

func newJob(t *testing.T) jobs.Job {
	t.Helper()

	j, err := jobs.NewJob(jobs.TypeTrialConfirmation, []byte(`{"documentId":"d1","email":"a@b.com"}`), time.Time{})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return j
}

func TestQueue_EnqueueDequeueFIFO(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	first, second := newJob(t), newJob(t)
	for _, j := range []jobs.Job{first, second} {
		if err := q.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	for _, want := range []string{first.ID, second.ID} {
		got, err := q.Dequeue(ctx, time.Second)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got.ID != want {
			t.Fatalf("got job %s, want %s", got.ID, want)
		}
	}

	if _, err := q.Dequeue(ctx, time.Second); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestQueue_ScheduleAndPromote(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	now := time.Now()
	due, later := newJob(t), newJob(t)

	if err := q.Schedule(ctx, due, now.Add(-time.Second)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := q.Schedule(ctx, later, now.Add(time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	n, err := q.PromoteDue(ctx, now)
	if err != nil {
		t.Fatalf("PromoteDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted %d, want 1", n)
	}

	got, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.ID != due.ID {
		t.Fatalf("got %s, want the due job", got.ID)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready != 0 || stats.Delayed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestQueue_DeadLetterAndUndecodable(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	if err := q.DeadLetter(ctx, newJob(t)); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}

	if err := q.rdb.LPush(ctx, q.Keys().Ready, "not json").Err(); err != nil {
		t.Fatalf("LPush: %v", err)
	}
	if _, err := q.Dequeue(ctx, time.Second); !errors.Is(err, jobs.ErrInvalidJobPayload) {
		t.Fatalf("expected decode error, got %v", err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Dead != 2 {
		t.Fatalf("got %d dead, want 2", stats.Dead)
	}
}

func TestQueue_ClaimStaysUntilAck(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, newJob(t)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.Receipt == "" {
		t.Fatalf("claimed job should carry its receipt")
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready != 0 || stats.Processing != 1 {
		t.Fatalf("claimed job should sit in processing, got %+v", stats)
	}

	if err := q.Ack(ctx, got); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	stats, err = q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Processing != 0 {
		t.Fatalf("ack should clear processing, got %+v", stats)
	}
}

func TestQueue_ScheduleAndDeadLetterAcknowledge(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	for _, j := range []jobs.Job{newJob(t), newJob(t)} {
		if err := q.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	retry, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	dead, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	if err := q.Schedule(ctx, retry.Retry(errors.New("down"), time.Time{}), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := q.DeadLetter(ctx, dead); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Processing != 0 || stats.Delayed != 1 || stats.Dead != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestQueue_RecoverReturnsUnacknowledgedJobs(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	j := newJob(t)
	if err := q.Enqueue(ctx, j); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Dequeue(ctx, time.Second); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	// the claiming process went away without acknowledging
	n, err := q.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered %d, want 1", n)
	}

	got, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue after recover: %v", err)
	}
	if got.ID != j.ID {
		t.Fatalf("got %s, want the recovered job %s", got.ID, j.ID)
	}
}
