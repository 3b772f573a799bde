package integration_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/trialbooking/internal/config"
	"github.com/geocoder89/trialbooking/internal/db"
	apphttp "github.com/geocoder89/trialbooking/internal/http"
	"github.com/geocoder89/trialbooking/internal/notifications"
	"github.com/geocoder89/trialbooking/internal/queue/redisqueue"
	"github.com/geocoder89/trialbooking/internal/queue/worker"
	"github.com/geocoder89/trialbooking/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifications.TrialConfirmationInput
}

func (n *recordingNotifier) SendTrialConfirmation(ctx context.Context, input notifications.TrialConfirmationInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, input)
	return nil
}

func (n *recordingNotifier) Calls() []notifications.TrialConfirmationInput {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.TrialConfirmationInput(nil), n.calls...)
}

type pipeline struct {
	router     *gin.Engine
	store      *postgres.DocumentsRepo
	queue      *redisqueue.Queue
	collection string
	log        *slog.Logger
}

// setupPipeline wires the API the way cmd/api does, against a real postgres
// (TEST_DB_DSN) and redis (TEST_REDIS_ADDR).
func setupPipeline(t *testing.T) pipeline {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	redisAddr := os.Getenv("TEST_REDIS_ADDR")
	if dsn == "" || redisAddr == "" {
		t.Skip("TEST_DB_DSN and TEST_REDIS_ADDR are required")
	}

	pool, err := db.NewPool(dsn)
	if err != nil {
		t.Fatalf("pg pool: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		pool.Close()
		t.Fatalf("redis ping: %v", err)
	}

	run := uuid.NewString()
	collection := "pipeline_" + run
	queue := redisqueue.New(rdb, "itest:"+run)

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1`, collection)
		k := queue.Keys()
		_ = rdb.Del(ctx, k.Ready, k.Processing, k.Delayed, k.Dead).Err()
		_ = rdb.Close()
		pool.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	store := postgres.NewDocumentsRepo(pool, nil)

	router := apphttp.NewRouter(logger, config.Config{
		Env:             "test",
		StoreDriver:     config.StorePostgres,
		StoreCollection: collection,
	}, apphttp.Deps{
		Store: store,
		Queue: queue,
	})

	return pipeline{router: router, store: store, queue: queue, collection: collection, log: logger}
}

func TestPipeline_Register_EnqueuesJob_Worker_SendsOnce(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	body := `{
		"parentName": "Pipeline Parent",
		"email": "pipeline@example.com",
		"whatsapp": "+1 555 0100",
		"childName": "Leo",
		"childAge": "6",
		"country": "Chile",
		"city": "Santiago",
		"trialDate": "2025-05-01",
		"trialTime": "10:00"
	}`

	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	p.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != `{"success":true}` {
		t.Fatalf("register got %d body=%s", w.Code, w.Body.String())
	}

	n, err := p.store.Count(ctx, p.collection)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d stored registrations, want 1", n)
	}

	stats, err := p.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready != 1 {
		t.Fatalf("expected one confirmation job, got %+v", stats)
	}

	// worker step
	rec := &recordingNotifier{}
	notifier := notifications.NewProtectedNotifier(rec, p.log, notifications.ProtectedNotifierConfig{})
	wk := worker.New(worker.Config{DequeueTimeout: time.Second}, p.queue, notifier, p.log, nil)

	took, err := wk.ProcessOne(ctx)
	if err != nil || !took {
		t.Fatalf("ProcessOne got took=%v err=%v", took, err)
	}

	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected one send per channel, got %d", len(calls))
	}
	if calls[0].Email != "pipeline@example.com" || calls[0].ChildName != "Leo" || calls[0].TrialTime != "10:00" {
		t.Fatalf("unexpected email send %+v", calls[0])
	}
	if calls[1].WhatsApp != "+1 555 0100" || calls[1].Email != "" {
		t.Fatalf("unexpected whatsapp send %+v", calls[1])
	}

	stats, err = p.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready != 0 || stats.Processing != 0 || stats.Delayed != 0 || stats.Dead != 0 {
		t.Fatalf("job should be settled, got %+v", stats)
	}

	// nothing left, so a second pass sends nothing
	took, err = wk.ProcessOne(ctx)
	if err != nil || took {
		t.Fatalf("second ProcessOne got took=%v err=%v", took, err)
	}
	if len(rec.Calls()) != 2 {
		t.Fatalf("confirmation sent more than once")
	}
}

func TestPipeline_PermissiveBodyWithoutEmail_NoJob(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewBufferString(`{"parentName":"No Email"}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	p.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("register got %d body=%s", w.Code, w.Body.String())
	}

	stats, err := p.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready != 0 {
		t.Fatalf("no job expected without a contact address, got %+v", stats)
	}
}
