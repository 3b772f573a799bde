package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/trialbooking/internal/config"
	"github.com/geocoder89/trialbooking/internal/db"
	"github.com/geocoder89/trialbooking/internal/domain/document"
	httpx "github.com/geocoder89/trialbooking/internal/http"
	"github.com/geocoder89/trialbooking/internal/http/handlers"
	"github.com/geocoder89/trialbooking/internal/observability"
	"github.com/geocoder89/trialbooking/internal/queue/redisclient"
	"github.com/geocoder89/trialbooking/internal/queue/redisqueue"
	"github.com/geocoder89/trialbooking/internal/repo/memory"
	"github.com/geocoder89/trialbooking/internal/repo/postgres"
	"github.com/geocoder89/trialbooking/internal/repo/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type documentStore interface {
	Append(ctx context.Context, doc document.Document) error
	Ping(ctx context.Context) error
}

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env, "trialbooking-api")
	slog.SetDefault(log)

	if cfg.OTelEnabled {
		ctx, cancel := config.WithTimeout(5 * time.Second)
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: "trialbooking-api",
			Env:         cfg.Env,
			Endpoint:    cfg.OTelEndpoint,
			SampleRatio: cfg.OTelSampleRatio,
		})
		cancel()

		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdownTracer(ctx)
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(registry)

	store, closeStore, err := openStore(cfg, prom)
	if err != nil {
		log.Error("document store unavailable", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	checks := map[string]handlers.Check{"store": store.Ping}

	deps := httpx.Deps{
		Store:    store,
		Prom:     prom,
		Gatherer: registry,
		Checks:   checks,
	}

	// confirmation follow-ups are optional; without redis the gateway only stores
	if cfg.RedisAddr != "" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rc.Close()

		queue := redisqueue.New(rc.Raw(), cfg.QueuePrefix)
		deps.Queue = queue
		checks["queue"] = queue.Ping

		log.Info("confirmation queue enabled", "redis", cfg.RedisAddr)
	}

	// set up routers with the log
	router := httpx.NewRouter(log, cfg, deps)

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// start server using a concurrent go-routine driven anonymous function.
	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver, "strict_schema", cfg.StrictSchema)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)

		if err != nil {
			log.Error("graceful shutdown failed", "err", err)
			return
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

func openStore(cfg config.Config, prom *observability.Prom) (documentStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.NewPool(cfg.DBURL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewDocumentsRepo(pool, prom), pool.Close, nil

	case config.StoreSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath, prom)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil

	case config.StoreMemory:
		return memory.NewDocumentsRepo(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
