package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/trialbooking/internal/config"
	"github.com/geocoder89/trialbooking/internal/notifications"
	"github.com/geocoder89/trialbooking/internal/observability"
	"github.com/geocoder89/trialbooking/internal/queue/redisclient"
	"github.com/geocoder89/trialbooking/internal/queue/redisqueue"
	"github.com/geocoder89/trialbooking/internal/queue/worker"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env, "trialbooking-worker")
	slog.SetDefault(log)

	if cfg.RedisAddr == "" {
		log.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	rc := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		// one blocking BLMOVE per consumer plus the promoter and probes
		PoolSize: cfg.WorkerConcurrency + 4,
	})
	defer rc.Close()

	if err := rc.WaitReady(ctx, 5, time.Second); err != nil {
		log.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	queue := redisqueue.New(rc.Raw(), cfg.QueuePrefix).WithConsumer(cfg.WorkerID)

	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(log, notifications.LogNotifierConfig{
			Delay: cfg.NotifierDelay,
			Fail:  cfg.NotifierFail,
		}),
		log,
		notifications.ProtectedNotifierConfig{},
	)

	w := worker.New(worker.Config{
		PollInterval:  500 * time.Millisecond,
		WorkerID:      cfg.WorkerID,
		Concurrency:   cfg.WorkerConcurrency,
		MaxAttempts:   cfg.WorkerMaxAttempts,
		ShutdownGrace: 10 * time.Second,
	}, queue, notifier, log, prom)

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHealthPort),
		Handler:           w.HealthHandler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("worker health server starting", "port", cfg.WorkerHealthPort)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("worker health server failed", "err", err)
		}
	}()

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	log.Info("worker shutdown complete")
}
