package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/trialbooking/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HealthHandler serves the worker's probes. g may be nil to skip /metrics.
func (w *Worker) HealthHandler(g prometheus.Gatherer) http.Handler {
	r := gin.New()

	r.Use(gin.Recovery())

	// liveness: process is up
	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// readiness: consumers are running and the queue answers
	r.GET("/readyz", func(c *gin.Context) {
		if !w.isReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		defer cancel()

		if err := w.queue.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "failing": []string{"queue"}})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/stats", func(c *gin.Context) {
		s := w.metrics.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"claimed":         s.Claimed,
			"done":            s.Done,
			"failed":          s.Failed,
			"retried":         s.Retried,
			"deadLettered":    s.DeadLettered,
			"avgDurationMs":   s.AverageDuration.Milliseconds(),
			"maxDurationMs":   s.MaxDuration.Milliseconds(),
			"durationSamples": s.DurationCount,
		})
	})

	if g != nil {
		r.GET("/metrics", gin.WrapH(observability.MetricsHandler(g)))
	}

	return r
}
