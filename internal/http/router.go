package http

import (
	"log/slog"

	"github.com/geocoder89/trialbooking/internal/config"
	"github.com/geocoder89/trialbooking/internal/http/handlers"
	"github.com/geocoder89/trialbooking/internal/http/middlewares"
	"github.com/geocoder89/trialbooking/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "trialbooking-api"

// Deps are the collaborators the router wires into handlers. Queue, Prom and
// Gatherer are optional.
type Deps struct {
	Store    handlers.DocumentAppender
	Queue    handlers.FollowUpQueue
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Checks   map[string]handlers.Check
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	handlers.RegisterValidations()

	// middleware

	r.Use(gin.Recovery())
	if cfg.OTelEnabled {
		r.Use(otelgin.Middleware(serviceName))
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))

	// health
	h := handlers.NewHealthHandler(deps.Checks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(observability.MetricsHandler(deps.Gatherer)))
	}

	registrationHandler := handlers.NewRegistrationHandler(deps.Store, deps.Queue, log, deps.Prom, handlers.RegistrationHandlerConfig{
		Collection:   cfg.StoreCollection,
		StrictSchema: cfg.StrictSchema,
	})

	api := r.Group("/api")
	api.POST("/register", registrationHandler.Register)

	r.NoRoute(func(ctx *gin.Context) {
		handlers.RespondNotFound(ctx, "Route not found")
	})

	return r
}
