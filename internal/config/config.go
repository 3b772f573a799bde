package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

type Config struct {
	Env  string
	Port int

	// document store
	StoreDriver     string
	DBURL           string
	SQLitePath      string
	StoreCollection string

	// gateway
	StrictSchema bool
	CORSOrigins  []string

	// confirmation follow-up queue, disabled when RedisAddr is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueuePrefix   string

	// tracing
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64

	// worker; WorkerID names the worker's processing list, so keep it stable
	// across restarts
	WorkerID          string
	WorkerConcurrency int
	WorkerMaxAttempts int
	WorkerHealthPort  int

	// LogNotifier knobs for exercising retries and the circuit breaker locally
	NotifierDelay time.Duration
	NotifierFail  bool
}

func Load() Config {
	// a missing .env is fine; real environment variables always win
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		DBURL:           buildDBURL(),
		SQLitePath:      getEnv("SQLITE_PATH", "trialbooking.db"),
		StoreCollection: getEnv("STORE_COLLECTION", "trial_registrations"),

		StrictSchema: getEnvBool("STRICT_SCHEMA", false),
		CORSOrigins:  getEnvList("CORS_ORIGINS"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		QueuePrefix:   getEnv("QUEUE_PREFIX", "trialbooking:jobs"),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),

		WorkerID:          getEnv("WORKER_ID", defaultWorkerID()),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerMaxAttempts: getEnvInt("WORKER_MAX_ATTEMPTS", 8),
		WorkerHealthPort:  getEnvInt("WORKER_HEALTH_PORT", 8081),

		NotifierDelay: time.Duration(getEnvInt("NOTIFIER_SLEEP_MS", 0)) * time.Millisecond,
		NotifierFail:  getEnvBool("NOTIFIER_FAIL", false),
	}
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "trialbooking")
	pass := getEnv("DB_PASSWORD", "trialbooking")
	name := getEnv("DB_NAME", "trialbooking")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker"
	}
	return host
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)

		if err != nil {
			slog.Warn("invalid number in environment, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}

		return f
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			slog.Warn("invalid boolean in environment, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}

		return b
	}
	return fallback
}

// comma separated, blanks dropped
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
