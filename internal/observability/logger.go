package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger writes JSON lines to stdout; debug records only in dev.
func NewLogger(env, service string) *slog.Logger {
	return newLogger(os.Stdout, env, service)
}

func newLogger(w io.Writer, env, service string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: env == "dev",
	})

	// every record carries the active trace/span ids when there is one
	return slog.New(NewTraceHandler(handler)).With("service", service, "env", env)
}
