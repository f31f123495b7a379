package logger

import (
	"context"
	"log/slog"
	"os"
)

type requestIDKey struct{}
type queryKey struct{}

func Setup(level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithRequestID tags ctx with the request ID assigned to an incoming query,
// so every log line emitted while handling it (preprocessor calls, search
// timeouts, source lookups) can be correlated without threading the ID
// through every function signature.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// WithQuery tags ctx with the raw search term being handled, alongside any
// request ID already attached, so a single log line identifies both the
// request and the query that produced it without re-logging the term at
// every call site down the orchestrator's compute path.
func WithQuery(ctx context.Context, term string) context.Context {
	return context.WithValue(ctx, queryKey{}, term)
}

// FromContext returns a logger annotated with whatever request ID and
// search term WithRequestID/WithQuery attached to ctx, falling back to the
// unannotated default logger when neither was set (e.g. reconciler batches,
// which have no request ID or query).
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		logger = logger.With("request_id", requestID)
	}
	if term, ok := ctx.Value(queryKey{}).(string); ok {
		logger = logger.With("query", term)
	}
	return logger
}

// WithComponent returns a logger tagged with the name of the subsystem
// emitting through it (orchestrator, reconciler, docstore, ...), matching
// the "component" field every C1-C6 collaborator stamps on its own logger.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
