package types

import "context"

type contextKey string

const (
	// BackendNameKey is the context key for the backend name (e.g. "invidious", "piped").
	BackendNameKey contextKey = "backendName"
)

// WithBackendName returns a new context with the backend name added.
func WithBackendName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, BackendNameKey, name)
}

// BackendNameFromContext returns the backend name from the context.
func BackendNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(BackendNameKey).(string)
	return name, ok
}
