package util

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// WithRequestID stores id on ctx for handlers and log lines.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// GetRequestID returns the id stored on ctx, or "" when none was set.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequestID reuses an upstream id when it is a well-formed uuid and mints a
// fresh one otherwise, so arbitrary header text never reaches the logs.
func RequestID(upstream string) string {
	if upstream != "" {
		if u, err := uuid.Parse(upstream); err == nil {
			return u.String()
		}
	}
	return uuid.NewString()
}
