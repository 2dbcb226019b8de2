package logging

import (
	"context"
	"log/slog"
)

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored on ctx, or "" if there is none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func RequestAttr(ctx context.Context) slog.Attr {
	return slog.String("request_id", RequestID(ctx))
}
