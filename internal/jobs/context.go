package jobs

import "context"

type ctxKey int

const requestIDCtxKey ctxKey = iota

// WithRequestID tags ctx with the id of the HTTP request or queue message
// that triggered the work, so executor logs can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDCtxKey, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// detach drops the deadline and cancellation of ctx but keeps its values.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
