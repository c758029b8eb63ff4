package runid

import "context"

type ctxKey struct{}

// WithRunID returns a copy of ctx tagged with the job run ID so worker
// logs inside a run goroutine carry it automatically.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the run ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
