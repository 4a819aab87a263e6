package meld

import "context"

// Ctx identifies who is performing an operation and under which tenant.
// Request middleware and the job worker build one before invoking any
// mutation verb; the transaction log records its fields as authorship.
type Ctx struct {
	// User is the login name of the acting user, or a service identity
	// such as "worker" for background jobs.
	User string
	// Tenant is the logical tenant the operation is scoped to.
	Tenant string
	// JobID is set when the operation runs inside a background job.
	JobID string
}

type ctxKey struct{}

// WithCtx attaches the execution context to ctx.
func WithCtx(ctx context.Context, mc Ctx) context.Context {
	return context.WithValue(ctx, ctxKey{}, mc)
}

// CtxFrom returns the execution context attached to ctx, if any.
func CtxFrom(ctx context.Context) (Ctx, bool) {
	mc, ok := ctx.Value(ctxKey{}).(Ctx)
	return mc, ok
}
