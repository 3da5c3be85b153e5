package core

import "context"

type contextKey string

const ctxKeyRequestMeta contextKey = "request_meta"

// RequestMeta describes the client that submitted an upload. It is recorded
// on the "Import started" audit entry.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// ContextWithRequestMeta attaches client metadata for audit logging.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, ctxKeyRequestMeta, meta)
}

// RequestMetaFromContext returns the metadata attached by
// ContextWithRequestMeta, or the zero value.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(ctxKeyRequestMeta).(RequestMeta)
	return meta
}
