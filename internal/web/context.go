package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/statimport/internal/core"
)

// withRequestMetadata adds the client IP and User-Agent to ctx for the
// import audit trail. RemoteAddr has already been rewritten by TrustedRealIP.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithRequestMeta(ctx, core.RequestMeta{
		ClientIP:  clientIP(r.RemoteAddr),
		UserAgent: r.UserAgent(),
	})
}

// clientIP drops the port from addr. A forwarded address arrives without
// one and is returned unchanged.
func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
