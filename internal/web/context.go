package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/ledgerimport/internal/core"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for the
// coordinator's logs. RemoteAddr has already been resolved by TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.WithRequestMeta(ctx, core.RequestMeta{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}
