package middleware

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
)

// RateLimit returns middleware that allows perWindow requests per client IP
// in each window. Requests over the limit are passed to onLimit instead of
// the next handler.
//
// The client IP is read from RemoteAddr only, so TrustedRealIP must run first
// for proxied deployments.
func RateLimit(perWindow int, window time.Duration, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	rps := float64(perWindow) / window.Seconds()

	lmt := tollbooth.NewLimiter(rps, &limiter.ExpirableOptions{
		DefaultExpirationTTL: 2 * window,
	})
	lmt.SetBurst(perWindow)
	lmt.SetIPLookups([]string{"RemoteAddr"})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if httpError := tollbooth.LimitByRequest(lmt, w, r); httpError != nil {
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
