package middleware

import (
	"errors"
	"net"
	"net/http"

	authkit "github.com/praslov/authkit"
)

// Throttle gates requests through the engine's sliding-window limiter,
// keyed by client IP plus request path. Denied requests get 429. The
// client IP and User-Agent are attached to the request context so the
// wrapped handler's Engine calls see them.
func Throttle(engine *authkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authkit.WithClientIP(r.Context(), clientIP(r))
			ctx = authkit.WithDeviceName(ctx, r.UserAgent())

			if err := engine.Admit(ctx, r.URL.Path); err != nil {
				if errors.Is(err, authkit.ErrRateLimited) {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
