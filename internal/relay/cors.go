package relay

import (
	"net/http"
)

const (
	corsAllowMethods = "POST, GET, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, x-api-key, anthropic-version"
	corsMaxAge       = "86400"
)

// AllowedOrigin returns the Access-Control-Allow-Origin value for a request
// origin. With no allow-list every origin is permitted. An origin outside the
// list gets the first allowed origin, which the browser then rejects.
func AllowedOrigin(origin string, allowed []string) string {
	if len(allowed) == 0 {
		return "*"
	}
	for _, a := range allowed {
		if a == origin {
			return origin
		}
	}
	return allowed[0]
}

// CORSMiddleware adds CORS headers to every response and answers preflight
// requests with 204.
func CORSMiddleware(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", AllowedOrigin(r.Header.Get("Origin"), allowed))
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			if len(allowed) > 0 {
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
