package middleware

import (
	"net/http"
	"strings"

	"github.com/kozaktomas/face-service/internal/constants"
)

// parseAllowedOrigins builds the origin set. An empty list or "*" allows any origin.
func parseAllowedOrigins(origins []string) (map[string]struct{}, bool) {
	allowed := make(map[string]struct{})
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return nil, true
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	return allowed, len(allowed) == 0
}

// isLocalhostOrigin returns true if the origin is http(s)://localhost:<port>.
func isLocalhostOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost:", "http://localhost", "https://localhost:", "https://localhost"} {
		if origin == prefix || strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// isOriginAllowed checks whether a request origin should receive CORS headers.
func isOriginAllowed(origin string, allowed map[string]struct{}) bool {
	if origin == "" {
		return false
	}
	// Always allow localhost for development.
	if isLocalhostOrigin(origin) {
		return true
	}
	_, ok := allowed[origin]
	return ok
}

// CORS returns middleware that handles CORS headers. With no configured
// origins (or "*") every origin is allowed without credentials; otherwise
// only whitelisted origins and localhost receive CORS headers.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed, allowAll := parseAllowedOrigins(origins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case isOriginAllowed(origin, allowed):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Requested-With, "+constants.SecretHeader)
			w.Header().Set("Access-Control-Max-Age", "86400")

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
