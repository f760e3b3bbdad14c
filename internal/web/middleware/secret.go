package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/face-service/internal/constants"
	"github.com/kozaktomas/face-service/internal/logging"
)

// SharedSecret checks the x-face-service-secret header sent by the upstream API.
// When enforce is false the header is only logged. When enforce is true, requests
// without the header (or with a different value, if secret is set) get 401.
// /health is always exempt.
func SharedSecret(secret string, enforce bool) func(http.Handler) http.Handler {
	log := logging.Component("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(constants.SecretHeader)
			if got != "" {
				log.Debug("Received shared secret header")
			}

			if enforce && !isHealthPath(r.URL.Path) && !secretMatches(got, secret) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Missing shared secret"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isHealthPath(path string) bool {
	return path == "/health" || path == "/api/v1/health"
}

func secretMatches(got, want string) bool {
	if got == "" {
		return false
	}
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
