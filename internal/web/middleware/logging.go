package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-service/internal/logging"
)

// RequestLogger writes one access-log line per request through logrus.
func RequestLogger() func(http.Handler) http.Handler {
	log := logging.Component("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				entry := log.WithFields(logrus.Fields{
					"request_id": chiMiddleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
					"remote":     r.RemoteAddr,
				})
				switch {
				case ww.Status() >= http.StatusInternalServerError:
					entry.Error("request failed")
				case r.URL.Path == "/health" || r.URL.Path == "/metrics":
					entry.Debug("request")
				default:
					entry.Info("request")
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
