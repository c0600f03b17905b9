package rpc

// middleware.go – request logging with per-request ids.

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the generated request id back to the client.
const RequestIDHeader = "X-Request-Id"

// RequestLogger tags every request with a uuid and logs method, path,
// duration.
func RequestLogger(lg *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			w.Header().Set(RequestIDHeader, id)
			start := time.Now()
			next.ServeHTTP(w, r)
			lg.WithFields(logrus.Fields{
				"request_id": id,
				"method":     r.Method,
				"path":       r.URL.Path,
				"elapsed":    time.Since(start),
			}).Debug("rpc request")
		})
	}
}
