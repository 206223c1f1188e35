package middleware

import (
	"net/http"
	"strconv"
	"time"

	"figmant/internal/metrics"
)

// Router resolves the route pattern of a request, as *http.ServeMux does
type Router interface {
	Handler(r *http.Request) (h http.Handler, pattern string)
}

// Metrics records request count and latency per route pattern. Patterns
// keep label cardinality bounded; unmatched requests share one label.
func Metrics(router Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			_, path := router.Handler(r)
			if path == "" {
				path = "unmatched"
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
