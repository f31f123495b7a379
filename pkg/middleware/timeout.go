package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/texsearch/texsearch/pkg/logger"
)

// Timeout bounds the dashboard/analytics HTTP API's handler time at
// timeout, independent of the server's connection-level ReadTimeout/
// WriteTimeout — a slow Postgres history query should 504 on its own
// schedule rather than waiting out the whole connection deadline. It
// carries no effect on the stdio query protocol the index CLI serves,
// which enforces its own per-request searchTimeoutSec/preprocessorTimeout
// from the request envelope instead.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			done := make(chan struct{})
			tw := &timeoutWriter{ResponseWriter: w}
			go func() {
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				if !tw.written {
					logger.WithComponent("http-timeout").Warn("request timed out",
						"method", r.Method, "path", r.URL.Path, "timeout", timeout,
						"request_id", GetRequestID(ctx))
					http.Error(w, `{"error":"request timeout"}`, http.StatusGatewayTimeout)
				}
			}
		})
	}
}

type timeoutWriter struct {
	http.ResponseWriter
	written bool
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.written = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.written = true
	return tw.ResponseWriter.Write(b)
}
