package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aegix-network/aegix/internal/logging"
)

// recoveryMiddleware recovers from a panic in any downstream handler and
// reports it as a 500 rather than crashing the process, grounded on
// infrastructure/middleware's RecoveryMiddleware.
func recoveryMiddleware(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Component("httpapi").WithField("stack", string(debug.Stack())).
						Errorf("panic recovered: %v", rec)
					writeError(w, fmt.Errorf("internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs method, path, status and latency for every
// request, grounded on infrastructure/middleware's LoggingMiddleware.
func loggingMiddleware(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Component("httpapi").WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("status", sw.status).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Info("request")
		})
	}
}

// corsMiddleware allows any origin and short-circuits preflight OPTIONS
// requests with 204, grounded on internal/app/httpapi/service.go's
// wrapWithCORS.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{"Content-Type", "X-Aegix-Api-Key"}, ", "))
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// globalRateLimiter is a per-remote-address token bucket, grounded on
// infrastructure/middleware.RateLimiter.
type globalRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newGlobalRateLimiter(requestsPerSecond float64, burst int) *globalRateLimiter {
	return &globalRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (g *globalRateLimiter) limiterFor(key string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[key]
	if !ok {
		l = rate.NewLimiter(g.rps, g.burst)
		g.limiters[key] = l
	}
	return l
}

func (g *globalRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			key = strings.SplitN(fwd, ",", 2)[0]
		}
		if !g.limiterFor(key).Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Code: "RATE_LIMITED", Message: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
