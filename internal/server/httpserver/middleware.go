package httpserver

import (
	"errors"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/freighter-go/registry/internal/errs"
)

var errPanicRecovered = errors.New("internal error")

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// recoverMiddleware turns a panic into a 500, the HTTP analogue of the
// teacher's RecoverUnary gRPC interceptor.
func recoverMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic",
					zap.Any("reason", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
				)
				writeError(w, errPanicRecovered)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware emits one structured zap event per request (method,
// path, status, duration) in place of the original's per-route Prometheus
// histograms/counters — see DESIGN.md for why.
func loggingMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("dur", time.Since(start)),
		)
	})
}

// drainGate rejects new requests once Raise has been called, the HTTP
// analogue of the teacher's deadline-then-force GracefulStop shutdown shape.
type drainGate struct {
	draining atomic.Bool
}

func (g *drainGate) Raise() { g.draining.Store(true) }

func (g *drainGate) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.draining.Load() {
			writeError(w, errs.ErrShuttingDown)
			return
		}
		next.ServeHTTP(w, r)
	})
}
