package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// healthcheckTimeout bounds each backend's healthcheck, matching
// original_source's `Duration::from_secs(4)` per-check timeout.
const healthcheckTimeout = 4 * time.Second

// handleHealthcheck serves GET /healthcheck: fans out to all three
// backends concurrently and fails if any one does, the Go analogue of
// original_source's `try_join!` over auth/index/storage healthchecks.
// Unauthenticated by design — it must never leak internals via errors.
func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthcheckTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.checkOne(gctx, "auth", s.auth.Healthcheck) })
	g.Go(func() error { return s.checkOne(gctx, "index", s.index.Healthcheck) })
	g.Go(func() error { return s.checkOne(gctx, "storage", s.storage.Healthcheck) })

	if err := g.Wait(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) checkOne(ctx context.Context, label string, check func(context.Context) error) error {
	if err := check(ctx); err != nil {
		s.log.Error("healthcheck failed", zap.String("backend", label), zap.Error(err))
		// Unauthenticated endpoint: report only which backend failed, never
		// the underlying error, matching original_source's own rationale.
		return fmt.Errorf("%s failed", label)
	}
	return nil
}
