// Package httpserver implements the request surface glue (§4.7): routing,
// authentication extraction, per-route structured request logging, a
// panic-to-500 recovery middleware, and a graceful-shutdown drain barrier.
// The listener lifecycle (Start/Stop around a background net.Listen/Serve
// goroutine) is grounded on papapumpkin-quasar's internal/agentmail/server.go;
// the deadline-then-force shutdown shape is grounded on the teacher's
// cmd/server/main.go signal-context + GracefulStop-with-deadline pattern,
// generalized here from gRPC's GracefulStop to http.Server.Shutdown.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/freighter-go/registry/internal/auth"
	"github.com/freighter-go/registry/internal/config"
	"github.com/freighter-go/registry/internal/publish"
	"github.com/freighter-go/registry/internal/repository"
	"github.com/freighter-go/registry/internal/storage"
)

// shutdownGracePeriod bounds how long Stop waits for in-flight requests to
// finish before forcing the listener closed, the HTTP analogue of the
// teacher's 5-second GracefulStop deadline.
const shutdownGracePeriod = 5 * time.Second

// Server wires the Index/Storage/Auth backend contracts and the publish
// orchestrator to an HTTP listener.
type Server struct {
	cfg     *config.Config
	index   repository.IndexRepository
	storage storage.Provider
	auth    auth.Provider
	publish *publish.Orchestrator
	log     *zap.Logger

	drain drainGate
	srv   *http.Server
	ln    net.Listener
}

// New constructs a Server. It does not start listening; call Start.
func New(cfg *config.Config, index repository.IndexRepository, store storage.Provider, authp auth.Provider, orch *publish.Orchestrator, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, index: index, storage: store, auth: authp, publish: orch, log: log}
}

// Start binds the listen address and begins serving in a background
// goroutine. It returns once the listener is ready to accept connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Service.Address)
	if err != nil {
		return fmt.Errorf("httpserver: listen on %s: %w", s.cfg.Service.Address, err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.routes()}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("serve error", zap.Error(err))
		}
	}()

	s.log.Info("listening", zap.String("addr", s.cfg.Service.Address))
	return nil
}

// Addr returns the bound listener address, useful for tests using port 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop raises the drain gate (new requests get 503 immediately) then waits
// up to shutdownGracePeriod for in-flight requests to finish before forcing
// the listener closed.
func (s *Server) Stop(ctx context.Context) error {
	s.drain.Raise()
	if s.srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.srv.Shutdown(shutdownCtx) }()

	select {
	case err := <-done:
		return err
	case <-shutdownCtx.Done():
		return s.srv.Close()
	}
}
