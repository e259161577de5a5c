// Command registryd starts the package registry's HTTP server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/freighter-go/registry/internal/auth"
	"github.com/freighter-go/registry/internal/auth/fsauth"
	"github.com/freighter-go/registry/internal/auth/headerauth"
	"github.com/freighter-go/registry/internal/auth/yesauth"
	"github.com/freighter-go/registry/internal/config"
	"github.com/freighter-go/registry/internal/limiter"
	"github.com/freighter-go/registry/internal/migrate"
	"github.com/freighter-go/registry/internal/publish"
	"github.com/freighter-go/registry/internal/repository"
	"github.com/freighter-go/registry/internal/repository/fsindex"
	"github.com/freighter-go/registry/internal/repository/postgres"
	"github.com/freighter-go/registry/internal/server/httpserver"
	"github.com/freighter-go/registry/internal/storage"
	"github.com/freighter-go/registry/internal/storage/fsstorage"
	"github.com/freighter-go/registry/internal/storage/objectstore"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfgPath := flag.String("c", "registry.yaml", "path to the YAML config file")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting", zap.String("version", version), zap.String("buildDate", buildDate))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	index, closeIndex, err := buildIndex(ctx, cfg)
	if err != nil {
		logger.Fatal("build index backend", zap.Error(err))
	}
	defer closeIndex()

	authProvider, err := buildAuth(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build auth backend", zap.Error(err))
	}

	store, err := buildStorage(cfg)
	if err != nil {
		logger.Fatal("build storage backend", zap.Error(err))
	}

	orch := publish.New(index, store, authProvider, logger)
	srv := httpserver.New(cfg, index, store, authProvider, orch, logger)

	if err := srv.Start(); err != nil {
		logger.Fatal("start server", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// buildIndex selects and constructs the Index backend, running migrations
// first when the relational backend is selected, the same
// migrate-then-connect ordering as the teacher's cmd/server/main.go.
func buildIndex(ctx context.Context, cfg *config.Config) (repository.IndexRepository, func(), error) {
	switch cfg.IndexBackend() {
	case "postgres":
		if err := migrate.Up(ctx, cfg.IndexDB); err != nil {
			return nil, nil, err
		}
		db, err := postgres.New(ctx, cfg.IndexDB)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewIndexRepo(db), func() { db.Close() }, nil
	default:
		p, err := fsindex.New(cfg.IndexPath)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {}, nil
	}
}

// buildAuth selects and constructs the Auth backend. The relational backend
// shares a login-attempt rate limiter backed by its own Postgres pool,
// mirroring the teacher's limiter.NewPG wiring in cmd/server/main.go.
func buildAuth(ctx context.Context, cfg *config.Config, logger *zap.Logger) (auth.Provider, error) {
	switch cfg.AuthBackend() {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.AuthDB)
		if err != nil {
			return nil, err
		}
		db := &postgres.DB{Pool: pool}
		lim := limiter.NewPG(pool, 15*time.Minute, 5, 15*time.Minute)
		return postgres.NewAuthRepo(db, []byte(cfg.AuthTokensPepper), lim), nil
	case "filesystem":
		return fsauth.New(cfg.AuthPath, []byte(cfg.AuthTokensPepper))
	case "header":
		return headerauth.New(cfg.AuthTeamBaseURL, cfg.AuthAudience)
	default:
		logger.Warn("auth_allow_full_access_without_any_checks is enabled: every caller is treated as authenticated")
		return yesauth.New(cfg.AuthAllowFullAccessWithoutAnyChecks)
	}
}

func buildStorage(cfg *config.Config) (storage.Provider, error) {
	if cfg.StorageBackend() == "filesystem" {
		return fsstorage.New(cfg.StorePath)
	}
	return objectstore.New(objectstore.Config{
		Bucket:          cfg.Store.Name,
		EndpointURL:     cfg.Store.EndpointURL,
		Region:          cfg.Store.Region,
		AccessKeyID:     cfg.Store.AccessKeyID,
		AccessKeySecret: cfg.Store.AccessKeySecret,
	}), nil
}
