// Command server runs the card registry service: bulk import engine, card
// CRUD API, duplicate review and exports over one HTTP listener.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/koffiyao/cartes/internal/audit"
	"github.com/koffiyao/cartes/internal/cards"
	"github.com/koffiyao/cartes/internal/config"
	"github.com/koffiyao/cartes/internal/database"
	"github.com/koffiyao/cartes/internal/importer"
	"github.com/koffiyao/cartes/internal/logging"
	"github.com/koffiyao/cartes/internal/web"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting card registry", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	store := cards.NewStore(pool)
	journal := audit.NewJournal(pool)

	sessions, err := buildSessionStore(ctx, cfg.Sessions)
	if err != nil {
		return err
	}

	service := importer.NewService(importer.Config{
		BatchSize:         cfg.Import.BatchSize,
		BatchTimeout:      cfg.Import.BatchTimeout,
		MaxRows:           cfg.Import.MaxRows,
		MaxConcurrent:     cfg.Import.MaxConcurrent,
		MaxWait:           cfg.Import.MaxWaitTime,
		LowMemory:         cfg.Import.LowMemory,
		PauseEvery:        cfg.Import.PauseEvery,
		PauseDuration:     cfg.Import.PauseDuration,
		AuditEvery:        cfg.Import.AuditEvery,
		EstimateThreshold: cfg.Import.EstimateThreshold,
	}, importer.NewCardRegistry(store), journal, sessions)

	server := web.NewServer(cfg, store.Query(), service, journal)
	return server.Run(ctx)
}

// buildSessionStore selects the session backend: Redis when configured, the
// in-memory store otherwise.
func buildSessionStore(ctx context.Context, cfg config.SessionConfig) (importer.SessionStore, error) {
	if cfg.RedisURL == "" {
		slog.Info("using in-memory import sessions", "retention", cfg.Retention)
		return importer.NewMemoryStore(cfg.Retention), nil
	}

	store, err := importer.NewRedisStore(cfg.RedisURL, cfg.TTL)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		return nil, err
	}
	slog.Info("using redis import sessions", "ttl", cfg.TTL)
	return store, nil
}
