// Command server runs the EventHub API.
//
// All configuration comes from the environment (see internal/config). The
// minimum for a local run is two token secrets:
//
//	ACCESS_TOKEN_SECRET=... REFRESH_TOKEN_SECRET=... COOKIE_SECURE=false go run ./cmd/server
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/eventhub/internal/config"
	"github.com/sakif/eventhub/internal/media"
	"github.com/sakif/eventhub/internal/repository"
	mongoRepo "github.com/sakif/eventhub/internal/repository/mongo"
	sqliteRepo "github.com/sakif/eventhub/internal/repository/sqlite"
	"github.com/sakif/eventhub/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is configured from cfg, so this one goes out plain.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	store, err := openStore(cfg.Database)
	if err != nil {
		return err
	}

	images, err := media.NewLocalStore(cfg.Upload.Dir, cfg.Upload.URLPrefix)
	if err != nil {
		store.Close()
		return err
	}

	srv, err := server.New(cfg, store, images, logger)
	if err != nil {
		store.Close()
		return err
	}

	// Start closes the store on the way out.
	return srv.Start()
}

func openStore(cfg config.DatabaseConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := mongoRepo.Connect(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
