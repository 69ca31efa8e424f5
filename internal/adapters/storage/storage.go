// Package storage opens the configured repository backend.
package storage

import (
	"context"
	"fmt"

	"atrSignalBot/internal/adapters/postgres"
	"atrSignalBot/internal/adapters/sqlite"
	"atrSignalBot/internal/ports"
)

// Options selects the backend. DatabaseURL wins over DBPath.
type Options struct {
	DatabaseURL string
	DBPath      string
}

// Store bundles the repositories of one backend.
type Store struct {
	Results ports.BacktestResultRepository
	Signals ports.SignalRepository
	Backend string // "postgres" or "sqlite"
	close   func() error
}

// Open connects to Postgres when DatabaseURL is set and to the SQLite file
// at DBPath otherwise. The schema is created if missing.
func Open(ctx context.Context, opts Options, logger ports.Logger) (*Store, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required to open storage")
	}
	if opts.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo, err := postgres.NewRepository(pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := repo.RunMigrations(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info(ctx, "Using PostgreSQL storage")
		return &Store{
			Results: repo,
			Signals: repo,
			Backend: "postgres",
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil
	}

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: opts.DBPath, Logger: logger})
	if err != nil {
		return nil, err
	}
	return &Store{Results: repo, Signals: repo, Backend: "sqlite", close: repo.Close}, nil
}

// Close releases the underlying connections.
func (s *Store) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}
