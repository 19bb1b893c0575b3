package gameserver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/config"
	"github.com/zvx-echo6/mmud-sub000/internal/game/ledger"
	"github.com/zvx-echo6/mmud-sub000/internal/game/player"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
	"github.com/zvx-echo6/mmud-sub000/internal/storage/memory"
	"github.com/zvx-echo6/mmud-sub000/internal/storage/postgres"
	"github.com/zvx-echo6/mmud-sub000/internal/storage/schema"
	"github.com/zvx-echo6/mmud-sub000/internal/storage/sqlite"
)

// healthTimeout bounds a single storage health probe.
const healthTimeout = 5 * time.Second

// Storage is the persistence backend selected by configuration.
type Storage struct {
	Driver  string
	Targets target.Store
	Ledger  ledger.Store
	Players player.Registry

	health func(ctx context.Context) error
	close  func() error
}

// OpenStorage opens the backend named by cfg.Storage.Driver. The postgres
// backend is migrated to the latest schema before use; sqlite migrates on open.
//
// Precondition: cfg must have passed Validate; logger must be non-nil.
// Postcondition: Returns a ready Storage or a non-nil error.
func OpenStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Storage, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return &Storage{
			Driver:  "memory",
			Targets: memory.NewTargetStore(),
			Ledger:  memory.NewLedgerStore(),
			Players: memory.NewPlayerRepository(),
			health:  func(context.Context) error { return nil },
			close:   func() error { return nil },
		}, nil

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Driver:  "sqlite",
			Targets: db.Targets(),
			Ledger:  db.Ledger(),
			Players: db.Players(),
			health:  func(ctx context.Context) error { return db.Health(ctx, healthTimeout) },
			close:   db.Close,
		}, nil

	case "postgres":
		res, err := schema.UpPostgres(cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("migrating postgres: %w", err)
		}
		logger.Info("postgres schema ready",
			zap.Uint("version", res.Version),
			zap.Bool("no_change", res.NoChange),
		)
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Driver:  "postgres",
			Targets: pool.Targets(),
			Ledger:  pool.Ledger(),
			Players: pool.Players(),
			health:  func(ctx context.Context) error { return pool.Health(ctx, healthTimeout) },
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// Health reports whether the backend is reachable.
func (s *Storage) Health(ctx context.Context) error { return s.health(ctx) }

// Close releases backend resources.
func (s *Storage) Close() error { return s.close() }
