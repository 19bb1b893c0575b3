// Package sqlite provides single-file persistence on the pure-Go modernc.org/sqlite
// driver. Timestamps are stored as unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/zvx-echo6/mmud-sub000/internal/storage/schema"
)

// DB is an open SQLite database with its schema applied.
type DB struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and applies migrations.
//
// Precondition: path must be non-empty; logger must be non-nil.
// Postcondition: Returns a migrated DB or a non-nil error. The caller must Close it.
func Open(ctx context.Context, path string, logger *zap.Logger) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer at a time; the CAS in TargetStore.Update relies on serialized statements.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	res, err := schema.UpSQLite(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}
	logger.Info("sqlite schema ready",
		zap.String("path", path),
		zap.Uint("version", res.Version),
		zap.Bool("no_change", res.NoChange),
	)
	return &DB{db: db, logger: logger}, nil
}

// Health checks that the database answers within timeout.
func (d *DB) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Targets returns the shared-target store.
func (d *DB) Targets() *TargetStore { return &TargetStore{db: d.db} }

// Ledger returns the contribution store.
func (d *DB) Ledger() *LedgerStore { return &LedgerStore{db: d.db} }

// Players returns the player repository.
func (d *DB) Players() *PlayerRepository { return &PlayerRepository{db: d.db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}
