// Package schema applies the embedded migrations with golang-migrate.
package schema

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/zvx-echo6/mmud-sub000/migrations"
)

// Direction selects which way a migration run moves.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Result reports where a migration run ended.
type Result struct {
	Version  uint
	Dirty    bool
	NoChange bool
}

// NewPostgresMigrator builds a migrator over the embedded PostgreSQL migrations.
//
// Precondition: dsn must be a postgres:// URL.
// Postcondition: The caller must Close the returned migrator.
func NewPostgresMigrator(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.Postgres, "postgres")
	if err != nil {
		return nil, fmt.Errorf("opening embedded postgres migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres migrator: %w", err)
	}
	return m, nil
}

// newSQLiteMigrator builds a migrator bound to an already open database.
// Closing it closes db, so callers that keep db must not Close the migrator.
func newSQLiteMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.SQLite, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("opening embedded sqlite migrations: %w", err)
	}
	drv, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return nil, fmt.Errorf("creating sqlite migrator: %w", err)
	}
	return m, nil
}

// Run moves m in dir by steps, or all the way when steps is 0.
//
// Postcondition: ErrNoChange is reported through Result.NoChange, not as an error.
func Run(m *migrate.Migrate, dir Direction, steps int) (Result, error) {
	var err error
	switch dir {
	case Up:
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case Down:
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return Result{}, fmt.Errorf("invalid direction %q: must be 'up' or 'down'", dir)
	}

	res := Result{NoChange: errors.Is(err, migrate.ErrNoChange)}
	if err != nil && !res.NoChange {
		return res, fmt.Errorf("migration %s failed: %w", dir, err)
	}
	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return res, fmt.Errorf("reading migration version: %w", verr)
	}
	res.Version, res.Dirty = version, dirty
	return res, nil
}

// UpPostgres applies every pending PostgreSQL migration.
func UpPostgres(dsn string) (Result, error) {
	m, err := NewPostgresMigrator(dsn)
	if err != nil {
		return Result{}, err
	}
	defer m.Close()
	return Run(m, Up, 0)
}

// UpSQLite applies every pending SQLite migration to db and leaves db open.
func UpSQLite(db *sql.DB) (Result, error) {
	m, err := newSQLiteMigrator(db)
	if err != nil {
		return Result{}, err
	}
	return Run(m, Up, 0)
}
