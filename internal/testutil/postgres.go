// Package testutil provides container-backed Postgres fixtures for the engine's storage tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zvx-echo6/mmud-sub000/internal/config"
	"github.com/zvx-echo6/mmud-sub000/internal/storage/postgres"
	"github.com/zvx-echo6/mmud-sub000/internal/storage/schema"
	"github.com/zvx-echo6/mmud-sub000/internal/storage/storetest"
)

const (
	// ApplicationName tags test sessions in pg_stat_activity.
	ApplicationName = "mmud-pool-test"
	// StatementTimeout bounds each statement a test issues.
	StatementTimeout = 10 * time.Second

	postgresImage = "postgres:16-alpine"
)

// engineTables are emptied between subtests, children first.
var engineTables = []string{"contributions", "shared_targets", "characters"}

// PostgresContainer is a throwaway Postgres holding the engine schema.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts Postgres and connects a Pool with the engine's
// session settings. The schema is not applied; see ApplyMigrations.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool, or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "mmud",
				"POSTGRES_PASSWORD": "mmud",
				"POSTGRES_DB":       "mmud_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:             host,
		Port:             port.Int(),
		User:             "mmud",
		Password:         "mmud",
		Name:             "mmud_test",
		SSLMode:          "disable",
		MaxConns:         5,
		MinConns:         1,
		MaxConnLifetime:  5 * time.Minute,
		ApplicationName:  ApplicationName,
		StatementTimeout: StatementTimeout,
	}
	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(pool.Close)

	t.Logf("postgres container started [%s]", time.Since(start))
	return &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}
}

// NewEnginePostgres starts Postgres and applies the engine migrations.
//
// Precondition: Docker must be available.
func NewEnginePostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	pc := NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return pc
}

// ApplyMigrations runs the embedded migrations against the container.
//
// Postcondition: Every table the repositories use exists.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	start := time.Now()
	res, err := schema.UpPostgres(pc.DSN())
	if err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied to version %d [%s]", res.Version, time.Since(start))
}

// Truncate empties every engine table so subtests start clean.
//
// Precondition: ApplyMigrations must have run.
func (pc *PostgresContainer) Truncate(t *testing.T) {
	t.Helper()
	for _, table := range engineTables {
		if _, err := pc.RawPool.Exec(context.Background(), "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncating %s: %v", table, err)
		}
	}
}

// Stores empties the tables and returns the Postgres repositories in the
// shape the backend conformance suite expects.
func (pc *PostgresContainer) Stores(t *testing.T) storetest.Stores {
	t.Helper()
	pc.Truncate(t)
	return storetest.Stores{
		Targets: pc.Pool.Targets(),
		Ledger:  pc.Pool.Ledger(),
		Players: pc.Pool.Players(),
	}
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return pc.Config.DSN()
}
