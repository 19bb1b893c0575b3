package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zvx-echo6/mmud-sub000/internal/storage/sqlite"
	"github.com/zvx-echo6/mmud-sub000/internal/storage/storetest"
)

func openDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "mmud.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newStores(t *testing.T) storetest.Stores {
	db := openDB(t)
	return storetest.Stores{
		Targets: db.Targets(),
		Ledger:  db.Ledger(),
		Players: db.Players(),
	}
}

func TestConformance(t *testing.T) {
	storetest.RunAll(t, newStores)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), "  ", zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mmud.db")

	db, err := sqlite.Open(ctx, path, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, db.Targets().Create(ctx, storetest.FullTarget("t1")))
	require.NoError(t, db.Close())

	db, err = sqlite.Open(ctx, path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Targets().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Gorgath the Hollow", got.Name)
}

func TestHealth(t *testing.T) {
	db := openDB(t)
	assert.NoError(t, db.Health(context.Background(), time.Second))
}

func TestLedger_ForeignKeyEnforced(t *testing.T) {
	db := openDB(t)
	err := db.Ledger().AddContribution(context.Background(), "ghost", "a", 1, storetest.Base)
	assert.Error(t, err)
}
