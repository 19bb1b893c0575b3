package schema

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestUpSQLite_AppliesAllThenNoChange(t *testing.T) {
	db := openSQLite(t)

	res, err := UpSQLite(db)
	require.NoError(t, err)
	assert.Equal(t, uint(3), res.Version)
	assert.False(t, res.Dirty)
	assert.False(t, res.NoChange)
	for _, table := range []string{"shared_targets", "contributions", "characters"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	res, err = UpSQLite(db)
	require.NoError(t, err)
	assert.True(t, res.NoChange)
	assert.Equal(t, uint(3), res.Version)
}

func TestRun_StepsDown(t *testing.T) {
	db := openSQLite(t)
	_, err := UpSQLite(db)
	require.NoError(t, err)

	m, err := newSQLiteMigrator(db)
	require.NoError(t, err)
	res, err := Run(m, Down, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(2), res.Version)
	assert.False(t, tableExists(t, db, "characters"))
	assert.True(t, tableExists(t, db, "contributions"))
}

func TestRun_InvalidDirection(t *testing.T) {
	db := openSQLite(t)
	m, err := newSQLiteMigrator(db)
	require.NoError(t, err)
	_, err = Run(m, Direction("sideways"), 0)
	assert.ErrorContains(t, err, "invalid direction")
}
