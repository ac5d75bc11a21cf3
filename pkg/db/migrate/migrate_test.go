package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestMigrateSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "laps.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, MigrateSQLite(db))
	// second run is a no-op
	require.NoError(t, MigrateSQLite(db))

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='lap'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "lap", name)
}

func TestMigrateDbSQLiteURL(t *testing.T) {
	url := SchemeSQLite + filepath.Join(t.TempDir(), "laps.db")
	require.NoError(t, MigrateDb(url))
	version, dirty, err := Version(url)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestMigrateDbUnsupported(t *testing.T) {
	assert.Error(t, MigrateDb("mysql://localhost/laps"))
}
