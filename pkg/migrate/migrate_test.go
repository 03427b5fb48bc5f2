package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestMigrateUp(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_add_index.up.sql":     {Data: []byte("CREATE INDEX idx_things_name ON things(name);")},
		"m/001_create_things.up.sql": {Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT);")},
		"m/notes.txt":                {Data: []byte("ignored")},
	}
	migrations, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, 1, migrations[0].Version)
	require.Equal(t, "create things", migrations[0].Name)

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	m := NewMigrator(db, migrations, "", nil)
	require.NoError(t, m.MigrateUp())
	v, err := m.GetCurrentVersion()
	require.NoError(t, err)
	require.Equal(t, 2, v)

	// a second run has nothing to do
	pending, err := m.GetPendingMigrations()
	require.NoError(t, err)
	require.Empty(t, pending)
	require.NoError(t, m.MigrateUp())

	_, err = db.Exec("INSERT INTO things (name) VALUES ('a')")
	require.NoError(t, err)
}

func TestLoadMigrationsDuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/001_a.up.sql": {Data: []byte("SELECT 1;")},
		"m/001_b.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := LoadMigrations(fsys, "m")
	require.Error(t, err)
}

func TestFailedMigrationRollsBack(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	m := NewMigrator(db, []Migration{{Version: 1, Name: "broken", Up: "CREATE TABLE ("}}, "versions", nil)
	require.Error(t, m.MigrateUp())
	v, err := m.GetCurrentVersion()
	require.NoError(t, err)
	require.Zero(t, v)
}
