// Package migrate applies versioned SQL schema migrations to sqlite databases.
package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
}

// DB represents either a database connection or transaction
type DB interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Format: 001_migration_name.up.sql
var upRegex = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// LoadMigrations reads the up migrations in dir of fsys, ordered by version
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, e := range entries {
		matches := upRegex.FindStringSubmatch(e.Name())
		if e.IsDir() || matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("invalid version number in file %s: %w", e.Name(), err)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, other, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.ReplaceAll(matches[2], "_", " "),
			Up:      string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrator handles the execution of migrations
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	table      string
	logger     *zap.SugaredLogger
}

// NewMigrator creates a migrator tracking applied versions in table
func NewMigrator(db *sql.DB, migrations []Migration, table string, logger *zap.SugaredLogger) *Migrator {
	if table == "" {
		table = "schema_migrations"
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Migrator{db: db, migrations: migrations, table: table, logger: logger}
}

// MigrateUp runs all pending migrations
func (m *Migrator) MigrateUp() error {
	pending, err := m.GetPendingMigrations()
	if err != nil {
		return err
	}
	for _, migration := range pending {
		if err := m.apply(migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}
	return nil
}

// GetCurrentVersion returns the highest applied migration version
func (m *Migrator) GetCurrentVersion() (int, error) {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`, m.table)
	if _, err := m.db.Exec(query); err != nil {
		return 0, fmt.Errorf("failed to create migration table: %w", err)
	}

	var version int
	err := m.db.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", m.table)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// GetPendingMigrations returns migrations that haven't been applied yet
func (m *Migrator) GetPendingMigrations() ([]Migration, error) {
	current, err := m.GetCurrentVersion()
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, migration := range m.migrations {
		if migration.Version > current {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

func (m *Migrator) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if err := m.setVersion(tx, migration.Version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	m.logger.Debugf("applied migration %d (%s)", migration.Version, migration.Name)
	return nil
}

func (m *Migrator) setVersion(db DB, version int) error {
	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, m.table)
	if _, err := db.Exec(query, version); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}
