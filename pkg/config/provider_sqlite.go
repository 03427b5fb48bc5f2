package config

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/ccdc/pkg/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

const defaultConfigName = "default"

// SQLiteProvider implements ConfigProvider for SQLite database configuration.
// Settings are stored as dotted keys (run.t-cg, storage.sqlite.path) with
// YAML-encoded scalar values.
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens the configuration database at dbPath, creating
// its schema when needed
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	ms, err := migrate.LoadMigrations(migrations, "migrations")
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate.NewMigrator(db, ms, "config_migrations", nil).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate configuration database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	rows, err := s.db.Query(`
		SELECT key, value FROM settings
		WHERE config_id = (SELECT id FROM configs WHERE name = ?)
		ORDER BY key
	`, defaultConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	tree := make(map[string]any)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("setting %s: %w", key, err)
		}
		if err := insertKey(tree, strings.Split(key, "."), v); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	b, err := yaml.Marshal(tree)
	if err != nil {
		return nil, err
	}
	return parseYAML(b)
}

// GetRunConfig returns the run section
func (s *SQLiteProvider) GetRunConfig() (*RunData, error) {
	c, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &c.Run, nil
}

// GetStorageConfig returns the storage section
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	c, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &c.Storage, nil
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	b, err := yaml.Marshal(fromData(configData))
	if err != nil {
		return err
	}
	var tree map[any]any
	if err := yaml.Unmarshal(b, &tree); err != nil {
		return err
	}
	settings := make(map[string]string)
	if err := flatten("", tree, settings); err != nil {
		return err
	}

	// Start transaction
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR IGNORE INTO configs (name) VALUES (?)`, defaultConfigName); err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}
	var configID int64
	if err := tx.QueryRow(`SELECT id FROM configs WHERE name = ?`, defaultConfigName).Scan(&configID); err != nil {
		return fmt.Errorf("failed to get config id: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM settings WHERE config_id = ?`, configID); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.Exec(`INSERT INTO settings (config_id, key, value) VALUES (?, ?, ?)`, configID, k, settings[k]); err != nil {
			return fmt.Errorf("failed to insert setting %s: %w", k, err)
		}
	}
	if _, err := tx.Exec(`UPDATE configs SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, configID); err != nil {
		return err
	}

	// Commit transaction
	return tx.Commit()
}

// SetSetting stores a single dotted key, e.g. SetSetting("run.conse", "8")
func (s *SQLiteProvider) SetSetting(key, value string) error {
	var v any
	if err := yaml.Unmarshal([]byte(value), &v); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR IGNORE INTO configs (name) VALUES (?)`, defaultConfigName); err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO settings (config_id, key, value)
		VALUES ((SELECT id FROM configs WHERE name = ?), ?, ?)
	`, defaultConfigName, key, value)
	if err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	return tx.Commit()
}

func insertKey(tree map[string]any, path []string, v any) error {
	for i, p := range path[:len(path)-1] {
		next, ok := tree[p]
		if !ok {
			child := make(map[string]any)
			tree[p] = child
			tree = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("setting %s conflicts with a value at %s", strings.Join(path, "."), strings.Join(path[:i+1], "."))
		}
		tree = child
	}
	tree[path[len(path)-1]] = v
	return nil
}

func flatten(prefix string, tree map[any]any, out map[string]string) error {
	for k, v := range tree {
		key := fmt.Sprint(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if child, ok := v.(map[any]any); ok {
			if err := flatten(key, child, out); err != nil {
				return err
			}
			continue
		}
		b, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
		out[key] = strings.TrimSpace(string(b))
	}
	return nil
}
