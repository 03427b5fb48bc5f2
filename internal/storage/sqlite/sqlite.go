// Package sqlite stores pixel segments in a local SQLite database and
// answers point queries against it.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/ccdc/internal/change"
	"github.com/chrissnell/ccdc/internal/log"
	"github.com/chrissnell/ccdc/internal/segment"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/pkg/migrate"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Name identifies this engine in health reports
const Name = "sqlite"

const insertSegmentSQL = `
INSERT INTO segments (run_id, pixel_row, pixel_col, seq, status, start_date, end_date,
    break_date, category, num_c, num_obs, coefficients, rmse, change_probability)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectSegmentsSQL = `
SELECT seq, status, start_date, end_date, break_date, category, num_c, num_obs,
    coefficients, rmse, change_probability
FROM segments
WHERE run_id = ? AND pixel_row = ? AND pixel_col = ?
ORDER BY seq`

// Storage is a SQLite segment sink and repository
type Storage struct {
	db     *sql.DB
	path   string
	health *storage.HealthManager

	mu   sync.Mutex
	runs map[uuid.UUID]bool
}

// New opens (creating if needed) the database at path and migrates its schema.
// A nil health manager uses storage.GlobalHealthManager.
func New(ctx context.Context, path string, health *storage.HealthManager) (*Storage, error) {
	if health == nil {
		health = storage.GlobalHealthManager
	}

	log.Infof("opening SQLite segment database %s...", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One writer at a time; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	ms, err := migrate.LoadMigrations(migrations, "migrations")
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate.NewMigrator(db, ms, "", log.Named("migrate")).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate segment database: %w", err)
	}

	return &Storage{
		db:     db,
		path:   path,
		health: health,
		runs:   make(map[uuid.UUID]bool),
	}, nil
}

// StartStorageEngine creates a goroutine loop to receive rows and write them
// to SQLite
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- storage.RowResult {
	log.Info("starting SQLite storage engine...")
	rowChan := storage.NewRowChannel()
	wg.Add(1)
	go storage.ProcessRows(wg, rowChan, func(r storage.RowResult) error {
		return s.StoreRow(context.WithoutCancel(ctx), r)
	}, Name, s.health)
	return rowChan
}

// StoreRow writes every segment of a row in one transaction
func (s *Storage) StoreRow(ctx context.Context, r storage.RowResult) error {
	if err := s.ensureRun(ctx, r.RunID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSegmentSQL)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range storage.NewRecords(r) {
		coef, rmse, err := storage.EncodeCoefficients(rec.Coefficients, rec.RMSE)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			rec.RunID.String(), rec.Row, rec.Col, rec.Index, string(rec.Status),
			rec.StartDate, rec.EndDate, rec.BreakDate, rec.Category.String(),
			rec.NumC, rec.NumObs, coef, rmse, rec.ChangeProbability)
		if err != nil {
			return fmt.Errorf("inserting segment %d of pixel (%d, %d): %w", rec.Index, rec.Row, rec.Col, err)
		}
	}

	return tx.Commit()
}

func (s *Storage) ensureRun(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runs[id] {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (id, started_at) VALUES (?, ?)`,
		id.String(), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("registering run %s: %w", id, err)
	}
	s.runs[id] = true
	return nil
}

// Segments returns the stored segments of one pixel in date order
func (s *Storage) Segments(ctx context.Context, runID uuid.UUID, row, col int) ([]storage.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectSegmentsSQL, runID.String(), row, col)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		rec := storage.Record{RunID: runID, Row: row, Col: col}
		var status, category string
		var coef, rmse []byte
		err := rows.Scan(&rec.Index, &status, &rec.StartDate, &rec.EndDate, &rec.BreakDate,
			&category, &rec.NumC, &rec.NumObs, &coef, &rmse, &rec.ChangeProbability)
		if err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		rec.Status = change.Status(status)
		if rec.Category, err = segment.ParseCategory(category); err != nil {
			return nil, err
		}
		if rec.Coefficients, rec.RMSE, err = storage.DecodeCoefficients(coef, rmse); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently started run
func (s *Storage) LatestRun(ctx context.Context) (uuid.UUID, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, storage.ErrNoRuns
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("querying latest run: %w", err)
	}
	return uuid.Parse(id)
}

// Ping checks the database and records the result
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		s.health.RecordError(Name, err)
		return err
	}
	s.health.UpdateHealth(Name, storage.StatusHealthy, "SQLite database "+s.path+" reachable")
	return nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}
