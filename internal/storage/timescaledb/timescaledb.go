package timescaledb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/ccdc/internal/change"
	"github.com/chrissnell/ccdc/internal/database"
	"github.com/chrissnell/ccdc/internal/log"
	"github.com/chrissnell/ccdc/internal/segment"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Name identifies this engine in health reports
const Name = "timescaledb"

// Storage holds the connection of a TimescaleDB segment sink
type Storage struct {
	TimescaleDBConn *gorm.DB
	health          *storage.HealthManager
	runs            sync.Map
}

// StartStorageEngine creates a goroutine loop to receive rows and write
// them to TimescaleDB
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- storage.RowResult {
	log.Info("starting TimescaleDB storage engine...")
	rowChan := storage.NewRowChannel()
	wg.Add(1)
	go storage.ProcessRows(wg, rowChan, func(r storage.RowResult) error {
		return t.StoreRow(context.WithoutCancel(ctx), r)
	}, Name, t.health)
	return rowChan
}

// StoreRow writes every segment of a row in one transaction
func (t *Storage) StoreRow(ctx context.Context, r storage.RowResult) error {
	rows, err := fromRecords(storage.NewRecords(r), time.Now())
	if err != nil {
		return err
	}

	return t.TimescaleDBConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, seen := t.runs.Load(r.RunID); !seen {
			run := database.Run{ID: r.RunID.String(), StartedAt: time.Now()}
			if err := tx.Where(database.Run{ID: run.ID}).FirstOrCreate(&run).Error; err != nil {
				return fmt.Errorf("registering run %s: %w", r.RunID, err)
			}
			t.runs.Store(r.RunID, struct{}{})
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			log.Error("could not store segments:", err)
			return err
		}
		return nil
	})
}

// Segments returns the stored segments of one pixel in date order
func (t *Storage) Segments(ctx context.Context, runID uuid.UUID, row, col int) ([]storage.Record, error) {
	var rows []database.Segment
	err := t.TimescaleDBConn.WithContext(ctx).
		Where("run_id = ? AND pixel_row = ? AND pixel_col = ?", runID.String(), row, col).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	return toRecords(rows)
}

// LatestRun returns the most recently started run
func (t *Storage) LatestRun(ctx context.Context) (uuid.UUID, error) {
	var run database.Run
	err := t.TimescaleDBConn.WithContext(ctx).Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, storage.ErrNoRuns
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("querying latest run: %w", err)
	}
	return uuid.Parse(run.ID)
}

// Ping checks the database connection and records the result
func (t *Storage) Ping(ctx context.Context) error {
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		t.health.RecordError(Name, err)
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		t.health.RecordError(Name, err)
		return err
	}
	t.health.UpdateHealth(Name, storage.StatusHealthy, "TimescaleDB connection active")
	return nil
}

// Close closes the underlying connection pool
func (t *Storage) Close() error {
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// New sets up a new TimescaleDB storage backend
func New(ctx context.Context, connectionString string, health *storage.HealthManager) (*Storage, error) {
	db, err := database.CreateConnection(connectionString)
	if err != nil {
		return nil, err
	}
	return newStorage(ctx, db, health)
}

func newStorage(ctx context.Context, db *gorm.DB, health *storage.HealthManager) (*Storage, error) {
	if health == nil {
		health = storage.GlobalHealthManager
	}
	t := &Storage{TimescaleDBConn: db, health: health}

	log.Info("creating TimescaleDB extension...")
	if err := db.WithContext(ctx).Exec(createExtensionSQL).Error; err != nil {
		log.Warn("warning: could not create TimescaleDB extension")
		return nil, err
	}

	log.Info("migrating segment tables...")
	if err := db.WithContext(ctx).AutoMigrate(&database.Run{}, &database.Segment{}); err != nil {
		log.Warn("warning: could not migrate segment tables")
		return nil, err
	}

	steps := []struct {
		name string
		sql  string
	}{
		{"hypertable", createHypertableSQL},
		{"pixel index", createPixelIndexSQL},
		{"break index", createBreakIndexSQL},
	}
	for _, s := range steps {
		log.Infof("creating %s...", s.name)
		if err := db.WithContext(ctx).Exec(s.sql).Error; err != nil {
			log.Warnf("warning: could not create %s", s.name)
			return nil, err
		}
	}

	return t, nil
}

func fromRecords(recs []storage.Record, now time.Time) ([]database.Segment, error) {
	rows := make([]database.Segment, 0, len(recs))
	for _, r := range recs {
		coef, rmse, err := storage.EncodeCoefficients(r.Coefficients, r.RMSE)
		if err != nil {
			return nil, err
		}
		rows = append(rows, database.Segment{
			RunID:             r.RunID.String(),
			Row:               r.Row,
			Col:               r.Col,
			Seq:               r.Index,
			Status:            string(r.Status),
			StartDate:         r.StartDate,
			EndDate:           r.EndDate,
			BreakDate:         r.BreakDate,
			Category:          r.Category.String(),
			NumC:              r.NumC,
			NumObs:            r.NumObs,
			Coefficients:      coef,
			RMSE:              rmse,
			ChangeProbability: r.ChangeProbability,
			CreatedAt:         now,
		})
	}
	return rows, nil
}

func toRecords(rows []database.Segment) ([]storage.Record, error) {
	recs := make([]storage.Record, 0, len(rows))
	for _, s := range rows {
		id, err := uuid.Parse(s.RunID)
		if err != nil {
			return nil, fmt.Errorf("parsing run id: %w", err)
		}
		cat, err := segment.ParseCategory(s.Category)
		if err != nil {
			return nil, err
		}
		coef, rmse, err := storage.DecodeCoefficients(s.Coefficients, s.RMSE)
		if err != nil {
			return nil, err
		}
		recs = append(recs, storage.Record{
			RunID:             id,
			Row:               s.Row,
			Col:               s.Col,
			Index:             s.Seq,
			Status:            change.Status(s.Status),
			StartDate:         s.StartDate,
			EndDate:           s.EndDate,
			BreakDate:         s.BreakDate,
			Category:          cat,
			NumC:              s.NumC,
			NumObs:            s.NumObs,
			Coefficients:      coef,
			RMSE:              rmse,
			ChangeProbability: s.ChangeProbability,
		})
	}
	return recs, nil
}
