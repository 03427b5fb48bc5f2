// Package batch runs the change detector over every pixel of a scene stack,
// one raster row per unit of work.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/chrissnell/ccdc/internal/change"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/internal/timeseries"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoPixels is returned when the source has no rows or no columns
var ErrNoPixels = errors.New("scene stack has no pixels")

// RowSource supplies per-scene records for raster rows and single pixels.
// ReadRow returns records indexed [col][scene].
type RowSource interface {
	Rows() int
	Cols() int
	ReadRow(row int) ([][]timeseries.SceneRecord, error)
	ReadPixel(row, col int) ([]timeseries.SceneRecord, error)
}

// Stats summarizes a run
type Stats struct {
	Rows     int
	Pixels   int
	Breaks   int
	ByStatus map[change.Status]int
	Elapsed  time.Duration
}

func (s *Stats) add(r storage.RowResult, breaks int) {
	s.Rows++
	s.Pixels += len(r.Pixels)
	s.Breaks += breaks
	for _, p := range r.Pixels {
		s.ByStatus[p.Status]++
	}
}

// Runner distributes rows over a fixed number of workers
type Runner struct {
	source   RowSource
	detector *change.Detector
	workers  int
	out      chan<- storage.RowResult
	logger   *zap.SugaredLogger
}

// NewRunner creates a runner that hands finished rows to out. workers <= 0
// uses GOMAXPROCS; a nil logger discards output.
func NewRunner(source RowSource, detector *change.Detector, workers int, out chan<- storage.RowResult, logger *zap.SugaredLogger) (*Runner, error) {
	if source.Rows() <= 0 || source.Cols() <= 0 {
		return nil, fmt.Errorf("%d rows x %d cols: %w", source.Rows(), source.Cols(), ErrNoPixels)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{
		source:   source,
		detector: detector,
		workers:  workers,
		out:      out,
		logger:   logger,
	}, nil
}

// Run processes every row. Cancellation is checked between rows; rows
// finished before the context was cancelled are still handed to out and the
// returned error wraps ctx.Err(). A row that cannot be read stops the run.
func (r *Runner) Run(ctx context.Context, runID uuid.UUID) (Stats, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	start := time.Now()
	stats := Stats{ByStatus: make(map[change.Status]int)}
	var mu sync.Mutex

	rows := make(chan int)
	go func() {
		defer close(rows)
		for row := 0; row < r.source.Rows(); row++ {
			select {
			case rows <- row:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range rows {
				if ctx.Err() != nil {
					continue
				}
				res, breaks, err := r.processRow(runID, row)
				if err != nil {
					cancel(err)
					continue
				}
				r.out <- res

				mu.Lock()
				stats.add(res, breaks)
				done := stats.Rows
				mu.Unlock()
				r.logger.Debugf("row %d finished (%d of %d rows)", row, done, r.source.Rows())
			}
		}()
	}
	wg.Wait()

	stats.Elapsed = time.Since(start)
	if err := context.Cause(ctx); err != nil {
		return stats, fmt.Errorf("run stopped after %d of %d rows: %w", stats.Rows, r.source.Rows(), err)
	}
	return stats, nil
}

// RunPixel processes a single pixel and hands it to out as a one-pixel row
func (r *Runner) RunPixel(runID uuid.UUID, row, col int) (storage.PixelResult, error) {
	recs, err := r.source.ReadPixel(row, col)
	if err != nil {
		return storage.PixelResult{}, fmt.Errorf("reading pixel (%d, %d): %w", row, col, err)
	}
	p, _ := r.detect(row, col, recs)
	r.out <- storage.RowResult{RunID: runID, Row: row, Pixels: []storage.PixelResult{p}}
	return p, nil
}

func (r *Runner) processRow(runID uuid.UUID, row int) (storage.RowResult, int, error) {
	cols, err := r.source.ReadRow(row)
	if err != nil {
		return storage.RowResult{}, 0, fmt.Errorf("reading row %d: %w", row, err)
	}

	res := storage.RowResult{RunID: runID, Row: row, Pixels: make([]storage.PixelResult, 0, len(cols))}
	breaks := 0
	for col, recs := range cols {
		p, b := r.detect(row, col, recs)
		res.Pixels = append(res.Pixels, p)
		breaks += b
	}
	return res, breaks, nil
}

func (r *Runner) detect(row, col int, recs []timeseries.SceneRecord) (storage.PixelResult, int) {
	result := r.detector.Run(slices.Values(recs))
	if result.Status == change.StatusRecovered {
		r.logger.Warnf("pixel (%d, %d) recorded as insufficient data after a detector failure", row, col)
	}
	return storage.PixelResult{
		Row:      row,
		Col:      col,
		Status:   result.Status,
		Segments: result.Segments.Segments(),
	}, result.Breaks
}
