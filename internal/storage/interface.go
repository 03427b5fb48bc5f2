package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/chrissnell/ccdc/internal/change"
	"github.com/chrissnell/ccdc/internal/segment"
	"github.com/google/uuid"
)

// ErrNoRuns is returned by LatestRun when nothing has been stored yet
var ErrNoRuns = errors.New("no runs stored")

// PixelResult is the detection output of one pixel
type PixelResult struct {
	Row      int
	Col      int
	Status   change.Status
	Segments []segment.Segment
}

// RowResult carries every pixel of one raster row. A row is the unit of
// work handed to the sinks; no two RowResults of a run share a row.
type RowResult struct {
	RunID  uuid.UUID
	Row    int
	Pixels []PixelResult
}

// StorageEngineInterface is implemented by every segment sink. The returned
// channel is drained until it is closed, so rows sent before a shutdown are
// still written.
type StorageEngineInterface interface {
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- RowResult
}

// SegmentReader is implemented by sinks that can answer point queries
type SegmentReader interface {
	Segments(ctx context.Context, runID uuid.UUID, row, col int) ([]Record, error)
	LatestRun(ctx context.Context) (uuid.UUID, error)
}
