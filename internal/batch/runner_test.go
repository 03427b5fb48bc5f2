package batch

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/chrissnell/ccdc/internal/change"
	"github.com/chrissnell/ccdc/internal/segment"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/internal/timeseries"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const firstDay = 730120

// gridSource is an in-memory stack. Column 0 is a stable seasonal pixel,
// column 1 is all fill and column 2 jumps by 1500 halfway through.
type gridSource struct {
	rows, cols int
	scenes     int
	onRead     func(row int)
	failRow    int
}

func (g *gridSource) Rows() int { return g.rows }
func (g *gridSource) Cols() int { return g.cols }

func (g *gridSource) ReadRow(row int) ([][]timeseries.SceneRecord, error) {
	if g.onRead != nil {
		g.onRead(row)
	}
	if g.failRow > 0 && row == g.failRow {
		return nil, errors.New("short read")
	}
	out := make([][]timeseries.SceneRecord, g.cols)
	for c := range out {
		out[c], _ = g.ReadPixel(row, c)
	}
	return out, nil
}

func (g *gridSource) ReadPixel(row, col int) ([]timeseries.SceneRecord, error) {
	recs := make([]timeseries.SceneRecord, g.scenes)
	for i := range recs {
		d := firstDay + 16*i
		season := 100 * math.Cos(2*math.Pi*float64(d)/365.25)
		// deterministic ±8 jitter
		jitter := float64((i*7+row*3+col*5)%17) - 8
		r := timeseries.SceneRecord{Date: d, QA: timeseries.QAClearLand}
		for b := range r.Reflectance {
			r.Reflectance[b] = 1000 + season + jitter
			if col == 2 && i >= g.scenes/2 {
				r.Reflectance[b] += 1500
			}
		}
		r.Thermal = 300 + season/10
		if col == 1 {
			r.QA = timeseries.QAFill
		}
		recs[i] = r
	}
	return recs, nil
}

func newTestRunner(t *testing.T, src RowSource, workers int) (*Runner, chan storage.RowResult) {
	t.Helper()
	d, err := change.NewDetector(change.DefaultConfig(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	out := make(chan storage.RowResult, src.Rows()+1)
	r, err := NewRunner(src, d, workers, out, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return r, out
}

func drain(out chan storage.RowResult) []storage.RowResult {
	close(out)
	var rows []storage.RowResult
	for r := range out {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Row < rows[j].Row })
	return rows
}

func TestRunProcessesEveryRow(t *testing.T) {
	src := &gridSource{rows: 4, cols: 3, scenes: 80}
	r, out := newTestRunner(t, src, 3)
	run := uuid.New()

	stats, err := r.Run(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, 4, stats.Rows)
	require.Equal(t, 12, stats.Pixels)
	require.Equal(t, 4, stats.Breaks)
	require.Equal(t, 8, stats.ByStatus[change.StatusDetected])
	require.Equal(t, 4, stats.ByStatus[change.StatusInsufficientCoverage])

	rows := drain(out)
	require.Len(t, rows, 4)
	for i, row := range rows {
		require.Equal(t, i, row.Row)
		require.Equal(t, run, row.RunID)
		require.Len(t, row.Pixels, 3)
		for c, p := range row.Pixels {
			require.Equal(t, c, p.Col)
			require.Equal(t, i, p.Row)
		}
		require.Len(t, row.Pixels[0].Segments, 1)
		require.Len(t, row.Pixels[1].Segments, 1)
		require.Equal(t, segment.InsufficientData, row.Pixels[1].Segments[0].Category)
		require.Zero(t, row.Pixels[1].Segments[0].NumObs)
		require.Len(t, row.Pixels[2].Segments, 2)
		require.Equal(t, segment.Model, row.Pixels[2].Segments[0].Category)
	}
}

func TestRunStopsBetweenRowsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &gridSource{rows: 6, cols: 1, scenes: 60}
	src.onRead = func(row int) {
		if row == 1 {
			cancel()
		}
	}
	r, out := newTestRunner(t, src, 1)

	stats, err := r.Run(ctx, uuid.New())
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 2, stats.Rows)

	rows := drain(out)
	require.Len(t, rows, 2)
	require.Equal(t, 0, rows[0].Row)
	require.Equal(t, 1, rows[1].Row)
}

func TestRunAbortsOnReadError(t *testing.T) {
	src := &gridSource{rows: 5, cols: 1, scenes: 60, failRow: 2}
	r, out := newTestRunner(t, src, 1)

	stats, err := r.Run(context.Background(), uuid.New())
	require.Error(t, err)
	require.Contains(t, err.Error(), "reading row 2")
	require.Equal(t, 2, stats.Rows)
	require.Len(t, drain(out), 2)
}

func TestRunPixel(t *testing.T) {
	src := &gridSource{rows: 3, cols: 3, scenes: 80}
	r, out := newTestRunner(t, src, 0)

	p, err := r.RunPixel(uuid.New(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, change.StatusDetected, p.Status)
	require.Len(t, p.Segments, 2)

	rows := drain(out)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].Row)
}

func TestNewRunnerRejectsEmptySource(t *testing.T) {
	d, err := change.NewDetector(change.DefaultConfig(), nil)
	require.NoError(t, err)
	_, err = NewRunner(&gridSource{rows: 0, cols: 3}, d, 1, nil, nil)
	require.True(t, errors.Is(err, ErrNoPixels))
}
