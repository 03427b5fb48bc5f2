package restserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chrissnell/ccdc/internal/change"
	"github.com/chrissnell/ccdc/internal/segment"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/internal/storage/sqlite"
	"github.com/chrissnell/ccdc/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// 2000-01-01, 2001-05-15 and 2003-06-30
const (
	day2000 = 730120
	break01 = 730620
	end03   = 731396
)

func newTestServer(t *testing.T, withData bool) (http.Handler, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	health := storage.NewHealthManager()
	repo, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "segments.db"), health)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	run := uuid.New()
	if withData {
		require.NoError(t, repo.StoreRow(ctx, storage.RowResult{
			RunID: run,
			Row:   2,
			Pixels: []storage.PixelResult{{Row: 2, Col: 3, Status: change.StatusDetected, Segments: []segment.Segment{
				{StartDate: day2000, EndDate: break01 - 16, BreakDate: break01, Category: segment.Model, NumC: 2, NumObs: 30,
					Coefficients: [][]float64{{1, 2}}, RMSE: []float64{3}, ChangeProbability: 1},
				{StartDate: break01, EndDate: end03, Category: segment.Model, NumC: 2, NumObs: 50,
					Coefficients: [][]float64{{4, 5}}, RMSE: []float64{6}, ChangeProbability: 0.2},
			}}},
		}))
	}

	cfg := config.ConfigData{}
	cfg.ApplyServerDefaults()
	ctrl, err := NewController(ctx, &sync.WaitGroup{}, cfg.Server, repo, health, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return ctrl.Server.Handler, run
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetSegments(t *testing.T) {
	h, run := newTestServer(t, true)

	rec := get(t, h, "/segments/2/3")
	require.Equal(t, http.StatusOK, rec.Code)

	var px PixelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &px))
	require.Equal(t, run, px.RunID)
	require.Equal(t, "detected", px.Status)
	require.Len(t, px.Segments, 2)
	require.Equal(t, "2000-01-01", px.Segments[0].Start)
	require.Equal(t, "model", px.Segments[0].Category)
	require.NotEmpty(t, px.Segments[0].Break)
	require.Empty(t, px.Segments[1].Break)

	rec = get(t, h, "/segments/2/3?run="+run.String())
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetSegmentsErrors(t *testing.T) {
	h, _ := newTestServer(t, true)

	tests := []struct {
		path string
		code int
	}{
		{"/segments/2/4", http.StatusNotFound},
		{"/segments/2/3?run=nope", http.StatusBadRequest},
		{"/segments/2/3?run=" + uuid.New().String(), http.StatusNotFound},
		{"/segments/x/3", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.code, get(t, h, tt.path).Code)
		})
	}
}

func TestGetSegmentAt(t *testing.T) {
	h, _ := newTestServer(t, true)

	tests := []struct {
		date  string
		code  int
		index int
	}{
		{"2000-01-01", http.StatusOK, 0},
		{"730610", http.StatusOK, 0},
		{"2001-05-15", http.StatusOK, 1},
		{"2003-06-30", http.StatusOK, 1},
		{"2003-07-01", http.StatusNotFound, 0},
		{"1999-12-31", http.StatusNotFound, 0},
		{"yesterday", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			rec := get(t, h, "/segments/2/3/at/"+tt.date)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				return
			}
			var s SegmentResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
			require.Equal(t, tt.index, s.Index)
		})
	}
}

func TestGetLatestRun(t *testing.T) {
	h, _ := newTestServer(t, false)
	require.Equal(t, http.StatusNotFound, get(t, h, "/runs/latest").Code)
	require.Equal(t, http.StatusNotFound, get(t, h, "/segments/2/3").Code)

	h, run := newTestServer(t, true)
	rec := get(t, h, "/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var r RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	require.Equal(t, run, r.RunID)
}

func TestGetHealth(t *testing.T) {
	h, _ := newTestServer(t, true)
	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, storage.StatusHealthy, body.Status)
	require.Contains(t, body.Engines, repositoryName)
	require.Contains(t, body.Engines, sqlite.Name)
}
