package managers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/internal/storage/msgpackfile"
	"github.com/chrissnell/ccdc/internal/storage/sqlite"
	"github.com/chrissnell/ccdc/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// recordingEngine keeps every row it receives
type recordingEngine struct {
	mu     sync.Mutex
	rows   []int
	closed bool
}

func (e *recordingEngine) StartStorageEngine(_ context.Context, wg *sync.WaitGroup) chan<- storage.RowResult {
	ch := make(chan storage.RowResult)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := range ch {
			e.mu.Lock()
			e.rows = append(e.rows, r.Row)
			e.mu.Unlock()
		}
	}()
	return ch
}

func (e *recordingEngine) Close() error {
	e.closed = true
	return nil
}

func TestDistributorFansOutEveryRow(t *testing.T) {
	s := newStorageManager(context.Background(), storage.NewHealthManager())
	a, b := &recordingEngine{}, &recordingEngine{}
	s.AddEngine("a", a, a)
	s.AddEngine("b", b, nil)

	for r := 0; r < 10; r++ {
		s.RowDistributor <- storage.RowResult{Row: r}
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.Equal(t, want, a.rows)
	require.Equal(t, want, b.rows)
	require.True(t, a.closed)
}

func TestRowsSurviveCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newStorageManager(ctx, storage.NewHealthManager())
	e := &recordingEngine{}
	s.AddEngine("e", e, nil)

	s.RowDistributor <- storage.RowResult{Row: 1}
	cancel()
	s.RowDistributor <- storage.RowResult{Row: 2}
	require.NoError(t, s.Close())
	require.Equal(t, []int{1, 2}, e.rows)
}

func TestNewStorageManagerFromConfig(t *testing.T) {
	dir := t.TempDir()
	health := storage.NewHealthManager()
	s, err := NewStorageManager(context.Background(), config.StorageData{
		SQLite:  &config.SQLiteData{Path: filepath.Join(dir, "segments.db")},
		MsgPack: &config.MsgPackData{Directory: filepath.Join(dir, "shards")},
	}, health)
	require.NoError(t, err)
	require.Len(t, s.Engines, 2)

	run := uuid.New()
	s.RowDistributor <- storage.RowResult{RunID: run, Row: 0}
	require.NoError(t, s.Close())

	for _, name := range []string{sqlite.Name, msgpackfile.Name} {
		h, ok := health.GetHealth(name)
		require.True(t, ok, name)
		require.Equal(t, int64(1), h.RowsWritten, name)
	}
}

func TestNewStorageManagerRequiresEngine(t *testing.T) {
	_, err := NewStorageManager(context.Background(), config.StorageData{}, nil)
	require.True(t, errors.Is(err, ErrNoEngines))
}
