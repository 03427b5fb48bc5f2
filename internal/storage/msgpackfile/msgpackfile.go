// Package msgpackfile writes each processed row as a MessagePack shard file,
// one directory per run.
package msgpackfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/chrissnell/ccdc/internal/log"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Name identifies this engine in health reports
const Name = "msgpack"

// Storage writes row shards under a base directory
type Storage struct {
	dir    string
	health *storage.HealthManager
}

// New creates the base directory if needed. A nil health manager uses
// storage.GlobalHealthManager.
func New(dir string, health *storage.HealthManager) (*Storage, error) {
	if health == nil {
		health = storage.GlobalHealthManager
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating shard directory: %w", err)
	}
	return &Storage{dir: dir, health: health}, nil
}

// ShardPath is the file holding one row of one run
func (s *Storage) ShardPath(runID uuid.UUID, row int) string {
	return filepath.Join(s.dir, runID.String(), fmt.Sprintf("row-%05d.msgpack", row))
}

// StartStorageEngine creates a goroutine loop to receive rows and write them
// as shard files
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- storage.RowResult {
	log.Infof("starting MessagePack storage engine in %s...", s.dir)
	rowChan := storage.NewRowChannel()
	wg.Add(1)
	go storage.ProcessRows(wg, rowChan, s.StoreRow, Name, s.health)
	return rowChan
}

// StoreRow writes the row's records to its shard. The shard is written to a
// temporary file and renamed so readers never see a partial row.
func (s *Storage) StoreRow(r storage.RowResult) error {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(storage.NewRecords(r)); err != nil {
		return fmt.Errorf("encoding row %d: %w", r.Row, err)
	}

	path := s.ShardPath(r.RunID, r.Row)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".row-*")
	if err != nil {
		return fmt.Errorf("creating shard: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing shard: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing shard: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// ReadShard decodes the records of one row. A row that was never written
// yields fs.ErrNotExist.
func (s *Storage) ReadShard(runID uuid.UUID, row int) ([]storage.Record, error) {
	f, err := os.Open(s.ShardPath(runID, row))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := msgpack.NewDecoder(f)
	dec.SetCustomStructTag("json")
	var recs []storage.Record
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("decoding shard: %w", err)
	}
	return recs, nil
}

// Segments returns the records of one pixel from its row shard
func (s *Storage) Segments(_ context.Context, runID uuid.UUID, row, col int) ([]storage.Record, error) {
	recs, err := s.ReadShard(runID, row)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []storage.Record
	for _, r := range recs {
		if r.Col == col {
			out = append(out, r)
		}
	}
	return out, nil
}

// LatestRun returns the run whose directory was modified last
func (s *Storage) LatestRun(_ context.Context) (uuid.UUID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return uuid.Nil, fmt.Errorf("listing runs: %w", err)
	}

	latest := uuid.Nil
	var latestMod int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return uuid.Nil, err
		}
		if mod := info.ModTime().UnixNano(); latest == uuid.Nil || mod > latestMod {
			latest, latestMod = id, mod
		}
	}
	if latest == uuid.Nil {
		return uuid.Nil, storage.ErrNoRuns
	}
	return latest, nil
}

// Ping checks that the shard directory is still a readable directory and
// records the result
func (s *Storage) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err == nil && !info.IsDir() {
		err = fmt.Errorf("%s is not a directory", s.dir)
	}
	if err != nil {
		s.health.RecordError(Name, err)
		return err
	}
	s.health.UpdateHealth(Name, storage.StatusHealthy, "shard directory "+s.dir+" reachable")
	return nil
}

// Close is a no-op; shards are closed as soon as they are written
func (s *Storage) Close() error {
	return nil
}
