package managers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/chrissnell/ccdc/internal/log"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/internal/storage/msgpackfile"
	"github.com/chrissnell/ccdc/internal/storage/sqlite"
	"github.com/chrissnell/ccdc/internal/storage/timescaledb"
	"github.com/chrissnell/ccdc/pkg/config"
)

// ErrNoEngines is returned when no storage backend is configured
var ErrNoEngines = errors.New("no storage backend configured")

// StorageManager holds our active storage backends and fans rows out to them
type StorageManager struct {
	Engines        []StorageEngine
	RowDistributor chan storage.RowResult

	ctx    context.Context
	health *storage.HealthManager
	wg     sync.WaitGroup
	mu     sync.RWMutex
	done   chan struct{}
	closed bool
}

// StorageEngine holds a backend storage engine's interface as well as
// a channel for passing rows to the engine
type StorageEngine struct {
	Name   string
	Engine storage.StorageEngineInterface
	C      chan<- storage.RowResult
	closer io.Closer
}

// NewStorageManager creates a StorageManager populated with every configured
// storage backend. At least one backend is required.
func NewStorageManager(ctx context.Context, c config.StorageData, health *storage.HealthManager) (*StorageManager, error) {
	s := newStorageManager(ctx, health)

	if c.SQLite != nil && c.SQLite.Path != "" {
		engine, err := sqlite.New(ctx, c.SQLite.Path, s.health)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add SQLite storage backend: %w", err)
		}
		s.AddEngine(sqlite.Name, engine, engine)
	}

	if c.TimescaleDB != nil && c.TimescaleDB.ConnectionString != "" {
		engine, err := timescaledb.New(ctx, c.TimescaleDB.ConnectionString, s.health)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
		s.AddEngine(timescaledb.Name, engine, engine)
	}

	if c.MsgPack != nil && c.MsgPack.Directory != "" {
		engine, err := msgpackfile.New(c.MsgPack.Directory, s.health)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add MessagePack storage backend: %w", err)
		}
		s.AddEngine(msgpackfile.Name, engine, nil)
	}

	if len(s.Engines) == 0 {
		s.Close()
		return nil, ErrNoEngines
	}

	return s, nil
}

func newStorageManager(ctx context.Context, health *storage.HealthManager) *StorageManager {
	if health == nil {
		health = storage.GlobalHealthManager
	}
	s := &StorageManager{
		RowDistributor: make(chan storage.RowResult, 20),
		ctx:            ctx,
		health:         health,
		done:           make(chan struct{}),
	}

	// Start our row distributor to distribute finished rows to storage backends
	go s.startRowDistributor()

	return s
}

// AddEngine starts engine and adds it to the fan-out. closer, when not nil,
// is closed after the engine has drained.
func (s *StorageManager) AddEngine(name string, engine storage.StorageEngineInterface, closer io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	se := StorageEngine{
		Name:   name,
		Engine: engine,
		C:      engine.StartStorageEngine(s.ctx, &s.wg),
		closer: closer,
	}
	s.Engines = append(s.Engines, se)
	log.Infof("storage backend %s enabled", name)
}

// Health returns the health manager shared by every engine
func (s *StorageManager) Health() *storage.HealthManager {
	return s.health
}

// Close stops accepting rows, waits until every engine has written what it
// was handed and releases backend resources. It is safe to call more than once.
func (s *StorageManager) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.RowDistributor)
	<-s.done
	s.wg.Wait()

	var errs []error
	for _, e := range s.Engines {
		if e.closer == nil {
			continue
		}
		if err := e.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}

// startRowDistributor receives rows from the batch workers and fans them out
// to the storage backends. Engine channels are closed once the distributor's
// input is closed.
func (s *StorageManager) startRowDistributor() {
	defer close(s.done)

	rowCount := 0
	for r := range s.RowDistributor {
		rowCount++

		s.mu.RLock()
		for _, e := range s.Engines {
			e.C <- r
		}
		s.mu.RUnlock()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.Engines {
		close(e.C)
	}
	log.Infof("row distributor stopped after %d rows", rowCount)
}
