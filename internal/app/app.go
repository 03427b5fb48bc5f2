package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chrissnell/ccdc/internal/batch"
	"github.com/chrissnell/ccdc/internal/change"
	"github.com/chrissnell/ccdc/internal/controllers/restserver"
	"github.com/chrissnell/ccdc/internal/log"
	"github.com/chrissnell/ccdc/internal/managers"
	"github.com/chrissnell/ccdc/internal/scene"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/internal/storage/msgpackfile"
	"github.com/chrissnell/ccdc/internal/storage/sqlite"
	"github.com/chrissnell/ccdc/internal/storage/timescaledb"
	"github.com/chrissnell/ccdc/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownBackend is returned for a server backend other than sqlite,
// timescaledb or msgpack
var ErrUnknownBackend = errors.New("unknown query server backend")

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
	pixel          *config.PixelData
	signals        bool
}

// Option adjusts an App
type Option func(*App)

// WithPixel restricts a run to one pixel, overriding the configuration file
func WithPixel(row, col int) Option {
	return func(a *App) { a.pixel = &config.PixelData{Row: row, Col: col} }
}

// WithoutSignals disables SIGINT/SIGTERM handling
func WithoutSignals() Option {
	return func(a *App) { a.signals = false }
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger, opts ...Option) *App {
	a := &App{
		configProvider: configProvider,
		logger:         logger,
		signals:        true,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run executes one detection run over the configured scene stack. It returns
// once every row has been stored or, after a shutdown signal, once the rows
// already finished have been stored.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := a.signalContext(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	if a.pixel != nil {
		cfg.Run.Pixel = a.pixel
	}

	start := time.Now()
	a.logger.Infof("ccdc start_time=%s", start.Format(time.RFC3339))
	defer func() {
		a.logger.Infof("ccdc end_time=%s elapsed=%s", time.Now().Format(time.RFC3339), time.Since(start).Round(time.Millisecond))
	}()

	detector, err := change.NewDetector(cfg.DetectorConfig(), a.logger.Named("change"))
	if err != nil {
		return fmt.Errorf("invalid detector configuration: %w", err)
	}

	stack, err := scene.Open(cfg.Input.Directory, a.logger.Named("scene"))
	if err != nil {
		return err
	}
	a.logger.Infof("%d scenes, %d rows x %d cols", len(stack.Scenes()), stack.Rows(), stack.Cols())

	if cfg.Input.WriteSceneList {
		if err := scene.WriteList(cfg.Input.Directory, stack.Scenes()); err != nil {
			return fmt.Errorf("writing scene list: %w", err)
		}
	}

	storageManager, err := managers.NewStorageManager(ctx, cfg.Storage, storage.GlobalHealthManager)
	if err != nil {
		return err
	}

	runner, err := batch.NewRunner(stack, detector, cfg.WorkerCount(), storageManager.RowDistributor, a.logger.Named("batch"))
	if err != nil {
		storageManager.Close()
		return err
	}

	runID := uuid.New()
	a.logger.Infow("run started", "run_id", runID, "workers", cfg.WorkerCount())

	var runErr error
	if p := cfg.Run.Pixel; p != nil {
		runErr = a.runPixel(runner, runID, *p)
	} else {
		runErr = a.runAll(ctx, runner, runID)
	}

	// Sinks drain whatever was handed to them before closing
	if err := storageManager.Close(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func (a *App) runAll(ctx context.Context, runner *batch.Runner, runID uuid.UUID) error {
	stats, err := runner.Run(ctx, runID)
	a.logger.Infow("run finished",
		"run_id", runID,
		"rows", stats.Rows,
		"pixels", stats.Pixels,
		"breaks", stats.Breaks,
		"elapsed", stats.Elapsed.Round(time.Millisecond),
	)
	for status, n := range stats.ByStatus {
		a.logger.Debugf("%d pixels %s", n, status)
	}
	if errors.Is(err, context.Canceled) {
		a.logger.Warnf("run interrupted; %d completed rows were kept", stats.Rows)
		return nil
	}
	return err
}

func (a *App) runPixel(runner *batch.Runner, runID uuid.UUID, p config.PixelData) error {
	res, err := runner.RunPixel(runID, p.Row, p.Col)
	if err != nil {
		return err
	}
	a.logger.Infof("pixel (%d, %d): %s, %d segments", p.Row, p.Col, res.Status, len(res.Segments))
	for i, s := range res.Segments {
		a.logger.Infow("segment",
			"index", i,
			"start", s.StartDate,
			"end", s.EndDate,
			"break", s.BreakDate,
			"category", s.Category,
			"num_obs", s.NumObs,
			"change_probability", s.ChangeProbability,
		)
	}
	return nil
}

// Serve runs the segment query server until a shutdown signal
func (a *App) Serve(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := a.signalContext(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	cfg.ApplyServerDefaults()

	repo, err := openRepository(ctx, cfg.Server, storage.GlobalHealthManager)
	if err != nil {
		return err
	}
	defer repo.Close()
	a.logger.Infof("serving segments from the %s backend", cfg.Server.Backend)

	cm, err := managers.NewControllerManager(ctx, &wg, cfg.Server, repo, storage.GlobalHealthManager, a.logger)
	if err != nil {
		return err
	}
	if err := cm.StartControllers(); err != nil {
		cancel()
		wg.Wait()
		return err
	}

	log.Info("Application started successfully")
	<-ctx.Done()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// repository is a segment store the query server can read and close
type repository interface {
	restserver.Repository
	io.Closer
}

// openRepository opens the store selected by sc.Backend at sc.Database
func openRepository(ctx context.Context, sc config.ServerData, health *storage.HealthManager) (repository, error) {
	if sc.Database == "" {
		return nil, fmt.Errorf("no %s segment store configured for the query server", sc.Backend)
	}

	switch sc.Backend {
	case config.BackendSQLite:
		return sqlite.New(ctx, sc.Database, health)
	case config.BackendTimescaleDB:
		return timescaledb.New(ctx, sc.Database, health)
	case config.BackendMsgPack:
		return msgpackfile.New(sc.Database, health)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, sc.Backend)
}

// signalContext cancels on SIGINT or SIGTERM
func (a *App) signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	if !a.signals {
		return ctx, cancel
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			log.Info("shutdown signal received, initiating graceful shutdown...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
