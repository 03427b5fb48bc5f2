package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/chrissnell/ccdc/internal/log"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Repository is what the REST server needs from a segment store
type Repository interface {
	storage.SegmentReader
	Ping(ctx context.Context) error
}

// Controller represents the segment query REST server
type Controller struct {
	ctx          context.Context
	wg           *sync.WaitGroup
	serverConfig config.ServerData
	Server       http.Server
	repo         Repository
	health       *storage.HealthManager
	logger       *zap.SugaredLogger
	handlers     *Handlers
}

// NewController creates a new REST server controller. sc should already have
// its defaults applied.
func NewController(ctx context.Context, wg *sync.WaitGroup, sc config.ServerData, repo Repository, health *storage.HealthManager, logger *zap.SugaredLogger) (*Controller, error) {
	if repo == nil {
		return nil, fmt.Errorf("REST server requires a segment repository")
	}
	if health == nil {
		health = storage.GlobalHealthManager
	}

	ctrl := &Controller{
		ctx:          ctx,
		wg:           wg,
		serverConfig: sc,
		repo:         repo,
		health:       health,
		logger:       logger,
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", sc.ListenAddr, sc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	log.Infof("Starting REST server controller on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(c.logger))

	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)
	router.HandleFunc("/runs/latest", c.handlers.GetLatestRun).Methods(http.MethodGet)
	router.HandleFunc("/segments/{row:[0-9]+}/{col:[0-9]+}", c.handlers.GetSegments).Methods(http.MethodGet)
	router.HandleFunc("/segments/{row:[0-9]+}/{col:[0-9]+}/at/{date}", c.handlers.GetSegmentAt).Methods(http.MethodGet)

	return router
}
