package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrissnell/ccdc/internal/controllers/grpchealth"
	"github.com/chrissnell/ccdc/internal/controllers/restserver"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/pkg/config"
	"go.uber.org/zap"
)

// ControllerManager interface for the controller manager
type ControllerManager interface {
	StartControllers() error
}

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

type controllerManager struct {
	logger      *zap.SugaredLogger
	controllers []Controller
}

// NewControllerManager creates the REST and gRPC health controllers of the
// segment query server. sc should already have its defaults applied, which
// leaves GRPCPort at zero only when disable_grpc is set; a zero GRPCPort
// skips the gRPC controller.
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, sc config.ServerData, repo restserver.Repository, health *storage.HealthManager, logger *zap.SugaredLogger) (ControllerManager, error) {
	cm := &controllerManager{
		logger:      logger,
		controllers: make([]Controller, 0, 2),
	}

	rest, err := restserver.NewController(ctx, wg, sc, repo, health, logger.Named("rest"))
	if err != nil {
		return nil, fmt.Errorf("error creating REST controller: %w", err)
	}
	cm.controllers = append(cm.controllers, rest)

	if sc.GRPCPort != 0 {
		cm.controllers = append(cm.controllers, grpchealth.NewController(ctx, wg, sc.ListenAddr, sc.GRPCPort, repo, 0))
	}

	return cm, nil
}

func (c *controllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		err := controller.StartController()
		if err != nil {
			return fmt.Errorf("error starting controller: %v", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}
