// Package grpchealth serves the standard gRPC health protocol for the segment
// query server, with server reflection enabled.
package grpchealth

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/chrissnell/ccdc/internal/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name of the segment repository
const ServiceName = "ccdc.segments"

// Pinger is anything whose liveness can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controller represents the gRPC health controller
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	addr     string
	interval time.Duration
	repo     Pinger
	Server   *grpc.Server
	health   *health.Server
}

// NewController creates a gRPC server exposing health and reflection.
// Repository status is probed every interval; zero means every 30 seconds.
func NewController(ctx context.Context, wg *sync.WaitGroup, listenAddr string, port int, repo Pinger, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctrl := &Controller{
		ctx:      ctx,
		wg:       wg,
		addr:     fmt.Sprintf("%v:%v", listenAddr, port),
		interval: interval,
		repo:     repo,
		Server:   grpc.NewServer(),
		health:   health.NewServer(),
	}

	healthpb.RegisterHealthServer(ctrl.Server, ctrl.health)
	reflection.Register(ctrl.Server)
	ctrl.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return ctrl
}

// StartController listens on the configured address and serves until the
// context is cancelled
func (c *Controller) StartController() error {
	l, err := net.Listen("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("gRPC controller could not create listener: %w", err)
	}
	log.Infof("gRPC health controller listening on %s", c.addr)
	c.Serve(l)
	return nil
}

// Serve serves on l in the background
func (c *Controller) Serve(l net.Listener) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Server.Serve(l); err != nil {
			log.Errorf("gRPC controller serve error: %v", err)
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.monitor()
	}()
}

// monitor updates the repository's serving status until the context ends
func (c *Controller) monitor() {
	c.check()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.check()
		case <-c.ctx.Done():
			log.Info("Stopping gRPC health controller...")
			c.health.Shutdown()
			c.Server.GracefulStop()
			return
		}
	}
}

func (c *Controller) check() {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := c.repo.Ping(ctx); err != nil {
		log.Warnf("segment repository ping failed: %v", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.health.SetServingStatus(ServiceName, status)
	c.health.SetServingStatus("", status)
}
