// Package server ties the game server's long-running pieces (tick loops,
// health checks, storage pools) into one start/stop order with signal
// handling, and drains in-flight games before anything under them goes away.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a long-running component of the game server.
type Service interface {
	// Start runs the service and blocks until it is stopped or fails.
	Start() error
	// Stop shuts the service down.
	Stop()
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function.
func (f *FuncService) Stop() { f.StopFn() }

// Lifecycle runs the server's services: started in registration order,
// stopped in reverse, with drains run first on shutdown. Ordering matters
// for a quiz server: storage must outlive the sessions persisting into it,
// so sessions drain before anything stops.
type Lifecycle struct {
	logger   *zap.Logger
	mu       sync.Mutex
	services []entry
	drains   []drain
}

type entry struct {
	name    string
	service Service
}

type drain struct {
	name string
	fn   func()
}

// NewLifecycle creates a Lifecycle.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{logger: logger}
}

// Add registers a named service. Services start in registration order and
// stop in reverse, so dependencies go first and come down last.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, entry{name: name, service: svc})
}

// AddDrain registers a hook that runs at the start of shutdown, before any
// service stops. Used to end and persist active game sessions while the
// database pool is still up.
//
// Precondition: name must be non-empty; fn must be non-nil.
func (l *Lifecycle) AddDrain(name string, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drains = append(l.drains, drain{name: name, fn: fn})
}

// Run starts every registered service and blocks until SIGINT/SIGTERM, a
// service failure, or context cancellation. Shutdown then runs the drains
// in registration order and stops the services in reverse order.
//
// Postcondition: every drain has run and every service is stopped on return.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(l.services))
	for _, e := range l.services {
		e := e
		go func() {
			l.logger.Info("starting service", zap.String("service", e.name))
			svcStart := time.Now()
			if err := e.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", e.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", e.name, err)
				cancel()
			}
		}()
	}

	l.logger.Info("game server running",
		zap.Int("services", len(l.services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-errCh:
		l.logger.Error("service error, shutting down", zap.Error(err))
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	l.shutdown()

	l.logger.Info("shutdown complete",
		zap.Duration("total_uptime", time.Since(start)),
	)
	return nil
}

func (l *Lifecycle) shutdown() {
	shutdownStart := time.Now()

	for _, d := range l.drains {
		drainStart := time.Now()
		l.logger.Info("draining", zap.String("drain", d.name))
		d.fn()
		l.logger.Info("drained",
			zap.String("drain", d.name),
			zap.Duration("elapsed", time.Since(drainStart)),
		)
	}

	for i := len(l.services) - 1; i >= 0; i-- {
		e := l.services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service", zap.String("service", e.name))
		e.service.Stop()
		l.logger.Info("service stopped",
			zap.String("service", e.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}

	l.logger.Info("all services stopped",
		zap.Duration("shutdown_elapsed", time.Since(shutdownStart)),
	)
}
