package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/pingboard/pingboardd/internal/config"
)

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services

	waitCtx context.Context

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New creates a new App instance with all services initialized but not started.
func New(cfg *config.Config) *App {
	return &App{
		cfg:      cfg,
		services: NewServices(cfg),
	}
}

// Start starts all services. The provided context only signals shutdown
// intent (Wait); the supervisors run on their own context so Stop can
// publish the retained configuration before the broker connection is
// torn down.
func (a *App) Start(ctx context.Context) {
	a.waitCtx = ctx
	a.runCtx, a.runCancel = context.WithCancel(context.Background())
	a.services.Start(a.runCtx)
	log.Info().Msg("Pingboard bridge started")
}

// Stop gracefully shuts down all services in order: mark the broker
// terminating, persist the configuration, then release both channels.
func (a *App) Stop() {
	log.Info().Msg("Shutting down...")

	if a.services != nil {
		a.services.Stop()
	}
	if a.runCancel != nil {
		a.runCancel()
	}
}

// Wait blocks until the shutdown signal arrives.
func (a *App) Wait() {
	if a.waitCtx != nil {
		<-a.waitCtx.Done()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
