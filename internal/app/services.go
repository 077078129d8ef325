package app

import (
	"context"

	"github.com/pingboard/pingboardd/internal/amqp"
	"github.com/pingboard/pingboardd/internal/config"
	"github.com/pingboard/pingboardd/internal/device"
	"github.com/pingboard/pingboardd/internal/health"
	"github.com/pingboard/pingboardd/internal/router"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Supervisors, one per external channel
	Broker *amqp.Supervisor
	Device *device.Supervisor

	// Orchestration
	Router *router.Router
	Health *health.Aggregator
	Mgmt   *MgmtService
}

// NewServices creates all services with proper dependency injection and
// wires the router between the two supervisors.
func NewServices(cfg *config.Config) *Services {
	s := &Services{cfg: cfg}

	s.Broker = amqp.New(cfg.AMQP)
	s.Device = device.New(cfg.Device)

	s.Router = router.New(&cfg.AMQP, s.Broker, s.Device)

	// Key presses out, configuration messages in, full push on reattach
	s.Device.OnKeyPress(s.Router.HandleKeyPress)
	s.Device.OnAcquire(s.Router.PushConfiguration)
	s.Broker.OnMessage(s.Router.HandleConfigMessage)

	s.Health = health.New(s.Broker, s.Device, health.LoadGitVersion(cfg.GitVersionFile))
	s.Mgmt = NewMgmtService(cfg, s.Health)

	return s
}

// Start starts all background services. Both supervision loops run
// independently; neither blocks the other.
func (s *Services) Start(ctx context.Context) {
	s.Broker.Start(ctx)
	s.Device.Start(ctx)
	s.Mgmt.Start(ctx)
}

// Stop gracefully stops all services. The broker is marked terminating
// first so the retained configuration can still be published before the
// connection is torn down.
func (s *Services) Stop() {
	s.Broker.MarkTerminating()
	s.Router.PersistConfiguration()
	s.Device.Stop()
	s.Broker.Stop()
}
