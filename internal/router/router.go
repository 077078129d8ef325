package router

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pingboard/pingboardd/internal/config"
	"github.com/pingboard/pingboardd/internal/pingboard"
)

// Publisher is the broker-side surface the router needs: best-effort
// publish of a JSON payload under a routing key.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

// Applier is the device-side surface: presence check and ordered command
// delivery.
type Applier interface {
	Ready() bool
	Apply(commands []string) error
}

// keyPressMessage is the outbound payload for one physical key-down.
type keyPressMessage struct {
	Key int `json:"key"`
}

// errorMessage is published to the status destination when a
// configuration message cannot be validated or applied.
type errorMessage struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message  string `json:"message"`
	Details  string `json:"details"`
	Original string `json:"original,omitempty"`
}

// configEnvelope wraps the full configuration for retained persistence.
type configEnvelope struct {
	Configuration pingboard.Configuration `json:"configuration"`
}

// Router bridges the two supervisors: key presses become bus messages,
// configuration messages become a merged model plus device commands. It
// exclusively owns the Configuration; the device side only ever receives
// command lists derived from it.
type Router struct {
	cfg    *config.AMQPConfig
	broker Publisher
	device Applier

	mu         sync.Mutex
	current    pingboard.Configuration
	configured bool // true once the first update was accepted
}

// New creates a router. Call the supervisors' registration hooks with
// HandleKeyPress, HandleConfigMessage and PushConfiguration.
func New(cfg *config.AMQPConfig, broker Publisher, device Applier) *Router {
	return &Router{
		cfg:    cfg,
		broker: broker,
		device: device,
	}
}

// HandleKeyPress publishes one {"key": idx} message to the routing key
// configured for the index. A closed channel drops the message silently;
// key events are never buffered.
func (r *Router) HandleKeyPress(idx pingboard.KeyIndex) {
	rk := r.cfg.KeyRoutingKey(int(idx))
	if err := r.broker.Publish(rk, keyPressMessage{Key: int(idx)}); err != nil {
		log.Warn().Err(err).Int("key", int(idx)).Msg("Key press not published")
		return
	}
	log.Debug().Int("key", int(idx)).Str("routing_key", rk).Msg("Key press published")
}

// HandleConfigMessage validates, merges and applies one inbound
// configuration message. Invalid messages are rejected wholesale, leaving
// the stored configuration untouched, and reported to the status
// destination. The model is updated regardless of device presence; apply
// is skipped while no board is attached.
func (r *Router) HandleConfigMessage(body []byte) {
	upd, err := pingboard.DecodeUpdate(body)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected configuration message")
		r.publishError("Invalid configuration received", err.Error(), string(body))
		return
	}
	if upd.Empty() {
		return
	}

	r.mu.Lock()
	r.current = pingboard.Merge(r.current, upd)
	r.configured = true
	r.mu.Unlock()

	if !r.device.Ready() {
		log.Debug().Msg("No board attached, configuration stored only")
		return
	}

	if err := r.device.Apply(upd.Commands()); err != nil {
		log.Warn().Err(err).Msg("Failed to apply configuration to board")
		r.publishError("Failed to apply configuration", err.Error(), string(body))
		return
	}

	r.recordApplied(upd.Blink)
}

// recordApplied normalizes one-shot blinks after a successful apply: a
// SINGLE blink already fired on the board, so it is stored as OFF and not
// replayed on the next full push.
func (r *Router) recordApplied(blinks []pingboard.KeyBlinkSetting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range blinks {
		if b.Mode != pingboard.BlinkSingle {
			continue
		}
		for i := range r.current.Blink {
			if r.current.Blink[i].Idx == b.Idx && r.current.Blink[i].Mode == pingboard.BlinkSingle {
				r.current.Blink[i].Mode = pingboard.BlinkOff
			}
		}
	}
}

// PushConfiguration sends the full merged configuration to the board.
// Wired to the device supervisor's acquire hook so a board plugged in
// late converges to the current state. Nothing is pushed before the first
// accepted update.
func (r *Router) PushConfiguration() {
	r.mu.Lock()
	if !r.configured {
		r.mu.Unlock()
		return
	}
	cfg := r.current.Clone()
	r.mu.Unlock()

	if err := r.device.Apply(cfg.Commands()); err != nil {
		log.Warn().Err(err).Msg("Failed to push configuration to board")
		return
	}
	r.recordApplied(cfg.Blink)
	log.Info().Msg("Configuration pushed to board")
}

// Configuration returns a copy of the current merged configuration.
func (r *Router) Configuration() pingboard.Configuration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Clone()
}

// PersistConfiguration publishes the full configuration to the retained
// destination. Called during graceful shutdown, after the broker is
// marked terminating but before its connection is torn down. Skipped
// entirely when no retain destination is configured or nothing was ever
// configured.
func (r *Router) PersistConfiguration() {
	if r.cfg.RetainKey == "" {
		return
	}

	r.mu.Lock()
	configured := r.configured
	cfg := r.current.Clone()
	r.mu.Unlock()

	if !configured {
		return
	}

	if err := r.broker.Publish(r.cfg.RetainKey, configEnvelope{Configuration: cfg}); err != nil {
		log.Warn().Err(err).Msg("Could not persist configuration on shutdown")
		return
	}
	log.Info().Str("routing_key", r.cfg.RetainKey).Msg("Configuration persisted")
}

func (r *Router) publishError(message, details, original string) {
	msg := errorMessage{Error: errorBody{
		Message:  message,
		Details:  details,
		Original: original,
	}}
	if err := r.broker.Publish(r.cfg.StatusKey, msg); err != nil {
		log.Warn().Err(err).Msg("Could not publish error message")
	}
}
