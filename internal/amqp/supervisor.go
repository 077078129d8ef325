package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/pingboard/pingboardd/internal/config"
)

// ErrChannelClosed is returned by Publish when no channel is currently
// open. The message is dropped, not buffered.
var ErrChannelClosed = errors.New("amqp channel not open")

// MessageHandler is invoked once per inbound configuration message, on the
// consumer goroutine, in arrival order.
type MessageHandler func(body []byte)

// Supervisor owns the broker connection lifecycle: it dials, opens a
// channel, optionally declares the configuration topology, consumes the
// configuration queue and retries the whole sequence with exponential
// backoff whenever any of it fails or the connection is lost.
type Supervisor struct {
	cfg config.AMQPConfig

	mu    sync.Mutex
	state ConnectionState
	conn  *amqp.Connection
	ch    *amqp.Channel

	handler MessageHandler

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a supervisor that is not yet connected.
func New(cfg config.AMQPConfig) *Supervisor {
	return &Supervisor{
		cfg:   cfg,
		state: ConnectionState{Host: cfg.Host},
		done:  make(chan struct{}),
	}
}

// OnMessage registers the single configuration consumer callback. It must
// be called before Start.
func (s *Supervisor) OnMessage(handler MessageHandler) {
	s.handler = handler
}

// Start launches the supervision loop. It is idempotent and returns
// immediately; connection failures are never surfaced here, only in
// Snapshot.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		go s.run(runCtx)
	})
}

// MarkTerminating flips the terminating flag so health reporting does not
// flag the upcoming intentional disconnect. Call it before Stop to keep a
// publish window open for shutdown persistence.
func (s *Supervisor) MarkTerminating() {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Terminating = true
	s.state = st
}

// Stop terminates the supervision loop and closes the connection. Safe to
// call mid-retry; the loop exits within one backoff interval.
func (s *Supervisor) Stop() {
	log.Info().Msg("Terminating AMQP supervisor")
	s.MarkTerminating()
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.teardown()
}

// Snapshot returns a copy of the current connection state.
func (s *Supervisor) Snapshot() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Publish sends a JSON message to the exchange under the given routing
// key. Best-effort, at-most-once: if no channel is open the message is
// dropped and ErrChannelClosed returned.
func (s *Supervisor) Publish(routingKey string, payload any) error {
	s.mu.Lock()
	ch := s.ch
	open := s.state.ChannelOpen
	s.mu.Unlock()

	if !open || ch == nil {
		log.Warn().Str("routing_key", routingKey).Msg("Message discarded, no channel available")
		return ErrChannelClosed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = ch.PublishWithContext(context.Background(), s.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: uuid.NewString(),
		Body:          body,
	})
	if err != nil {
		log.Warn().Err(err).Str("routing_key", routingKey).Msg("Publish failed")
		return err
	}
	return nil
}

// session holds the live resources of one successful connection attempt.
type session struct {
	deliveries <-chan amqp.Delivery
	closed     chan *amqp.Error
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	backoff := s.cfg.MinRetryBackoff.Duration()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sess, err := s.connect()
		if err != nil {
			s.setDisconnected()
			if ctx.Err() != nil {
				return
			}

			log.Warn().
				Err(err).
				Dur("backoff", backoff).
				Str("host", s.cfg.Host).
				Msg("AMQP connection attempt failed, retrying")

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			// Grow backoff with multiplier, capped at max
			next := time.Duration(float64(backoff) * s.cfg.RetryMultiplier)
			if next > s.cfg.MaxRetryBackoff.Duration() {
				next = s.cfg.MaxRetryBackoff.Duration()
			}
			backoff = next
			continue
		}

		// Reset backoff on successful connection
		backoff = s.cfg.MinRetryBackoff.Duration()

		s.consume(ctx, sess)
		s.teardown()
		s.setDisconnected()

		if ctx.Err() != nil {
			return
		}
	}
}

// connect performs one full attempt: dial, channel, optional declares,
// consume. Any failure tears the partial resources down again.
func (s *Supervisor) connect() (*session, error) {
	log.Info().Str("host", s.cfg.Host).Str("user", s.cfg.User).Msg("Connecting to AMQP broker")

	conn, err := amqp.Dial(s.cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if s.cfg.Declare {
		if err := s.declare(ch); err != nil {
			conn.Close()
			return nil, fmt.Errorf("declare topology: %w", err)
		}
	}

	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	tag := "pingboardd-" + uuid.NewString()
	deliveries, err := ch.Consume(s.cfg.ConfigQueue, tag, false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("consume %s: %w", s.cfg.ConfigQueue, err)
	}

	closed := make(chan *amqp.Error, 1)
	conn.NotifyClose(closed)

	s.mu.Lock()
	s.conn = conn
	s.ch = ch
	st := s.state
	st.Connected = true
	st.ChannelOpen = true
	st.ConsumerTag = tag
	s.state = st
	s.mu.Unlock()

	log.Info().Str("queue", s.cfg.ConfigQueue).Str("consumer_tag", tag).Msg("Configuration channel open")

	return &session{deliveries: deliveries, closed: closed}, nil
}

func (s *Supervisor) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(s.cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(s.cfg.ConfigQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(s.cfg.ConfigQueue, s.cfg.ConfigQueue, s.cfg.Exchange, false, nil)
}

// consume dispatches deliveries until the connection drops or the context
// is cancelled. Deliveries are handled synchronously so configuration
// messages are processed strictly in arrival order.
func (s *Supervisor) consume(ctx context.Context, sess *session) {
	for {
		select {
		case <-ctx.Done():
			return

		case err := <-sess.closed:
			if err != nil {
				log.Warn().Str("reason", err.Error()).Msg("AMQP connection closed unexpectedly")
			}
			return

		case d, ok := <-sess.deliveries:
			if !ok {
				return
			}
			if s.handler != nil {
				s.handler(d.Body)
			}
			if err := d.Ack(false); err != nil {
				log.Warn().Err(err).Msg("Failed to ack configuration message")
			}
		}
	}
}

func (s *Supervisor) teardown() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.ch = nil
	s.mu.Unlock()

	if conn != nil && !conn.IsClosed() {
		conn.Close()
	}
}

func (s *Supervisor) setDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ConnectionState{
		Host:        s.state.Host,
		Terminating: s.state.Terminating,
	}
}
