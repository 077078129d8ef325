package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/pingboard/pingboardd/internal/config"
	"github.com/pingboard/pingboardd/internal/pingboard"
)

// ErrAbsent is returned by Apply when no board is attached. Commands are
// never queued for later replay.
var ErrAbsent = errors.New("pingboard not attached")

// KeyPressHandler is invoked once per gated key-down event, on the device
// read goroutine, with a validated key index.
type KeyPressHandler func(idx pingboard.KeyIndex)

// Supervisor owns the lifecycle of the physical board: it polls for the
// device, grabs its input stream exclusively, opens the paired serial
// control channel and demotes back to absent when either side fails. The
// input and serial sides are acquired both-or-neither.
type Supervisor struct {
	cfg config.DeviceConfig

	mu    sync.Mutex
	state DeviceState
	input *evdev.InputDevice
	port  serial.Port

	// Serializes Apply against the config-push on acquire.
	writeMu sync.Mutex

	onKey     KeyPressHandler
	onAcquire func()

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a supervisor with no device attached.
func New(cfg config.DeviceConfig) *Supervisor {
	return &Supervisor{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// OnKeyPress registers the key press callback. Must be called before Start.
func (s *Supervisor) OnKeyPress(handler KeyPressHandler) {
	s.onKey = handler
}

// OnAcquire registers a callback fired after the board has been fully
// acquired (input grabbed and serial open). Must be called before Start.
func (s *Supervisor) OnAcquire(handler func()) {
	s.onAcquire = handler
}

// Start launches the supervision loop. Idempotent, returns immediately.
// The daemon stays functional with no board attached.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		go s.run(runCtx)
	})
}

// Stop releases the grabbed input device and closes the serial channel.
// Safe to call mid-attempt; the loop exits within one poll interval.
func (s *Supervisor) Stop() {
	log.Info().Msg("Terminating device supervisor")
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.closeHandles()
	s.setAbsent(false)
}

// Snapshot returns a copy of the current device state.
func (s *Supervisor) Snapshot() DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the board is currently attached.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SerialPresent
}

// Apply sends command lines to the board in the exact order given. If the
// board is absent it fails immediately with ErrAbsent. A missing OK
// acknowledgement fails the apply but keeps the device attached; an I/O
// error demotes the device so both sides are reacquired as a unit.
func (s *Supervisor) Apply(commands []string) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return ErrAbsent
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, cmd := range commands {
		if err := s.send(port, cmd); err != nil {
			if !errors.Is(err, errNoAck) {
				log.Warn().Err(err).Msg("Serial I/O failure, releasing device")
				s.demote(port)
			}
			return fmt.Errorf("command %q: %w", strings.TrimSpace(cmd), err)
		}
	}
	return nil
}

// demote releases the handles after an I/O failure, but only if failed is
// still the active port. The run loop may have already demoted and
// reacquired the board; a stale writer must not tear the new handles down.
func (s *Supervisor) demote(failed serial.Port) {
	s.mu.Lock()
	if s.port != failed {
		s.mu.Unlock()
		return
	}
	input := s.input
	port := s.port
	s.input = nil
	s.port = nil
	s.state = DeviceState{Failing: true}
	s.mu.Unlock()

	if input != nil {
		input.Ungrab()
		input.Close()
	}
	if port != nil {
		port.Close()
	}
}

func (s *Supervisor) send(port serial.Port, cmd string) error {
	var err error
	for attempt := 0; attempt < s.cfg.WriteRetries; attempt++ {
		err = writeCommand(port, cmd)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errNoAck) {
			return err
		}
	}
	log.Error().Str("command", strings.TrimSpace(cmd)).Msg("Board did not acknowledge command")
	return err
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	for {
		if s.acquire() {
			if s.onAcquire != nil {
				s.onAcquire()
			}

			s.listen(ctx)
			s.closeHandles()
			if ctx.Err() != nil {
				return
			}

			// Lost after a successful acquire: unhealthy until reacquired
			s.setAbsent(true)
			log.Warn().Msg("Pingboard lost, rescanning")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.PollInterval.Duration()):
		}
	}
}

// acquire locates and opens both sides of the board. If only one side
// opens, everything is rolled back so a later attempt retries the pair.
func (s *Supervisor) acquire() bool {
	inputPath, err := s.findInputPath()
	if err != nil {
		log.Error().Err(err).Msg("Input device scan failed")
		s.setAbsent(true)
		return false
	}
	if inputPath == "" {
		// No board attached; absent by design
		s.setAbsent(false)
		return false
	}

	input, err := evdev.Open(inputPath)
	if err != nil {
		log.Error().Err(err).Str("path", inputPath).Msg("Could not open event device")
		s.setAbsent(true)
		return false
	}

	if err := input.Grab(); err != nil {
		log.Error().Err(err).Str("path", inputPath).Msg("Could not grab event device")
		input.Close()
		s.setAbsent(true)
		return false
	}

	serialPath, serialName, err := findSerialPort(s.cfg.VendorID, s.cfg.ProductID)
	if err == nil && serialPath == "" {
		err = errors.New("serial port not found")
	}
	if err != nil {
		log.Error().Err(err).Msg("Pingboard serial port could not be found")
		input.Ungrab()
		input.Close()
		s.setAbsent(true)
		return false
	}

	port, err := serial.Open(serialPath, &serial.Mode{BaudRate: s.cfg.BaudRate})
	if err != nil {
		log.Error().Err(err).Str("path", serialPath).Msg("Could not open serial port")
		input.Ungrab()
		input.Close()
		s.setAbsent(true)
		return false
	}
	if err := port.SetReadTimeout(s.cfg.ReadTimeout.Duration()); err != nil {
		log.Warn().Err(err).Msg("Could not set serial read timeout")
	}

	name, _ := input.Name()
	phys, _ := input.PhysicalLocation()

	s.mu.Lock()
	s.input = input
	s.port = port
	s.state = DeviceState{
		InputPresent:  true,
		InputName:     name,
		InputPath:     inputPath,
		InputPhys:     phys,
		SerialPresent: true,
		SerialName:    serialName,
		SerialPath:    serialPath,
	}
	s.mu.Unlock()

	log.Info().
		Str("input", inputPath).
		Str("serial", serialPath).
		Str("name", name).
		Msg("Pingboard acquired")

	return true
}

// findInputPath scans evdev devices for the board by name and USB ids.
// Empty path with nil error means no board is attached.
func (s *Supervisor) findInputPath() (string, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return "", fmt.Errorf("list event devices: %w", err)
	}

	for _, p := range paths {
		if p.Name != s.cfg.InputName {
			continue
		}

		dev, err := evdev.Open(p.Path)
		if err != nil {
			continue
		}
		id, idErr := dev.InputID()
		dev.Close()
		if idErr != nil {
			continue
		}
		if id.Vendor == s.cfg.VendorID && id.Product == s.cfg.ProductID {
			return p.Path, nil
		}
	}
	return "", nil
}

// listen reads input events until the device errors out or the context is
// cancelled. Closing the device from the watcher unblocks the read.
func (s *Supervisor) listen(ctx context.Context) {
	s.mu.Lock()
	input := s.input
	s.mu.Unlock()
	if input == nil {
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.closeHandles()
		case <-stop:
		}
	}()

	parser := newKeyParser(s.onKey)

	for {
		ev, err := input.ReadOne()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("Error in evdev read loop")
			}
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		// Skip auto-repeat; only down (1) and up (0) matter
		if ev.Value == 2 {
			continue
		}
		parser.process(uint16(ev.Code), ev.Value == 1)
	}
}

func (s *Supervisor) closeHandles() {
	s.mu.Lock()
	input := s.input
	port := s.port
	s.input = nil
	s.port = nil
	s.mu.Unlock()

	if input != nil {
		input.Ungrab()
		input.Close()
	}
	if port != nil {
		port.Close()
	}
}

func (s *Supervisor) setAbsent(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = DeviceState{Failing: failing}
}
