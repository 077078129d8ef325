package device

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/pingboard/pingboardd/internal/config"
)

// stubPort implements serial.Port so it can be installed as the active
// control channel of a supervisor.
type stubPort struct {
	wrote    bytes.Buffer
	response io.Reader
	writeErr error
	closed   bool
}

func (p *stubPort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.wrote.Write(b)
}

func (p *stubPort) Read(b []byte) (int, error) {
	if p.response == nil {
		return 0, io.EOF
	}
	return p.response.Read(b)
}

func (p *stubPort) Close() error { p.closed = true; return nil }

func (p *stubPort) SetMode(*serial.Mode) error                           { return nil }
func (p *stubPort) SetReadTimeout(time.Duration) error                   { return nil }
func (p *stubPort) Drain() error                                         { return nil }
func (p *stubPort) ResetInputBuffer() error                              { return nil }
func (p *stubPort) ResetOutputBuffer() error                             { return nil }
func (p *stubPort) SetDTR(bool) error                                    { return nil }
func (p *stubPort) SetRTS(bool) error                                    { return nil }
func (p *stubPort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (p *stubPort) Break(time.Duration) error                            { return nil }

func testDeviceConfig() config.DeviceConfig {
	return config.DeviceConfig{
		InputName:    "Arduino LLC Arduino Micro",
		VendorID:     0x2341,
		ProductID:    0x8037,
		PollInterval: config.Duration(time.Second),
		BaudRate:     115200,
		ReadTimeout:  config.Duration(time.Second),
		WriteRetries: 1,
	}
}

// attach installs a port as if acquire had succeeded.
func attach(s *Supervisor, port serial.Port) {
	s.mu.Lock()
	s.port = port
	s.state = DeviceState{SerialPresent: true, SerialPath: "/dev/ttyACM0"}
	s.mu.Unlock()
}

func TestApply_AbsentBoard(t *testing.T) {
	s := New(testDeviceConfig())
	err := s.Apply([]string{"DIM 100\n"})
	if !errors.Is(err, ErrAbsent) {
		t.Errorf("err = %v, want ErrAbsent", err)
	}
}

func TestApply_NoAckKeepsDevice(t *testing.T) {
	s := New(testDeviceConfig())
	port := &stubPort{response: bytes.NewBufferString("ERR\n")}
	attach(s, port)

	err := s.Apply([]string{"DIM 100\n"})
	if !errors.Is(err, errNoAck) {
		t.Fatalf("err = %v, want errNoAck", err)
	}
	if !s.Ready() {
		t.Error("missing acknowledgement must not release the device")
	}
	if port.closed {
		t.Error("port closed on missing acknowledgement")
	}
}

func TestApply_IOFailureDemotes(t *testing.T) {
	s := New(testDeviceConfig())
	port := &stubPort{writeErr: errors.New("broken pipe")}
	attach(s, port)

	err := s.Apply([]string{"DIM 100\n"})
	if err == nil || errors.Is(err, errNoAck) {
		t.Fatalf("err = %v, want I/O failure", err)
	}
	if s.Ready() {
		t.Error("I/O failure must release the device")
	}
	if !port.closed {
		t.Error("failing port not closed")
	}
	if st := s.Snapshot(); !st.Failing {
		t.Errorf("state = %+v, want Failing", st)
	}
}

func TestDemote_StalePortLeavesReacquiredBoard(t *testing.T) {
	s := New(testDeviceConfig())
	stale := &stubPort{}
	fresh := &stubPort{}
	attach(s, fresh)

	// The board was lost and reacquired between a writer capturing the
	// port and its write failing; the stale demote must be a no-op
	s.demote(stale)

	if !s.Ready() {
		t.Error("stale demote released the reacquired board")
	}
	if fresh.closed {
		t.Error("fresh port closed by stale demote")
	}
	if st := s.Snapshot(); st.Failing || !st.SerialPresent {
		t.Errorf("state = %+v, want untouched", st)
	}
}
