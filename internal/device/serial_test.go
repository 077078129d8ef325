package device

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// fakePort echoes a scripted response after recording what was written.
type fakePort struct {
	wrote    bytes.Buffer
	response io.Reader
	writeErr error
}

func (f *fakePort) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.wrote.Write(p)
}

func (f *fakePort) Read(p []byte) (int, error) {
	return f.response.Read(p)
}

func TestWriteCommand_OK(t *testing.T) {
	port := &fakePort{response: bytes.NewBufferString("OK\n")}
	if err := writeCommand(port, "DIM 100\n"); err != nil {
		t.Fatalf("writeCommand failed: %v", err)
	}
	if port.wrote.String() != "DIM 100\n" {
		t.Errorf("wrote %q", port.wrote.String())
	}
}

func TestWriteCommand_CRLFResponse(t *testing.T) {
	port := &fakePort{response: bytes.NewBufferString("OK\r\n")}
	if err := writeCommand(port, "DIM 100\n"); err != nil {
		t.Errorf("CRLF response should be accepted: %v", err)
	}
}

func TestWriteCommand_NoAck(t *testing.T) {
	port := &fakePort{response: bytes.NewBufferString("ERR\n")}
	err := writeCommand(port, "DIM 100\n")
	if !errors.Is(err, errNoAck) {
		t.Errorf("err = %v, want errNoAck", err)
	}
}

func TestWriteCommand_WriteFailure(t *testing.T) {
	port := &fakePort{writeErr: errors.New("broken pipe"), response: bytes.NewBuffer(nil)}
	err := writeCommand(port, "DIM 100\n")
	if err == nil || errors.Is(err, errNoAck) {
		t.Errorf("err = %v, want I/O failure", err)
	}
}

func TestWriteCommand_ReadFailure(t *testing.T) {
	port := &fakePort{response: iotest{}}
	err := writeCommand(port, "DIM 100\n")
	if err == nil || errors.Is(err, errNoAck) {
		t.Errorf("err = %v, want I/O failure", err)
	}
}

type iotest struct{}

func (iotest) Read([]byte) (int, error) { return 0, errors.New("device gone") }
