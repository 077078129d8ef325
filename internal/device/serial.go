package device

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial/enumerator"
)

// errNoAck means the board accepted the bytes but never answered "OK".
// The serial link itself is still considered alive.
var errNoAck = errors.New("no OK acknowledgement from board")

// findSerialPort scans USB serial ports for the board's VID/PID and
// returns the port path and product name. An empty path with nil error
// means no matching port exists.
func findSerialPort(vendorID, productID uint16) (path, product string, err error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", "", fmt.Errorf("enumerate serial ports: %w", err)
	}

	vid := fmt.Sprintf("%04X", vendorID)
	pid := fmt.Sprintf("%04X", productID)

	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			return p.Name, p.Product, nil
		}
	}
	return "", "", nil
}

// writeCommand sends one command line and waits for the "OK" readback.
// Returns errNoAck when the response line is missing or different; any
// other error is an I/O failure on the link.
func writeCommand(rw io.ReadWriter, cmd string) error {
	if _, err := rw.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	line, err := readLine(rw)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if line != "OK" {
		return errNoAck
	}
	return nil
}

// readLine reads up to a newline. The port carries a read timeout, under
// which a zero-byte read means the board stopped talking; that is treated
// as a missing acknowledgement, not a link failure.
func readLine(r io.Reader) (string, error) {
	var buf []byte
	b := make([]byte, 1)
	for len(buf) < 64 {
		n, err := r.Read(b)
		if err != nil {
			return "", err
		}
		if n == 0 {
			// Read timeout expired
			return "", errNoAck
		}
		if b[0] == '\n' {
			return strings.TrimRight(string(buf), "\r"), nil
		}
		buf = append(buf, b[0])
	}
	return "", errNoAck
}
