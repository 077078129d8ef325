package health

import (
	"fmt"
	"strings"
	"time"

	"github.com/pingboard/pingboardd/internal/amqp"
	"github.com/pingboard/pingboardd/internal/device"
)

// APIVersion identifies the externally visible status document version.
const APIVersion = "v0"

// BrokerStater exposes the broker supervisor's state snapshot.
type BrokerStater interface {
	Snapshot() amqp.ConnectionState
}

// DeviceStater exposes the device supervisor's state snapshot.
type DeviceStater interface {
	Snapshot() device.DeviceState
}

// Snapshot is the immutable health document. It is what the management
// endpoint serves and what goes to the status destination.
type Snapshot struct {
	GitVersion string       `json:"git-version,omitempty"`
	APIVersion string       `json:"api-version"`
	Timestamp  string       `json:"timestamp"`
	Uptime     string       `json:"uptime"`
	AMQP       AMQPHealth   `json:"amqp"`
	Evdev      EvdevHealth  `json:"evdev"`
	Serial     SerialHealth `json:"serial"`
}

// AMQPHealth describes the broker side of the snapshot.
type AMQPHealth struct {
	Host        string `json:"host"`
	Connection  string `json:"connection"`
	Channel     string `json:"channel"`
	Terminating bool   `json:"terminating"`
	ConsumerTag string `json:"consumer tag,omitempty"`
	Healthy     bool   `json:"healthy"`
}

// EvdevHealth describes the input side of the device.
type EvdevHealth struct {
	Name    string `json:"name,omitempty"`
	Path    string `json:"path,omitempty"`
	Phys    string `json:"phys,omitempty"`
	Healthy bool   `json:"healthy"`
}

// SerialHealth describes the control side of the device.
type SerialHealth struct {
	Name    string `json:"name,omitempty"`
	Path    string `json:"path,omitempty"`
	Healthy bool   `json:"healthy"`
}

// Healthy is the overall service health, mapped to the HTTP status code
// by the management endpoint.
func (s Snapshot) Healthy() bool {
	return s.AMQP.Healthy && s.Evdev.Healthy && s.Serial.Healthy
}

// Aggregator composes the two supervisor states into one consistent
// point-in-time health record. Pure read, never blocks on I/O.
type Aggregator struct {
	broker     BrokerStater
	device     DeviceStater
	gitVersion string
	started    time.Time
}

// New creates an aggregator. gitVersion may be empty when undeterminable.
func New(broker BrokerStater, device DeviceStater, gitVersion string) *Aggregator {
	return &Aggregator{
		broker:     broker,
		device:     device,
		gitVersion: gitVersion,
		started:    time.Now(),
	}
}

// Snapshot builds the current health document.
//
// Derivation rules: the broker side is healthy while terminating (an
// intentional disconnect is not an error) or when both connection and
// channel are up. The device side is healthy when the board is present or
// absent by design; a failed acquisition attempt is unhealthy.
func (a *Aggregator) Snapshot() Snapshot {
	now := time.Now()
	conn := a.broker.Snapshot()
	dev := a.device.Snapshot()

	amqpHealthy := conn.Terminating || (conn.Connected && conn.ChannelOpen)
	evdevHealthy := dev.InputPresent || !dev.Failing
	serialHealthy := dev.SerialPresent || !dev.Failing

	return Snapshot{
		GitVersion: a.gitVersion,
		APIVersion: APIVersion,
		Timestamp:  now.Format(time.RFC3339),
		Uptime:     isoDuration(now.Sub(a.started)),
		AMQP: AMQPHealth{
			Host:        conn.Host,
			Connection:  establishment(conn.Connected),
			Channel:     establishment(conn.ChannelOpen),
			Terminating: conn.Terminating,
			ConsumerTag: conn.ConsumerTag,
			Healthy:     amqpHealthy,
		},
		Evdev: EvdevHealth{
			Name:    dev.InputName,
			Path:    dev.InputPath,
			Phys:    dev.InputPhys,
			Healthy: evdevHealthy,
		},
		Serial: SerialHealth{
			Name:    dev.SerialName,
			Path:    dev.SerialPath,
			Healthy: serialHealthy,
		},
	}
}

func establishment(up bool) string {
	if up {
		return "established"
	}
	return "not established"
}

// isoDuration renders an ISO-8601 duration, e.g. "PT1H4M2S".
func isoDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	seconds := d - minutes*time.Minute

	var b strings.Builder
	b.WriteString("P")
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 || seconds > 0 || days == 0 {
		b.WriteString("T")
	}
	if hours > 0 {
		fmt.Fprintf(&b, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	if seconds > 0 || (days == 0 && hours == 0 && minutes == 0) {
		fmt.Fprintf(&b, "%dS", seconds/time.Second)
	}
	return b.String()
}
