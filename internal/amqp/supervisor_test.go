package amqp

import (
	"errors"
	"testing"
	"time"

	"github.com/pingboard/pingboardd/internal/config"
)

func testAMQPConfig() config.AMQPConfig {
	return config.AMQPConfig{
		Host:            "broker",
		Port:            5672,
		User:            "u",
		Password:        "p",
		Exchange:        "pingboard",
		StatusKey:       "status",
		KeyKeys:         []string{"1.key", "2.key", "3.key", "4.key"},
		ConfigQueue:     "pingboard-configuration",
		MinRetryBackoff: config.Duration(time.Second),
		MaxRetryBackoff: config.Duration(2 * time.Minute),
		RetryMultiplier: 2.0,
	}
}

func TestPublish_NoChannelDrops(t *testing.T) {
	s := New(testAMQPConfig())

	err := s.Publish("status", map[string]string{"k": "v"})
	if !errors.Is(err, ErrChannelClosed) {
		t.Errorf("err = %v, want ErrChannelClosed", err)
	}
}

func TestSnapshot_InitialState(t *testing.T) {
	st := New(testAMQPConfig()).Snapshot()
	if st.Host != "broker" {
		t.Errorf("host = %q, want broker", st.Host)
	}
	if st.Connected || st.ChannelOpen || st.Terminating || st.ConsumerTag != "" {
		t.Errorf("state = %+v, want disconnected", st)
	}
}

func TestMarkTerminating(t *testing.T) {
	s := New(testAMQPConfig())
	s.MarkTerminating()
	if !s.Snapshot().Terminating {
		t.Error("terminating flag not set")
	}
}

func TestSetDisconnected_PreservesHostAndTerminating(t *testing.T) {
	s := New(testAMQPConfig())
	s.mu.Lock()
	s.state = ConnectionState{
		Host:        "broker",
		Connected:   true,
		ChannelOpen: true,
		ConsumerTag: "tag-1",
		Terminating: true,
	}
	s.mu.Unlock()

	s.setDisconnected()

	st := s.Snapshot()
	if st.Host != "broker" || !st.Terminating {
		t.Errorf("state = %+v, want host and terminating preserved", st)
	}
	if st.Connected || st.ChannelOpen || st.ConsumerTag != "" {
		t.Errorf("state = %+v, want connection fields cleared", st)
	}
}
