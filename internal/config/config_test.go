package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
amqp:
  host: rabbit.local
  user: pingboard
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AMQP.Port != 5672 {
		t.Errorf("port = %d, want 5672", cfg.AMQP.Port)
	}
	if cfg.AMQP.Exchange != "pingboard" {
		t.Errorf("exchange = %q, want pingboard", cfg.AMQP.Exchange)
	}
	if cfg.AMQP.StatusKey != "status" {
		t.Errorf("status key = %q, want status", cfg.AMQP.StatusKey)
	}
	if got := cfg.AMQP.KeyRoutingKey(3); got != "3.key" {
		t.Errorf("key routing key 3 = %q, want 3.key", got)
	}
	if cfg.AMQP.ConfigQueue != "pingboard-configuration" {
		t.Errorf("config queue = %q", cfg.AMQP.ConfigQueue)
	}
	if cfg.AMQP.RetainKey != "" {
		t.Errorf("retain key should default to empty, got %q", cfg.AMQP.RetainKey)
	}
	if cfg.Device.VendorID != 0x2341 || cfg.Device.ProductID != 0x8037 {
		t.Errorf("device ids = %04x:%04x, want 2341:8037", cfg.Device.VendorID, cfg.Device.ProductID)
	}
	if cfg.Device.PollInterval.Duration() != 5*time.Second {
		t.Errorf("poll interval = %v, want 5s", cfg.Device.PollInterval.Duration())
	}
	if cfg.Device.BaudRate != 115200 {
		t.Errorf("baud rate = %d, want 115200", cfg.Device.BaudRate)
	}
	if cfg.Management.Port != 8080 {
		t.Errorf("management port = %d, want 8080", cfg.Management.Port)
	}
}

func TestLoad_URL(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
amqp:
  host: broker
  user: u
  password: p
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.AMQP.URL(); got != "amqp://u:p@broker:5672/" {
		t.Errorf("URL = %q", got)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_AMQP_HOST", "env-broker")
	cfg, err := Load(writeConfig(t, `
amqp:
  host: ${TEST_AMQP_HOST}
  user: ${TEST_AMQP_USER:fallback}
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AMQP.Host != "env-broker" {
		t.Errorf("host = %q, want env-broker", cfg.AMQP.Host)
	}
	if cfg.AMQP.User != "fallback" {
		t.Errorf("user = %q, want fallback", cfg.AMQP.User)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing_host", "amqp:\n  user: u\n"},
		{"missing_user", "amqp:\n  host: h\n"},
		{"wrong_key_count", "amqp:\n  host: h\n  user: u\n  key_routing_keys: [a, b]\n"},
		{"empty_key", "amqp:\n  host: h\n  user: u\n  key_routing_keys: [a, b, '', d]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
