package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	AMQP            AMQPConfig       `yaml:"amqp"`
	Device          DeviceConfig     `yaml:"device"`
	Management      ManagementConfig `yaml:"management"`
	Log             LogConfig        `yaml:"log"`
	GitVersionFile  string           `yaml:"git_version_file"`
	ShutdownTimeout Duration         `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// AMQPConfig contains broker connection settings and the routing-key map.
type AMQPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	Exchange    string   `yaml:"exchange"`
	StatusKey   string   `yaml:"status_key"`        // status and error messages
	KeyKeys     []string `yaml:"key_routing_keys"`  // one routing key per physical key, index order
	RetainKey   string   `yaml:"retain_key"`        // retained configuration on shutdown, empty = skip
	ConfigQueue string   `yaml:"config_queue"`      // queue consumed for configuration updates
	Declare     bool     `yaml:"declare"`           // declare exchange/queue/binding on connect

	// Reconnect settings
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // Minimum backoff between reconnects (default: 1s)
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // Maximum backoff between reconnects (default: 2m)
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // Backoff multiplier (default: 2.0)
}

// URL builds the broker connection URL.
func (c *AMQPConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.User, c.Password, c.Host, c.Port)
}

// KeyRoutingKey returns the routing key for a key index (1-based).
func (c *AMQPConfig) KeyRoutingKey(idx int) string {
	return c.KeyKeys[idx-1]
}

// DeviceConfig contains the physical device identification and serial settings.
type DeviceConfig struct {
	InputName string `yaml:"input_name"` // evdev device name to match
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`

	PollInterval Duration `yaml:"poll_interval"` // Interval between device discovery attempts
	BaudRate     int      `yaml:"baud_rate"`
	ReadTimeout  Duration `yaml:"read_timeout"`  // Timeout waiting for the OK readback
	WriteRetries int      `yaml:"write_retries"` // Attempts per serial command
}

// ManagementConfig contains management HTTP endpoint settings.
type ManagementConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	OAS3Path string `yaml:"oas3_path"` // served at /v0/oas3
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the configured log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// GetShutdownTimeout returns the shutdown timeout as time.Duration
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	// AMQP defaults
	if cfg.AMQP.Port == 0 {
		cfg.AMQP.Port = 5672
	}
	if cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = "pingboard"
	}
	if cfg.AMQP.StatusKey == "" {
		cfg.AMQP.StatusKey = "status"
	}
	if len(cfg.AMQP.KeyKeys) == 0 {
		cfg.AMQP.KeyKeys = []string{"1.key", "2.key", "3.key", "4.key"}
	}
	if cfg.AMQP.ConfigQueue == "" {
		cfg.AMQP.ConfigQueue = "pingboard-configuration"
	}
	if cfg.AMQP.MinRetryBackoff == 0 {
		cfg.AMQP.MinRetryBackoff = Duration(1 * time.Second)
	}
	if cfg.AMQP.MaxRetryBackoff == 0 {
		cfg.AMQP.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if cfg.AMQP.RetryMultiplier == 0 {
		cfg.AMQP.RetryMultiplier = 2.0
	}

	// Device defaults match the Pingboard hardware (Arduino Micro)
	if cfg.Device.InputName == "" {
		cfg.Device.InputName = "Arduino LLC Arduino Micro"
	}
	if cfg.Device.VendorID == 0 {
		cfg.Device.VendorID = 0x2341
	}
	if cfg.Device.ProductID == 0 {
		cfg.Device.ProductID = 0x8037
	}
	if cfg.Device.PollInterval == 0 {
		cfg.Device.PollInterval = Duration(5 * time.Second)
	}
	if cfg.Device.BaudRate == 0 {
		cfg.Device.BaudRate = 115200
	}
	if cfg.Device.ReadTimeout == 0 {
		cfg.Device.ReadTimeout = Duration(1 * time.Second)
	}
	if cfg.Device.WriteRetries == 0 {
		cfg.Device.WriteRetries = 3
	}

	// Management defaults
	if cfg.Management.Port == 0 {
		cfg.Management.Port = 8080
	}
	if cfg.Management.Host == "" {
		cfg.Management.Host = "0.0.0.0"
	}
	if cfg.Management.OAS3Path == "" {
		cfg.Management.OAS3Path = "OAS3.yml"
	}

	if cfg.GitVersionFile == "" {
		cfg.GitVersionFile = "git-version.txt"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate rejects static settings the daemon cannot start with.
func (cfg *Config) Validate() error {
	if cfg.AMQP.Host == "" {
		return fmt.Errorf("amqp: host must be provided")
	}
	if cfg.AMQP.User == "" {
		return fmt.Errorf("amqp: user must be provided")
	}
	if cfg.AMQP.StatusKey == "" {
		return fmt.Errorf("amqp: status routing key must be provided")
	}
	if cfg.AMQP.ConfigQueue == "" {
		return fmt.Errorf("amqp: configuration queue name must be provided")
	}
	if len(cfg.AMQP.KeyKeys) != 4 {
		return fmt.Errorf("amqp: exactly 4 key routing keys required, got %d", len(cfg.AMQP.KeyKeys))
	}
	for i, rk := range cfg.AMQP.KeyKeys {
		if rk == "" {
			return fmt.Errorf("amqp: key routing key %d must not be empty", i+1)
		}
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
