package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
	"github.com/nerrad567/limitimer-bridge/internal/transport"
)

// Config is the root configuration structure for the Limitimer bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site" json:"site"`
	Devices   []DeviceConfig  `yaml:"devices" json:"devices"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Journal   JournalConfig   `yaml:"journal" json:"journal"`
	MQTT      MQTTConfig      `yaml:"mqtt" json:"mqtt"`
	API       APIConfig       `yaml:"api" json:"api"`
	WebSocket WebSocketConfig `yaml:"websocket" json:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb" json:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// SiteConfig identifies this bridge instance.
type SiteConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// DeviceConfig describes one Limitimer.
type DeviceConfig struct {
	Key     string        `yaml:"key" json:"key"`
	Name    string        `yaml:"name" json:"name"`
	Type    string        `yaml:"type" json:"type"`
	Control ControlConfig `yaml:"control" json:"control"`

	PollTimeMs       int64 `yaml:"poll_time_ms" json:"poll_time_ms"`
	WarningTimeoutMs int64 `yaml:"warning_timeout_ms" json:"warning_timeout_ms"`
	ErrorTimeoutMs   int64 `yaml:"error_timeout_ms" json:"error_timeout_ms"`

	// QueueSize bounds the inbound line queue. 0 selects the driver default.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// ControlConfig describes the link to the device.
type ControlConfig struct {
	// URL is "tcp://host:port" or "serial:///dev/ttyUSB0?baud=9600".
	URL string `yaml:"url" json:"url"`

	ConnectTimeoutMs       int64 `yaml:"connect_timeout_ms" json:"connect_timeout_ms"`
	ReconnectIntervalMs    int64 `yaml:"reconnect_interval_ms" json:"reconnect_interval_ms"`
	MaxReconnectIntervalMs int64 `yaml:"max_reconnect_interval_ms" json:"max_reconnect_interval_ms"`
}

// PollInterval returns poll_time_ms as a Duration.
func (d DeviceConfig) PollInterval() time.Duration {
	return time.Duration(d.PollTimeMs) * time.Millisecond
}

// WarningTimeout returns warning_timeout_ms as a Duration.
func (d DeviceConfig) WarningTimeout() time.Duration {
	return time.Duration(d.WarningTimeoutMs) * time.Millisecond
}

// ErrorTimeout returns error_timeout_ms as a Duration.
func (d DeviceConfig) ErrorTimeout() time.Duration {
	return time.Duration(d.ErrorTimeoutMs) * time.Millisecond
}

// DisplayName returns Name, falling back to Key.
func (d DeviceConfig) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Key
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" json:"path"`
	WALMode     bool   `yaml:"wal_mode" json:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" json:"busy_timeout"`
}

// JournalConfig controls the action and status journal.
type JournalConfig struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	RetentionDays int  `yaml:"retention_days" json:"retention_days"`
}

// Retention returns the journal retention as a Duration.
func (j JournalConfig) Retention() time.Duration {
	return time.Duration(j.RetentionDays) * 24 * time.Hour
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" json:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker" json:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth" json:"auth"`
	QoS         int                 `yaml:"qos" json:"qos"`
	TopicPrefix string              `yaml:"topic_prefix" json:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect" json:"reconnect"`

	// HealthInterval is seconds between health publications.
	HealthInterval int `yaml:"health_interval" json:"health_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	TLS      bool   `yaml:"tls" json:"tls"`
	ClientID string `yaml:"client_id" json:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password Secret `yaml:"password" json:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     int `yaml:"max_delay" json:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts" json:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" json:"enabled"`
	Host     string           `yaml:"host" json:"host"`
	Port     int              `yaml:"port" json:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts" json:"timeouts"`
	Panel    PanelConfig      `yaml:"panel" json:"panel"`
}

// PanelConfig controls the browser status panel served next to the API.
// Dir, when set, serves the panel from disk instead of the embedded copy.
type PanelConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read" json:"read"`
	Write int `yaml:"write" json:"write"`
	Idle  int `yaml:"idle" json:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path" json:"path"`
	MaxMessageSize int    `yaml:"max_message_size" json:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval" json:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout" json:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	URL           string `yaml:"url" json:"url"`
	Token         Secret `yaml:"token" json:"token"`
	Org           string `yaml:"org" json:"org"`
	Bucket        string `yaml:"bucket" json:"bucket"`
	BatchSize     int    `yaml:"batch_size" json:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" json:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level" json:"level"`
	Format string            `yaml:"format" json:"format"`
	Output string            `yaml:"output" json:"output"`
	File   FileLoggingConfig `yaml:"file" json:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path" json:"path"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Secret is a credential that never appears in logs or JSON output.
type Secret string

const redacted = "[REDACTED]"

// String returns a placeholder for non-empty secrets.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

// Value returns the secret in clear text.
func (s Secret) Value() string {
	return string(s)
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LIMITIMER_SECTION_KEY
// For example: LIMITIMER_DATABASE_PATH, LIMITIMER_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults and no devices.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "limitimer-bridge",
			Name: "Limitimer Bridge",
		},
		Database: DatabaseConfig{
			Path:        "./data/limitimer.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Journal: JournalConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "limitimer-bridge",
			},
			QoS:         1,
			TopicPrefix: "limitimer",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			HealthInterval: 30,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Panel: PanelConfig{
				Enabled: true,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "limitimer",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/limitimer.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LIMITIMER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("LIMITIMER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LIMITIMER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LIMITIMER_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("LIMITIMER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIMITIMER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = Secret(v)
	}
	if v := os.Getenv("LIMITIMER_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}

	// API
	if v := os.Getenv("LIMITIMER_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LIMITIMER_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("LIMITIMER_API_PANEL_DIR"); v != "" {
		cfg.API.Panel.Dir = v
	}

	// InfluxDB
	if v := os.Getenv("LIMITIMER_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("LIMITIMER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = Secret(v)
	}

	// Logging
	if v := os.Getenv("LIMITIMER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device is required")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		errs = append(errs, d.validate(i, seen)...)
	}

	if c.Journal.Enabled {
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required when the journal is enabled")
		}
		if c.Journal.RetentionDays < 0 {
			errs = append(errs, "journal.retention_days must not be negative")
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
			errs = append(errs, "mqtt.topic_prefix must be non-empty and free of wildcards")
		}
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (d DeviceConfig) validate(i int, seen map[string]bool) []string {
	var errs []string
	prefix := fmt.Sprintf("devices[%d]", i)

	switch {
	case d.Key == "":
		errs = append(errs, prefix+".key is required")
	case strings.ContainsAny(d.Key, "/+# "):
		errs = append(errs, fmt.Sprintf("%s.key %q must not contain '/', '+', '#' or spaces", prefix, d.Key))
	case seen[d.Key]:
		errs = append(errs, fmt.Sprintf("%s.key %q is duplicated", prefix, d.Key))
	default:
		seen[d.Key] = true
	}

	if !limitimer.IsSupportedType(d.Type) {
		errs = append(errs, fmt.Sprintf("%s.type %q is not supported (use %s)",
			prefix, d.Type, strings.Join(limitimer.TypeNames, " or ")))
	}

	if d.Control.URL == "" {
		errs = append(errs, prefix+".control.url is required")
	} else if _, err := transport.ParseURL(d.Control.URL); err != nil {
		errs = append(errs, fmt.Sprintf("%s.control.url: %v", prefix, err))
	}

	if d.PollTimeMs <= 0 {
		errs = append(errs, prefix+".poll_time_ms must be positive")
	}
	if d.WarningTimeoutMs <= 0 {
		errs = append(errs, prefix+".warning_timeout_ms must be positive")
	}
	if d.ErrorTimeoutMs <= d.WarningTimeoutMs {
		errs = append(errs, prefix+".error_timeout_ms must exceed warning_timeout_ms")
	}
	if d.QueueSize < 0 {
		errs = append(errs, prefix+".queue_size must not be negative")
	}

	return errs
}

// Device returns the device with the given key.
func (c *Config) Device(key string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.Key == key {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
