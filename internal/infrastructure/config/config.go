package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the DKN cloud bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Cloud    CloudConfig    `yaml:"cloud"`
	Sync     SyncConfig     `yaml:"sync"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BridgeConfig contains bridge identity settings.
type BridgeConfig struct {
	ID string `yaml:"id"`
}

// CloudConfig contains DKN/Airzone cloud account and endpoint settings.
type CloudConfig struct {
	// BaseURL is the cloud API base (default https://dkn.airzonecloud.com).
	BaseURL string `yaml:"base_url"`

	// Email is the cloud account email. Required.
	Email string `yaml:"email"`

	// Password is the cloud account password. Used once at login and then
	// discarded from memory. Set via DKNBRIDGE_CLOUD_PASSWORD in production.
	Password string `yaml:"password"`

	// RequestTimeout is the fixed per-request timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// MaxRetries bounds per-request retries on 429/5xx and network timeouts.
	MaxRetries int `yaml:"max_retries"`
}

// SyncConfig contains polling, staleness, and overlay tuning.
type SyncConfig struct {
	// PollInterval is the snapshot poll period in seconds. Minimum 10.
	PollInterval int `yaml:"poll_interval"`

	// StaleAfterMinutes is the snapshot age beyond which a unit is
	// considered offline.
	StaleAfterMinutes int `yaml:"stale_after_minutes"`

	// OfflineDebounce is how long (seconds) the staleness condition must
	// hold before an Offline transition is reported.
	OfflineDebounce int `yaml:"offline_debounce"`

	// OverlayTTL is the optimistic overlay validity window in milliseconds.
	// The effective TTL is never shorter than poll_interval plus a margin.
	OverlayTTL int `yaml:"overlay_ttl"`

	// ConfirmDelay is the post-write confirmation poll delay in milliseconds.
	ConfirmDelay int `yaml:"confirm_delay"`

	// EnableDualSetpoint exposes mode 4 (heat-cool) where the unit's bitmask
	// advertises it. Backend semantics for this mode are unvalidated across
	// firmware revisions, so it is off by default.
	EnableDualSetpoint bool `yaml:"enable_dual_setpoint"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Token    string           `yaml:"token"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	WS       WebSocketConfig  `yaml:"websocket"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket push settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// minPollInterval is the floor for the snapshot poll period. The cloud
// backend rate-limits aggressively; polling faster than this trips 429s.
const minPollInterval = 10

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DKNBRIDGE_SECTION_KEY
// For example: DKNBRIDGE_CLOUD_PASSWORD, DKNBRIDGE_API_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID: "dkn-bridge-01",
		},
		Cloud: CloudConfig{
			BaseURL:        "https://dkn.airzonecloud.com",
			RequestTimeout: 15,
			MaxRetries:     3,
		},
		Sync: SyncConfig{
			PollInterval:      10,
			StaleAfterMinutes: 10,
			OfflineDebounce:   90,
			OverlayTTL:        2500,
			ConfirmDelay:      1500,
		},
		Database: DatabaseConfig{
			Path:        "./data/dknbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dkn-cloud-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8087,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WS: WebSocketConfig{
				Path:           "/ws",
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DKNBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud account (credentials belong in the environment, not on disk)
	if v := os.Getenv("DKNBRIDGE_CLOUD_EMAIL"); v != "" {
		cfg.Cloud.Email = v
	}
	if v := os.Getenv("DKNBRIDGE_CLOUD_PASSWORD"); v != "" {
		cfg.Cloud.Password = v
	}
	if v := os.Getenv("DKNBRIDGE_CLOUD_BASE_URL"); v != "" {
		cfg.Cloud.BaseURL = v
	}

	// Database
	if v := os.Getenv("DKNBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("DKNBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DKNBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DKNBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("DKNBRIDGE_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("DKNBRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("DKNBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.Cloud.BaseURL == "" {
		errs = append(errs, "cloud.base_url is required")
	}
	if c.Cloud.Email == "" {
		errs = append(errs, "cloud.email is required (set DKNBRIDGE_CLOUD_EMAIL)")
	}
	if c.Cloud.Password == "" {
		errs = append(errs, "cloud.password is required (set DKNBRIDGE_CLOUD_PASSWORD)")
	}
	if c.Cloud.RequestTimeout <= 0 {
		errs = append(errs, "cloud.request_timeout must be positive")
	}
	if c.Cloud.MaxRetries < 0 {
		errs = append(errs, "cloud.max_retries must not be negative")
	}

	if c.Sync.PollInterval < minPollInterval {
		errs = append(errs, fmt.Sprintf("sync.poll_interval must be at least %d seconds", minPollInterval))
	}
	if c.Sync.StaleAfterMinutes <= 0 {
		errs = append(errs, "sync.stale_after_minutes must be positive")
	}
	if c.Sync.OfflineDebounce < 0 {
		errs = append(errs, "sync.offline_debounce must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		if c.API.Token == "" {
			errs = append(errs, "api.token is required when the API is enabled (set DKNBRIDGE_API_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRequestTimeout returns the cloud request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Cloud.RequestTimeout) * time.Second
}

// GetPollInterval returns the snapshot poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Sync.PollInterval) * time.Second
}

// GetStaleAfter returns the snapshot staleness threshold as a Duration.
func (c *Config) GetStaleAfter() time.Duration {
	return time.Duration(c.Sync.StaleAfterMinutes) * time.Minute
}

// GetOfflineDebounce returns the offline debounce window as a Duration.
func (c *Config) GetOfflineDebounce() time.Duration {
	return time.Duration(c.Sync.OfflineDebounce) * time.Second
}

// GetOverlayTTL returns the optimistic overlay TTL as a Duration.
func (c *Config) GetOverlayTTL() time.Duration {
	return time.Duration(c.Sync.OverlayTTL) * time.Millisecond
}

// GetConfirmDelay returns the post-write confirmation delay as a Duration.
func (c *Config) GetConfirmDelay() time.Duration {
	return time.Duration(c.Sync.ConfirmDelay) * time.Millisecond
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
