package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Connection types supported by the engine.
const (
	ConnectionSerial = "serial"
	ConnectionTCP    = "tcp"
)

// Config is the root configuration structure for ecoSYNC Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Polling    PollingConfig    `yaml:"polling"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// ConnectionConfig describes the physical link to the controller.
type ConnectionConfig struct {
	// Type selects the transport: "serial" or "tcp".
	Type string `yaml:"type"`

	// Device is the serial device path (serial connections only).
	Device string `yaml:"device"`

	// Baudrate is the serial line speed (serial connections only).
	Baudrate int `yaml:"baudrate"`

	// Host and Port identify the RS-485 network gateway (tcp connections only).
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// RequestTimeout is the per-request response timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// Retries is how many times a timed-out request is retransmitted
	// before the operation fails terminally.
	Retries int `yaml:"retries"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains link reconnection backoff settings.
type ReconnectConfig struct {
	// InitialDelay is the first backoff delay in seconds.
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the exponential backoff, in seconds.
	MaxDelay int `yaml:"max_delay"`
}

// PollingConfig contains state refresh settings.
type PollingConfig struct {
	// TelemetryInterval is the fast sensor poll period in seconds.
	TelemetryInterval int `yaml:"telemetry_interval"`

	// ParameterInterval is the slow parameter/capability refresh period in seconds.
	ParameterInterval int `yaml:"parameter_interval"`

	// Deadband is the minimum change magnitude for float attributes
	// before subscribers are notified. Smaller deltas are treated as noise.
	Deadband float64 `yaml:"deadband"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL is the token lifetime in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ECOSYNC_SECTION_KEY
// For example: ECOSYNC_CONNECTION_HOST, ECOSYNC_JWT_SECRET
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
//
// The connection defaults mirror the most common ecoMAX installation:
// an RS-485/WiFi gateway listening on port 8899, or a local USB adapter
// at /dev/ttyUSB0 running at 115200 baud.
func defaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Type:           ConnectionTCP,
			Device:         "/dev/ttyUSB0",
			Baudrate:       115200,
			Host:           "localhost",
			Port:           8899,
			RequestTimeout: 5,
			Retries:        3,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Polling: PollingConfig{
			TelemetryInterval: 1,
			ParameterInterval: 30,
			Deadband:          0.1,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ecosync-core",
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
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ECOSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Connection
	if v := os.Getenv("ECOSYNC_CONNECTION_TYPE"); v != "" {
		cfg.Connection.Type = v
	}
	if v := os.Getenv("ECOSYNC_CONNECTION_DEVICE"); v != "" {
		cfg.Connection.Device = v
	}
	if v := os.Getenv("ECOSYNC_CONNECTION_HOST"); v != "" {
		cfg.Connection.Host = v
	}
	if v := os.Getenv("ECOSYNC_CONNECTION_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Connection.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("ECOSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ECOSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ECOSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ECOSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("ECOSYNC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	switch c.Connection.Type {
	case ConnectionSerial:
		if c.Connection.Device == "" {
			errs = append(errs, "connection.device is required for serial connections")
		}
		if c.Connection.Baudrate <= 0 {
			errs = append(errs, "connection.baudrate must be positive")
		}
	case ConnectionTCP:
		if c.Connection.Host == "" {
			errs = append(errs, "connection.host is required for tcp connections")
		}
		if c.Connection.Port < 1 || c.Connection.Port > 65535 {
			errs = append(errs, "connection.port must be between 1 and 65535")
		}
	default:
		errs = append(errs, fmt.Sprintf("connection.type must be %q or %q", ConnectionSerial, ConnectionTCP))
	}

	if c.Connection.RequestTimeout <= 0 {
		errs = append(errs, "connection.request_timeout must be positive")
	}
	if c.Connection.Retries < 0 {
		errs = append(errs, "connection.retries must not be negative")
	}

	if c.Polling.TelemetryInterval <= 0 {
		errs = append(errs, "polling.telemetry_interval must be positive")
	}
	if c.Polling.ParameterInterval <= 0 {
		errs = append(errs, "polling.parameter_interval must be positive")
	}
	if c.Polling.Deadband < 0 {
		errs = append(errs, "polling.deadband must not be negative")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		// The API can issue writes to the heating system, so token forgery
		// is a physical-plant risk, not just a data leak. Require a real secret.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when the API is enabled (set ECOSYNC_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRequestTimeout returns the per-request timeout as a Duration.
func (c *ConnectionConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetInitialDelay returns the reconnect backoff start as a Duration.
func (c *ReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(c.InitialDelay) * time.Second
}

// GetMaxDelay returns the reconnect backoff cap as a Duration.
func (c *ReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(c.MaxDelay) * time.Second
}

// GetTelemetryInterval returns the fast poll period as a Duration.
func (c *PollingConfig) GetTelemetryInterval() time.Duration {
	return time.Duration(c.TelemetryInterval) * time.Second
}

// GetParameterInterval returns the slow refresh period as a Duration.
func (c *PollingConfig) GetParameterInterval() time.Duration {
	return time.Duration(c.ParameterInterval) * time.Second
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
