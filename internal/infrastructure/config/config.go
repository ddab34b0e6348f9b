package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for NovaCloud Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig  `yaml:"database"`
	TCP      TCPConfig       `yaml:"tcp"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	API      APIConfig       `yaml:"api"`
	InfluxDB InfluxDBConfig  `yaml:"influxdb"`
	SMTP     SMTPConfig      `yaml:"smtp"`
	Webhook  WebhookConfig   `yaml:"webhook"`
	Logging  LoggingConfig   `yaml:"logging"`
	WS       WebSocketConfig `yaml:"websocket"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// TCPConfig contains settings for the native TCP device server.
type TCPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// FrameDelimiter terminates each wire frame. Default "\n".
	FrameDelimiter string `yaml:"frame_delimiter"`

	// MaxMessageSize is the maximum receive buffer size in bytes.
	// A connection whose buffer exceeds this is closed. Default 128 KiB.
	MaxMessageSize int `yaml:"max_message_size"`

	// IdleTimeout is the per-connection read deadline in seconds.
	// Zero disables the deadline.
	IdleTimeout int `yaml:"idle_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is prepended to all device topics. Default "novacloud/".
	TopicPrefix string `yaml:"topic_prefix"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Token    string           `yaml:"token"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for the telemetry mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// SMTPConfig contains outbound mail settings for notification actions.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// WebhookConfig contains settings for the webhook action executor.
type WebhookConfig struct {
	// Timeout is the per-request timeout in seconds. Default 10.
	Timeout int `yaml:"timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file, applies environment variable
// overrides, and validates the result.
//
// Environment variables follow the pattern NOVACLOUD_SECTION_KEY,
// for example NOVACLOUD_DATABASE_PATH or NOVACLOUD_MQTT_PASSWORD.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
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
		Database: DatabaseConfig{
			Path:        "./data/novacloud.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		TCP: TCPConfig{
			Host:           "0.0.0.0",
			Port:           9000,
			FrameDelimiter: "\n",
			MaxMessageSize: 131072,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "novacloud-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "novacloud/",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WS: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		SMTP: SMTPConfig{
			Port: 25,
			From: "novacloud@localhost",
		},
		Webhook: WebhookConfig{
			Timeout: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NOVACLOUD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("NOVACLOUD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// TCP
	if v := os.Getenv("NOVACLOUD_TCP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.TCP.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("NOVACLOUD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NOVACLOUD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NOVACLOUD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API token (IMPORTANT: always override in production)
	if v := os.Getenv("NOVACLOUD_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}

	// InfluxDB
	if v := os.Getenv("NOVACLOUD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// SMTP
	if v := os.Getenv("NOVACLOUD_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.TCP.Port < 1 || c.TCP.Port > 65535 {
		errs = append(errs, "tcp.port must be between 1 and 65535")
	}
	if c.TCP.FrameDelimiter == "" {
		errs = append(errs, "tcp.frame_delimiter must not be empty")
	}
	if c.TCP.MaxMessageSize < 1024 {
		errs = append(errs, "tcp.max_message_size must be at least 1024 bytes")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix != "" && !strings.HasSuffix(c.MQTT.TopicPrefix, "/") {
		errs = append(errs, "mqtt.topic_prefix must end with '/'")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// An empty token is allowed: the API serves /health only and returns
	// 503 on protected routes until NOVACLOUD_API_TOKEN is set. A short
	// token is rejected outright.
	const minTokenLength = 16
	if c.API.Token != "" && len(c.API.Token) < minTokenLength {
		errs = append(errs, "api.token must be at least 16 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Delimiter returns the TCP frame delimiter as bytes.
func (c *TCPConfig) Delimiter() []byte {
	return []byte(c.FrameDelimiter)
}

// GetIdleTimeout returns the TCP idle timeout as a Duration.
func (c *TCPConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// GetTimeout returns the webhook request timeout as a Duration.
func (c *WebhookConfig) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}
