package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Homestream.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	Relay      RelayConfig      `yaml:"relay"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Automation AutomationConfig `yaml:"automation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServiceConfig contains service-level identity settings.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings for the rule store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// KafkaConfig contains log-broker connection settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
	ClientID      string   `yaml:"client_id"`
	Version       string   `yaml:"version"`
	Topics        []string `yaml:"topics"`
}

// RedisConfig contains the shared Redis connection settings.
// Both the work queue and the relay channel run on this instance.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// QueueConfig contains work-queue stream settings.
type QueueConfig struct {
	// IngressStream carries device status acknowledgements and
	// automation trigger requests into this service.
	IngressStream string `yaml:"ingress_stream"`

	// CommandStream carries device commands out to the device-control
	// boundary.
	CommandStream string `yaml:"command_stream"`

	// Group is the consumer group name shared by all instances.
	Group string `yaml:"group"`

	// BlockTimeout is how long a read blocks waiting for messages (seconds).
	BlockTimeout int `yaml:"block_timeout"`
}

// RelayConfig contains the cross-instance notification relay settings.
type RelayConfig struct {
	Channel string `yaml:"channel"`
}

// WebSocketConfig contains the client-facing WebSocket server settings.
type WebSocketConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains settings for the optional sensor-telemetry source.
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
}

// InfluxDBConfig contains telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// AutomationConfig contains trigger-engine settings.
type AutomationConfig struct {
	// ConcurrencyGuard, when true, prevents concurrent execution of the
	// same rule: a second trigger arriving while the rule is executing is
	// logged and skipped. Off by default; a redelivered broker message may
	// then re-execute a rule (accepted at-least-once behaviour).
	ConcurrencyGuard bool `yaml:"concurrency_guard"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOMESTREAM_SECTION_KEY
// For example: HOMESTREAM_DATABASE_PATH, HOMESTREAM_REDIS_URL
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
		Service: ServiceConfig{
			Name: "homestream",
		},
		Database: DatabaseConfig{
			Path:        "./data/homestream.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "homestream",
			ClientID:      "homestream-core",
			Version:       "2.8.0",
			Topics:        []string{"homestream.events"},
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Queue: QueueConfig{
			IngressStream: "homestream:ingress",
			CommandStream: "homestream:commands",
			Group:         "homestream",
			BlockTimeout:  5,
		},
		Relay: RelayConfig{
			Channel: "homestream:notify",
		},
		WebSocket: WebSocketConfig{
			Host:           "0.0.0.0",
			Port:           8090,
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "homestream-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
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
// Environment variables follow the pattern: HOMESTREAM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HOMESTREAM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Kafka
	if v := os.Getenv("HOMESTREAM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("HOMESTREAM_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}

	// Redis (queue + relay)
	if v := os.Getenv("HOMESTREAM_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	// WebSocket
	if v := os.Getenv("HOMESTREAM_WEBSOCKET_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.WebSocket.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("HOMESTREAM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOMESTREAM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOMESTREAM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HOMESTREAM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// splitList splits a comma-separated environment value into a string slice.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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

	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka.brokers is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		errs = append(errs, "kafka.consumer_group is required")
	}
	if len(c.Kafka.Topics) == 0 {
		errs = append(errs, "kafka.topics is required")
	}

	if c.Redis.URL == "" {
		errs = append(errs, "redis.url is required")
	}
	if c.Queue.IngressStream == "" || c.Queue.CommandStream == "" {
		errs = append(errs, "queue.ingress_stream and queue.command_stream are required")
	}
	if c.Queue.Group == "" {
		errs = append(errs, "queue.group is required")
	}
	if c.Relay.Channel == "" {
		errs = append(errs, "relay.channel is required")
	}

	if c.WebSocket.Port < 1 || c.WebSocket.Port > 65535 {
		errs = append(errs, "websocket.port must be between 1 and 65535")
	}
	if c.WebSocket.PingInterval <= 0 {
		errs = append(errs, "websocket.ping_interval must be positive")
	}
	if c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.pong_timeout must be positive")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPingInterval returns the WebSocket liveness probe interval as a Duration.
func (c *Config) GetPingInterval() time.Duration {
	return time.Duration(c.WebSocket.PingInterval) * time.Second
}

// GetPongTimeout returns the WebSocket probe response timeout as a Duration.
func (c *Config) GetPongTimeout() time.Duration {
	return time.Duration(c.WebSocket.PongTimeout) * time.Second
}

// GetQueueBlockTimeout returns the work-queue read block timeout as a Duration.
func (c *Config) GetQueueBlockTimeout() time.Duration {
	return time.Duration(c.Queue.BlockTimeout) * time.Second
}
