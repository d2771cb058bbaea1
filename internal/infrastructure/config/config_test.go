package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "service:\n  name: homestream\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Queue.IngressStream != "homestream:ingress" {
		t.Errorf("IngressStream = %q, want default", cfg.Queue.IngressStream)
	}
	if cfg.WebSocket.PingInterval != 30 {
		t.Errorf("PingInterval = %d, want 30", cfg.WebSocket.PingInterval)
	}
	if len(cfg.Kafka.Topics) != 1 || cfg.Kafka.Topics[0] != "homestream.events" {
		t.Errorf("Kafka.Topics = %v, want default", cfg.Kafka.Topics)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  consumer_group: homestream-test
websocket:
  port: 9999
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka.Brokers = %v, want 2 entries", cfg.Kafka.Brokers)
	}
	if cfg.WebSocket.Port != 9999 {
		t.Errorf("WebSocket.Port = %d, want 9999", cfg.WebSocket.Port)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "redis:\n  url: redis://file:6379/0\n")

	t.Setenv("HOMESTREAM_REDIS_URL", "redis://env:6379/1")
	t.Setenv("HOMESTREAM_KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Redis.URL != "redis://env:6379/1" {
		t.Errorf("Redis.URL = %q, want env value", cfg.Redis.URL)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Errorf("Kafka.Brokers = %v, want [a:9092 b:9092]", cfg.Kafka.Brokers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "no kafka brokers",
			mutate:  func(c *Config) { c.Kafka.Brokers = nil },
			wantErr: "kafka.brokers",
		},
		{
			name:    "bad websocket port",
			mutate:  func(c *Config) { c.WebSocket.Port = 0 },
			wantErr: "websocket.port",
		},
		{
			name: "bad mqtt qos",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name:    "missing relay channel",
			mutate:  func(c *Config) { c.Relay.Channel = "" },
			wantErr: "relay.channel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() on missing file = nil, want error")
	}
}
