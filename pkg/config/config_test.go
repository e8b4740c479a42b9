package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	c := &Config{Environment: "test"}
	c.Backend.Type = "clickhouse"
	return c
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := validConfig()
	c.Environment = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("missing environment must fail")
	}

	c = validConfig()
	c.Backend.Type = "postgres"
	if err := c.Validate(); err == nil {
		t.Fatalf("unsupported backend must fail")
	}

	c = validConfig()
	c.Backend.Type = "kafka"
	if err := c.Validate(); err == nil {
		t.Fatalf("kafka backend without brokers must fail")
	}
	c.Kafka.Brokers = []string{"localhost:9092"}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c = validConfig()
	c.Fusion.MLWeight = 0.7
	c.Fusion.PhysicsWeight = 0.4
	if err := c.Validate(); err == nil {
		t.Fatalf("fusion weights summing to 1.1 must fail")
	}

	c = validConfig()
	c.Feed.WebSocketURL = "wss://example.com/feed"
	if err := c.Validate(); err == nil {
		t.Fatalf("feed without channels must fail")
	}
	c.Feed.Channels = []string{"space_weather"}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFusionDefaults(t *testing.T) {
	c := validConfig()
	if c.FusionMLWeight() != 0.6 || c.FusionPhysicsWeight() != 0.4 {
		t.Fatalf("zero weights must fall back to 0.6/0.4")
	}
	if c.FusionConflictThreshold() != 20 {
		t.Fatalf("zero threshold must fall back to 20")
	}

	c.Fusion.MLWeight = 0.5
	c.Fusion.PhysicsWeight = 0.5
	c.Fusion.ConflictThreshold = 35
	if c.FusionMLWeight() != 0.5 || c.FusionPhysicsWeight() != 0.5 {
		t.Fatalf("explicit weights must pass through")
	}
	if c.FusionConflictThreshold() != 35 {
		t.Fatalf("explicit threshold must pass through")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
environment: test
backend:
  type: clickhouse
ingest:
  nasa_api_key: DEMO_KEY
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("NASA_DONKI_API_KEY", "real-key")
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "b1:9092,b2:9092")
	t.Setenv("REDIS_ADDR", "cache:6379")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Ingest.NASAAPIKey != "real-key" {
		t.Fatalf("env must override the api key, got %q", c.Ingest.NASAAPIKey)
	}
	if c.Backend.Type != "kafka" {
		t.Fatalf("env must override the backend, got %q", c.Backend.Type)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "b2:9092" {
		t.Fatalf("broker list must split on commas, got %v", c.Kafka.Brokers)
	}
	if !c.Redis.Enabled || c.Redis.Addr != "cache:6379" {
		t.Fatalf("redis address must enable redis, got %+v", c.Redis)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file must fail")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("environment: [broken"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed yaml must fail")
	}
}
