package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers           []string `yaml:"brokers"`
		MeasurementsTopic string   `yaml:"measurements_topic"`
		ScoresTopic       string   `yaml:"scores_topic"`
		AlertsTopic       string   `yaml:"alerts_topic"`
		LogsTopic         string   `yaml:"logs_topic"`
		RequiredAcks      int      `yaml:"required_acks"`
		Compression       string   `yaml:"compression"`
		Producer          struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			BatchSize    int           `yaml:"batch_size"`
			BatchTimeout time.Duration `yaml:"batch_timeout"`
			BatchBytes   int           `yaml:"batch_bytes"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		MaxConnections   int           `yaml:"max_connections"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Feed struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Channels       []string      `yaml:"channels"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"feed"`
	Ingest struct {
		NOAABaseURL  string        `yaml:"noaa_base_url"`
		DONKIBaseURL string        `yaml:"donki_base_url"`
		NASAAPIKey   string        `yaml:"nasa_api_key"`
		CacheTTL     time.Duration `yaml:"cache_ttl"`
		MaxRetries   int           `yaml:"max_retries"`
		BaseBackoff  time.Duration `yaml:"base_backoff"`
		LookbackDays int           `yaml:"lookback_days"`
	} `yaml:"ingest"`
	Estimator struct {
		ServiceURL string        `yaml:"service_url"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"estimator"`
	// Hand-tuned model constants. Zero values fall back to the
	// calibrated defaults (0.6 / 0.4 / 20).
	Fusion struct {
		MLWeight          float64 `yaml:"ml_weight"`
		PhysicsWeight     float64 `yaml:"physics_weight"`
		ConflictThreshold float64 `yaml:"conflict_threshold"`
	} `yaml:"fusion"`
	Pipeline struct {
		MaxRPS     int `yaml:"max_rps"`
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"pipeline"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides secrets and
// deployment-specific settings with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("NASA_DONKI_API_KEY"); v != "" {
		c.Ingest.NASAAPIKey = v
	}
	if v := os.Getenv("NASA_DONKI_BASE_URL"); v != "" {
		c.Ingest.DONKIBaseURL = v
	}
	if v := os.Getenv("NOAA_SWPC_BASE_URL"); v != "" {
		c.Ingest.NOAABaseURL = v
	}
	if v := os.Getenv("ESTIMATOR_URL"); v != "" {
		c.Estimator.ServiceURL = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for the kafka backend")
	}
	if c.Fusion.MLWeight != 0 || c.Fusion.PhysicsWeight != 0 {
		sum := c.Fusion.MLWeight + c.Fusion.PhysicsWeight
		if sum < 0.99 || sum > 1.01 {
			return fmt.Errorf("fusion weights must sum to 1.0, got %.3f", sum)
		}
	}
	if c.Feed.WebSocketURL != "" && len(c.Feed.Channels) == 0 {
		return fmt.Errorf("feed.channels cannot be empty when a feed is configured")
	}
	return nil
}

// FusionMLWeight returns the configured ML weight or the calibrated default.
func (c *Config) FusionMLWeight() float64 {
	if c.Fusion.MLWeight == 0 && c.Fusion.PhysicsWeight == 0 {
		return 0.6
	}
	return c.Fusion.MLWeight
}

// FusionPhysicsWeight returns the configured physics weight or the default.
func (c *Config) FusionPhysicsWeight() float64 {
	if c.Fusion.MLWeight == 0 && c.Fusion.PhysicsWeight == 0 {
		return 0.4
	}
	return c.Fusion.PhysicsWeight
}

// FusionConflictThreshold returns the configured conflict threshold or the default.
func (c *Config) FusionConflictThreshold() float64 {
	if c.Fusion.ConflictThreshold == 0 {
		return 20
	}
	return c.Fusion.ConflictThreshold
}
