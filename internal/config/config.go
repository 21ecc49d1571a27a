package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"dataset-service/internal/blob"
	"dataset-service/internal/ledger"
	"dataset-service/internal/llm"
	"dataset-service/internal/payment"
	"dataset-service/internal/qa"
	"dataset-service/internal/queue"
	"dataset-service/internal/service"
	"dataset-service/internal/transcribe"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		AuthSecret      string        `yaml:"auth_secret"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Mode  string `yaml:"mode"`
		Level string `yaml:"level"`
	} `yaml:"log"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Queue struct {
		Type       string        `yaml:"type"`
		StaleAfter time.Duration `yaml:"stale_after"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"queue"`
	Worker     queue.WorkerConfig `yaml:"worker"`
	Generation struct {
		service.GenerationConfig `yaml:",inline"`
		Providers                []string  `yaml:"providers"`
		Model                    string    `yaml:"model"`
		MaxFailures              int       `yaml:"max_failures"`
		Limits                   qa.Limits `yaml:"limits"`
	} `yaml:"generation"`
	Retry      service.RetryConfig      `yaml:"retry"`
	FineTuning service.FineTuningConfig `yaml:"fine_tuning"`
	Ledger     ledger.Config            `yaml:"ledger"`
	Providers  []llm.ProviderConfig     `yaml:"providers"`
	Crypto     struct {
		MasterKey string `yaml:"master_key"`
	} `yaml:"crypto"`
	GCP struct {
		Blob         blob.Config       `yaml:"blob"`
		Speech       transcribe.Config `yaml:"speech"`
		EnableSpeech bool              `yaml:"enable_speech"`
	} `yaml:"gcp"`
	Payment payment.Config `yaml:"payment"`
}

const (
	QueueSQL   = "sql"
	QueueRedis = "redis"
)

// LoadConfig reads configuration from the specified YAML file.
// ${VAR} references are expanded from the environment before decoding.
func LoadConfig(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "development"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Queue.Type == "" {
		c.Queue.Type = QueueSQL
	}
	if c.Queue.StaleAfter <= 0 {
		c.Queue.StaleAfter = 45 * time.Minute
	}
	if c.Queue.Redis.Prefix == "" {
		c.Queue.Redis.Prefix = "dataset-service"
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = time.Second
	}
	if len(c.Worker.Queues) == 0 {
		c.Worker.Queues = service.Queues
	}
	if c.Generation.InterChunkDelay == 0 {
		c.Generation.InterChunkDelay = time.Second
	}
	if len(c.Generation.Providers) == 0 {
		for _, p := range c.Providers {
			c.Generation.Providers = append(c.Generation.Providers, strings.ToLower(string(p.Type)))
		}
	}
	if c.Ledger == (ledger.Config{}) {
		c.Ledger = ledger.DefaultConfig
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	switch c.Queue.Type {
	case QueueSQL:
	case QueueRedis:
		if c.Queue.Redis.Addr == "" {
			return fmt.Errorf("queue.redis.addr is required for the redis queue")
		}
	default:
		return fmt.Errorf("unsupported queue type %q", c.Queue.Type)
	}
	if len(c.Generation.Providers) == 0 {
		return fmt.Errorf("at least one generation provider is required")
	}
	return nil
}
