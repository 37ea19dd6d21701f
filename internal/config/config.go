package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds Postgres connection configuration.
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// NATSConfig holds NATS configuration for lifecycle event publishing.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Enabled       bool          `mapstructure:"enabled"`
}

// OpenAIConfig holds the batch inference provider configuration.
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds the batch analysis pipeline tuning knobs. The yaml
// tags allow the struct to round-trip through operator-edited config files.
type PipelineConfig struct {
	ClaimSize           int           `mapstructure:"claim_size"            yaml:"claim_size"`
	SubmitInterval      time.Duration `mapstructure:"submit_interval"       yaml:"submit_interval"`
	PollInterval        time.Duration `mapstructure:"poll_interval"         yaml:"poll_interval"`
	MaxConcurrentPolls  int           `mapstructure:"max_concurrent_polls"  yaml:"max_concurrent_polls"`
	MaxDocumentAttempts int           `mapstructure:"max_document_attempts" yaml:"max_document_attempts"`
	StuckThreshold      time.Duration `mapstructure:"stuck_threshold"       yaml:"stuck_threshold"`
	InitialBackoff      time.Duration `mapstructure:"initial_backoff"       yaml:"initial_backoff"`
	MaxBackoff          time.Duration `mapstructure:"max_backoff"           yaml:"max_backoff"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New creates a new Config instance from Viper.
func New(v *viper.Viper) *Config {
	var config Config

	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}

	if err := config.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	return &config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}

	if c.Pipeline.ClaimSize < 1 {
		return errors.New("pipeline.claim_size must be at least 1")
	}
	if c.Pipeline.MaxDocumentAttempts < 1 {
		return errors.New("pipeline.max_document_attempts must be at least 1")
	}
	if c.Pipeline.SubmitInterval <= 0 || c.Pipeline.PollInterval <= 0 {
		return errors.New("pipeline intervals must be positive")
	}

	return nil
}
