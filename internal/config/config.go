package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Approvers  map[string]string `mapstructure:"approvers"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds document storage configuration
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// WorkflowConfig holds approval workflow parameters
type WorkflowConfig struct {
	AmountTolerance float64       `mapstructure:"amount_tolerance"`
	ConfidenceFloor float64       `mapstructure:"confidence_floor"`
	ExternalTimeout time.Duration `mapstructure:"external_timeout"`
	CompanyName     string        `mapstructure:"company_name"`
}

// ExtractionConfig holds background extraction worker configuration
type ExtractionConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	Concurrency    int           `mapstructure:"concurrency"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/procurement.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// OpenAI defaults
	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.timeout", 60*time.Second)

	// Storage defaults
	viper.SetDefault("storage.base_dir", "data/documents")

	// Workflow defaults
	viper.SetDefault("workflow.amount_tolerance", 0.05)
	viper.SetDefault("workflow.confidence_floor", 0.5)
	viper.SetDefault("workflow.external_timeout", 90*time.Second)

	// Extraction worker defaults
	viper.SetDefault("extraction.queue_size", 64)
	viper.SetDefault("extraction.concurrency", 2)
	viper.SetDefault("extraction.process_timeout", 120*time.Second)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("workflow.company_name", "COMPANY_NAME")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	if c.Workflow.CompanyName == "" {
		return fmt.Errorf("workflow.company_name is required")
	}
	if c.Workflow.AmountTolerance < 0 || c.Workflow.AmountTolerance > 1 {
		return fmt.Errorf("workflow.amount_tolerance must be within [0, 1]")
	}
	if c.Workflow.ConfidenceFloor < 0 || c.Workflow.ConfidenceFloor > 1 {
		return fmt.Errorf("workflow.confidence_floor must be within [0, 1]")
	}

	if len(c.Approvers) == 0 {
		return fmt.Errorf("at least one approver must be configured")
	}
	for userID, level := range c.Approvers {
		if level != "L1" && level != "L2" {
			return fmt.Errorf("approver %s has unknown level %q", userID, level)
		}
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	return nil
}
