package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds all configuration for the sender service
type Config struct {
	Telegram TelegramConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Logging  LoggingConfig
	Service  ServiceConfig
	Dispatch DispatchConfig
}

// TelegramConfig holds Telegram MTProto configuration
type TelegramConfig struct {
	APIID          int
	APIHash        string
	SessionDir     string
	ConnectTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// GetDSN builds the Postgres connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers        []string
	TopicJobEvents string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name            string
	Port            string
	ShutdownTimeout time.Duration
}

// DispatchConfig holds scheduler defaults; the settings table overrides
// them per deployment and jobs may override them per run.
type DispatchConfig struct {
	SendLimit         int
	DelayMin          time.Duration
	DelayMax          time.Duration
	ProxyMaxOccupancy int
	ExtractBatchSize  int
	ExtractBatchDelay time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	apiID, err := strconv.Atoi(getEnv("TELEGRAM_API_ID", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_API_ID: %w", err)
	}

	connectTimeout, err := time.ParseDuration(getEnv("TELEGRAM_CONNECT_TIMEOUT", "90s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CONNECT_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SERVICE_SHUTDOWN_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVICE_SHUTDOWN_TIMEOUT: %w", err)
	}

	sendLimit, err := strconv.Atoi(getEnv("DISPATCH_SEND_LIMIT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_SEND_LIMIT: %w", err)
	}

	delayMin, err := time.ParseDuration(getEnv("DISPATCH_DELAY_MIN", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_DELAY_MIN: %w", err)
	}

	delayMax, err := time.ParseDuration(getEnv("DISPATCH_DELAY_MAX", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_DELAY_MAX: %w", err)
	}

	proxyMax, err := strconv.Atoi(getEnv("PROXY_MAX_OCCUPANCY", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROXY_MAX_OCCUPANCY: %w", err)
	}

	batchSize, err := strconv.Atoi(getEnv("EXTRACT_BATCH_SIZE", "200"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXTRACT_BATCH_SIZE: %w", err)
	}

	batchDelay, err := time.ParseDuration(getEnv("EXTRACT_BATCH_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXTRACT_BATCH_DELAY: %w", err)
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			APIID:          apiID,
			APIHash:        getEnv("TELEGRAM_API_HASH", ""),
			SessionDir:     getEnv("TELEGRAM_SESSION_DIR", "./sessions"),
			ConnectTimeout: connectTimeout,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "sender"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:        strings.Split(getEnv("KAFKA_BROKERS", "localhost:9093"), ","),
			TopicJobEvents: getEnv("KAFKA_TOPIC_JOB_EVENTS", "sender.jobs.events"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Service: ServiceConfig{
			Name:            getEnv("SERVICE_NAME", "sender-service"),
			Port:            getEnv("SERVICE_PORT", "8085"),
			ShutdownTimeout: shutdownTimeout,
		},
		Dispatch: DispatchConfig{
			SendLimit:         sendLimit,
			DelayMin:          delayMin,
			DelayMax:          delayMax,
			ProxyMaxOccupancy: proxyMax,
			ExtractBatchSize:  batchSize,
			ExtractBatchDelay: batchDelay,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 {
		return fmt.Errorf("TELEGRAM_API_ID is required")
	}

	if c.Telegram.APIHash == "" {
		return fmt.Errorf("TELEGRAM_API_HASH is required")
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}

	if c.Dispatch.DelayMin > c.Dispatch.DelayMax {
		return fmt.Errorf("DISPATCH_DELAY_MIN must not exceed DISPATCH_DELAY_MAX")
	}

	return nil
}

// Result is fx.Out struct for providing config dependencies
type Result struct {
	fx.Out

	Config         *Config
	TelegramConfig *TelegramConfig
	DatabaseConfig *DatabaseConfig
	KafkaConfig    *KafkaConfig
	LoggingConfig  *LoggingConfig
	ServiceConfig  *ServiceConfig
	DispatchConfig *DispatchConfig
}

// Out returns fx-compatible config result
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:         cfg,
		TelegramConfig: &cfg.Telegram,
		DatabaseConfig: &cfg.Database,
		KafkaConfig:    &cfg.Kafka,
		LoggingConfig:  &cfg.Logging,
		ServiceConfig:  &cfg.Service,
		DispatchConfig: &cfg.Dispatch,
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
