package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Webflow WebflowConfig
	Feed    FeedConfig
	Sync    SyncConfig
	Storage StorageConfig
	Server  ServerConfig
}

// WebflowConfig holds destination store (Webflow Data API) configuration
type WebflowConfig struct {
	BaseURL              string // Overridable for tests
	Token                string
	SiteID               string
	CollectionID         string
	LocationCollectionID string
	Timeout              time.Duration
}

// FeedConfig holds external feed configuration
type FeedConfig struct {
	URL        string
	Timeout    time.Duration // Per attempt
	MaxRetries int
	MaxBackoff time.Duration
}

// SyncConfig holds sync scheduling configuration
type SyncConfig struct {
	ScheduleHours int // 0 disables the cron schedule
}

// StorageConfig holds run-history storage configuration
type StorageConfig struct {
	Type        string // "memory", "dynamodb", "mongodb", "postgresql"
	Region      string // For AWS DynamoDB
	TableName   string
	Endpoint    string // Custom endpoint for local testing
	MongoDBURI  string
	PostgresURI string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// fileConfig is the optional YAML file shape. Values here act as defaults;
// environment variables always win.
type fileConfig struct {
	Webflow struct {
		Token                string `yaml:"token"`
		SiteID               string `yaml:"site_id"`
		CollectionID         string `yaml:"collection_id"`
		LocationCollectionID string `yaml:"location_collection_id"`
	} `yaml:"webflow"`
	Feed struct {
		URL        string `yaml:"url"`
		TimeoutSec int    `yaml:"timeout_sec"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"feed"`
	Sync struct {
		ScheduleHours int `yaml:"schedule_hours"`
	} `yaml:"sync"`
	Storage struct {
		Type        string `yaml:"type"`
		Region      string `yaml:"region"`
		TableName   string `yaml:"table_name"`
		Endpoint    string `yaml:"endpoint"`
		MongoDBURI  string `yaml:"mongodb_uri"`
		PostgresURI string `yaml:"postgres_uri"`
	} `yaml:"storage"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

// Load loads configuration from an optional YAML file (SYNC_CONFIG_FILE) and
// environment variables, env taking precedence over file values.
func Load() (*Config, error) {
	var file fileConfig
	if path := os.Getenv("SYNC_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg := &Config{
		Webflow: WebflowConfig{
			BaseURL:              getEnv("WEBFLOW_API_URL", "https://api.webflow.com/v2"),
			Token:                getEnv("WEBFLOW_TOKEN", file.Webflow.Token),
			SiteID:               getEnv("WEBFLOW_SITE_ID", file.Webflow.SiteID),
			CollectionID:         getEnv("WEBFLOW_COLLECTION_ID", file.Webflow.CollectionID),
			LocationCollectionID: getEnv("WEBFLOW_LOCATION_COLLECTION_ID", file.Webflow.LocationCollectionID),
			Timeout:              getEnvDuration("WEBFLOW_TIMEOUT", 30*time.Second),
		},
		Feed: FeedConfig{
			URL:        getEnv("FEED_URL", file.Feed.URL),
			Timeout:    getEnvDuration("FEED_TIMEOUT", secondsOr(file.Feed.TimeoutSec, 30*time.Second)),
			MaxRetries: getEnvInt("FEED_MAX_RETRIES", intOr(file.Feed.MaxRetries, 3)),
			MaxBackoff: getEnvDuration("FEED_MAX_BACKOFF", 5*time.Second),
		},
		Sync: SyncConfig{
			ScheduleHours: getEnvInt("SYNC_SCHEDULE_HOURS", file.Sync.ScheduleHours),
		},
		Storage: StorageConfig{
			Type:        getEnv("STORAGE_TYPE", stringOr(file.Storage.Type, "memory")),
			Region:      getEnv("AWS_REGION", stringOr(file.Storage.Region, "us-west-2")),
			TableName:   getEnv("TABLE_NAME", stringOr(file.Storage.TableName, "sync_runs")),
			Endpoint:    getEnv("DYNAMODB_ENDPOINT", file.Storage.Endpoint), // For local DynamoDB
			MongoDBURI:  getEnv("MONGODB_URI", file.Storage.MongoDBURI),
			PostgresURI: getEnv("POSTGRES_URI", file.Storage.PostgresURI),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", intOr(file.Server.Port, 8080)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Webflow.Token == "" {
		return fmt.Errorf("WEBFLOW_TOKEN is required")
	}
	if c.Webflow.CollectionID == "" {
		return fmt.Errorf("WEBFLOW_COLLECTION_ID is required")
	}
	if c.Feed.URL == "" {
		return fmt.Errorf("FEED_URL is required")
	}
	if c.Feed.MaxRetries < 1 {
		return fmt.Errorf("FEED_MAX_RETRIES must be at least 1, got %d", c.Feed.MaxRetries)
	}
	if c.Sync.ScheduleHours < 0 {
		return fmt.Errorf("SYNC_SCHEDULE_HOURS must be non-negative, got %d", c.Sync.ScheduleHours)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func stringOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func intOr(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func secondsOr(sec int, fallback time.Duration) time.Duration {
	if sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return fallback
}
