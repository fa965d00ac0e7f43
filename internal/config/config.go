// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. It is built once by Load and
// passed by reference to constructors; nothing reads the environment later.
type Config struct {
	DataDir      string `yaml:"data_dir" default:"./data"`
	DatabasePath string `yaml:"database_path"` // defaults to <DataDir>/allocator.db
	LogLevel     string `yaml:"log_level" default:"info" validate:"oneof=trace debug info warn error"`
	Port         int    `yaml:"port" default:"8001" validate:"gte=1,lte=65535"`
	DevMode      bool   `yaml:"dev_mode"`

	Providers ProvidersConfig `yaml:"providers"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Universe  UniverseConfig  `yaml:"universe"`
	Work      WorkConfig      `yaml:"work"`
	Backup    BackupConfig    `yaml:"backup"`
}

// ProvidersConfig holds market data and news vendor settings
type ProvidersConfig struct {
	PolygonAPIKey         string  `yaml:"polygon_api_key"`
	PolygonBaseURL        string  `yaml:"polygon_base_url" default:"https://api.polygon.io" validate:"url"`
	PolygonRequestsPerMin float64 `yaml:"polygon_requests_per_min" default:"5" validate:"gt=0"`
	NewsAPIKey            string  `yaml:"newsapi_api_key"`
	NewsAPIBaseURL        string  `yaml:"newsapi_base_url" default:"https://newsapi.org" validate:"url"`
	GoogleNewsBaseURL     string  `yaml:"google_news_base_url" default:"https://news.google.com" validate:"url"`
	HTTPTimeoutSeconds    int     `yaml:"http_timeout_seconds" default:"20" validate:"gte=1"`
	MaxAttempts           int     `yaml:"max_attempts" default:"3" validate:"gte=1,lte=10"`
}

// SentimentConfig holds sentiment model settings
type SentimentConfig struct {
	Model            string `yaml:"model" default:"ProsusAI/finbert"`
	HuggingFaceToken string `yaml:"huggingface_token"`
	InferenceBaseURL string `yaml:"inference_base_url" default:"https://api-inference.huggingface.co" validate:"url"`
	BatchSize        int    `yaml:"batch_size" default:"16" validate:"gte=1"`
}

// UniverseConfig holds the scheduled universe refresh settings
type UniverseConfig struct {
	Schedule     string `yaml:"schedule" default:"0 30 1 * * *"`
	Size         int    `yaml:"size" default:"100" validate:"gte=10,lte=500"`
	LookbackDays int    `yaml:"lookback_days" default:"1095" validate:"gte=30"`
	Concurrency  int    `yaml:"concurrency" default:"10" validate:"gte=1,lte=64"`
	Enabled      bool   `yaml:"enabled" default:"true"`
	// RefreshOnStart runs one refresh right after startup
	RefreshOnStart bool `yaml:"refresh_on_start"`
}

// WorkConfig holds job queue settings
type WorkConfig struct {
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix" default:"allocator"`
	Workers   int    `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	QueueSize int    `yaml:"queue_size" default:"256" validate:"gte=1"`
}

// BackupConfig holds database maintenance and S3-compatible backup settings.
// Backups are enabled once a bucket and credentials are set.
type BackupConfig struct {
	Schedule            string  `yaml:"schedule" default:"0 0 3 * * *"`
	MaintenanceSchedule string  `yaml:"maintenance_schedule" default:"0 0 2 * * *"`
	Bucket              string  `yaml:"bucket"`
	AccountID           string  `yaml:"account_id"` // Cloudflare R2 account; derives the endpoint
	Endpoint            string  `yaml:"endpoint" validate:"omitempty,url"`
	Region              string  `yaml:"region" default:"auto"`
	AccessKeyID         string  `yaml:"access_key_id"`
	SecretAccessKey     string  `yaml:"secret_access_key"`
	RetentionDays       int     `yaml:"retention_days" default:"30" validate:"gte=0"`
	MinFreeGB           float64 `yaml:"min_free_gb" default:"0.5" validate:"gte=0"`
}

var validate = validator.New()

// Load reads configuration from defaults, an optional YAML file (CONFIG_FILE)
// and environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(absDataDir, "allocator.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.Port = getEnvAsInt("PORT", c.Port)
	c.DevMode = getEnvAsBool("DEV_MODE", c.DevMode)

	c.Providers.PolygonAPIKey = getEnv("POLYGON_API_KEY", c.Providers.PolygonAPIKey)
	c.Providers.NewsAPIKey = getEnv("NEWSAPI_API_KEY", c.Providers.NewsAPIKey)

	c.Sentiment.Model = getEnv("FINBERT_MODEL", c.Sentiment.Model)
	c.Sentiment.HuggingFaceToken = getEnv("HUGGINGFACE_API_TOKEN", c.Sentiment.HuggingFaceToken)

	c.Universe.Schedule = getEnv("UNIVERSE_SCHEDULE", c.Universe.Schedule)
	c.Universe.Size = getEnvAsInt("UNIVERSE_SIZE", c.Universe.Size)
	c.Universe.Concurrency = getEnvAsInt("BATCH_CONCURRENCY", c.Universe.Concurrency)
	c.Universe.Enabled = getEnvAsBool("UNIVERSE_REFRESH_ENABLED", c.Universe.Enabled)
	c.Universe.RefreshOnStart = getEnvAsBool("UNIVERSE_REFRESH_ON_START", c.Universe.RefreshOnStart)

	c.Work.RedisURL = getEnv("REDIS_URL", c.Work.RedisURL)
	c.Work.Workers = getEnvAsInt("WORKERS", c.Work.Workers)

	c.Backup.Bucket = getEnv("BACKUP_BUCKET", c.Backup.Bucket)
	c.Backup.AccountID = getEnv("R2_ACCOUNT_ID", c.Backup.AccountID)
	c.Backup.Endpoint = getEnv("BACKUP_ENDPOINT", c.Backup.Endpoint)
	c.Backup.AccessKeyID = getEnv("BACKUP_ACCESS_KEY_ID", c.Backup.AccessKeyID)
	c.Backup.SecretAccessKey = getEnv("BACKUP_SECRET_ACCESS_KEY", c.Backup.SecretAccessKey)
	c.Backup.RetentionDays = getEnvAsInt("BACKUP_RETENTION_DAYS", c.Backup.RetentionDays)
}

// Validate checks the configuration against its struct constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HasPolygon reports whether the premium market data vendor is configured.
func (c *Config) HasPolygon() bool {
	return c.Providers.PolygonAPIKey != ""
}

// HasNewsAPI reports whether the premium news vendor is configured.
func (c *Config) HasNewsAPI() bool {
	return c.Providers.NewsAPIKey != ""
}

// HasBackup reports whether remote backups are configured.
func (c *Config) HasBackup() bool {
	b := c.Backup
	return b.Bucket != "" && b.AccessKeyID != "" && b.SecretAccessKey != "" &&
		(b.Endpoint != "" || b.AccountID != "")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
