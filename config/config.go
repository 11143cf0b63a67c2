package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environments accepted in APP_ENV.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// Store, guard and upload drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	GuardMemory   = "memory"
	GuardRedis    = "redis"
	UploadYouTube = "youtube"
	UploadS3      = "s3"
	UploadNone    = "none"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Env      string
	LogLevel string

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Zoom     ZoomConfig
	Pipeline PipelineConfig
	Storage  StorageConfig
	YouTube  YouTubeConfig
	Admin    AdminConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	RecordingsBucket string
	Endpoint         string
}

// ZoomConfig holds webhook settings.
type ZoomConfig struct {
	RouteUUID          string // path segment of the webhook route
	WebhookSecretToken string // empty disables signature checks
}

// PipelineConfig tunes the polling loop and the stages.
type PipelineConfig struct {
	Period            time.Duration
	Delay             time.Duration
	MinDuration       int // minutes
	MaxAttempts       int
	RetryBackoff      time.Duration
	Concurrency       int
	DeleteAfterUpload bool
	GuardDriver       string
	UploadTarget      string
}

// StorageConfig describes where recordings land and how they are named.
type StorageConfig struct {
	Driver         string
	DirPath        string
	Timezone       string
	MaxTopicLength int
	MaxOtherLength int
	MaxTutorLength int
}

// YouTubeConfig holds the OAuth client used for uploads.
type YouTubeConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Privacy      string
}

// AdminConfig holds the single operator account.
type AdminConfig struct {
	Username     string
	PasswordHash string // bcrypt
}

// IsDev reports whether APP_ENV is development.
func (c *Config) IsDev() bool { return c.Env == EnvDevelopment }

// IsTest reports whether APP_ENV is test.
func (c *Config) IsTest() bool { return c.Env == EnvTest }

// IsProd reports whether APP_ENV is production.
func (c *Config) IsProd() bool { return c.Env == EnvProduction }

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Location loads the configured timezone.
func (c StorageConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load reads configuration from environment, with optional .env file, and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads configuration from the process environment without validating it.
func FromEnv() *Config {
	return &Config{
		Env:      getEnv("APP_ENV", EnvProduction),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "zoomsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:           getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket: getEnv("AWS_S3_RECORDINGS_BUCKET", "zoomsync-recordings"),
			Endpoint:         getEnv("AWS_S3_ENDPOINT", ""),
		},
		Zoom: ZoomConfig{
			RouteUUID:          getEnv("ROUTE_UUID", ""),
			WebhookSecretToken: getEnv("ZOOM_WEBHOOK_SECRET_TOKEN", ""),
		},
		Pipeline: PipelineConfig{
			Period:            getEnvDuration("CRON_PERIOD", time.Minute),
			Delay:             getEnvDuration("CRON_DELAY", 10*time.Second),
			MinDuration:       getEnvInt("MIN_DURATION_MINUTES", 5),
			MaxAttempts:       getEnvInt("STAGE_MAX_ATTEMPTS", 3),
			RetryBackoff:      getEnvDuration("STAGE_RETRY_BACKOFF", 10*time.Second),
			Concurrency:       getEnvInt("WORKER_CONCURRENCY", 4),
			DeleteAfterUpload: getEnvBool("DELETE_AFTER_UPLOAD", false),
			GuardDriver:       getEnv("GUARD_DRIVER", GuardMemory),
			UploadTarget:      getEnv("UPLOAD_TARGET", UploadYouTube),
		},
		Storage: StorageConfig{
			Driver:         getEnv("STORE_DRIVER", StorePostgres),
			DirPath:        getEnv("STORAGE_DIRPATH", ""),
			Timezone:       getEnv("TIMEZONE", "Europe/Moscow"),
			MaxTopicLength: getEnvInt("MAX_TOPIC_LENGTH", 60),
			MaxOtherLength: getEnvInt("MAX_OTHER_TOPIC_LENGTH", 85),
			MaxTutorLength: getEnvInt("MAX_TUTOR_LENGTH", 25),
		},
		YouTube: YouTubeConfig{
			ClientID:     getEnv("YOUTUBE_CLIENT_ID", ""),
			ClientSecret: getEnv("YOUTUBE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("YOUTUBE_REDIRECT_URL", ""),
			Privacy:      getEnv("YOUTUBE_PRIVACY", "unlisted"),
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(oneOf(c.Env, EnvProduction, EnvDevelopment, EnvTest), "APP_ENV: unexpected env %q", c.Env)
	check(c.Zoom.RouteUUID != "", "ROUTE_UUID is required")
	check(c.Storage.DirPath != "", "STORAGE_DIRPATH is required")
	check(c.Pipeline.Period > 0, "CRON_PERIOD must be positive, got %s", c.Pipeline.Period)
	check(c.Pipeline.Delay >= 0, "CRON_DELAY must not be negative, got %s", c.Pipeline.Delay)
	check(c.Pipeline.MinDuration > 0, "MIN_DURATION_MINUTES must be positive")
	check(c.Pipeline.MaxAttempts > 0, "STAGE_MAX_ATTEMPTS must be positive")
	check(c.Pipeline.Concurrency > 0, "WORKER_CONCURRENCY must be positive")
	check(c.Storage.MaxTopicLength > 0 && c.Storage.MaxOtherLength > 0 && c.Storage.MaxTutorLength > 0,
		"MAX_*_LENGTH values must be positive")
	check(oneOf(c.Storage.Driver, StorePostgres, StoreMemory), "STORE_DRIVER: unexpected driver %q", c.Storage.Driver)
	check(oneOf(c.Pipeline.GuardDriver, GuardMemory, GuardRedis), "GUARD_DRIVER: unexpected driver %q", c.Pipeline.GuardDriver)
	check(oneOf(c.Pipeline.UploadTarget, UploadYouTube, UploadS3, UploadNone), "UPLOAD_TARGET: unexpected target %q", c.Pipeline.UploadTarget)
	if _, err := c.Storage.Location(); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	if c.Pipeline.UploadTarget == UploadYouTube {
		check(c.YouTube.ClientID != "" && c.YouTube.ClientSecret != "",
			"YOUTUBE_CLIENT_ID and YOUTUBE_CLIENT_SECRET are required when UPLOAD_TARGET=youtube")
	}
	if c.IsProd() {
		check(c.JWT.Secret != "change-me-in-production", "JWT_SECRET must be set in production")
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or bare milliseconds ("90000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
