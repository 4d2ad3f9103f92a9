package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	JWT       JWTConfig
	Email     EmailConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	App       AppConfig
	Log       LogConfig
	Workflow  WorkflowConfig
	Policy    PolicyConfig
	Scheduler SchedulerConfig
	Vault     VaultConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string
	Port         string
	TimeoutRead  time.Duration
	TimeoutWrite time.Duration
	TimeoutIdle  time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string
}

// JWTConfig holds bearer token configuration
type JWTConfig struct {
	Secret     string // PEM encoded EC private key, or a shared secret for HS256
	Issuer     string
	Expiration time.Duration
}

// EmailConfig holds SMTP configuration for lifecycle notifications
type EmailConfig struct {
	Enabled          bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string
	EditorialAddress string // recipient of lifecycle and reminder mails
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Duration time.Duration
}

// AppConfig holds general application configuration
type AppConfig struct {
	Env     string
	Name    string
	Version string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// WorkflowConfig tunes the review lifecycle
type WorkflowConfig struct {
	EnableDrafts    bool // new submissions start in pending until finalized
	AutoCloseRounds bool // close a round when its last reviewer responds
	DefaultPageSize int
	MaxPageSize     int
}

// PolicyConfig points at an optional authorization table override
type PolicyConfig struct {
	File string
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	StaleRoundCron            string        // e.g. "0 8 * * *" (daily 8 AM)
	StaleRoundAfter           time.Duration // rounds open longer than this are stale
	EnableStaleRoundReminders bool
	ChainValidationCron       string // e.g. "0 2 * * 0" (Sunday 2 AM)
	EnableChainValidation     bool
}

// VaultConfig holds Vault-related configuration
type VaultConfig struct {
	Address      string
	Token        string
	TransitMount string
	KeyName      string
	Enabled      bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// godotenv doesn't override already-set variables, so order matters
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnv("SERVER_PORT", "8080"),
			TimeoutRead:  getDurationEnv("SERVER_TIMEOUT_READ", 15*time.Second),
			TimeoutWrite: getDurationEnv("SERVER_TIMEOUT_WRITE", 15*time.Second),
			TimeoutIdle:  getDurationEnv("SERVER_TIMEOUT_IDLE", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "review"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "manuscript_review"),
			SSLMode:         getEnv("DB_SSLMODE", "prefer"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     getBoolEnv("DB_AUTO_MIGRATE", true),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres)),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Issuer:     getEnv("JWT_ISSUER", "manuscript-review"),
			Expiration: getDurationEnv("JWT_EXPIRATION", 24*time.Hour),
		},
		Email: EmailConfig{
			Enabled:          getBoolEnv("EMAIL_ENABLED", false),
			SMTPHost:         getEnv("SMTP_HOST", ""),
			SMTPPort:         getIntEnv("SMTP_PORT", 587),
			SMTPUsername:     getEnv("SMTP_USERNAME", ""),
			SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:         getEnv("SMTP_FROM", "noreply@example.com"),
			EditorialAddress: getEnv("EDITORIAL_ADDRESS", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
			ExposedHeaders:   getSliceEnv("CORS_EXPOSED_HEADERS", []string{"X-Request-ID"}),
			AllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getIntEnv("CORS_MAX_AGE", 300),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getBoolEnv("RATE_LIMIT_ENABLED", true),
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 100),
			Duration: getDurationEnv("RATE_LIMIT_DURATION", 1*time.Minute),
		},
		App: AppConfig{
			Env:     getEnv("APP_ENV", "development"),
			Name:    getEnv("APP_NAME", "Manuscript Review"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Workflow: WorkflowConfig{
			EnableDrafts:    getBoolEnv("WORKFLOW_ENABLE_DRAFTS", false),
			AutoCloseRounds: getBoolEnv("WORKFLOW_AUTO_CLOSE_ROUNDS", false),
			DefaultPageSize: getIntEnv("WORKFLOW_DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:     getIntEnv("WORKFLOW_MAX_PAGE_SIZE", 100),
		},
		Policy: PolicyConfig{
			File: getEnv("POLICY_FILE", ""),
		},
		Scheduler: SchedulerConfig{
			StaleRoundCron:            getEnv("SCHEDULER_STALE_ROUND_CRON", "0 8 * * *"),
			StaleRoundAfter:           getDurationEnv("SCHEDULER_STALE_ROUND_AFTER", 21*24*time.Hour),
			EnableStaleRoundReminders: getBoolEnv("SCHEDULER_ENABLE_STALE_ROUND_REMINDERS", true),
			ChainValidationCron:       getEnv("SCHEDULER_CHAIN_VALIDATION_CRON", "0 2 * * 0"),
			EnableChainValidation:     getBoolEnv("SCHEDULER_ENABLE_CHAIN_VALIDATION", true),
		},
		Vault: VaultConfig{
			Address:      getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:        getEnv("VAULT_TOKEN", ""),
			TransitMount: getEnv("VAULT_TRANSIT_MOUNT", "transit"),
			KeyName:      getEnv("VAULT_COMMENT_KEY", "review-comments"),
			Enabled:      getBoolEnv("VAULT_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Storage.Driver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (expected %s or %s)", c.Storage.Driver, StoragePostgres, StorageMemory)
	}
	if c.Storage.Driver == StoragePostgres && c.Database.Password == "" && c.App.Env == "production" {
		return fmt.Errorf("DB_PASSWORD is required in production")
	}
	if c.Workflow.DefaultPageSize <= 0 || c.Workflow.MaxPageSize < c.Workflow.DefaultPageSize {
		return fmt.Errorf("invalid page sizes: default %d, max %d", c.Workflow.DefaultPageSize, c.Workflow.MaxPageSize)
	}
	if c.Email.Enabled && (c.Email.SMTPHost == "" || c.Email.EditorialAddress == "") {
		return fmt.Errorf("SMTP_HOST and EDITORIAL_ADDRESS are required when EMAIL_ENABLED is set")
	}
	if c.Vault.Enabled && c.Vault.Token == "" {
		return fmt.Errorf("VAULT_TOKEN is required when VAULT_ENABLED is set")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
