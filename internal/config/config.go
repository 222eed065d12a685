package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Identity  IdentityConfig
	RateLimit RateLimitConfig
	Local     LocalStoreConfig
	Logging   LoggingConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	FrontendURL     string
	Environment     string
}

// DatabaseConfig contains backend store configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig contains session configuration
type AuthConfig struct {
	TokenSecret      string
	SessionTTL       time.Duration
	IdleTimeout      time.Duration
	IdlePollInterval time.Duration
}

// IdentityConfig contains identity provider configuration
type IdentityConfig struct {
	ClientID           string
	IntrospectEndpoint string
	IntrospectTimeout  time.Duration
}

// RateLimitConfig contains rate limiter configuration
type RateLimitConfig struct {
	SignInLimit   int
	SignInWindow  time.Duration
	CreateLimit   int
	CreateWindow  time.Duration
	PaymentLimit  int
	PaymentWindow time.Duration
	// FailOpen allows actions through when the backing store errors.
	// Deployments favoring strict throttling over availability set this
	// to false.
	FailOpen bool
	// Boundary token-bucket limits for the HTTP surface
	RequestsPerSecond float64
	Burst             int
}

// LocalStoreConfig contains client-local durable storage configuration
type LocalStoreConfig struct {
	Path            string
	CompactSchedule string // cron spec
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:5173"),
			Environment:     getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "involy"),
			User:            getEnv("DB_USER", "involy"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Auth: AuthConfig{
			TokenSecret:      getEnv("TOKEN_SECRET", "supersecretkey"),
			SessionTTL:       getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			IdleTimeout:      getEnvAsDuration("IDLE_TIMEOUT", 30*time.Minute),
			IdlePollInterval: getEnvAsDuration("IDLE_POLL_INTERVAL", 60*time.Second),
		},
		Identity: IdentityConfig{
			ClientID:           getEnv("IDENTITY_CLIENT_ID", ""),
			IntrospectEndpoint: getEnv("IDENTITY_INTROSPECT_ENDPOINT", "https://oauth2.googleapis.com/tokeninfo"),
			IntrospectTimeout:  getEnvAsDuration("IDENTITY_INTROSPECT_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			SignInLimit:       getEnvAsInt("RATE_SIGNIN_LIMIT", 5),
			SignInWindow:      getEnvAsDuration("RATE_SIGNIN_WINDOW", time.Hour),
			CreateLimit:       getEnvAsInt("RATE_CREATE_LIMIT", 30),
			CreateWindow:      getEnvAsDuration("RATE_CREATE_WINDOW", time.Hour),
			PaymentLimit:      getEnvAsInt("RATE_PAYMENT_LIMIT", 3),
			PaymentWindow:     getEnvAsDuration("RATE_PAYMENT_WINDOW", time.Hour),
			FailOpen:          getEnvAsBool("RATE_FAIL_OPEN", true),
			RequestsPerSecond: getEnvAsFloat("RATE_HTTP_RPS", 100),
			Burst:             getEnvAsInt("RATE_HTTP_BURST", 200),
		},
		Local: LocalStoreConfig{
			Path:            getEnv("LOCAL_STORE_PATH", "./involy.db"),
			CompactSchedule: getEnv("LOCAL_STORE_COMPACT_SCHEDULE", "@every 1h"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.TokenSecret == "" || c.Auth.TokenSecret == "supersecretkey" {
		return fmt.Errorf("TOKEN_SECRET must be set and should not use default value in production")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Identity.ClientID == "" {
		return fmt.Errorf("IDENTITY_CLIENT_ID must be set")
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
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

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
