package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Reservation window and sweep schedule
	Reservation ReservationConfig

	// CORS configuration
	CORS CORSConfig

	// Redis backs the idempotency replay cache (optional)
	Redis RedisConfig

	// Kafka receives booking lifecycle events (optional)
	Kafka KafkaConfig

	// New Relic APM (optional)
	NewRelic NewRelicConfig

	// Security configuration
	Security SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // postgres, pgx or mysql
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// ReservationConfig holds seat hold configuration
type ReservationConfig struct {
	PaymentWindow        time.Duration
	Currency             string
	SweepSchedule        string // cron spec with seconds, empty disables the scheduled pass
	AutoCompleteSchedule string
	IdempotencyTTL       time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// KafkaConfig holds the booking event stream settings
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewRelicConfig holds APM settings
type NewRelicConfig struct {
	Enabled    bool
	AppName    string
	LicenseKey string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog     bool
	EnableAuditLog       bool
	AuditRetention       time.Duration
	AuditCleanupSchedule string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("DATABASE_DRIVER", "postgres"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			AutoMigrate:        getEnvAsBool("DATABASE_AUTO_MIGRATE", true),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", "sawaari-identity"),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Reservation: ReservationConfig{
			PaymentWindow:        time.Duration(getEnvAsInt("PAYMENT_WINDOW_SECONDS", 30)) * time.Second,
			Currency:             getEnv("CURRENCY", "INR"),
			SweepSchedule:        getEnv("SWEEP_SCHEDULE", "*/30 * * * * *"),
			AutoCompleteSchedule: getEnv("AUTO_COMPLETE_SCHEDULE", "0 5 0 * * *"),
			IdempotencyTTL:       time.Duration(getEnvAsInt("IDEMPOTENCY_TTL_SECONDS", 86400)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_BOOKING_TOPIC", "driveshare.bookings"),
		},
		NewRelic: NewRelicConfig{
			Enabled:    getEnvAsBool("NEW_RELIC_ENABLED", false),
			AppName:    getEnv("NEW_RELIC_APP_NAME", "driveshare-backend"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
		},
		Security: SecurityConfig{
			EnableRequestLog:     getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:       getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
			AuditRetention:       time.Duration(getEnvAsInt("AUDIT_RETENTION_DAYS", 90)) * 24 * time.Hour,
			AuditCleanupSchedule: getEnv("AUDIT_CLEANUP_SCHEDULE", "0 0 4 * * 0"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.Database.Driver {
	case "postgres", "pgx", "mysql":
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'postgres', 'pgx' or 'mysql')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Reservation.PaymentWindow <= 0 {
		return fmt.Errorf("PAYMENT_WINDOW_SECONDS must be positive")
	}

	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		return fmt.Errorf("NEW_RELIC_LICENSE_KEY is required when NEW_RELIC_ENABLED is set")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
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
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
