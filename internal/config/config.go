package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Catalog     CatalogConfig
	Auth        AuthConfig
	Idempotency IdempotencyConfig
	Codes       CodeConfig
	Fraud       FraudConfig
	Secrets     SecretsConfig
	Logger      LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
}

// DatabaseConfig holds PostgreSQL configuration for the redemption ledger
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// RedisConfig holds cache store configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CatalogConfig holds voucher catalog oracle configuration
type CatalogConfig struct {
	BaseURL string
	// Timeout bounds every oracle call; an exceeded deadline fails the
	// redemption closed as transient.
	Timeout time.Duration
}

// AuthConfig holds token verification configuration
type AuthConfig struct {
	// TokenPublicKeySecret names the secret holding the PEM public key
	// used to verify scan tokens and provider bearer tokens.
	TokenPublicKeySecret string
	Issuer               string
	// ClockSkew is the leeway applied to exp/nbf during verification.
	ClockSkew time.Duration
}

// IdempotencyConfig holds idempotency gate configuration
type IdempotencyConfig struct {
	TTL time.Duration
}

// CodeConfig holds short-code issuance configuration
type CodeConfig struct {
	DynamicTTL time.Duration
	Length     int
}

// FraudConfig holds fraud detection configuration
type FraudConfig struct {
	// CaseThreshold is the risk score at or above which a case is opened.
	CaseThreshold int
	// VelocityWindow and VelocityLimit bound redemptions per customer
	// before the velocity flag fires.
	VelocityWindow time.Duration
	VelocityLimit  int
	// LocationRadiusKm is the distance from the provider's registered
	// location beyond which a redemption is flagged.
	LocationRadiusKm float64
	QueueSize        int
	Workers          int
}

// SecretsConfig selects the secret manager backend
type SecretsConfig struct {
	Backend      string // env, aws, vault
	AWSRegion    string
	VaultAddress string
	VaultToken   string
	VaultMount   string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "redemption_service"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Catalog: CatalogConfig{
			BaseURL: getEnv("CATALOG_BASE_URL", "http://localhost:8090"),
			Timeout: getEnvAsDuration("CATALOG_TIMEOUT", 3*time.Second),
		},
		Auth: AuthConfig{
			TokenPublicKeySecret: getEnv("TOKEN_PUBLIC_KEY_SECRET", "redemption-service/token-public-key"),
			Issuer:               getEnv("TOKEN_ISSUER", "voucher-catalog"),
			ClockSkew:            getEnvAsDuration("TOKEN_CLOCK_SKEW", 30*time.Second),
		},
		Idempotency: IdempotencyConfig{
			TTL: getEnvAsDuration("IDEMPOTENCY_TTL", 10*time.Minute),
		},
		Codes: CodeConfig{
			DynamicTTL: getEnvAsDuration("CODE_DYNAMIC_TTL", 15*time.Minute),
			Length:     getEnvAsInt("CODE_LENGTH", 8),
		},
		Fraud: FraudConfig{
			CaseThreshold:    getEnvAsInt("FRAUD_CASE_THRESHOLD", 60),
			VelocityWindow:   getEnvAsDuration("FRAUD_VELOCITY_WINDOW", time.Hour),
			VelocityLimit:    getEnvAsInt("FRAUD_VELOCITY_LIMIT", 5),
			LocationRadiusKm: getEnvAsFloat("FRAUD_LOCATION_RADIUS_KM", 50),
			QueueSize:        getEnvAsInt("FRAUD_QUEUE_SIZE", 1024),
			Workers:          getEnvAsInt("FRAUD_WORKERS", 4),
		},
		Secrets: SecretsConfig{
			Backend:      getEnv("SECRETS_BACKEND", "env"),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			VaultAddress: getEnv("VAULT_ADDR", ""),
			VaultToken:   getEnv("VAULT_TOKEN", ""),
			VaultMount:   getEnv("VAULT_MOUNT", "secret"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" && cfg.Secrets.Backend == "env" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Fraud.CaseThreshold < 0 || cfg.Fraud.CaseThreshold > 100 {
		return nil, fmt.Errorf("FRAUD_CASE_THRESHOLD must be within [0,100]")
	}

	return cfg, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
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
