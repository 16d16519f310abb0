// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Shopify     ShopifyConfig
	AWS         AWSConfig
	Sync        SyncConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type ShopifyConfig struct {
	APIVersion         string
	RequestsPerSecond  float64
	Burst              int
	PageSize           int
	MaxRetries         int
	RequestTimeoutSecs int
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3ReportBucket  string
}

type SyncConfig struct {
	QueueSize           int
	Workers             int
	MatchThreshold      float64
	ProgressTTLSecs     int
	InventoryTolerance  int     // units of divergence before the scanner flags
	PriceTolerancePct   float64 // percent divergence before the scanner flags
	DefaultBatchSize    int
	CustomerSyncEnabled bool
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "mercury_sync"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24),
		},
		Shopify: ShopifyConfig{
			APIVersion:         getEnv("SHOPIFY_API_VERSION", "2024-01"),
			RequestsPerSecond:  getEnvAsFloat("SHOPIFY_REQUESTS_PER_SECOND", 2.0),
			Burst:              getEnvAsInt("SHOPIFY_BURST", 4),
			PageSize:           getEnvAsInt("SHOPIFY_PAGE_SIZE", 250),
			MaxRetries:         getEnvAsInt("SHOPIFY_MAX_RETRIES", 3),
			RequestTimeoutSecs: getEnvAsInt("SHOPIFY_REQUEST_TIMEOUT", 30),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3ReportBucket:  getEnv("AWS_S3_REPORT_BUCKET", "mercury-sync-reports"),
		},
		Sync: SyncConfig{
			QueueSize:           getEnvAsInt("SYNC_QUEUE_SIZE", 100),
			Workers:             getEnvAsInt("SYNC_WORKERS", 4),
			MatchThreshold:      getEnvAsFloat("SYNC_MATCH_THRESHOLD", 0.8),
			ProgressTTLSecs:     getEnvAsInt("SYNC_PROGRESS_TTL", 300),
			InventoryTolerance:  getEnvAsInt("SYNC_INVENTORY_TOLERANCE", 10),
			PriceTolerancePct:   getEnvAsFloat("SYNC_PRICE_TOLERANCE_PCT", 5.0),
			DefaultBatchSize:    getEnvAsInt("SYNC_DEFAULT_BATCH_SIZE", 50),
			CustomerSyncEnabled: getEnvAsBool("SYNC_CUSTOMERS_ENABLED", true),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Sync.Workers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1")
	}

	if c.Sync.MatchThreshold <= 0 || c.Sync.MatchThreshold > 1 {
		return fmt.Errorf("SYNC_MATCH_THRESHOLD must be in (0, 1]")
	}

	return nil
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
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
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
