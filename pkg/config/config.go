package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// Billing modes accepted by BILLING_MODE
const (
	BillingModeMock   = "MOCK"
	BillingModeStripe = "STRIPE"
)

// DBConfig holds database configuration
type DBConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string. DATABASE_URL wins over the discrete settings.
func (c *DBConfig) GetDSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port          string
	Env           string
	PublicBaseURL string
}

// JWTConfig holds session signing configuration
type JWTConfig struct {
	SigningKey string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// SecurityConfig holds the operator secrets guarding tenant data
type SecurityConfig struct {
	MasterKey  string
	AdminKey   string
	BcryptCost int
}

// StripeConfig holds the platform-wide test credentials used by sandbox projects
type StripeConfig struct {
	TestSecretKey      string
	TestPublishableKey string
	TestWebhookSecret  string
}

// BillingConfig holds billing behaviour settings
type BillingConfig struct {
	Mode             string
	DefaultReturnURL string
	MaxWebhookBytes  int64
}

// RateLimitConfig holds gateway rate limiting settings
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
}

// RedisConfig holds the optional Redis backing for distributed rate limits
type RedisConfig struct {
	URL string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Path string
}

// Config holds all configuration
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	JWT       JWTConfig
	Log       LogConfig
	Security  SecurityConfig
	Stripe    StripeConfig
	Billing   BillingConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Metrics   MetricsConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env file is optional
	_ = godotenv.Load()

	port := getEnv("PORT", getEnv("SERVER_PORT", "4000"))

	config := &Config{
		Server: ServerConfig{
			Port:          port,
			Env:           getEnv("APP_ENV", "development"),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		},
		DB: DBConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "harmonia"),
			Password:        getEnv("DB_PASSWORD", "harmonia"),
			DBName:          getEnv("DB_NAME", "harmonia"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		JWT: JWTConfig{
			SigningKey: getEnv("HARMONIA_JWT_SECRET", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Security: SecurityConfig{
			MasterKey:  getEnv("HARMONIA_MASTER_KEY", ""),
			AdminKey:   getEnv("HARMONIA_ADMIN_KEY", ""),
			BcryptCost: getEnvAsInt("BCRYPT_COST", 10),
		},
		Stripe: StripeConfig{
			TestSecretKey:      getEnv("HARMONIA_PLATFORM_STRIPE_TEST_SECRET", ""),
			TestPublishableKey: getEnv("HARMONIA_PLATFORM_STRIPE_TEST_PUBLISHABLE", ""),
			TestWebhookSecret:  getEnv("HARMONIA_PLATFORM_STRIPE_WEBHOOK_SECRET", ""),
		},
		Billing: BillingConfig{
			Mode:             strings.ToUpper(getEnv("HARMONIA_BILLING_MODE", BillingModeMock)),
			DefaultReturnURL: getEnv("BILLING_DEFAULT_RETURN_URL", "http://localhost:3001/billing"),
			MaxWebhookBytes:  int64(getEnvAsInt("BILLING_MAX_WEBHOOK_BYTES", 65536)),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvAsInt("RATE_LIMIT_REQUESTS", 120),
			Window:            getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Metrics: MetricsConfig{
			Path: getEnv("METRICS_PATH", "/metrics"),
		},
	}

	return config, nil
}

// Validate checks the settings the service cannot run without.
// It is called once at boot so a misconfigured deployment never accepts traffic.
func (c *Config) Validate() error {
	var errs []error
	if c.Security.MasterKey == "" {
		errs = append(errs, errors.New("HARMONIA_MASTER_KEY is required"))
	}
	if c.JWT.SigningKey == "" {
		errs = append(errs, errors.New("HARMONIA_JWT_SECRET is required"))
	}
	if c.Billing.Mode != BillingModeMock && c.Billing.Mode != BillingModeStripe {
		errs = append(errs, fmt.Errorf("HARMONIA_BILLING_MODE must be %s or %s, got %q", BillingModeMock, BillingModeStripe, c.Billing.Mode))
	}
	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.Security.BcryptCost))
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimit.RequestsPerWindow))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimit.Window))
	}
	return errors.Join(errs...)
}

// MockBilling reports whether the operator forced the no-network billing path.
func (c *Config) MockBilling() bool {
	return c.Billing.Mode != BillingModeStripe
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("server_port", c.Server.Port),
		zap.String("public_base_url", c.Server.PublicBaseURL),
		zap.String("db_host", c.DB.Host),
		zap.String("db_name", c.DB.DBName),
		zap.Bool("db_url_set", c.DB.URL != ""),
		zap.String("billing_mode", c.Billing.Mode),
		zap.Bool("admin_key_set", c.Security.AdminKey != ""),
		zap.Bool("platform_stripe_set", c.Stripe.TestSecretKey != ""),
		zap.Bool("redis_set", c.Redis.URL != ""),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
