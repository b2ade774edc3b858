package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // OPERATING_TIMEZONE must resolve on minimal images

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Storage drivers
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis display cache configuration
	Redis RedisConfig

	// Kafka event publishing configuration
	Kafka KafkaConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig

	// Metrics configuration
	Metrics MetricsConfig

	// Booking engine policy
	Booking BookingPolicy
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string // development, staging, production
	LogLevel        string // debug, info, warn, error
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // postgres or memory
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// RedisConfig holds the availability cache configuration. An empty URL
// disables the cache.
type RedisConfig struct {
	URL             string
	AvailabilityTTL time.Duration
}

// KafkaConfig holds booking event publishing configuration. With no brokers
// events are only logged.
type KafkaConfig struct {
	Brokers      []string
	BookingTopic string
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
	Burst         int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// BookingPolicy holds the reservation engine's tunable rules. Every field can
// also be set from the [booking] table of BOOKING_POLICY_FILE.
type BookingPolicy struct {
	Timezone               string        `toml:"timezone"`
	PendingTTL             time.Duration `toml:"pending_ttl"`
	SeatLockTimeout        time.Duration `toml:"seat_lock_timeout"`
	SeatLockRetryBackoff   time.Duration `toml:"seat_lock_retry_backoff"`
	CancellationCutoff     time.Duration `toml:"cancellation_cutoff"`
	AgentWindowOverride    bool          `toml:"agent_window_override"`
	AgentCommissionPercent int64         `toml:"agent_commission_percent"`
	CancellationFeePercent int64         `toml:"cancellation_fee_percent"`
	MaxSeatsPerBooking     int           `toml:"max_seats_per_booking"`
	ExpirySweepSchedule    string        `toml:"expiry_sweep_schedule"`
	ExpiryBatchSize        int           `toml:"expiry_batch_size"`
}

// Location resolves the operating timezone
func (p BookingPolicy) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid OPERATING_TIMEZONE %q: %w", p.Timezone, err)
	}
	return loc, nil
}

type policyFile struct {
	Booking BookingPolicy `toml:"booking"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("STORAGE_DRIVER", StorageDriverPostgres),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			AutoMigrate:        getEnvAsBool("DATABASE_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL:             getEnv("REDIS_URL", ""),
			AvailabilityTTL: getEnvAsDuration("AVAILABILITY_CACHE_TTL", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvAsSlice("KAFKA_BROKERS", nil),
			BookingTopic: getEnv("KAFKA_BOOKING_TOPIC", "booking-events"),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			Burst:         getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Booking: BookingPolicy{
			Timezone:               getEnv("OPERATING_TIMEZONE", "Asia/Colombo"),
			PendingTTL:             getEnvAsDuration("PENDING_BOOKING_TTL", 15*time.Minute),
			SeatLockTimeout:        getEnvAsDuration("SEAT_LOCK_TIMEOUT", 5*time.Second),
			SeatLockRetryBackoff:   getEnvAsDuration("SEAT_LOCK_RETRY_BACKOFF", 150*time.Millisecond),
			CancellationCutoff:     getEnvAsDuration("CANCELLATION_CUTOFF", 2*time.Hour),
			AgentWindowOverride:    getEnvAsBool("AGENT_WINDOW_OVERRIDE", false),
			AgentCommissionPercent: int64(getEnvAsInt("AGENT_COMMISSION_PERCENT", 10)),
			CancellationFeePercent: int64(getEnvAsInt("CANCELLATION_FEE_PERCENT", 0)),
			MaxSeatsPerBooking:     getEnvAsInt("MAX_SEATS_PER_BOOKING", 10),
			ExpirySweepSchedule:    getEnv("EXPIRY_SWEEP_SCHEDULE", "@every 30s"),
			ExpiryBatchSize:        getEnvAsInt("EXPIRY_BATCH_SIZE", 100),
		},
	}

	if path := getEnv("BOOKING_POLICY_FILE", ""); path != "" {
		if err := config.loadPolicyFile(path); err != nil {
			return nil, err
		}
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadPolicyFile overlays the [booking] table of a TOML file onto the
// environment-derived policy. Keys missing from the file keep their values.
func (c *Config) loadPolicyFile(path string) error {
	file := policyFile{Booking: c.Booking}
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return fmt.Errorf("failed to read booking policy file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logrus.WithField("keys", undecoded).Warn("Ignoring unknown keys in booking policy file")
	}
	c.Booking = file.Booking
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case StorageDriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER: %s (must be 'postgres' or 'memory')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if _, err := c.Booking.Location(); err != nil {
		return err
	}

	if c.Booking.PendingTTL <= 0 {
		return fmt.Errorf("PENDING_BOOKING_TTL must be positive")
	}

	if c.Booking.SeatLockTimeout <= 0 {
		return fmt.Errorf("SEAT_LOCK_TIMEOUT must be positive")
	}

	if c.Booking.SeatLockRetryBackoff < 0 {
		return fmt.Errorf("SEAT_LOCK_RETRY_BACKOFF must not be negative")
	}

	if c.Booking.CancellationCutoff < 0 {
		return fmt.Errorf("CANCELLATION_CUTOFF must not be negative")
	}

	if c.Booking.AgentCommissionPercent < 0 || c.Booking.AgentCommissionPercent > 100 {
		return fmt.Errorf("AGENT_COMMISSION_PERCENT must be between 0 and 100")
	}

	if c.Booking.CancellationFeePercent < 0 || c.Booking.CancellationFeePercent > 100 {
		return fmt.Errorf("CANCELLATION_FEE_PERCENT must be between 0 and 100")
	}

	if c.Booking.MaxSeatsPerBooking <= 0 {
		return fmt.Errorf("MAX_SEATS_PER_BOOKING must be positive")
	}

	if c.Booking.ExpiryBatchSize <= 0 {
		return fmt.Errorf("EXPIRY_BATCH_SIZE must be positive")
	}

	if c.Kafka.BookingTopic == "" && len(c.Kafka.Brokers) > 0 {
		return fmt.Errorf("KAFKA_BOOKING_TOPIC is required when KAFKA_BROKERS is set")
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
		logrus.Warnf("Invalid integer value for %s, using default: %d", key, defaultValue)
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
		logrus.Warnf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("15m", "150ms")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logrus.Warnf("Invalid duration value for %s, using default: %s", key, defaultValue)
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
