package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode      string // Set via flag, not env
	StoreDriver  string
	MockServices bool

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Identity tokens
	JwtSecret string
	JwtTTL    time.Duration

	// Collection credentials
	CredentialSecret string
	CredentialTTL    time.Duration

	// Reservation rules
	BulkThreshold      int
	ExclusivityWindow  time.Duration
	RequestTimeout     time.Duration
	SweepInterval      time.Duration
	SweepBatchSize     int
	ReconcileOnSweep   bool
	MaxRequestQuantity int

	// Server
	ApiPort        string
	ServiceApiPort string
	CorsOrigins    []string

	// Notifications
	NotifyChannel    string
	NotifyInboxSize  int
	NotifyInboxTTL   time.Duration
	NotifyLogPath    string
	KafkaBrokers     []string
	KafkaEventsTopic string

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	UploadURLTTL       time.Duration

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getDuration := func(key, defaultValue string) (time.Duration, error) {
		d, err := time.ParseDuration(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("invalid %s: must be positive", key)
		}
		return d, nil
	}

	getPositiveInt := func(key, defaultValue string) (int, error) {
		n, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		if n <= 0 {
			return 0, fmt.Errorf("invalid %s: must be positive", key)
		}
		return n, nil
	}

	cfg.StoreDriver = getEnv("STORE_DRIVER", StoreDriverMongo)
	switch cfg.StoreDriver {
	case StoreDriverMongo:
		cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
		if err != nil {
			return nil, err
		}
	case StoreDriverMemory:
		cfg.MongoURI = getEnv("MONGO_URI", "")
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q", cfg.StoreDriver)
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "saveserve")
	cfg.MockServices = getEnv("MOCK_SERVICES", "") == "true"

	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if cfg.JwtTTL, err = getDuration("JWT_TTL", "1h"); err != nil {
		return nil, err
	}
	cfg.CredentialSecret = getEnv("CREDENTIAL_SECRET", cfg.JwtSecret)
	if cfg.CredentialTTL, err = getDuration("CREDENTIAL_TTL", "12h"); err != nil {
		return nil, err
	}

	if cfg.BulkThreshold, err = getPositiveInt("BULK_THRESHOLD", "50"); err != nil {
		return nil, err
	}
	if cfg.ExclusivityWindow, err = getDuration("EXCLUSIVITY_WINDOW", "30m"); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", "2h"); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", "1m"); err != nil {
		return nil, err
	}
	if cfg.SweepBatchSize, err = getPositiveInt("SWEEP_BATCH_SIZE", "200"); err != nil {
		return nil, err
	}
	cfg.ReconcileOnSweep, err = strconv.ParseBool(getEnv("RECONCILE_ON_SWEEP", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_ON_SWEEP: %w", err)
	}
	if cfg.MaxRequestQuantity, err = getPositiveInt("MAX_REQUEST_QUANTITY", "10000"); err != nil {
		return nil, err
	}

	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.CorsOrigins = splitList(getEnv("CORS_ORIGINS", "*"))

	cfg.NotifyChannel = getEnv("NOTIFY_CHANNEL", "saveserve:events")
	if cfg.NotifyInboxSize, err = getPositiveInt("NOTIFY_INBOX_SIZE", "50"); err != nil {
		return nil, err
	}
	if cfg.NotifyInboxTTL, err = getDuration("NOTIFY_INBOX_TTL", "168h"); err != nil {
		return nil, err
	}
	cfg.NotifyLogPath = getEnv("NOTIFY_LOG_PATH", "")
	cfg.KafkaBrokers = splitList(getEnv("KAFKA_BROKERS", ""))
	cfg.KafkaEventsTopic = getEnv("KAFKA_EVENTS_TOPIC", "saveserve.booking-events")

	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	if cfg.UploadURLTTL, err = getDuration("UPLOAD_URL_TTL", "15m"); err != nil {
		return nil, err
	}

	if cfg.RateLimitSoftBucketSize, err = getPositiveInt("RATE_LIMIT_SOFT_BUCKET_SIZE", "5"); err != nil {
		return nil, err
	}
	if cfg.RateLimitSoftRefillRate, err = getPositiveInt("RATE_LIMIT_SOFT_REFILL_RATE", "1"); err != nil {
		return nil, err
	}
	if cfg.RateLimitHardBucketSize, err = getPositiveInt("RATE_LIMIT_HARD_BUCKET_SIZE", "40"); err != nil {
		return nil, err
	}
	if cfg.RateLimitHardRefillRate, err = getPositiveInt("RATE_LIMIT_HARD_REFILL_RATE", "20"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// S3Enabled reports whether listing photo uploads are configured.
func (c *Config) S3Enabled() bool {
	return c.AwsS3Bucket != "" && c.AwsRegion != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
