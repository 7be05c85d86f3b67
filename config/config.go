package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPHost string
	HTTPPort string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MySQLDSN     string
	MySQLMaxOpen int
	MySQLMaxIdle int
	MySQLMaxLife time.Duration

	EmailProvider string
	AWSRegion     string
	SourceEmail   string

	ProviderTimezone string
	QuotaDailyLimit  int

	ProbeURL      string
	ProbeInterval time.Duration

	DelayBetweenSends time.Duration
	ChunkSize         int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	AttemptTimeout    time.Duration

	SnapshotTTL time.Duration
	RunLockTTL  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		HTTPHost: getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MySQLDSN:     getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/campaigns?parseTime=true"),
		MySQLMaxOpen: getEnvInt("MYSQL_MAX_OPEN", 10),
		MySQLMaxIdle: getEnvInt("MYSQL_MAX_IDLE", 5),
		MySQLMaxLife: getEnvDuration("MYSQL_MAX_LIFE", 5*time.Minute),

		EmailProvider: getEnv("EMAIL_PROVIDER", "ses"),
		AWSRegion:     getEnv("AWS_REGION", "eu-west-1"),
		SourceEmail:   getEnv("SOURCE_EMAIL", ""),

		ProviderTimezone: getEnv("PROVIDER_TIMEZONE", "UTC"),
		QuotaDailyLimit:  getEnvInt("QUOTA_DAILY_LIMIT", 500),

		ProbeURL:      getEnv("PROBE_URL", "https://email.eu-west-1.amazonaws.com"),
		ProbeInterval: getEnvDuration("PROBE_INTERVAL", 10*time.Second),

		DelayBetweenSends: getEnvDuration("DELAY_BETWEEN_SENDS", time.Second),
		ChunkSize:         getEnvInt("CHUNK_SIZE", 0),
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay:    getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		AttemptTimeout:    getEnvDuration("ATTEMPT_TIMEOUT", 30*time.Second),

		SnapshotTTL: getEnvDuration("SNAPSHOT_TTL", 7*24*time.Hour),
		RunLockTTL:  getEnvDuration("RUN_LOCK_TTL", 10*time.Minute),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
