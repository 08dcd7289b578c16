package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	ServerHost string

	// Presence liveness
	IdleTimeout  time.Duration
	ReapInterval time.Duration

	// Protocol
	SyncHistoryLimit int
	SendBufferSize   int

	// Edit archive (optional durable hand-off)
	ArchiveEnabled   bool
	ArchiveWorkers   int
	ArchiveQueueSize int

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	var errs []error

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		IdleTimeout:  getEnvDuration("IDLE_TIMEOUT", 5*time.Minute, &errs),
		ReapInterval: getEnvDuration("REAP_INTERVAL", 30*time.Second, &errs),

		SyncHistoryLimit: getEnvInt("SYNC_HISTORY_LIMIT", 50, &errs),
		SendBufferSize:   getEnvInt("SEND_BUFFER_SIZE", 256, &errs),

		ArchiveEnabled:   getEnvBool("ARCHIVE_ENABLED", false, &errs),
		ArchiveWorkers:   getEnvInt("ARCHIVE_WORKERS", 2, &errs),
		ArchiveQueueSize: getEnvInt("ARCHIVE_QUEUE_SIZE", 256, &errs),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "collabd"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	if len(errs) > 0 {
		return nil, errs[0]
	}

	if cfg.IdleTimeout <= 0 || cfg.ReapInterval <= 0 {
		return nil, fmt.Errorf("IDLE_TIMEOUT and REAP_INTERVAL must be positive")
	}
	if cfg.SendBufferSize <= 0 {
		return nil, fmt.Errorf("SEND_BUFFER_SIZE must be positive")
	}
	if cfg.SyncHistoryLimit <= 0 {
		return nil, fmt.Errorf("SYNC_HISTORY_LIMIT must be positive")
	}
	if cfg.ArchiveEnabled && cfg.ArchiveWorkers <= 0 {
		return nil, fmt.Errorf("ARCHIVE_WORKERS must be positive when ARCHIVE_ENABLED is set")
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return d
}
