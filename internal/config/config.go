package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Capture  CaptureConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	WebDir       string // optional static mount for the bundled client; empty disables it
}

// RedisConfig holds result-cache configuration. An empty Addr disables the
// cache entirely.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig holds capture-log persistence configuration. An empty DSN
// disables persistence.
type DatabaseConfig struct {
	DSN string
}

// StorageConfig holds the disk sink configuration for captured originals. An
// empty Dir disables the sink.
type StorageConfig struct {
	Dir       string
	QueueSize int
}

// PipelineConfig holds the default transform's target output size
type PipelineConfig struct {
	TargetWidth  int
	TargetHeight int
}

// CaptureConfig holds capture controller settings used by embedding clients
type CaptureConfig struct {
	ServiceURL       string
	CountdownTicks   int
	TickIntervalMs   int
	SubmitTimeoutSec int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			WebDir:       getEnv("WEB_DIR", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			DSN: getEnv("DATABASE_DSN", ""),
		},
		Storage: StorageConfig{
			Dir:       getEnv("STORAGE_DIR", "captured_photos"),
			QueueSize: getEnvAsInt("STORAGE_QUEUE_SIZE", 16),
		},
		Pipeline: PipelineConfig{
			TargetWidth:  getEnvAsInt("PIPELINE_TARGET_WIDTH", 64),
			TargetHeight: getEnvAsInt("PIPELINE_TARGET_HEIGHT", 64),
		},
		Capture: CaptureConfig{
			ServiceURL:       getEnv("CAPTURE_SERVICE_URL", "http://localhost:8080"),
			CountdownTicks:   getEnvAsInt("CAPTURE_COUNTDOWN_TICKS", 3),
			TickIntervalMs:   getEnvAsInt("CAPTURE_TICK_INTERVAL_MS", 1000),
			SubmitTimeoutSec: getEnvAsInt("CAPTURE_SUBMIT_TIMEOUT_SEC", 15),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
