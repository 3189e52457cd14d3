package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"docintel/internal/logger"
)

// Config carries everything the recognition pipeline needs from the
// environment. Google credentials themselves are read directly by the
// respective clients (GOOGLE_CREDENTIALS / GOOGLE_APPLICATION_CREDENTIALS).
type Config struct {
	// OpenAI Configuration
	OpenAIAPIKey string
	OpenAIModel  string

	// OCR provider selection: "vision" (default) or "documentai"
	OCRProvider string

	// Google Cloud Configuration (Document AI provider only)
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// Recognition cache. When RedisAddr is empty the in-memory store is used.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Adapter timeout applied per OCR/extraction call
	AdapterTimeout time.Duration

	// Image intake limits
	MaxUploadBytes  int64
	MaxImageEdgePx  int
	TargetImageSize int64

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OCRProvider:           getEnv("OCR_PROVIDER", "vision"),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID: getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		CacheTTL:              getEnvDuration("CACHE_TTL", 0),
		AdapterTimeout:        getEnvDuration("ADAPTER_TIMEOUT", 30*time.Second),
		MaxUploadBytes:        getEnvInt64("MAX_UPLOAD_BYTES", 5*1024*1024),
		MaxImageEdgePx:        getEnvInt("MAX_IMAGE_EDGE_PX", 2000),
		TargetImageSize:       getEnvInt64("TARGET_IMAGE_BYTES", 2*1024*1024),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	switch c.OCRProvider {
	case "vision":
	case "documentai":
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for OCR_PROVIDER=documentai")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for OCR_PROVIDER=documentai")
		}
	default:
		return fmt.Errorf("OCR_PROVIDER must be \"vision\" or \"documentai\", got %q", c.OCRProvider)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxImageEdgePx <= 0 {
		return fmt.Errorf("MAX_IMAGE_EDGE_PX must be positive")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
