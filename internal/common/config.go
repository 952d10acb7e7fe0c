package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Archive ArchiveConfig
	LLM     LLMConfig
	Engine  EngineConfig
	Ingest  IngestConfig
	Export  ExportConfig
}

// ArchiveConfig holds run-archive database configuration
type ArchiveConfig struct {
	DSN             string // postgres://... or sqlite path (":memory:" allowed)
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// LLMConfig holds vision-inference provider configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
}

// EngineConfig holds the per-run limits of the extraction engine
type EngineConfig struct {
	MaxPages          int           // max pages selected for extraction
	PoolSize          int           // 0 = derive from page count
	RequestsPerMinute int           // rate-limiter window ceiling
	BudgetUSD         float64       // hard spend ceiling per run
	ClassifyTimeout   time.Duration // per-call, classification prompts are small
	ExtractTimeout    time.Duration // per-call, extraction prompts attach the page image
	RunDeadline       time.Duration // whole-document ceiling; 0 = none
	MaxAttempts       int           // bounded retries per call
	MinConfidence     float64       // classification threshold for selection
	RenderParallelism int           // page-image extraction concurrency
}

// IngestConfig holds inbox-watcher configuration
type IngestConfig struct {
	Roots    []string
	Debounce time.Duration
	Workers  int
}

// ExportConfig holds tabular-output configuration
type ExportConfig struct {
	OutDir string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			DSN:             getEnv("ARCHIVE_DSN", ""),
			MaxConns:        getEnvAsInt32("ARCHIVE_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("ARCHIVE_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("ARCHIVE_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("ARCHIVE_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("ARCHIVE_DIAL_TIMEOUT", 3*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
		},
		Engine: EngineConfig{
			MaxPages:          getEnvAsInt("ENGINE_MAX_PAGES", 8),
			PoolSize:          getEnvAsInt("ENGINE_POOL_SIZE", 0),
			RequestsPerMinute: getEnvAsInt("ENGINE_RPM", 30),
			BudgetUSD:         getEnvAsFloat64("ENGINE_BUDGET_USD", 2.00),
			ClassifyTimeout:   getEnvAsDuration("ENGINE_CLASSIFY_TIMEOUT", 25*time.Second),
			ExtractTimeout:    getEnvAsDuration("ENGINE_EXTRACT_TIMEOUT", 75*time.Second),
			RunDeadline:       getEnvAsDuration("ENGINE_RUN_DEADLINE", 20*time.Minute),
			MaxAttempts:       getEnvAsInt("ENGINE_MAX_ATTEMPTS", 3),
			MinConfidence:     getEnvAsFloat64("ENGINE_MIN_CONFIDENCE", 0.35),
			RenderParallelism: getEnvAsInt("RENDER_PARALLELISM", 4),
		},
		Ingest: IngestConfig{
			Roots:    splitNonEmpty(getEnv("INGEST_ROOTS", "")),
			Debounce: getEnvAsDuration("INGEST_DEBOUNCE", 2*time.Second),
			Workers:  getEnvAsInt("INGEST_WORKERS", 2),
		},
		Export: ExportConfig{
			OutDir: getEnv("EXPORT_OUT_DIR", "."),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Engine.MaxPages <= 0 {
		return NewAppError("CONFIG_ERROR", "ENGINE_MAX_PAGES must be positive", ErrInvalidInput)
	}
	if c.Engine.RequestsPerMinute <= 0 {
		return NewAppError("CONFIG_ERROR", "ENGINE_RPM must be positive", ErrInvalidInput)
	}
	if c.Engine.BudgetUSD <= 0 {
		return NewAppError("CONFIG_ERROR", "ENGINE_BUDGET_USD must be positive", ErrInvalidInput)
	}
	return nil
}
