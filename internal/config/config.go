// Package config reads process settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
)

type Config struct {
	Port     string
	LogLevel string

	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	ParamPrefix   string

	ModelTimeout     time.Duration
	MaxImageBytes    int
	MaxMessageLength int

	StoreBackend  string
	StateTable    string
	RedisAddr     string
	RedisPassword string
	ImageBucket   string

	DosageTablePath    string
	CORSAllowedOrigins []string
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		LLMProvider:   strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", ProviderOpenAI))),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		ParamPrefix:   strings.TrimSuffix(getEnv("PARAM_PREFIX", ""), "/"),

		ModelTimeout:     getEnvAsDuration("MODEL_TIMEOUT", 60*time.Second),
		MaxImageBytes:    getEnvAsInt("MAX_IMAGE_BYTES", 10<<20),
		MaxMessageLength: getEnvAsInt("MAX_MESSAGE_LENGTH", 2000),

		StoreBackend:  strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", BackendMemory))),
		StateTable:    getEnv("STATE_TABLE", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		ImageBucket:   getEnv("IMAGE_BUCKET", ""),

		DosageTablePath:    getEnv("DOSAGE_TABLE_PATH", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	case BackendDynamoDB:
		if c.StateTable == "" {
			return fmt.Errorf("config: STATE_TABLE is required for the %s backend", BackendDynamoDB)
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("config: MAX_IMAGE_BYTES must be positive")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("config: MAX_MESSAGE_LENGTH must be positive")
	}
	if c.ModelTimeout <= 0 {
		return fmt.Errorf("config: MODEL_TIMEOUT must be positive")
	}
	return nil
}

// APIKey returns the inline key for the selected provider.
func (c *Config) APIKey() string {
	if c.LLMProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

// TokenParameter is the SSM leaf holding the selected provider's key.
func (c *Config) TokenParameter() string {
	if c.LLMProvider == ProviderGemini {
		return "gemini-token"
	}
	return "open-ai-token"
}

func (c *Config) Model() string {
	if c.LLMProvider == ProviderGemini {
		return c.GeminiModel
	}
	return c.OpenAIModel
}

// MaxBodyBytes bounds request bodies. Base64 inflates by 4/3; the rest
// covers the data URL prefix and JSON framing.
func (c *Config) MaxBodyBytes() int64 {
	return int64(c.MaxImageBytes)*4/3 + 64<<10
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
