package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "LLM_PROVIDER", "STORE_BACKEND", "MODEL_TIMEOUT", "MAX_IMAGE_BYTES", "CORS_ALLOWED_ORIGINS", "PARAM_PREFIX"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, 60*time.Second, cfg.ModelTimeout)
	require.Equal(t, 10<<20, cfg.MaxImageBytes)
	require.Equal(t, 2000, cfg.MaxMessageLength)
	require.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	require.Equal(t, "gpt-4o", cfg.Model())
	require.Equal(t, "open-ai-token", cfg.TokenParameter())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", " Gemini ")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("MODEL_TIMEOUT", "5s")
	t.Setenv("STORE_BACKEND", "dynamodb")
	t.Setenv("STATE_TABLE", "rx-state")
	t.Setenv("PARAM_PREFIX", "/rx/prod/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ProviderGemini, cfg.LLMProvider)
	require.Equal(t, "g-key", cfg.APIKey())
	require.Equal(t, "gemini-token", cfg.TokenParameter())
	require.Equal(t, 5*time.Second, cfg.ModelTimeout)
	require.Equal(t, "/rx/prod", cfg.ParamPrefix)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MODEL_TIMEOUT", "soon")
	t.Setenv("MAX_MESSAGE_LENGTH", "lots")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 60*time.Second, cfg.ModelTimeout)
	require.Equal(t, 2000, cfg.MaxMessageLength)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown provider", func(c *Config) { c.LLMProvider = "llama" }, "LLM_PROVIDER"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "sqlite" }, "STORE_BACKEND"},
		{"dynamodb without table", func(c *Config) { c.StoreBackend = BackendDynamoDB }, "STATE_TABLE"},
		{"zero image limit", func(c *Config) { c.MaxImageBytes = 0 }, "MAX_IMAGE_BYTES"},
		{"negative timeout", func(c *Config) { c.ModelTimeout = -time.Second }, "MODEL_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				LLMProvider:      ProviderOpenAI,
				StoreBackend:     BackendMemory,
				MaxImageBytes:    1,
				MaxMessageLength: 1,
				ModelTimeout:     time.Second,
			}
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMaxBodyBytes_CoversEncodedImage(t *testing.T) {
	c := &Config{MaxImageBytes: 3 << 20}
	require.Greater(t, c.MaxBodyBytes(), int64(4<<20))
}
