package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func defaultTestConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("failed to unmarshal defaults: %v", err)
	}
	cfg.applyFallbacks()
	return &cfg
}

func TestDefaultsAreValidWithLocalProvider(t *testing.T) {
	cfg := defaultTestConfig(t)
	// The gemini default requires an API key; the local provider does not.
	cfg.AI.Provider = "local"

	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration should validate: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := defaultTestConfig(t)

	if cfg.AI.Provider != "gemini" {
		t.Errorf("expected gemini provider default, got %s", cfg.AI.Provider)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("expected 1h cache TTL, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.MatchTTL != 30*time.Minute {
		t.Errorf("expected 30m match TTL, got %v", cfg.Cache.MatchTTL)
	}
	if cfg.Cache.MaxEntries != 1024 {
		t.Errorf("expected 1024 max entries, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Server.MaxRequestSize != 10*1024*1024 {
		t.Errorf("expected 10MiB request limit, got %d", cfg.Server.MaxRequestSize)
	}

	weightSum := cfg.Match.SkillsWeight + cfg.Match.ExperienceWeight + cfg.Match.EducationWeight
	if weightSum < 0.999 || weightSum > 1.001 {
		t.Errorf("default match weights must sum to 1, got %v", weightSum)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError string
	}{
		{
			name:        "gemini provider without api key",
			mutate:      func(c *Config) { c.AI.APIKey = "" },
			expectError: "API key",
		},
		{
			name: "unknown provider",
			mutate: func(c *Config) {
				c.AI.Provider = "claude"
			},
			expectError: "unsupported AI provider",
		},
		{
			name: "unknown cache backend",
			mutate: func(c *Config) {
				c.Cache.Backend = "memcached"
			},
			expectError: "unsupported cache backend",
		},
		{
			name: "redis backend without address",
			mutate: func(c *Config) {
				c.Cache.Backend = "redis"
				c.Cache.RedisAddr = ""
			},
			expectError: "redis address",
		},
		{
			name: "unknown storage backend",
			mutate: func(c *Config) {
				c.Storage.Backend = "postgres"
			},
			expectError: "unsupported storage backend",
		},
		{
			name: "match weights not summing to one",
			mutate: func(c *Config) {
				c.Match.SkillsWeight = 0.9
			},
			expectError: "sum to 1",
		},
		{
			name: "missing server port",
			mutate: func(c *Config) {
				c.Server.Port = ""
			},
			expectError: "server port",
		},
		{
			name: "invalid default format",
			mutate: func(c *Config) {
				c.App.DefaultFormat = "xml"
			},
			expectError: "invalid default format",
		},
		{
			name: "confidence threshold out of range",
			mutate: func(c *Config) {
				c.AI.ConfidenceThreshold = 1.5
			},
			expectError: "confidence threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultTestConfig(t)
			cfg.AI.APIKey = "test-key"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.expectError != "" && !strings.Contains(err.Error(), tt.expectError) {
				t.Errorf("expected error containing %q, got %q", tt.expectError, err.Error())
			}
		})
	}
}

func TestApplyFallbacksServerAPIKeys(t *testing.T) {
	t.Setenv("RESUMATCH_SERVER_APIKEYS", "key-a, key-b ,key-c")

	cfg := defaultTestConfig(t)

	if len(cfg.Server.APIKeys) != 3 {
		t.Fatalf("expected 3 API keys, got %d", len(cfg.Server.APIKeys))
	}
	if cfg.Server.APIKeys[1] != "key-b" {
		t.Errorf("expected trimmed key-b, got %q", cfg.Server.APIKeys[1])
	}
}

func TestApplyFallbacksGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "legacy-key")

	cfg := defaultTestConfig(t)

	if cfg.AI.APIKey != "legacy-key" {
		t.Errorf("expected legacy key fallback, got %q", cfg.AI.APIKey)
	}
}
