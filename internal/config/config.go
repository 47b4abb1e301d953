package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	AI            AIConfig            `mapstructure:"ai"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Match         MatchConfig         `mapstructure:"match"`
	Normalizer    NormalizerConfig    `mapstructure:"normalizer"`
	Decoder       DecoderConfig       `mapstructure:"decoder"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Server        ServerConfig        `mapstructure:"server"`
	App           AppConfig           `mapstructure:"app"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AIConfig holds the extraction capability configuration
type AIConfig struct {
	Provider            string               `mapstructure:"provider"` // "gemini" or "local"
	Model               string               `mapstructure:"model"`
	APIKey              string               `mapstructure:"apiKey"`
	Timeout             time.Duration        `mapstructure:"timeout"`
	MaxRetries          int                  `mapstructure:"maxRetries"`
	Temperature         float32              `mapstructure:"temperature"`
	UseSystemPrompts    bool                 `mapstructure:"useSystemPrompts"`
	ConfidenceThreshold float64              `mapstructure:"confidenceThreshold"`
	CircuitBreaker      CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the capability
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // requests allowed in half-open state
	Interval         time.Duration `mapstructure:"interval"`         // statistical window in closed state
	Timeout          time.Duration `mapstructure:"timeout"`          // open -> half-open delay
	MinRequests      uint32        `mapstructure:"minRequests"`      // minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // failure ratio that trips the breaker
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // "memory" or "redis"
	RedisAddr     string        `mapstructure:"redisAddr"`
	RedisPassword string        `mapstructure:"redisPassword"`
	RedisDB       int           `mapstructure:"redisDB"`
	TTL           time.Duration `mapstructure:"ttl"`
	MatchTTL      time.Duration `mapstructure:"matchTTL"`
	MaxEntries    int           `mapstructure:"maxEntries"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

// MatchConfig holds scoring configuration
type MatchConfig struct {
	SkillsWeight         float64 `mapstructure:"skillsWeight"`
	ExperienceWeight     float64 `mapstructure:"experienceWeight"`
	EducationWeight      float64 `mapstructure:"educationWeight"`
	PartialCredit        float64 `mapstructure:"partialCredit"`
	PresenceThreshold    float64 `mapstructure:"presenceThreshold"`
	EducationStepPenalty float64 `mapstructure:"educationStepPenalty"`
	SynonymFile          string  `mapstructure:"synonymFile"`
	WatchSynonymFile     bool    `mapstructure:"watchSynonymFile"`
}

// NormalizerConfig holds text normalization configuration
type NormalizerConfig struct {
	MinFragmentLength int      `mapstructure:"minFragmentLength"`
	MinDocumentLength int      `mapstructure:"minDocumentLength"`
	BoundaryPatterns  []string `mapstructure:"boundaryPatterns"`
}

// DecoderConfig holds PDF decoder configuration
type DecoderConfig struct {
	TikaURL     string        `mapstructure:"tikaURL"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFileSize int64         `mapstructure:"maxFileSize"`
}

// StorageConfig holds résumé store configuration
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "sqlite" or "memory"
	DataDir string `mapstructure:"dataDir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string          `mapstructure:"host"`
	Port            string          `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration   `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdownTimeout"`
	MaxRequestSize  int64           `mapstructure:"maxRequestSize"`
	APIKeys         []string        `mapstructure:"apiKeys"`
	RateLimit       RateLimitConfig `mapstructure:"rateLimit"`
	TLS             TLSConfig       `mapstructure:"tls"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerMinute int           `mapstructure:"requestsPerMinute"`
	Burst             int           `mapstructure:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanupInterval"`
	ByAPIKey          bool          `mapstructure:"byApiKey"` // limit per API key instead of per IP
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel         string   `mapstructure:"logLevel"`
	DefaultFormat    string   `mapstructure:"defaultFormat"`
	SupportedFormats []string `mapstructure:"supportedFormats"`
}

// VaultConfig holds HashiCorp Vault configuration for secret loading
type VaultConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Address     string `mapstructure:"address"`
	Token       string `mapstructure:"token"`
	TokenFile   string `mapstructure:"tokenFile"`
	SecretsPath string `mapstructure:"secretsPath"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled         bool             `mapstructure:"enabled"`
	ServiceName     string           `mapstructure:"serviceName"`
	ServiceVersion  string           `mapstructure:"serviceVersion"`
	ServiceInstance string           `mapstructure:"serviceInstance"`
	Environment     string           `mapstructure:"environment"`
	ConsoleOutput   bool             `mapstructure:"consoleOutput"`
	Tracing         TracingConfig    `mapstructure:"tracing"`
	Metrics         MetricsConfig    `mapstructure:"metrics"`
	Prometheus      PrometheusConfig `mapstructure:"prometheus"`
	OTLP            OTLPConfig       `mapstructure:"otlp"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	SampleRate float64 `mapstructure:"sampleRate"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// PrometheusConfig holds Prometheus exporter configuration
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

// GlobalConfig is the process-wide configuration instance set by LoadConfig
var GlobalConfig *Config

// LoadConfig loads configuration from environment variables and a config file
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RESUMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/resumatch/")
	v.AddConfigPath("$HOME/.resumatch")
	v.AddConfigPath(".")

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		configFileUsed = v.ConfigFileUsed()
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyFallbacks()

	if configFileUsed != "" {
		log.Printf("[CONFIG] Loaded config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] No config file found, using defaults and environment variables")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	GlobalConfig = &config
	return &config, nil
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Extraction capability
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.maxRetries", 3)
	v.SetDefault("ai.temperature", 0.0)
	v.SetDefault("ai.useSystemPrompts", true)
	v.SetDefault("ai.confidenceThreshold", 0.5)
	v.SetDefault("ai.circuitBreaker.enabled", true)
	v.SetDefault("ai.circuitBreaker.maxRequests", 3)
	v.SetDefault("ai.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("ai.circuitBreaker.timeout", 30*time.Second)
	v.SetDefault("ai.circuitBreaker.minRequests", 5)
	v.SetDefault("ai.circuitBreaker.failureThreshold", 0.6)

	// Result cache
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redisAddr", "localhost:6379")
	v.SetDefault("cache.redisDB", 0)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.matchTTL", 30*time.Minute)
	v.SetDefault("cache.maxEntries", 1024)
	v.SetDefault("cache.sweepInterval", 5*time.Minute)

	// Scoring
	v.SetDefault("match.skillsWeight", 0.5)
	v.SetDefault("match.experienceWeight", 0.3)
	v.SetDefault("match.educationWeight", 0.2)
	v.SetDefault("match.partialCredit", 0.5)
	v.SetDefault("match.presenceThreshold", 0.5)
	v.SetDefault("match.educationStepPenalty", 25.0)
	v.SetDefault("match.watchSynonymFile", false)

	// Text normalization
	v.SetDefault("normalizer.minFragmentLength", 5)
	v.SetDefault("normalizer.minDocumentLength", 20)
	v.SetDefault("normalizer.boundaryPatterns", []string{
		`(?i)^\s*page\s+\d+(\s+of\s+\d+)?\s*$`,
	})

	// PDF decoding
	v.SetDefault("decoder.tikaURL", "http://localhost:9998")
	v.SetDefault("decoder.timeout", 30*time.Second)
	v.SetDefault("decoder.maxFileSize", int64(10*1024*1024))

	// Résumé storage
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.dataDir", "")

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 120*time.Second)
	v.SetDefault("server.shutdownTimeout", 30*time.Second)
	v.SetDefault("server.maxRequestSize", int64(10*1024*1024))
	v.SetDefault("server.rateLimit.enabled", true)
	v.SetDefault("server.rateLimit.requestsPerMinute", 60)
	v.SetDefault("server.rateLimit.burst", 10)
	v.SetDefault("server.rateLimit.cleanupInterval", 10*time.Minute)
	v.SetDefault("server.rateLimit.byApiKey", false)
	v.SetDefault("server.tls.enabled", false)

	// Application
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "json")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})

	// Vault
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.secretsPath", "secret/data/resumatch")

	// Observability
	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "resumatch")
	v.SetDefault("observability.serviceVersion", "1.0.0")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.tracing.enabled", true)
	v.SetDefault("observability.tracing.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.interval", 30*time.Second)
	v.SetDefault("observability.prometheus.enabled", false)
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.prometheus.path", "/metrics")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.insecure", false)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "gemini":
		// With Vault enabled the key arrives after load, via ApplyVaultSecrets.
		if c.AI.APIKey == "" && !c.Vault.Enabled {
			return fmt.Errorf("AI API key is required for the gemini provider (set RESUMATCH_AI_APIKEY)")
		}
	case "local":
	default:
		return fmt.Errorf("unsupported AI provider: %s", c.AI.Provider)
	}

	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI timeout must be positive")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("AI max retries must not be negative")
	}
	if c.AI.ConfidenceThreshold < 0 || c.AI.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1]")
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("redis address is required for the redis cache backend")
	}

	switch c.Storage.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}

	weightSum := c.Match.SkillsWeight + c.Match.ExperienceWeight + c.Match.EducationWeight
	if weightSum < 0.999 || weightSum > 1.001 {
		return fmt.Errorf("match weights must sum to 1, got %v", weightSum)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	validFormats := make(map[string]bool)
	for _, format := range c.App.SupportedFormats {
		validFormats[format] = true
	}
	if !validFormats[c.App.DefaultFormat] {
		return fmt.Errorf("invalid default format: %s", c.App.DefaultFormat)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("TLS requires both certFile and keyFile")
		}
		if _, err := os.Stat(c.Server.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not accessible: %w", err)
		}
		if _, err := os.Stat(c.Server.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not accessible: %w", err)
		}
	}

	return nil
}

// applyFallbacks applies environment variable fallbacks
func (c *Config) applyFallbacks() {
	// GEMINI_API_KEY is honored for compatibility with the vendor tooling.
	if c.AI.APIKey == "" {
		c.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if len(c.Server.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv("RESUMATCH_SERVER_APIKEYS"); apiKeysEnv != "" {
			c.Server.APIKeys = strings.Split(apiKeysEnv, ",")
			for i, key := range c.Server.APIKeys {
				c.Server.APIKeys[i] = strings.TrimSpace(key)
			}
		}
	}

	if c.Observability.ServiceInstance == "" {
		if hostname, err := os.Hostname(); err == nil {
			c.Observability.ServiceInstance = fmt.Sprintf("%s-%s", c.Observability.ServiceName, hostname)
		} else {
			c.Observability.ServiceInstance = fmt.Sprintf("%s-1", c.Observability.ServiceName)
		}
	}

	if c.App.LogLevel == "debug" && !c.Observability.ConsoleOutput {
		c.Observability.ConsoleOutput = true
	}
}
