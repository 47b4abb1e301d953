package server

import (
	"resumatch/internal/config"
	resumatchErrors "resumatch/internal/errors"
	"resumatch/internal/pipeline"
	"resumatch/internal/types"
)

// MatchRequest is the request body for the match endpoints. The job
// requirement is inlined so a caller posts exactly what the scorer consumes.
type MatchRequest struct {
	Job types.JobRequirement `json:"job"`
}

// InvalidateRequest identifies one cached match result to drop.
type InvalidateRequest struct {
	ResumeFingerprint string `json:"resumeFingerprint"`
	JobFingerprint    string `json:"jobFingerprint"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	// Matching pipeline shared by all handlers
	Pipeline *pipeline.Pipeline

	// API Authentication
	APIKeys map[string]bool

	// Request size limit
	MaxRequestSize int64

	// Rate limiting
	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	// Logger
	Logger *resumatchErrors.Logger
}

// NewServer creates a new Server instance from the application configuration
func NewServer(appCfg *config.Config, version string, p *pipeline.Pipeline, logger *resumatchErrors.Logger) *Server {
	// Convert API keys slice to map for O(1) lookup
	apiKeyMap := make(map[string]bool)
	for _, key := range appCfg.Server.APIKeys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	var rateLimiter *RateLimiter
	if appCfg.Server.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(
			appCfg.Server.RateLimit.RequestsPerMinute,
			appCfg.Server.RateLimit.Burst,
			appCfg.Server.RateLimit.CleanupInterval,
			logger,
		)
	}

	return &Server{
		Host:           appCfg.Server.Host,
		Port:           appCfg.Server.Port,
		Version:        version,
		AppConfig:      appCfg,
		Pipeline:       p,
		APIKeys:        apiKeyMap,
		MaxRequestSize: appCfg.Server.MaxRequestSize,
		RateLimit:      &appCfg.Server.RateLimit,
		RateLimiter:    rateLimiter,
		Logger:         logger,
	}
}
