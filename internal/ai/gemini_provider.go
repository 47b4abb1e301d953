package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"resumatch/internal/config"
	apperrors "resumatch/internal/errors"
)

// geminiVersion tags extracted records with the backend that produced them.
const geminiVersionPrefix = "gemini/"

// GeminiCapability implements Capability using Google Gemini with a JSON
// response schema, so the model output is parseable without prompt tricks.
type GeminiCapability struct {
	client         *genai.Client
	cfg            *config.AIConfig
	circuitBreaker *ExtractionCircuitBreaker
	modelBreaker   *ModelCircuitBreaker
	logger         *apperrors.Logger
}

var _ Capability = (*GeminiCapability)(nil)

// NewGeminiCapability creates a Gemini-backed extraction capability.
func NewGeminiCapability(cfg *config.AIConfig, logger *apperrors.Logger) (*GeminiCapability, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeMissingAPIKey,
			"Gemini API key is not configured", nil)
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, apperrors.NewExtractionError(apperrors.ErrCodeCapabilityUnavailable,
			"failed to create Gemini client", err)
	}

	return &GeminiCapability{
		client:         client,
		cfg:            cfg,
		circuitBreaker: NewExtractionCircuitBreaker(cfg, logger),
		modelBreaker:   NewModelCircuitBreaker(cfg, logger),
		logger:         logger,
	}, nil
}

// Version identifies the capability backend and model.
func (g *GeminiCapability) Version() string {
	return geminiVersionPrefix + g.cfg.Model
}

// Invoke sends normalized résumé text to Gemini and returns the structured
// payload. Failures are classified into the extraction error taxonomy:
// deadline and transport problems as TIMEOUT, quota and server errors as
// CAPABILITY_UNAVAILABLE, unparseable output as MALFORMED_RESPONSE.
func (g *GeminiCapability) Invoke(ctx context.Context, text string) (*ExtractionPayload, *TokenUsage, error) {
	tracer := otel.Tracer("resumatch.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini.extract")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.cfg.Model),
		attribute.Int("input.text_length", len(text)),
	)

	genaiConfig := g.buildExtractionSchema()
	if g.cfg.UseSystemPrompts {
		genaiConfig.SystemInstruction = genai.NewContentFromText(DefaultSystemPrompt, genai.RoleUser)
	}
	userPrompt := fmt.Sprintf(DefaultUserPrompt, text)

	result, err := g.circuitBreaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(userPrompt), genaiConfig)
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, nil, g.classifyError(err)
	}

	var payload ExtractionPayload
	if err := json.Unmarshal([]byte(result.Text()), &payload); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, nil, apperrors.NewExtractionError(apperrors.ErrCodeMalformedResponse,
			"capability returned unparseable payload", err)
	}

	tokenUsage := extractTokenUsage(result)
	if tokenUsage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", tokenUsage.InputTokens),
			attribute.Int64("ai.tokens.output", tokenUsage.OutputTokens),
			attribute.Int64("ai.tokens.total", tokenUsage.TotalTokens),
		)
	}
	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("output.skills", len(payload.Skills)),
		attribute.Int("output.experience_entries", len(payload.Experience)),
	)

	return &payload, tokenUsage, nil
}

// classifyError maps transport and API failures onto the extraction taxonomy.
func (g *GeminiCapability) classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewExtractionError(apperrors.ErrCodeTimeout,
			"capability invocation timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperrors.NewExtractionError(apperrors.ErrCodeTimeout,
				"capability invocation timed out", err)
		}
		return apperrors.NewExtractionError(apperrors.ErrCodeCapabilityUnavailable,
			"capability network failure", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return apperrors.NewExtractionError(apperrors.ErrCodeCapabilityUnavailable,
				fmt.Sprintf("capability returned HTTP %d", apiErr.Code), err)
		}
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewExtractionError(apperrors.ErrCodeCapabilityUnavailable,
			"capability circuit breaker open", err)
	}

	return apperrors.NewExtractionError(apperrors.ErrCodeMalformedResponse,
		"capability invocation failed", err)
}

// ModelInfo checks the readiness and availability of the configured model.
func (g *GeminiCapability) ModelInfo(ctx context.Context) *ModelInfo {
	info := &ModelInfo{
		Name:      g.cfg.Model,
		Available: false,
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	model, err := g.modelBreaker.ExecuteModel(func() (*genai.Model, error) {
		return g.client.Models.Get(checkCtx, g.cfg.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		info.Error = fmt.Sprintf("failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.cfg.Model,
			"error", err.Error())
		return info
	}

	info.Available = true
	info.DisplayName = model.DisplayName
	info.Version = model.Version
	return info
}

// CircuitBreakerStats reports breaker health for the health endpoint.
func (g *GeminiCapability) CircuitBreakerStats() map[string]any {
	return map[string]any{
		"extraction":      g.circuitBreaker.GetStats(),
		"overall_healthy": g.circuitBreaker.IsHealthy() && g.modelBreaker.IsModelHealthy(),
	}
}

func (g *GeminiCapability) Close() error {
	// The genai client holds no resources to release in single-shot usage.
	return nil
}

// buildExtractionSchema creates the response schema for extraction requests
func (g *GeminiCapability) buildExtractionSchema() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name": {Type: genai.TypeString},
				"emails": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
				"phones": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
				"skills": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
				"experience": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"organization": {Type: genai.TypeString},
							"title":        {Type: genai.TypeString},
							"start":        {Type: genai.TypeString},
							"end":          {Type: genai.TypeString},
							"description":  {Type: genai.TypeString},
						},
						Required: []string{"organization", "title"},
					},
				},
				"education": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"institution": {Type: genai.TypeString},
							"degree":      {Type: genai.TypeString},
							"level":       {Type: genai.TypeString},
							"field":       {Type: genai.TypeString},
						},
					},
				},
				"confidence": {
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":       {Type: genai.TypeNumber},
						"emails":     {Type: genai.TypeNumber},
						"phones":     {Type: genai.TypeNumber},
						"skills":     {Type: genai.TypeNumber},
						"experience": {Type: genai.TypeNumber},
						"education":  {Type: genai.TypeNumber},
					},
				},
			},
			Required: []string{"skills"},
		},
	}

	if g.cfg.Temperature > 0 {
		temp := g.cfg.Temperature
		cfg.Temperature = &temp
	}

	return cfg
}

// extractTokenUsage extracts token usage information from a Gemini response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
