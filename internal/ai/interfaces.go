package ai

import "context"

// ExtractionPayload is the raw response of an extraction capability before
// validation. Dates arrive as strings and are parsed (and possibly dropped)
// during validation; Confidence carries per-field confidence in [0,1] keyed
// by the payload field name.
type ExtractionPayload struct {
	Name       string              `json:"name,omitempty"`
	Emails     []string            `json:"emails,omitempty"`
	Phones     []string            `json:"phones,omitempty"`
	Skills     []string            `json:"skills,omitempty"`
	Experience []ExperiencePayload `json:"experience,omitempty"`
	Education  []EducationPayload  `json:"education,omitempty"`
	Confidence map[string]float64  `json:"confidence,omitempty"`
}

// ExperiencePayload is one unvalidated work-experience entry.
type ExperiencePayload struct {
	Organization string `json:"organization,omitempty"`
	Title        string `json:"title,omitempty"`
	Start        string `json:"start,omitempty"` // "2006-01" or "2006-01-02"
	End          string `json:"end,omitempty"`   // empty for current position
	Description  string `json:"description,omitempty"`
}

// EducationPayload is one unvalidated education entry.
type EducationPayload struct {
	Institution string `json:"institution,omitempty"`
	Degree      string `json:"degree,omitempty"`
	Level       string `json:"level,omitempty"`
	Field       string `json:"field,omitempty"`
}

// Capability is the extraction boundary: one operation turning normalized
// résumé text into structured fields. Any backend can be substituted without
// touching pipeline or scoring logic. Invoke must fail with an extraction
// error carrying one of the TIMEOUT, CAPABILITY_UNAVAILABLE or
// MALFORMED_RESPONSE codes; retry policy is the caller's concern.
type Capability interface {
	Invoke(ctx context.Context, text string) (*ExtractionPayload, *TokenUsage, error)
	Version() string
	ModelInfo(ctx context.Context) *ModelInfo
	Close() error
}

// TokenUsage reports token consumption of one capability invocation. Local
// capabilities return nil.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// ModelInfo describes the extraction backend for health checks.
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}
