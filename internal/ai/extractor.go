package ai

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resumatch/internal/config"
	apperrors "resumatch/internal/errors"
	"resumatch/internal/textproc"
	"resumatch/internal/types"
)

// NewCapability builds the configured extraction backend.
func NewCapability(cfg *config.AIConfig, logger *apperrors.Logger) (Capability, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiCapability(cfg, logger)
	case "local":
		return NewLocalCapability(nil), nil
	default:
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig,
			fmt.Sprintf("unsupported AI provider: %s", cfg.Provider), nil)
	}
}

// Extractor turns normalized résumé text into a validated CandidateRecord.
// Transient capability failures are retried with exponential backoff; fields
// that fail validation or fall below the confidence threshold are dropped
// rather than failing the whole extraction.
type Extractor struct {
	capability Capability
	cfg        *config.AIConfig
	logger     *apperrors.Logger
	invokeHook InvokeHook
}

// InvokeHook observes each capability invocation, including retried attempts.
type InvokeHook func(ctx context.Context, duration time.Duration, usage *TokenUsage, err error)

// NewExtractor wraps a capability with the extraction policy.
func NewExtractor(capability Capability, cfg *config.AIConfig, logger *apperrors.Logger) *Extractor {
	return &Extractor{
		capability: capability,
		cfg:        cfg,
		logger:     logger,
	}
}

// Capability exposes the wrapped backend for health checks.
func (e *Extractor) Capability() Capability {
	return e.capability
}

// SetInvokeHook registers an invocation observer. Must be set before the
// extractor is shared across requests.
func (e *Extractor) SetInvokeHook(hook InvokeHook) {
	e.invokeHook = hook
}

// Extract invokes the capability under a bounded timeout and validates the
// payload into a CandidateRecord carrying provenance. A payload the backend
// could not structure degrades to an empty record instead of an error;
// exhausted transient failures surface with their extraction code.
func (e *Extractor) Extract(ctx context.Context, text string, source types.Fingerprint) (*types.CandidateRecord, *TokenUsage, error) {
	tracer := otel.Tracer("resumatch.ai")
	ctx, span := tracer.Start(ctx, "extractor.extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("extractor.version", e.capability.Version()),
		attribute.Int("input.text_length", len(text)),
	)

	payload, usage, err := e.invokeWithRetry(ctx, text)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeMalformedResponse) {
			// Schema violations do not self-heal; degrade to an empty
			// record so matching can still proceed.
			e.logger.LogError(err, "capability payload unusable, producing empty record")
			span.SetAttributes(attribute.Bool("degraded", true))
			return e.emptyRecord(source), usage, nil
		}
		span.RecordError(err)
		return nil, usage, err
	}

	record := e.buildRecord(payload, source)
	span.SetAttributes(
		attribute.Int("output.skills", len(record.Skills)),
		attribute.Int("output.experience_entries", len(record.Experience)),
	)
	return record, usage, nil
}

// retryBaseDelay seeds the exponential backoff. Tests shorten it.
var retryBaseDelay = time.Second

// invokeWithRetry runs the capability with exponential backoff and jitter.
// Only TIMEOUT and CAPABILITY_UNAVAILABLE are retried.
func (e *Extractor) invokeWithRetry(ctx context.Context, text string) (*ExtractionPayload, *TokenUsage, error) {
	var lastErr error
	var lastUsage *TokenUsage

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			e.logger.Warn("Retrying extraction",
				"attempt", attempt,
				"max_retries", e.cfg.MaxRetries,
				"error", lastErr.Error())

			// Exponential backoff with jitter to prevent thundering herd
			baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * retryBaseDelay
			jitterMax := big.NewInt(int64(float64(baseDelay) * 0.1))
			jitterBig, _ := rand.Int(rand.Reader, jitterMax)
			backoff := min(baseDelay+time.Duration(jitterBig.Int64()), 30*time.Second)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, lastUsage, ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		start := time.Now()
		payload, usage, err := e.capability.Invoke(attemptCtx, text)
		cancel()
		if e.invokeHook != nil {
			e.invokeHook(ctx, time.Since(start), usage, err)
		}
		if usage != nil {
			lastUsage = usage
		}
		if err == nil {
			if attempt > 0 {
				e.logger.Info("Extraction succeeded after retry",
					"successful_attempt", attempt+1)
			}
			return payload, lastUsage, nil
		}

		lastErr = err
		if !apperrors.IsRetryable(err) {
			break
		}
	}

	return nil, lastUsage, lastErr
}

func (e *Extractor) emptyRecord(source types.Fingerprint) *types.CandidateRecord {
	return &types.CandidateRecord{
		Provenance: types.Provenance{
			SourceFingerprint: source,
			ExtractedAt:       time.Now().UTC(),
			ExtractorVersion:  e.capability.Version(),
		},
	}
}

// buildRecord validates and normalizes the raw payload. Invalid fields are
// dropped, low-confidence fields are omitted, and skills are deduplicated
// case and diacritic insensitively.
func (e *Extractor) buildRecord(payload *ExtractionPayload, source types.Fingerprint) *types.CandidateRecord {
	record := e.emptyRecord(source)

	if e.fieldConfident(payload, "name") && payload.Name != "" {
		record.Name = payload.Name
	}

	if e.fieldConfident(payload, "emails") {
		for _, email := range payload.Emails {
			if validEmail(email) {
				record.Contacts = append(record.Contacts, types.ContactChannel{Kind: "email", Value: email})
			} else {
				e.logger.Debug("Dropping malformed email from extraction", "value", email)
			}
		}
	}
	if e.fieldConfident(payload, "phones") {
		for _, phone := range payload.Phones {
			if validPhone(phone) {
				record.Contacts = append(record.Contacts, types.ContactChannel{Kind: "phone", Value: phone})
			} else {
				e.logger.Debug("Dropping malformed phone from extraction", "value", phone)
			}
		}
	}

	if e.fieldConfident(payload, "skills") {
		record.Skills = dedupeSkills(payload.Skills)
	}

	if e.fieldConfident(payload, "experience") {
		for _, entry := range payload.Experience {
			validated, ok := validateExperience(entry)
			if !ok {
				e.logger.Debug("Dropping unusable experience entry",
					"organization", entry.Organization, "start", entry.Start)
				continue
			}
			record.Experience = append(record.Experience, validated)
		}
	}

	if e.fieldConfident(payload, "education") {
		for _, entry := range payload.Education {
			validated, ok := validateEducation(entry)
			if !ok {
				continue
			}
			record.Education = append(record.Education, validated)
		}
	}

	return record
}

// fieldConfident reports whether a field clears the confidence threshold.
// Fields without a reported confidence are kept.
func (e *Extractor) fieldConfident(payload *ExtractionPayload, field string) bool {
	confidence, ok := payload.Confidence[field]
	if !ok {
		return true
	}
	if confidence < e.cfg.ConfidenceThreshold {
		e.logger.Debug("Omitting low-confidence field",
			"field", field,
			"confidence", confidence,
			"threshold", e.cfg.ConfidenceThreshold)
		return false
	}
	return true
}

var strictEmailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

func validEmail(email string) bool {
	return strictEmailPattern.MatchString(email)
}

func validPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

// dedupeSkills normalizes skill tokens and removes duplicates. The result is
// sorted so records are reproducible regardless of payload order.
func dedupeSkills(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	var out []string
	for _, skill := range skills {
		normalized := textproc.NormalizeSkill(skill)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	sort.Strings(out)
	return out
}

// dateLayouts are accepted in order; extraction backends are prompted for
// the first two.
var dateLayouts = []string{"2006-01-02", "2006-01", "2006"}

func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// validateExperience parses dates and drops entries that carry no usable
// information. A malformed date drops just that date, not the entry.
func validateExperience(entry ExperiencePayload) (types.ExperienceEntry, bool) {
	validated := types.ExperienceEntry{
		Organization: entry.Organization,
		Title:        entry.Title,
		Description:  entry.Description,
	}

	if start, ok := parseDate(entry.Start); ok {
		validated.Start = start
	}
	if end, ok := parseDate(entry.End); ok {
		validated.End = end
	}

	if validated.Organization == "" && validated.Title == "" && validated.Start.IsZero() {
		return types.ExperienceEntry{}, false
	}
	return validated, true
}

// validateEducation keeps entries with at least a recognized level, a degree
// or an institution. Unknown level strings are cleared, not fatal.
func validateEducation(entry EducationPayload) (types.EducationEntry, bool) {
	validated := types.EducationEntry{
		Institution: entry.Institution,
		Degree:      entry.Degree,
		Field:       entry.Field,
	}

	if types.EducationRank(entry.Level) > 0 {
		validated.Level = entry.Level
	}

	if validated.Institution == "" && validated.Degree == "" && validated.Level == "" {
		return types.EducationEntry{}, false
	}
	return validated, true
}
