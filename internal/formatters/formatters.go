package formatters

import (
	"encoding/json"
	"fmt"
	"strings"

	"resumatch/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "MatchResult", &MatchTextFormatter{})
	registry.RegisterFormatter("markdown", "MatchResult", &MatchMarkdownFormatter{})
	registry.RegisterFormatter("text", "CandidateRecord", &CandidateTextFormatter{})
	registry.RegisterFormatter("markdown", "CandidateRecord", &CandidateMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	// Try specific formatter first
	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		// Fall back to generic formatter
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.MatchResult, *types.MatchResult:
		return "MatchResult"
	case types.CandidateRecord, *types.CandidateRecord:
		return "CandidateRecord"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// criterionOrder fixes the display order of subscores.
var criterionOrder = []string{"skills", "experience", "education"}

func titleKind(kind string) string {
	if kind == "" {
		return kind
	}
	return strings.ToUpper(kind[:1]) + kind[1:]
}

func asMatchResult(data any) (*types.MatchResult, error) {
	switch v := data.(type) {
	case types.MatchResult:
		return &v, nil
	case *types.MatchResult:
		return v, nil
	default:
		return nil, fmt.Errorf("expected MatchResult, got %T", data)
	}
}

func asCandidateRecord(data any) (*types.CandidateRecord, error) {
	switch v := data.(type) {
	case types.CandidateRecord:
		return &v, nil
	case *types.CandidateRecord:
		return v, nil
	default:
		return nil, fmt.Errorf("expected CandidateRecord, got %T", data)
	}
}

// MatchTextFormatter handles text formatting for match results
type MatchTextFormatter struct{}

func (mtf *MatchTextFormatter) Format(data any) (string, error) {
	result, err := asMatchResult(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("=== MATCH RESULT ===\n\n")
	output.WriteString(fmt.Sprintf("Score: %.2f/100\n", result.Score))
	output.WriteString(fmt.Sprintf("Recommendation: %s\n\n", result.Recommendation))

	output.WriteString("=== SUBSCORES ===\n")
	for _, criterion := range criterionOrder {
		sub, ok := result.Subscores[criterion]
		if !ok {
			continue
		}
		output.WriteString(fmt.Sprintf("%-12s %6.2f  (weight %.2f, contributes %.2f)\n",
			criterion, sub.Score, sub.Weight, sub.Contribution))
	}
	output.WriteString("\n")

	if len(result.MatchedSkills) > 0 {
		output.WriteString("Matched Skills:\n")
		for _, skill := range result.MatchedSkills {
			output.WriteString(fmt.Sprintf("- %s\n", skill))
		}
		output.WriteString("\n")
	}
	if len(result.MissingSkills) > 0 {
		output.WriteString("Missing Skills:\n")
		for _, skill := range result.MissingSkills {
			output.WriteString(fmt.Sprintf("- %s\n", skill))
		}
		output.WriteString("\n")
	}

	if len(result.Feedback) > 0 {
		output.WriteString("=== FEEDBACK ===\n")
		for i, item := range result.Feedback {
			output.WriteString(fmt.Sprintf("%d. %s\n", i+1, item))
		}
	}

	return output.String(), nil
}

func (mtf *MatchTextFormatter) SupportedType() string {
	return "MatchResult"
}

// MatchMarkdownFormatter handles markdown formatting for match results
type MatchMarkdownFormatter struct{}

func (mmf *MatchMarkdownFormatter) Format(data any) (string, error) {
	result, err := asMatchResult(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("# Match Result\n\n")
	output.WriteString(fmt.Sprintf("**Score:** %.2f/100\n\n", result.Score))
	output.WriteString(fmt.Sprintf("**Recommendation:** %s\n\n", result.Recommendation))

	output.WriteString("## Subscores\n\n")
	output.WriteString("| Criterion | Score | Weight | Contribution |\n")
	output.WriteString("|-----------|-------|--------|-------------|\n")
	for _, criterion := range criterionOrder {
		sub, ok := result.Subscores[criterion]
		if !ok {
			continue
		}
		output.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %.2f |\n",
			criterion, sub.Score, sub.Weight, sub.Contribution))
	}
	output.WriteString("\n")

	if len(result.MatchedSkills) > 0 {
		output.WriteString("## Matched Skills\n\n")
		for _, skill := range result.MatchedSkills {
			output.WriteString(fmt.Sprintf("- %s\n", skill))
		}
		output.WriteString("\n")
	}
	if len(result.MissingSkills) > 0 {
		output.WriteString("## Missing Skills\n\n")
		for _, skill := range result.MissingSkills {
			output.WriteString(fmt.Sprintf("- %s\n", skill))
		}
		output.WriteString("\n")
	}

	if len(result.Feedback) > 0 {
		output.WriteString("## Feedback\n\n")
		for i, item := range result.Feedback {
			output.WriteString(fmt.Sprintf("%d. %s\n", i+1, item))
		}
	}

	return output.String(), nil
}

func (mmf *MatchMarkdownFormatter) SupportedType() string {
	return "MatchResult"
}

// CandidateTextFormatter handles text formatting for extracted records
type CandidateTextFormatter struct{}

func (ctf *CandidateTextFormatter) Format(data any) (string, error) {
	record, err := asCandidateRecord(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("=== CANDIDATE RECORD ===\n\n")
	if record.Name != "" {
		output.WriteString(fmt.Sprintf("Name: %s\n", record.Name))
	}
	for _, contact := range record.Contacts {
		output.WriteString(fmt.Sprintf("%s: %s\n", titleKind(contact.Kind), contact.Value))
	}
	output.WriteString("\n")

	if len(record.Skills) > 0 {
		output.WriteString("Skills:\n")
		for _, skill := range record.Skills {
			output.WriteString(fmt.Sprintf("- %s\n", skill))
		}
		output.WriteString("\n")
	}

	if len(record.Experience) > 0 {
		output.WriteString("Experience:\n")
		for _, entry := range record.Experience {
			output.WriteString(fmt.Sprintf("- %s", entry.Title))
			if entry.Organization != "" {
				output.WriteString(fmt.Sprintf(" at %s", entry.Organization))
			}
			if !entry.Start.IsZero() {
				output.WriteString(fmt.Sprintf(" (%s", entry.Start.Format("2006-01")))
				if entry.End.IsZero() {
					output.WriteString(" - present)")
				} else {
					output.WriteString(fmt.Sprintf(" - %s)", entry.End.Format("2006-01")))
				}
			}
			output.WriteString("\n")
		}
		output.WriteString("\n")
	}

	if len(record.Education) > 0 {
		output.WriteString("Education:\n")
		for _, entry := range record.Education {
			parts := []string{}
			if entry.Degree != "" {
				parts = append(parts, entry.Degree)
			}
			if entry.Field != "" {
				parts = append(parts, entry.Field)
			}
			if entry.Institution != "" {
				parts = append(parts, entry.Institution)
			}
			output.WriteString(fmt.Sprintf("- %s\n", strings.Join(parts, ", ")))
		}
		output.WriteString("\n")
	}

	output.WriteString(fmt.Sprintf("Extracted by %s at %s\n",
		record.Provenance.ExtractorVersion,
		record.Provenance.ExtractedAt.Format("2006-01-02 15:04:05 UTC")))

	return output.String(), nil
}

func (ctf *CandidateTextFormatter) SupportedType() string {
	return "CandidateRecord"
}

// CandidateMarkdownFormatter handles markdown formatting for extracted records
type CandidateMarkdownFormatter struct{}

func (cmf *CandidateMarkdownFormatter) Format(data any) (string, error) {
	record, err := asCandidateRecord(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("# Candidate Record\n\n")
	if record.Name != "" {
		output.WriteString(fmt.Sprintf("**Name:** %s\n\n", record.Name))
	}
	for _, contact := range record.Contacts {
		output.WriteString(fmt.Sprintf("**%s:** %s\n\n", titleKind(contact.Kind), contact.Value))
	}

	if len(record.Skills) > 0 {
		output.WriteString("## Skills\n\n")
		for _, skill := range record.Skills {
			output.WriteString(fmt.Sprintf("- %s\n", skill))
		}
		output.WriteString("\n")
	}

	if len(record.Experience) > 0 {
		output.WriteString("## Experience\n\n")
		for _, entry := range record.Experience {
			output.WriteString(fmt.Sprintf("- **%s**", entry.Title))
			if entry.Organization != "" {
				output.WriteString(fmt.Sprintf(" at %s", entry.Organization))
			}
			output.WriteString("\n")
		}
		output.WriteString("\n")
	}

	if len(record.Education) > 0 {
		output.WriteString("## Education\n\n")
		for _, entry := range record.Education {
			output.WriteString(fmt.Sprintf("- %s %s, %s\n", entry.Degree, entry.Field, entry.Institution))
		}
		output.WriteString("\n")
	}

	return output.String(), nil
}

func (cmf *CandidateMarkdownFormatter) SupportedType() string {
	return "CandidateRecord"
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
