package textproc

import (
	"regexp"
	"strings"
	"unicode"

	"resumatch/internal/errors"
)

// NormalizerConfig controls text cleanup behavior.
type NormalizerConfig struct {
	// MinFragmentLength drops lines at or below this many runes after
	// whitespace collapsing. Page numbers and stray bullet glyphs fall
	// under this.
	MinFragmentLength int
	// MinDocumentLength is the threshold below which the whole document is
	// rejected as empty input.
	MinDocumentLength int
	// BoundaryPatterns are regular expressions for page-artifact markers
	// ("Page 3 of 7", form-feed headers) removed before fragment filtering.
	BoundaryPatterns []string
}

// DefaultNormalizerConfig returns the normalizer defaults.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		MinFragmentLength: 5,
		MinDocumentLength: 20,
		BoundaryPatterns: []string{
			`(?i)^\s*page\s+\d+(\s+of\s+\d+)?\s*$`,
		},
	}
}

// Normalizer turns raw extracted text into a canonical string. The
// transformation is deterministic and idempotent: normalizing already
// normalized text is a no-op.
type Normalizer struct {
	cfg        NormalizerConfig
	boundaries []*regexp.Regexp
}

// NewNormalizer compiles the configured boundary patterns.
func NewNormalizer(cfg NormalizerConfig) (*Normalizer, error) {
	boundaries := make([]*regexp.Regexp, 0, len(cfg.BoundaryPatterns))
	for _, pattern := range cfg.BoundaryPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
				"invalid boundary pattern", err).WithContext("pattern", pattern)
		}
		boundaries = append(boundaries, re)
	}
	return &Normalizer{cfg: cfg, boundaries: boundaries}, nil
}

// Normalize cleans raw text into canonical form. It returns an EMPTY_INPUT
// error when the result is empty or below the minimum document length;
// callers must not proceed to extraction on that condition.
func (n *Normalizer) Normalize(raw string) (string, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = stripControl(line)
		line = collapseSpaces(line)
		if n.isBoundary(line) {
			continue
		}
		if len([]rune(line)) <= n.cfg.MinFragmentLength {
			continue
		}
		lines = append(lines, line)
	}

	normalized := strings.Join(lines, "\n")
	if len([]rune(normalized)) < n.cfg.MinDocumentLength {
		return "", errors.NewValidationError(errors.ErrCodeEmptyInput,
			"document is empty after normalization", nil)
	}
	return normalized, nil
}

func (n *Normalizer) isBoundary(line string) bool {
	for _, re := range n.boundaries {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// stripControl removes non-printable control characters. Tabs become spaces
// so collapseSpaces can fold them.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		case r == '\uFFFD' || r == '\uFEFF':
			return -1
		}
		return r
	}, s)
}

// collapseSpaces folds runs of whitespace into single spaces and trims the ends.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeSkill canonicalizes a skill token for case and diacritic
// insensitive matching.
func NormalizeSkill(skill string) string {
	skill = strings.ToLower(strings.TrimSpace(skill))
	skill = strings.Map(func(r rune) rune {
		if folded, ok := diacriticFold[r]; ok {
			return folded
		}
		return r
	}, skill)
	return collapseSpaces(skill)
}

// diacriticFold covers the Latin-1 range seen in practice; skills are short
// ASCII-leaning tokens so a table beats pulling in a full transliteration pass.
var diacriticFold = map[rune]rune{
	'à': 'a', 'á': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a',
	'ç': 'c',
	'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
	'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i',
	'ñ': 'n',
	'ò': 'o', 'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u',
	'ý': 'y', 'ÿ': 'y',
}
