package textproc

import (
	"errors"
	"strings"
	"testing"

	apperrors "resumatch/internal/errors"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(DefaultNormalizerConfig())
	if err != nil {
		t.Fatalf("unexpected error creating normalizer: %v", err)
	}
	return n
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses repeated whitespace",
			input:    "Senior   Backend\t\tEngineer at Acme Corporation",
			expected: "Senior Backend Engineer at Acme Corporation",
		},
		{
			name:     "unifies line break conventions",
			input:    "Backend Engineer at Acme\r\nSkills: Python and SQL\rEducation: BSc",
			expected: "Backend Engineer at Acme\nSkills: Python and SQL\nEducation: BSc",
		},
		{
			name:     "strips control characters",
			input:    "Backend\x00 Engineer\x1b at Acme Corporation",
			expected: "Backend Engineer at Acme Corporation",
		},
		{
			name:     "drops short fragments",
			input:    "Senior Backend Engineer at Acme\n• 3\nSkills: Python, SQL, Kubernetes",
			expected: "Senior Backend Engineer at Acme\nSkills: Python, SQL, Kubernetes",
		},
		{
			name:     "removes page boundary markers",
			input:    "Senior Backend Engineer at Acme\nPage 2 of 3\nSkills: Python, SQL, Kubernetes",
			expected: "Senior Backend Engineer at Acme\nSkills: Python, SQL, Kubernetes",
		},
	}

	n := newTestNormalizer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := newTestNormalizer(t)
	input := "Senior   Backend Engineer\r\nPage 1 of 2\n\n5 years at Acme as Backend Engineer\nSkills:  Python,   SQL"

	once, err := n.Normalize(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := n.Normalize(once)
	if err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}
	if once != twice {
		t.Errorf("normalization not idempotent:\nfirst:  %q\nsecond: %q", once, twice)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty string", input: ""},
		{name: "whitespace only", input: "   \n\t  \r\n  "},
		{name: "below minimum length", input: "short text"},
		{name: "only short fragments", input: "a\nbb\nccc\n1\n2\n3"},
	}

	n := newTestNormalizer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.input)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !apperrors.HasCode(err, apperrors.ErrCodeEmptyInput) {
				t.Errorf("expected code %s, got %v", apperrors.ErrCodeEmptyInput, err)
			}
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				t.Errorf("expected AppError, got %T", err)
			}
		})
	}
}

func TestNewNormalizerInvalidPattern(t *testing.T) {
	cfg := DefaultNormalizerConfig()
	cfg.BoundaryPatterns = []string{"[unclosed"}

	_, err := NewNormalizer(cfg)
	if err == nil {
		t.Fatal("expected error for invalid pattern, got nil")
	}
}

func TestFingerprintStability(t *testing.T) {
	n := newTestNormalizer(t)

	raw1 := "Senior Backend Engineer at Acme\nSkills:   Python, SQL"
	raw2 := "Senior   Backend Engineer at Acme\r\nSkills: Python, SQL"

	norm1, err := n.Normalize(raw1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	norm2, err := n.Normalize(raw2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if norm1 != norm2 {
		t.Fatalf("expected identical normalized text, got %q vs %q", norm1, norm2)
	}
	if Fingerprint(norm1) != Fingerprint(norm2) {
		t.Error("identical normalized text produced different fingerprints")
	}

	distinct, err := n.Normalize("A completely different résumé about embedded firmware work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Fingerprint(norm1) == Fingerprint(distinct) {
		t.Error("distinct normalized text produced identical fingerprints")
	}
}

func TestFingerprintFormat(t *testing.T) {
	fp := Fingerprint("some normalized text")
	if len(fp) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(fp))
	}
	if strings.ToLower(string(fp)) != string(fp) {
		t.Error("expected lowercase hex digest")
	}
}

func TestNormalizeSkill(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Python", "python"},
		{"  Node.js ", "node.js"},
		{"C++", "c++"},
		{"Réseau  Informatique", "reseau informatique"},
		{"KUBERNETES", "kubernetes"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeSkill(tt.input); got != tt.expected {
				t.Errorf("NormalizeSkill(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}
