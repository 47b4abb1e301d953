package ai

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
)

// LocalVersion tags records produced by the heuristic extractor.
const LocalVersion = "local/1"

// LocalCapability is a deterministic, offline extraction backend built from
// pattern matching. It trades recall for zero external dependencies and is
// the default for tests and air-gapped deployments.
type LocalCapability struct {
	skillTable map[string][]string
}

var _ Capability = (*LocalCapability)(nil)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
	// Year ranges such as "2018 - 2022", "2019–2021" or "2020 - present".
	yearRangePattern  = regexp.MustCompile(`(?i)\b(19|20)\d{2}\s*[-–—]\s*((19|20)\d{2}|present|current|now)\b`)
	yearsOfExpPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\+?\s*years?\b`)
)

// defaultSkillTable maps canonical skills to the token variants that signal
// them in résumé text.
var defaultSkillTable = map[string][]string{
	"python":           {"python"},
	"go":               {"golang", "go"},
	"java":             {"java"},
	"javascript":       {"javascript", "js", "node.js", "nodejs"},
	"typescript":       {"typescript"},
	"c++":              {"c++"},
	"c#":               {"c#"},
	"rust":             {"rust"},
	"sql":              {"sql", "postgresql", "postgres", "mysql", "sqlite"},
	"nosql":            {"mongodb", "cassandra", "dynamodb"},
	"redis":            {"redis"},
	"kafka":            {"kafka"},
	"docker":           {"docker"},
	"kubernetes":       {"kubernetes", "k8s"},
	"terraform":        {"terraform"},
	"aws":              {"aws", "amazon web services"},
	"gcp":              {"gcp", "google cloud"},
	"azure":            {"azure"},
	"linux":            {"linux"},
	"git":              {"git"},
	"react":            {"react"},
	"django":           {"django"},
	"flask":            {"flask"},
	"spring":           {"spring"},
	"grpc":             {"grpc"},
	"graphql":          {"graphql"},
	"machine learning": {"machine learning", "ml", "deep learning", "pytorch", "tensorflow"},
}

// educationKeywords maps level names to the phrases that signal them.
var educationKeywords = []struct {
	level    string
	keywords []string
}{
	{"doctorate", []string{"phd", "ph.d", "doctorate", "doctoral"}},
	{"master", []string{"master", "msc", "m.sc", "mba", "m.s."}},
	{"bachelor", []string{"bachelor", "bsc", "b.sc", "b.s.", "b.a.", "undergraduate degree"}},
	{"associate", []string{"associate degree", "associate's"}},
	{"high_school", []string{"high school", "secondary school"}},
}

// NewLocalCapability builds the heuristic extractor. A nil skill table uses
// the built-in one.
func NewLocalCapability(skillTable map[string][]string) *LocalCapability {
	if skillTable == nil {
		skillTable = defaultSkillTable
	}
	return &LocalCapability{skillTable: skillTable}
}

func (l *LocalCapability) Version() string {
	return LocalVersion
}

// Invoke extracts fields by pattern matching. It cannot fail in the
// transport sense; malformed fields simply stay empty.
func (l *LocalCapability) Invoke(_ context.Context, text string) (*ExtractionPayload, *TokenUsage, error) {
	lower := strings.ToLower(text)

	payload := &ExtractionPayload{
		Emails: dedupeStrings(emailPattern.FindAllString(text, -1)),
		Phones: dedupeStrings(findPhones(text)),
		Skills: l.findSkills(lower),
		Confidence: map[string]float64{
			"emails": 0.95,
			"phones": 0.7,
			"skills": 0.8,
		},
	}

	if entry, ok := estimateExperience(text, lower); ok {
		payload.Experience = []ExperiencePayload{entry}
		payload.Confidence["experience"] = 0.6
	}

	if level, ok := findEducationLevel(lower); ok {
		payload.Education = []EducationPayload{{Level: level}}
		payload.Confidence["education"] = 0.7
	}

	return payload, nil, nil
}

func (l *LocalCapability) ModelInfo(context.Context) *ModelInfo {
	return &ModelInfo{
		Name:      "local-heuristic",
		Version:   LocalVersion,
		Available: true,
	}
}

func (l *LocalCapability) Close() error {
	return nil
}

// findSkills scans for known skill tokens with word-ish boundaries. The
// result is sorted so the payload is reproducible.
func (l *LocalCapability) findSkills(lower string) []string {
	var found []string
	for canonical, variants := range l.skillTable {
		for _, variant := range variants {
			if containsToken(lower, variant) {
				found = append(found, canonical)
				break
			}
		}
	}
	sort.Strings(found)
	return found
}

// startYearsAgo formats a YYYY-MM start date the given number of years back.
func startYearsAgo(years int) string {
	return time.Now().UTC().AddDate(-years, 0, 0).Format("2006-01")
}

// containsToken reports whether token occurs in text delimited by
// non-alphanumeric characters. Symbol-bearing tokens like "c++" would be
// broken by \b, so the check is positional.
func containsToken(text, token string) bool {
	for idx := 0; ; {
		pos := strings.Index(text[idx:], token)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(token)
		beforeOK := start == 0 || !isAlnum(text[start-1])
		afterOK := end == len(text) || !isAlnum(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// findPhones filters the loose phone regex down to plausible numbers.
func findPhones(text string) []string {
	var phones []string
	for _, candidate := range phonePattern.FindAllString(text, -1) {
		digits := 0
		for _, r := range candidate {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= 9 && digits <= 15 {
			phones = append(phones, strings.TrimSpace(candidate))
		}
	}
	return phones
}

// estimateExperience derives a single synthetic experience interval from
// either an explicit "N years" statement or the widest year range found.
func estimateExperience(text, lower string) (ExperiencePayload, bool) {
	if m := yearsOfExpPattern.FindStringSubmatch(lower); m != nil {
		years := 0
		for _, r := range m[1] {
			years = years*10 + int(r-'0')
		}
		if years > 0 && years < 60 {
			return ExperiencePayload{
				Title: "estimated from stated experience",
				Start: startYearsAgo(years),
			}, true
		}
	}

	if m := yearRangePattern.FindString(text); m != "" {
		parts := regexp.MustCompile(`[-–—]`).Split(m, 2)
		start := strings.TrimSpace(parts[0])
		end := strings.TrimSpace(parts[1])
		entry := ExperiencePayload{Title: "estimated from date range", Start: start + "-01"}
		switch strings.ToLower(end) {
		case "present", "current", "now":
			// open interval
		default:
			entry.End = end + "-01"
		}
		return entry, true
	}

	return ExperiencePayload{}, false
}

func findEducationLevel(lower string) (string, bool) {
	for _, candidate := range educationKeywords {
		for _, keyword := range candidate.keywords {
			if strings.Contains(lower, keyword) {
				return candidate.level, true
			}
		}
	}
	return "", false
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
