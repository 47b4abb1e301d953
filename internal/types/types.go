package types

import "time"

// RawDocument is an ingested document before text extraction. The bytes are
// discarded once text is decoded; only derived artifacts are retained.
type RawDocument struct {
	Bytes       []byte `json:"-"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename,omitempty"`
}

// Fingerprint is a fixed-width hex digest identifying normalized text.
type Fingerprint string

// ContactChannel is a typed contact value extracted from a résumé.
type ContactChannel struct {
	Kind  string `json:"kind"` // "email" or "phone"
	Value string `json:"value"`
}

// ExperienceEntry is one work-experience interval. End is zero for a
// position held at extraction time.
type ExperienceEntry struct {
	Organization string    `json:"organization,omitempty"`
	Title        string    `json:"title,omitempty"`
	Start        time.Time `json:"start,omitempty"`
	End          time.Time `json:"end,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// EducationEntry is one education record.
type EducationEntry struct {
	Institution string `json:"institution,omitempty"`
	Degree      string `json:"degree,omitempty"`
	Level       string `json:"level,omitempty"` // one of EducationLevels
	Field       string `json:"field,omitempty"`
}

// Education levels in ascending ordinal rank.
const (
	EducationNone       = ""
	EducationHighSchool = "high_school"
	EducationAssociate  = "associate"
	EducationBachelor   = "bachelor"
	EducationMaster     = "master"
	EducationDoctorate  = "doctorate"
)

// EducationRank returns the ordinal rank of a level, 0 for unknown/empty.
func EducationRank(level string) int {
	switch level {
	case EducationHighSchool:
		return 1
	case EducationAssociate:
		return 2
	case EducationBachelor:
		return 3
	case EducationMaster:
		return 4
	case EducationDoctorate:
		return 5
	}
	return 0
}

// Provenance records where and how a CandidateRecord was produced.
type Provenance struct {
	SourceFingerprint Fingerprint `json:"sourceFingerprint"`
	ExtractedAt       time.Time   `json:"extractedAt"`
	ExtractorVersion  string      `json:"extractorVersion"`
}

// CandidateRecord is the structured result of résumé extraction. Every field
// is optional except Provenance. A record with no populated fields is a valid
// low-quality result, not an error.
type CandidateRecord struct {
	Name       string            `json:"name,omitempty"`
	Contacts   []ContactChannel  `json:"contacts,omitempty"`
	Skills     []string          `json:"skills,omitempty"`
	Experience []ExperienceEntry `json:"experience,omitempty"`
	Education  []EducationEntry  `json:"education,omitempty"`
	Provenance Provenance        `json:"provenance"`
}

// RequiredSkill is one job skill requirement with an importance weight in [0,1].
type RequiredSkill struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// JobRequirement describes what a job asks of a candidate.
type JobRequirement struct {
	Title           string          `json:"title,omitempty"`
	Skills          []RequiredSkill `json:"skills"`
	MinExperience   float64         `json:"minExperienceYears"`
	EducationLevel  string          `json:"educationLevel,omitempty"`
	Description     string          `json:"description,omitempty"`
	DescriptionHash Fingerprint     `json:"descriptionHash,omitempty"`
}

// Subscore is one criterion's partial score with its weight and contribution
// to the composite.
type Subscore struct {
	Score        float64 `json:"score"`  // 0-100
	Weight       float64 `json:"weight"` // composite weight
	Contribution float64 `json:"contribution"`
}

// Recommendation tiers derived from the composite score.
const (
	RecommendationStrong = "strong"
	RecommendationGood   = "good"
	RecommendationFair   = "fair"
	RecommendationWeak   = "weak"
)

// MatchResult is the deterministic outcome of scoring a candidate against a
// job requirement. Recomputing from the same inputs yields an identical value.
type MatchResult struct {
	Score          float64             `json:"score"` // 0-100 composite
	Subscores      map[string]Subscore `json:"subscores"`
	MatchedSkills  []string            `json:"matchedSkills"`
	MissingSkills  []string            `json:"missingSkills"`
	Feedback       []string            `json:"feedback,omitempty"`
	Recommendation string              `json:"recommendation"`
	Candidate      *CandidateRecord    `json:"candidate,omitempty"`
}

// StoredResume is a persisted uploaded résumé with its derived artifacts.
type StoredResume struct {
	ID             string           `json:"id"`
	Filename       string           `json:"filename"`
	Fingerprint    Fingerprint      `json:"fingerprint"`
	NormalizedText string           `json:"-"`
	Record         *CandidateRecord `json:"record,omitempty"`
	UploadedAt     time.Time        `json:"uploadedAt"`
}
