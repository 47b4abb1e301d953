package match

import (
	"fmt"
	"math"
	"sort"
	"time"

	"resumatch/internal/errors"
	"resumatch/internal/textproc"
	"resumatch/internal/types"
)

// Subscore criterion names.
const (
	CriterionSkills     = "skills"
	CriterionExperience = "experience"
	CriterionEducation  = "education"
)

// ScorerConfig holds the scoring weight vector and matching knobs.
type ScorerConfig struct {
	// Composite weights. Must sum to 1.
	SkillsWeight     float64
	ExperienceWeight float64
	EducationWeight  float64
	// PartialCredit is granted when a required skill matches only through
	// the synonym table.
	PartialCredit float64
	// PresenceThreshold is the minimum per-skill credit for a required
	// skill to count as matched rather than missing.
	PresenceThreshold float64
	// EducationStepPenalty is subtracted from 100 per level of shortfall
	// below the required education level.
	EducationStepPenalty float64
}

// DefaultScorerConfig returns the scoring defaults.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		SkillsWeight:         0.5,
		ExperienceWeight:     0.3,
		EducationWeight:      0.2,
		PartialCredit:        0.5,
		PresenceThreshold:    0.5,
		EducationStepPenalty: 25,
	}
}

// Validate checks the weight vector.
func (c ScorerConfig) Validate() error {
	sum := c.SkillsWeight + c.ExperienceWeight + c.EducationWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("score weights must sum to 1, got %v", sum), nil)
	}
	if c.SkillsWeight < 0 || c.ExperienceWeight < 0 || c.EducationWeight < 0 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			"score weights must be non-negative", nil)
	}
	if c.PartialCredit < 0 || c.PartialCredit > 1 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			"partial credit must be in [0,1]", nil)
	}
	return nil
}

// Scorer computes deterministic, explainable match scores. Score performs no
// external calls and keeps no per-request state, so a Scorer is safe for
// concurrent use; the synonym table is the only mutable part and is guarded
// by SynonymTable's lock.
type Scorer struct {
	cfg      ScorerConfig
	synonyms *SynonymTable
}

// NewScorer validates the config and builds a Scorer. A nil synonym table
// disables synonym partial credit.
func NewScorer(cfg ScorerConfig, synonyms *SynonymTable) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if synonyms == nil {
		synonyms = NewSynonymTable(nil)
	}
	return &Scorer{cfg: cfg, synonyms: synonyms}, nil
}

// Score computes the weighted match between a candidate and a job requirement.
// Recomputing from the same inputs always yields an identical result.
func (s *Scorer) Score(candidate *types.CandidateRecord, job *types.JobRequirement) types.MatchResult {
	skills, matched, missing := s.skillSubscore(candidate, job)
	experience, totalYears := s.experienceSubscore(candidate, job)
	education := s.educationSubscore(candidate, job)

	subscores := map[string]types.Subscore{
		CriterionSkills: {
			Score:        skills,
			Weight:       s.cfg.SkillsWeight,
			Contribution: round2(skills * s.cfg.SkillsWeight),
		},
		CriterionExperience: {
			Score:        experience,
			Weight:       s.cfg.ExperienceWeight,
			Contribution: round2(experience * s.cfg.ExperienceWeight),
		},
		CriterionEducation: {
			Score:        education,
			Weight:       s.cfg.EducationWeight,
			Contribution: round2(education * s.cfg.EducationWeight),
		},
	}

	composite := round2(skills*s.cfg.SkillsWeight +
		experience*s.cfg.ExperienceWeight +
		education*s.cfg.EducationWeight)

	return types.MatchResult{
		Score:          composite,
		Subscores:      subscores,
		MatchedSkills:  matched,
		MissingSkills:  missing,
		Feedback:       s.feedback(skills, experience, totalYears, missing, job),
		Recommendation: recommendation(composite),
	}
}

// skillSubscore returns the weight-normalized skill score in [0,100] plus the
// matched and missing required-skill lists, both ordered by weight descending
// with alphabetical tie-break.
func (s *Scorer) skillSubscore(candidate *types.CandidateRecord, job *types.JobRequirement) (float64, []string, []string) {
	// Empty requirement set is vacuously satisfied.
	if len(job.Skills) == 0 {
		return 100, nil, nil
	}

	have := make(map[string]bool, len(candidate.Skills))
	for _, skill := range candidate.Skills {
		have[textproc.NormalizeSkill(skill)] = true
	}

	type outcome struct {
		name   string
		weight float64
		credit float64
	}
	outcomes := make([]outcome, 0, len(job.Skills))

	var weightSum, creditSum float64
	for _, req := range job.Skills {
		credit := s.skillCredit(have, req.Name)
		outcomes = append(outcomes, outcome{name: req.Name, weight: req.Weight, credit: credit})
		// Zero-weight entries still report matched/missing but are
		// excluded from normalization to avoid division by zero.
		if req.Weight > 0 {
			weightSum += req.Weight
			creditSum += req.Weight * credit
		}
	}

	score := 100.0
	if weightSum > 0 {
		score = round2(creditSum / weightSum * 100)
	}

	sort.Slice(outcomes, func(i, j int) bool {
		if outcomes[i].weight != outcomes[j].weight {
			return outcomes[i].weight > outcomes[j].weight
		}
		return outcomes[i].name < outcomes[j].name
	})

	var matched, missing []string
	for _, o := range outcomes {
		if o.credit >= s.cfg.PresenceThreshold {
			matched = append(matched, o.name)
		} else {
			missing = append(missing, o.name)
		}
	}
	return score, matched, missing
}

// skillCredit returns 1 for a direct normalized match, the configured partial
// credit for a synonym match, and 0 otherwise.
func (s *Scorer) skillCredit(have map[string]bool, required string) float64 {
	canonical := textproc.NormalizeSkill(required)
	if have[canonical] {
		return 1
	}
	for _, alias := range s.synonyms.Synonyms(canonical) {
		if have[alias] {
			return s.cfg.PartialCredit
		}
	}
	return 0
}

// experienceSubscore compares total non-overlapping experience against the
// required minimum: full credit at or above the minimum, linear credit below.
// Returns the subscore and the computed total in years.
func (s *Scorer) experienceSubscore(candidate *types.CandidateRecord, job *types.JobRequirement) (float64, float64) {
	// Open intervals are measured against the extraction time so scoring the
	// same record twice yields the same result.
	now := candidate.Provenance.ExtractedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	total := TotalExperienceYears(candidate.Experience, now)
	if job.MinExperience <= 0 {
		return 100, total
	}
	if total >= job.MinExperience {
		return 100, total
	}
	return round2(total / job.MinExperience * 100), total
}

// educationSubscore performs ordinal comparison with stepped partial credit
// per level of shortfall.
func (s *Scorer) educationSubscore(candidate *types.CandidateRecord, job *types.JobRequirement) float64 {
	required := types.EducationRank(job.EducationLevel)
	if required == 0 {
		return 100
	}

	highest := 0
	for _, entry := range candidate.Education {
		if rank := types.EducationRank(entry.Level); rank > highest {
			highest = rank
		}
	}
	if highest >= required {
		return 100
	}

	score := 100 - float64(required-highest)*s.cfg.EducationStepPenalty
	if score < 0 {
		score = 0
	}
	return score
}

// TotalExperienceYears sums non-overlapping work intervals in years. Open
// intervals end at now. Entries without a start date are skipped.
func TotalExperienceYears(entries []types.ExperienceEntry, now time.Time) float64 {
	type interval struct{ start, end time.Time }
	intervals := make([]interval, 0, len(entries))
	for _, e := range entries {
		if e.Start.IsZero() {
			continue
		}
		end := e.End
		if end.IsZero() {
			end = now
		}
		if !end.After(e.Start) {
			continue
		}
		intervals = append(intervals, interval{start: e.Start, end: end})
	}
	if len(intervals) == 0 {
		return 0
	}

	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].start.Before(intervals[j].start)
	})

	// Merge overlaps so concurrent positions are not double counted.
	var total time.Duration
	current := intervals[0]
	for _, iv := range intervals[1:] {
		if iv.start.After(current.end) {
			total += current.end.Sub(current.start)
			current = iv
			continue
		}
		if iv.end.After(current.end) {
			current.end = iv.end
		}
	}
	total += current.end.Sub(current.start)

	const yearHours = 365.25 * 24
	return round2(total.Hours() / yearHours)
}

func (s *Scorer) feedback(skillScore, expScore, totalYears float64, missing []string, job *types.JobRequirement) []string {
	var fb []string
	switch {
	case skillScore >= 80:
		fb = append(fb, "Strong skill alignment with the role requirements.")
	case skillScore >= 50:
		fb = append(fb, "Moderate skill alignment; some required skills are not evidenced.")
	default:
		fb = append(fb, "Low skill alignment with the role requirements.")
	}
	if len(missing) > 0 {
		fb = append(fb, fmt.Sprintf("Missing required skills: %v.", missing))
	}
	if job.MinExperience > 0 && expScore < 100 {
		fb = append(fb, fmt.Sprintf("Experience of %.1f years is below the required %.1f years.",
			totalYears, job.MinExperience))
	}
	return fb
}

func recommendation(score float64) string {
	switch {
	case score >= 75:
		return types.RecommendationStrong
	case score >= 60:
		return types.RecommendationGood
	case score >= 40:
		return types.RecommendationFair
	}
	return types.RecommendationWeak
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
