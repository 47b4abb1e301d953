package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"resumatch/internal/ai"
	"resumatch/internal/cache"
	"resumatch/internal/config"
	apperrors "resumatch/internal/errors"
	"resumatch/internal/match"
	"resumatch/internal/pdf"
	"resumatch/internal/store"
	"resumatch/internal/textproc"
	"resumatch/internal/types"
)

// countingCapability returns a fixed payload and counts invocations.
type countingCapability struct {
	invocations atomic.Int64
	payload     *ai.ExtractionPayload
}

func (c *countingCapability) Invoke(_ context.Context, _ string) (*ai.ExtractionPayload, *ai.TokenUsage, error) {
	c.invocations.Add(1)
	return c.payload, nil, nil
}

func (c *countingCapability) Version() string { return "counting/1" }

func (c *countingCapability) ModelInfo(context.Context) *ai.ModelInfo {
	return &ai.ModelInfo{Available: true}
}

func (c *countingCapability) Close() error { return nil }

func pipelineTestLogger(t *testing.T) *apperrors.Logger {
	t.Helper()
	logger, err := apperrors.New("error")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

func newTestPipeline(t *testing.T, capability ai.Capability) *Pipeline {
	t.Helper()
	logger := pipelineTestLogger(t)

	normalizer, err := textproc.NewNormalizer(textproc.DefaultNormalizerConfig())
	if err != nil {
		t.Fatalf("Failed to create normalizer: %v", err)
	}

	extractor := ai.NewExtractor(capability, &config.AIConfig{
		Provider:            "local",
		Timeout:             time.Second,
		MaxRetries:          0,
		ConfidenceThreshold: 0.5,
	}, logger)

	scorer, err := match.NewScorer(match.DefaultScorerConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create scorer: %v", err)
	}

	resultCache := cache.New(cache.NewMemoryBackend(64), time.Minute, logger)
	t.Cleanup(func() { _ = resultCache.Close() })

	return New(
		pdf.NewAutoDecoder(pdf.PlainTextDecoder{}),
		normalizer,
		extractor,
		scorer,
		resultCache,
		store.NewMemoryStore(),
		logger,
	)
}

const pipelineResumeText = `Jane Doe
Senior Backend Engineer
Skills: Python, SQL, distributed systems
Worked at Acme Corp building data platforms.`

func testPayload() *ai.ExtractionPayload {
	return &ai.ExtractionPayload{
		Name:   "Jane Doe",
		Skills: []string{"Python", "SQL"},
	}
}

func testJob() *types.JobRequirement {
	return &types.JobRequirement{
		Title: "Backend Engineer",
		Skills: []types.RequiredSkill{
			{Name: "Python", Weight: 0.6},
			{Name: "Go", Weight: 0.4},
		},
	}
}

func TestMatchDocumentEndToEnd(t *testing.T) {
	capability := &countingCapability{payload: testPayload()}
	p := newTestPipeline(t, capability)

	result, err := p.MatchDocument(context.Background(), types.RawDocument{
		Bytes:    []byte(pipelineResumeText),
		Filename: "jane.txt",
	}, testJob())
	if err != nil {
		t.Fatalf("MatchDocument failed: %v", err)
	}

	// Python (0.6) matched, Go (0.4) missing: skills 60. Experience and
	// education are unconstrained, so both are 100.
	if got := result.Subscores["skills"].Score; got != 60 {
		t.Errorf("Skills subscore = %v, want 60", got)
	}
	if result.Score != 80 {
		t.Errorf("Composite score = %v, want 80", result.Score)
	}
	if len(result.MissingSkills) != 1 || result.MissingSkills[0] != "Go" {
		t.Errorf("MissingSkills = %v, want [Go]", result.MissingSkills)
	}
	if result.Candidate == nil || result.Candidate.Name != "Jane Doe" {
		t.Error("Result should carry the extracted candidate record")
	}
}

func TestEmptyInputFailsBeforeExtraction(t *testing.T) {
	capability := &countingCapability{payload: testPayload()}
	p := newTestPipeline(t, capability)

	_, err := p.ProcessDocument(context.Background(), types.RawDocument{
		Bytes:    []byte("   \n\t  \n"),
		Filename: "blank.txt",
	})
	if !apperrors.HasCode(err, apperrors.ErrCodeEmptyInput) {
		t.Fatalf("Expected EMPTY_INPUT, got %v", err)
	}

	if capability.invocations.Load() != 0 {
		t.Error("Capability must not be invoked for empty input")
	}
	if resumes, _ := p.Resumes().List(context.Background()); len(resumes) != 0 {
		t.Error("Nothing should be stored for empty input")
	}
	stats := p.CacheStats()
	if stats.Hits.Load() != 0 || stats.Misses.Load() != 0 {
		t.Error("Cache must not be consulted for empty input")
	}
}

func TestIdenticalRequestsExtractOnce(t *testing.T) {
	capability := &countingCapability{payload: testPayload()}
	p := newTestPipeline(t, capability)
	ctx := context.Background()
	doc := types.RawDocument{Bytes: []byte(pipelineResumeText), Filename: "jane.txt"}

	first, err := p.MatchDocument(ctx, doc, testJob())
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	second, err := p.MatchDocument(ctx, doc, testJob())
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}

	if capability.invocations.Load() != 1 {
		t.Errorf("Capability invoked %d times, want exactly once", capability.invocations.Load())
	}
	if first.Score != second.Score {
		t.Errorf("Identical requests should produce identical scores: %v vs %v", first.Score, second.Score)
	}
	if p.CacheStats().Hits.Load() != 1 {
		t.Errorf("Second match should be a cache hit, hits = %d", p.CacheStats().Hits.Load())
	}
}

func TestDistinctJobsShareExtraction(t *testing.T) {
	capability := &countingCapability{payload: testPayload()}
	p := newTestPipeline(t, capability)
	ctx := context.Background()
	doc := types.RawDocument{Bytes: []byte(pipelineResumeText), Filename: "jane.txt"}

	resume, err := p.ProcessDocument(ctx, doc)
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}

	jobA := testJob()
	jobB := testJob()
	jobB.Title = "Platform Engineer"
	jobB.Skills = []types.RequiredSkill{{Name: "SQL", Weight: 1}}

	resultA, err := p.Match(ctx, resume, jobA)
	if err != nil {
		t.Fatalf("Match A failed: %v", err)
	}
	resultB, err := p.Match(ctx, resume, jobB)
	if err != nil {
		t.Fatalf("Match B failed: %v", err)
	}

	if capability.invocations.Load() != 1 {
		t.Errorf("Extraction should be shared across jobs, got %d invocations", capability.invocations.Load())
	}
	if resultA.Score == resultB.Score {
		t.Error("Different jobs should generally score differently here")
	}
}

func TestDecodeErrorIsTerminal(t *testing.T) {
	capability := &countingCapability{payload: testPayload()}
	p := newTestPipeline(t, capability)

	_, err := p.ProcessDocument(context.Background(), types.RawDocument{
		Bytes:       []byte("not a pdf"),
		ContentType: "application/pdf",
	})
	if !apperrors.HasCode(err, apperrors.ErrCodeDecodeError) {
		t.Fatalf("Expected DECODE_ERROR, got %v", err)
	}
	if capability.invocations.Load() != 0 {
		t.Error("Capability must not be invoked for undecodable documents")
	}
}

func TestInvalidateMatchForcesRecompute(t *testing.T) {
	capability := &countingCapability{payload: testPayload()}
	p := newTestPipeline(t, capability)
	ctx := context.Background()

	resume, err := p.ProcessDocument(ctx, types.RawDocument{Bytes: []byte(pipelineResumeText)})
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	job := testJob()

	if _, err := p.Match(ctx, resume, job); err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	jobFP := textproc.FingerprintJob(job)
	if err := p.InvalidateMatch(ctx, resume.Fingerprint, jobFP); err != nil {
		t.Fatalf("InvalidateMatch failed: %v", err)
	}

	if _, err := p.Match(ctx, resume, job); err != nil {
		t.Fatalf("Match after invalidation failed: %v", err)
	}
	if p.CacheStats().Misses.Load() != 2 {
		t.Errorf("Expected two cache misses around invalidation, got %d", p.CacheStats().Misses.Load())
	}
}
