// Package pipeline wires decoding, normalization, extraction, caching and
// scoring into the end-to-end matching flow.
package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resumatch/internal/ai"
	"resumatch/internal/cache"
	apperrors "resumatch/internal/errors"
	"resumatch/internal/match"
	"resumatch/internal/pdf"
	"resumatch/internal/store"
	"resumatch/internal/textproc"
	"resumatch/internal/types"
)

// Pipeline is the orchestrator. Stages run in a fixed order: decode,
// normalize, fingerprint, extract, score. Extraction is deduplicated
// through the content-addressed store, match results through the cache.
type Pipeline struct {
	decoder    pdf.Decoder
	normalizer *textproc.Normalizer
	extractor  *ai.Extractor
	scorer     *match.Scorer
	cache      *cache.ResultCache
	resumes    store.ResumeStore
	logger     *apperrors.Logger
}

func New(
	decoder pdf.Decoder,
	normalizer *textproc.Normalizer,
	extractor *ai.Extractor,
	scorer *match.Scorer,
	resultCache *cache.ResultCache,
	resumes store.ResumeStore,
	logger *apperrors.Logger,
) *Pipeline {
	return &Pipeline{
		decoder:    decoder,
		normalizer: normalizer,
		extractor:  extractor,
		scorer:     scorer,
		cache:      resultCache,
		resumes:    resumes,
		logger:     logger,
	}
}

// ProcessDocument decodes, normalizes and extracts one résumé, storing the
// result. Input that normalizes to nothing fails with EMPTY_INPUT before
// the store or the capability is touched. A résumé whose fingerprint is
// already stored returns the stored entry without invoking the capability.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc types.RawDocument) (*types.StoredResume, error) {
	tracer := otel.Tracer("resumatch.pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.process_document")
	defer span.End()

	text, err := p.decoder.Decode(ctx, doc)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	normalized, err := p.normalizer.Normalize(text)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	fingerprint := textproc.Fingerprint(normalized)
	span.SetAttributes(attribute.String("resume.fingerprint", string(fingerprint)))

	if existing, err := p.resumes.GetByFingerprint(ctx, fingerprint); err == nil {
		p.logger.Debug("Resume already extracted, reusing stored record",
			"fingerprint", fingerprint, "resume_id", existing.ID)
		span.SetAttributes(attribute.Bool("extraction.reused", true))
		return existing, nil
	} else if !store.IsNotFound(err) {
		span.RecordError(err)
		return nil, err
	}

	record, _, err := p.extractor.Extract(ctx, normalized, fingerprint)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	saved, err := p.resumes.Save(ctx, &types.StoredResume{
		Filename:       doc.Filename,
		Fingerprint:    fingerprint,
		NormalizedText: normalized,
		Record:         record,
	})
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.NewPipelineError(apperrors.ErrCodeStorageFailed, "storing resume failed", err)
	}
	return saved, nil
}

// Match scores a stored résumé against a job. Identical (résumé, job)
// pairs are answered from the cache; concurrent misses on the same pair
// share one computation.
func (p *Pipeline) Match(ctx context.Context, resume *types.StoredResume, job *types.JobRequirement) (*types.MatchResult, error) {
	tracer := otel.Tracer("resumatch.pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.match")
	defer span.End()

	jobFingerprint := textproc.FingerprintJob(job)
	key := cache.Key{Resume: resume.Fingerprint, Job: jobFingerprint}
	span.SetAttributes(
		attribute.String("resume.fingerprint", string(resume.Fingerprint)),
		attribute.String("job.fingerprint", string(jobFingerprint)),
	)

	return p.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*types.MatchResult, error) {
		record := resume.Record
		if record == nil {
			extracted, _, err := p.extractor.Extract(ctx, resume.NormalizedText, resume.Fingerprint)
			if err != nil {
				return nil, err
			}
			record = extracted
		}
		result := p.scorer.Score(record, job)
		result.Candidate = record
		return &result, nil
	})
}

// MatchDocument is the one-shot flow for CLI use: process the document and
// score it against the job in one call.
func (p *Pipeline) MatchDocument(ctx context.Context, doc types.RawDocument, job *types.JobRequirement) (*types.MatchResult, error) {
	resume, err := p.ProcessDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	return p.Match(ctx, resume, job)
}

// InvalidateMatch drops one cached (résumé, job) result.
func (p *Pipeline) InvalidateMatch(ctx context.Context, resumeFP, jobFP types.Fingerprint) error {
	return p.cache.Invalidate(ctx, cache.Key{Resume: resumeFP, Job: jobFP})
}

// EvictExpired sweeps expired cache entries and returns the count removed.
func (p *Pipeline) EvictExpired(ctx context.Context) (int, error) {
	return p.cache.EvictExpired(ctx)
}

// CacheStats exposes hit, miss, coalescing and error counters.
func (p *Pipeline) CacheStats() *cache.Stats {
	return p.cache.Stats()
}

// Cache exposes the result cache so the serving layer can attach observers.
func (p *Pipeline) Cache() *cache.ResultCache {
	return p.cache
}

// Extractor exposes the extraction stage for health checks and observers.
func (p *Pipeline) Extractor() *ai.Extractor {
	return p.extractor
}

// Resumes exposes the underlying store for read endpoints.
func (p *Pipeline) Resumes() store.ResumeStore {
	return p.resumes
}
