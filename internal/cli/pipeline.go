package cli

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"resumatch/internal/ai"
	"resumatch/internal/cache"
	"resumatch/internal/config"
	"resumatch/internal/errors"
	"resumatch/internal/match"
	"resumatch/internal/pdf"
	"resumatch/internal/pipeline"
	"resumatch/internal/store"
	"resumatch/internal/textproc"
)

// buildPipeline assembles the matching pipeline from the configuration. The
// returned cleanup function releases the cache, store and capability.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*pipeline.Pipeline, func(), error) {
	decoder := pdf.NewAutoDecoder(pdf.NewTikaDecoder(
		cfg.Decoder.TikaURL,
		logger,
		pdf.WithTimeout(cfg.Decoder.Timeout),
		pdf.WithMaxFileSize(cfg.Decoder.MaxFileSize),
	))

	normalizer, err := textproc.NewNormalizer(textproc.NormalizerConfig{
		MinFragmentLength: cfg.Normalizer.MinFragmentLength,
		MinDocumentLength: cfg.Normalizer.MinDocumentLength,
		BoundaryPatterns:  cfg.Normalizer.BoundaryPatterns,
	})
	if err != nil {
		return nil, nil, err
	}

	capability, err := ai.NewCapability(&cfg.AI, logger)
	if err != nil {
		return nil, nil, err
	}
	extractor := ai.NewExtractor(capability, &cfg.AI, logger)

	scorer, err := buildScorer(ctx, cfg, logger)
	if err != nil {
		_ = capability.Close()
		return nil, nil, err
	}

	resultCache, err := buildCache(ctx, cfg, logger)
	if err != nil {
		_ = capability.Close()
		return nil, nil, err
	}

	resumes, err := store.New(&cfg.Storage)
	if err != nil {
		_ = resultCache.Close()
		_ = capability.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := resultCache.Close(); err != nil {
			logger.Warn("Failed to close result cache", "error", err)
		}
		if err := resumes.Close(); err != nil {
			logger.Warn("Failed to close resume store", "error", err)
		}
		if err := capability.Close(); err != nil {
			logger.Warn("Failed to close extraction capability", "error", err)
		}
	}

	p := pipeline.New(decoder, normalizer, extractor, scorer, resultCache, resumes, logger)

	if cfg.Cache.SweepInterval > 0 {
		go sweepExpired(ctx, p, cfg.Cache.SweepInterval, logger)
	}

	return p, cleanup, nil
}

// sweepExpired evicts expired cache entries on a fixed interval until the
// context is cancelled.
func sweepExpired(ctx context.Context, p *pipeline.Pipeline, interval time.Duration, logger *errors.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted, err := p.EvictExpired(ctx)
			if err != nil {
				logger.Warn("Cache sweep failed", "error", err)
				continue
			}
			if evicted > 0 {
				logger.Debug("Cache sweep evicted entries", "count", evicted)
			}
		}
	}
}

// buildScorer wires the scorer with its synonym table, optionally hot
// reloading the table when the file changes.
func buildScorer(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*match.Scorer, error) {
	table := match.NewSynonymTable(nil)

	if cfg.Match.SynonymFile != "" {
		entries, err := match.LoadSynonymFile(cfg.Match.SynonymFile)
		if err != nil {
			return nil, err
		}
		table = match.NewSynonymTable(entries)

		if cfg.Match.WatchSynonymFile {
			if err := match.WatchSynonymFile(ctx, cfg.Match.SynonymFile, table, logger); err != nil {
				return nil, err
			}
			logger.Info("Watching synonym file for changes", "path", cfg.Match.SynonymFile)
		}
	}

	return match.NewScorer(match.ScorerConfig{
		SkillsWeight:         cfg.Match.SkillsWeight,
		ExperienceWeight:     cfg.Match.ExperienceWeight,
		EducationWeight:      cfg.Match.EducationWeight,
		PartialCredit:        cfg.Match.PartialCredit,
		PresenceThreshold:    cfg.Match.PresenceThreshold,
		EducationStepPenalty: cfg.Match.EducationStepPenalty,
	}, table)
}

// buildCache selects the configured cache backend.
func buildCache(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*cache.ResultCache, error) {
	ttl := cfg.Cache.MatchTTL
	if ttl <= 0 {
		ttl = cfg.Cache.TTL
	}

	switch cfg.Cache.Backend {
	case "redis":
		backend, err := cache.NewRedisBackend(ctx, &redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return cache.New(backend, ttl, logger), nil
	default:
		return cache.New(cache.NewMemoryBackend(cfg.Cache.MaxEntries), ttl, logger), nil
	}
}
