// Package store persists uploaded résumés and their extracted records.
package store

import (
	"context"

	"resumatch/internal/config"
	apperrors "resumatch/internal/errors"
	"resumatch/internal/types"
)

// ResumeStore persists résumés keyed by ID. Storage is content addressed:
// saving a résumé whose fingerprint is already stored returns the existing
// entry instead of creating a duplicate.
type ResumeStore interface {
	Save(ctx context.Context, resume *types.StoredResume) (*types.StoredResume, error)
	Get(ctx context.Context, id string) (*types.StoredResume, error)
	GetByFingerprint(ctx context.Context, fp types.Fingerprint) (*types.StoredResume, error)
	List(ctx context.Context) ([]types.StoredResume, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// ErrNotFound is returned when no résumé matches the lookup.
var ErrNotFound = apperrors.NewValidationError(apperrors.ErrCodeNotFound, "resume not found", nil)

// IsNotFound reports whether err is a missing-résumé lookup failure.
func IsNotFound(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeNotFound)
}

// New builds the configured store backend.
func New(cfg *config.StorageConfig) (ResumeStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.DataDir)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig,
			"unsupported storage backend: "+cfg.Backend, nil)
	}
}
