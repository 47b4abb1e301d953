package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"resumatch/internal/types"
)

// MemoryStore is the non-persistent backend for tests and ephemeral
// deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	byID          map[string]*types.StoredResume
	byFingerprint map[types.Fingerprint]string
}

var _ ResumeStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:          make(map[string]*types.StoredResume),
		byFingerprint: make(map[types.Fingerprint]string),
	}
}

func (s *MemoryStore) Save(_ context.Context, resume *types.StoredResume) (*types.StoredResume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byFingerprint[resume.Fingerprint]; ok {
		existing := *s.byID[id]
		return &existing, nil
	}

	saved := *resume
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	if saved.UploadedAt.IsZero() {
		saved.UploadedAt = time.Now().UTC()
	}

	s.byID[saved.ID] = &saved
	s.byFingerprint[saved.Fingerprint] = saved.ID

	result := saved
	return &result, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*types.StoredResume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resume, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *resume
	return &copied, nil
}

func (s *MemoryStore) GetByFingerprint(_ context.Context, fp types.Fingerprint) (*types.StoredResume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byFingerprint[fp]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.byID[id]
	return &copied, nil
}

func (s *MemoryStore) List(_ context.Context) ([]types.StoredResume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resumes := make([]types.StoredResume, 0, len(s.byID))
	for _, resume := range s.byID {
		resumes = append(resumes, *resume)
	}
	sort.Slice(resumes, func(i, j int) bool {
		return resumes[i].UploadedAt.After(resumes[j].UploadedAt)
	})
	return resumes, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resume, ok := s.byID[id]; ok {
		delete(s.byFingerprint, resume.Fingerprint)
		delete(s.byID, id)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
