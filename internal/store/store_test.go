package store

import (
	"context"
	"testing"
	"time"

	"resumatch/internal/types"
)

func testResume(fp string) *types.StoredResume {
	return &types.StoredResume{
		Filename:       "resume.pdf",
		Fingerprint:    types.Fingerprint(fp),
		NormalizedText: "jane doe senior engineer",
		Record: &types.CandidateRecord{
			Name:   "Jane Doe",
			Skills: []string{"go", "python"},
			Provenance: types.Provenance{
				SourceFingerprint: types.Fingerprint(fp),
				ExtractedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
				ExtractorVersion:  "local/1",
			},
		},
	}
}

// backends returns each store implementation under a name for the shared
// test suite.
func backends(t *testing.T) map[string]ResumeStore {
	t.Helper()

	sqlite, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]ResumeStore{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestSaveAndGet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			saved, err := s.Save(ctx, testResume("fp-1"))
			if err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if saved.ID == "" {
				t.Fatal("Save should assign an ID")
			}
			if saved.UploadedAt.IsZero() {
				t.Error("Save should stamp UploadedAt")
			}

			got, err := s.Get(ctx, saved.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Fingerprint != "fp-1" {
				t.Errorf("Unexpected fingerprint %q", got.Fingerprint)
			}
			if got.Record == nil || got.Record.Name != "Jane Doe" {
				t.Errorf("Record did not round-trip: %+v", got.Record)
			}
			if len(got.Record.Skills) != 2 {
				t.Errorf("Skills did not round-trip: %v", got.Record.Skills)
			}
		})
	}
}

func TestSaveDeduplicatesByFingerprint(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := s.Save(ctx, testResume("fp-dup"))
			if err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			second, err := s.Save(ctx, testResume("fp-dup"))
			if err != nil {
				t.Fatalf("Second save failed: %v", err)
			}
			if second.ID != first.ID {
				t.Errorf("Duplicate content should return the existing entry, got %q and %q", first.ID, second.ID)
			}

			all, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(all) != 1 {
				t.Errorf("Expected one stored resume, got %d", len(all))
			}
		})
	}
}

func TestGetByFingerprint(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			saved, err := s.Save(ctx, testResume("fp-lookup"))
			if err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := s.GetByFingerprint(ctx, "fp-lookup")
			if err != nil {
				t.Fatalf("GetByFingerprint failed: %v", err)
			}
			if got.ID != saved.ID {
				t.Errorf("Expected ID %q, got %q", saved.ID, got.ID)
			}

			_, err = s.GetByFingerprint(ctx, "fp-absent")
			if !IsNotFound(err) {
				t.Errorf("Expected not-found error, got %v", err)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			saved, err := s.Save(ctx, testResume("fp-del"))
			if err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			if err := s.Delete(ctx, saved.ID); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := s.Get(ctx, saved.ID); !IsNotFound(err) {
				t.Errorf("Expected not-found after delete, got %v", err)
			}

			// Fingerprint slot must be reusable after delete.
			if _, err := s.Save(ctx, testResume("fp-del")); err != nil {
				t.Fatalf("Re-save after delete failed: %v", err)
			}

			if err := s.Delete(ctx, "missing-id"); err != nil {
				t.Errorf("Deleting a missing ID should not fail: %v", err)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "nope")
			if !IsNotFound(err) {
				t.Errorf("Expected not-found error, got %v", err)
			}
		})
	}
}
