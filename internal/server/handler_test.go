package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"resumatch/internal/ai"
	"resumatch/internal/cache"
	"resumatch/internal/config"
	apperrors "resumatch/internal/errors"
	"resumatch/internal/match"
	"resumatch/internal/observability"
	"resumatch/internal/pdf"
	"resumatch/internal/pipeline"
	"resumatch/internal/store"
	"resumatch/internal/textproc"
	"resumatch/internal/types"
)

const sampleResume = `Jane Doe
jane.doe@example.com
+1 (415) 555-0100

Senior Backend Engineer with 8 years of experience building Go and Python services.
Skills: Go, Python, Kubernetes, Docker, SQL.

Experience
Acme Corp - Staff Engineer (2018 - present)

Education
M.Sc. Computer Science, State University`

func serverTestConfig() *config.Config {
	return &config.Config{
		AI: config.AIConfig{
			Provider:            "local",
			Timeout:             time.Second,
			ConfidenceThreshold: 0.5,
		},
		Cache:   config.CacheConfig{Backend: "memory"},
		Storage: config.StorageConfig{Backend: "memory"},
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           "0",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			MaxRequestSize: 1 << 20,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, http.Handler) {
	t.Helper()

	logger, err := apperrors.New("error")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	normalizer, err := textproc.NewNormalizer(textproc.DefaultNormalizerConfig())
	if err != nil {
		t.Fatalf("Failed to create normalizer: %v", err)
	}

	extractor := ai.NewExtractor(ai.NewLocalCapability(nil), &cfg.AI, logger)

	scorer, err := match.NewScorer(match.DefaultScorerConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create scorer: %v", err)
	}

	resultCache := cache.New(cache.NewMemoryBackend(64), time.Minute, logger)
	t.Cleanup(func() { _ = resultCache.Close() })

	p := pipeline.New(
		pdf.NewAutoDecoder(pdf.PlainTextDecoder{}),
		normalizer,
		extractor,
		scorer,
		resultCache,
		store.NewMemoryStore(),
		logger,
	)

	srv := NewServer(cfg, "test", p, logger)
	t.Cleanup(func() {
		if srv.RateLimiter != nil {
			srv.RateLimiter.Close()
		}
	})

	om, err := newDisabledObservability(cfg)
	if err != nil {
		t.Fatalf("Failed to create observability manager: %v", err)
	}

	return srv, srv.setupRoutes(om)
}

func newDisabledObservability(cfg *config.Config) (*observability.ObservabilityManager, error) {
	return observability.NewObservabilityManager(observability.ObservabilityConfig{
		ServiceName:    "resumatch-test",
		ServiceVersion: "test",
		Enabled:        false,
	}, cfg)
}

func uploadResume(t *testing.T, handler http.Handler, headers map[string]string) types.StoredResume {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resumes", strings.NewReader(sampleResume))
	req.Header.Set("Content-Type", "text/plain")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Upload returned status %d: %s", rec.Code, rec.Body.String())
	}

	var resume types.StoredResume
	if err := json.Unmarshal(rec.Body.Bytes(), &resume); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	return resume
}

func TestUploadAndMatchFlow(t *testing.T) {
	_, handler := newTestServer(t, serverTestConfig())

	resume := uploadResume(t, handler, nil)
	if resume.ID == "" {
		t.Error("Expected resume ID to be assigned")
	}
	if resume.Fingerprint == "" {
		t.Error("Expected fingerprint to be computed")
	}

	job := MatchRequest{Job: types.JobRequirement{
		Title: "Backend Engineer",
		Skills: []types.RequiredSkill{
			{Name: "Go", Weight: 1.0},
			{Name: "Kubernetes", Weight: 0.5},
		},
	}}
	body, _ := json.Marshal(job)

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/resumes/%s/match", resume.ID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Match returned status %d: %s", rec.Code, rec.Body.String())
	}

	var result types.MatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode match response: %v", err)
	}
	if result.Score <= 0 {
		t.Errorf("Expected positive score, got %v", result.Score)
	}
	if len(result.MatchedSkills) == 0 {
		t.Error("Expected matched skills in the response")
	}
	if result.Recommendation == "" {
		t.Error("Expected a recommendation tier")
	}
}

func TestUploadEmptyBodyRejected(t *testing.T) {
	_, handler := newTestServer(t, serverTestConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resumes", strings.NewReader(""))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for empty upload, got %d", rec.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if errResp.Code != apperrors.ErrCodeInvalidRequest {
		t.Errorf("Expected code %s, got %s", apperrors.ErrCodeInvalidRequest, errResp.Code)
	}
}

func TestMatchUnknownResumeReturns404(t *testing.T) {
	_, handler := newTestServer(t, serverTestConfig())

	body, _ := json.Marshal(MatchRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resumes/no-such-id/match", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown resume, got %d", rec.Code)
	}
}

func TestMatchRejectsInvalidJobWeights(t *testing.T) {
	_, handler := newTestServer(t, serverTestConfig())
	resume := uploadResume(t, handler, nil)

	job := MatchRequest{Job: types.JobRequirement{
		Skills: []types.RequiredSkill{{Name: "Go", Weight: 2.0}},
	}}
	body, _ := json.Marshal(job)

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/resumes/%s/match", resume.ID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid skill weight, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := serverTestConfig()
	cfg.Server.APIKeys = []string{"secret-key-12345"}
	_, handler := newTestServer(t, cfg)

	// Missing key is rejected
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resumes", strings.NewReader(sampleResume))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without API key, got %d", rec.Code)
	}

	// Wrong key is rejected
	req = httptest.NewRequest(http.MethodPost, "/api/v1/resumes", strings.NewReader(sampleResume))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 with wrong API key, got %d", rec.Code)
	}

	// Correct key via header passes
	uploadResume(t, handler, map[string]string{"X-API-Key": "secret-key-12345"})

	// Correct key via bearer token passes
	uploadResume(t, handler, map[string]string{"Authorization": "Bearer secret-key-12345"})

	// Health endpoint stays unauthenticated
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for /health without key, got %d", rec.Code)
	}
}

func TestGetAndDeleteResume(t *testing.T) {
	_, handler := newTestServer(t, serverTestConfig())
	resume := uploadResume(t, handler, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/resumes/"+resume.ID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Get returned status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/resumes/"+resume.ID, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Delete returned status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/resumes/"+resume.ID, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestListResumes(t *testing.T) {
	_, handler := newTestServer(t, serverTestConfig())
	uploadResume(t, handler, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/resumes", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("List returned status %d", rec.Code)
	}

	var response struct {
		Count   int                  `json:"count"`
		Resumes []types.StoredResume `json:"resumes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode list response: %v", err)
	}
	if response.Count != 1 || len(response.Resumes) != 1 {
		t.Errorf("Expected one stored resume, got count=%d len=%d", response.Count, len(response.Resumes))
	}
}

func TestCacheInvalidation(t *testing.T) {
	_, handler := newTestServer(t, serverTestConfig())

	// Sweep with an empty body
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Cache sweep returned status %d: %s", rec.Code, rec.Body.String())
	}

	var sweep map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &sweep); err != nil {
		t.Fatalf("Failed to decode sweep response: %v", err)
	}
	if _, ok := sweep["evicted"]; !ok {
		t.Error("Expected evicted count in sweep response")
	}

	// Targeted invalidation of a specific pair
	body, _ := json.Marshal(InvalidateRequest{
		ResumeFingerprint: "aaaa",
		JobFingerprint:    "bbbb",
	})
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/cache", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Targeted invalidation returned status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndStats(t *testing.T) {
	_, handler := newTestServer(t, serverTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Health returned status %d", rec.Code)
	}

	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", health["status"])
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Stats returned status %d", rec.Code)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	cfg := serverTestConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             2,
	}
	_, handler := newTestServer(t, cfg)

	var lastCode int
	for range 5 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/resumes", nil)
		req.RemoteAddr = "203.0.113.7:4711"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 after exhausting the burst, got %d", lastCode)
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := maskAPIKey("short"); got != "****" {
		t.Errorf("Expected short keys fully masked, got %q", got)
	}
	if got := maskAPIKey("secret-key-12345"); got != "secret-k****" {
		t.Errorf("Unexpected mask: %q", got)
	}
}
