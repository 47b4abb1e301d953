package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	apperrors "resumatch/internal/errors"
)

// storageProbeTimeout bounds the health check's store round trip.
const storageProbeTimeout = 5 * time.Second

// healthHandler provides a health check endpoint covering the store, the
// cache and the configured extraction capability
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "resumatch",
		"version": s.Version,
	}

	storageStatus := s.checkStorageHealth(r.Context())
	response["storage"] = storageStatus

	response["cache"] = s.cacheStats()

	response["extraction"] = map[string]any{
		"provider": s.AppConfig.AI.Provider,
		"model":    s.AppConfig.AI.Model,
	}

	if healthy, ok := storageStatus["healthy"].(bool); ok && !healthy {
		response["status"] = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode health response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// checkStorageHealth probes the résumé store with a bounded listing
func (s *Server) checkStorageHealth(ctx context.Context) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, storageProbeTimeout)
	defer cancel()

	resumes, err := s.Pipeline.Resumes().List(ctx)
	if err != nil {
		return map[string]any{
			"healthy": false,
			"error":   err.Error(),
		}
	}

	return map[string]any{
		"healthy": true,
		"backend": s.AppConfig.Storage.Backend,
		"resumes": len(resumes),
	}
}

// cacheStats snapshots the result cache counters
func (s *Server) cacheStats() map[string]any {
	stats := s.Pipeline.CacheStats()
	return map[string]any{
		"backend":   s.AppConfig.Cache.Backend,
		"hits":      stats.Hits.Load(),
		"misses":    stats.Misses.Load(),
		"coalesced": stats.Coalesced.Load(),
		"errors":    stats.Errors.Load(),
	}
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "resumatch",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
		},
		"cache": s.cacheStats(),
	}

	// Add rate limiting stats if enabled
	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	// Add configuration info
	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMinute,
			"burst_capacity":   s.RateLimit.Burst,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode stats response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	if r.Header.Get("Content-Type") != "application/json" {
		return fmt.Errorf("content-type must be application/json")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("Failed to close request body: %v", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

// writeJSONResponse writes v as the JSON response body
func writeJSONResponse(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   error,
		Message: message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode error response: %v", err)
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}

// writeAppError maps an application error to an HTTP status and writes it
func writeAppError(w http.ResponseWriter, summary string, err error) {
	code := apperrors.CodeOf(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForCode(code))

	response := ErrorResponse{
		Error:   summary,
		Code:    code,
		Message: err.Error(),
	}

	if encErr := json.NewEncoder(w).Encode(response); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}

// statusForCode maps application error codes to HTTP status codes
func statusForCode(code string) int {
	switch code {
	case apperrors.ErrCodeDecodeError, apperrors.ErrCodeEmptyInput,
		apperrors.ErrCodeInvalidRequest, apperrors.ErrCodeInvalidFormat:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeTimeout, apperrors.ErrCodeCapabilityUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
