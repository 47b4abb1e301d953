package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	apperrors "resumatch/internal/errors"
	"resumatch/internal/observability"
	"resumatch/internal/store"
	"resumatch/internal/types"
)

// createUploadHandler wraps the résumé upload handler with observability
func (s *Server) createUploadHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tracer := om.Tracer("resumatch.api")
		ctx, span := tracer.Start(ctx, "api.upload_resume")
		defer span.End()

		doc, err := s.readDocument(r, "file")
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeAppError(w, "Invalid upload", err)
			return
		}

		span.SetAttributes(
			attribute.Int("request.document_bytes", len(doc.Bytes)),
			attribute.String("request.content_type", doc.ContentType),
			attribute.String("operation", "process_resume"),
		)

		resume, err := s.Pipeline.ProcessDocument(ctx, doc)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.code", apperrors.CodeOf(err)))
			s.recordOutcome(om, r, "process_resume", apperrors.CodeOf(err))
			writeAppError(w, "Failed to process resume", err)
			return
		}

		s.recordOutcome(om, r, "process_resume", "")
		span.SetAttributes(
			attribute.Bool("success", true),
			attribute.String("resume.id", resume.ID),
			attribute.String("resume.fingerprint", string(resume.Fingerprint)),
		)

		writeJSONResponse(w, http.StatusCreated, resume)
	}
}

// createMatchHandler wraps the stored-résumé match handler with observability
func (s *Server) createMatchHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tracer := om.Tracer("resumatch.api")
		ctx, span := tracer.Start(ctx, "api.match_resume")
		defer span.End()

		id := r.PathValue("id")
		resume, err := s.Pipeline.Resumes().Get(ctx, id)
		if err != nil {
			span.RecordError(err)
			if store.IsNotFound(err) {
				writeAppError(w, "Resume not found", err)
			} else {
				writeAppError(w, "Failed to load resume", err)
			}
			return
		}

		job, err := parseMatchRequest(r)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeAppError(w, "Invalid request body", err)
			return
		}

		span.SetAttributes(
			attribute.String("resume.id", id),
			attribute.Int("request.required_skills", len(job.Skills)),
			attribute.String("operation", "match"),
		)

		result, err := s.Pipeline.Match(ctx, resume, job)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.code", apperrors.CodeOf(err)))
			s.recordOutcome(om, r, "match", apperrors.CodeOf(err))
			writeAppError(w, "Failed to match resume", err)
			return
		}

		s.recordOutcome(om, r, "match", "")
		span.SetAttributes(
			attribute.Bool("success", true),
			attribute.Float64("match.score", result.Score),
			attribute.String("match.recommendation", result.Recommendation),
		)

		writeJSONResponse(w, http.StatusOK, result)
	}
}

// createMatchDocumentHandler handles one-shot match requests carrying both
// the résumé document and the job requirement in a multipart body
func (s *Server) createMatchDocumentHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tracer := om.Tracer("resumatch.api")
		ctx, span := tracer.Start(ctx, "api.match_document")
		defer span.End()

		doc, job, err := s.readMatchDocumentRequest(r)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeAppError(w, "Invalid request", err)
			return
		}

		span.SetAttributes(
			attribute.Int("request.document_bytes", len(doc.Bytes)),
			attribute.Int("request.required_skills", len(job.Skills)),
			attribute.String("operation", "match"),
		)

		result, err := s.Pipeline.MatchDocument(ctx, doc, job)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.code", apperrors.CodeOf(err)))
			s.recordOutcome(om, r, "match", apperrors.CodeOf(err))
			writeAppError(w, "Failed to match resume", err)
			return
		}

		s.recordOutcome(om, r, "match", "")
		span.SetAttributes(
			attribute.Bool("success", true),
			attribute.Float64("match.score", result.Score),
			attribute.String("match.recommendation", result.Recommendation),
		)

		writeJSONResponse(w, http.StatusOK, result)
	}
}

// listResumesHandler returns the stored résumés, newest first
func (s *Server) listResumesHandler(w http.ResponseWriter, r *http.Request) {
	resumes, err := s.Pipeline.Resumes().List(r.Context())
	if err != nil {
		writeAppError(w, "Failed to list resumes", err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"resumes": resumes,
		"count":   len(resumes),
	})
}

// getResumeHandler returns one stored résumé by ID
func (s *Server) getResumeHandler(w http.ResponseWriter, r *http.Request) {
	resume, err := s.Pipeline.Resumes().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if store.IsNotFound(err) {
			writeAppError(w, "Resume not found", err)
		} else {
			writeAppError(w, "Failed to load resume", err)
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, resume)
}

// deleteResumeHandler removes a stored résumé. Deleting an unknown ID is
// treated as success.
func (s *Server) deleteResumeHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Pipeline.Resumes().Delete(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, "Failed to delete resume", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// createInvalidateCacheHandler drops one cached match result when both
// fingerprints are supplied, otherwise sweeps expired entries
func (s *Server) createInvalidateCacheHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InvalidateRequest
		if r.ContentLength > 0 {
			if err := parseJSONRequest(r, &req); err != nil {
				writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
				return
			}
		}

		if req.ResumeFingerprint != "" && req.JobFingerprint != "" {
			err := s.Pipeline.InvalidateMatch(r.Context(),
				types.Fingerprint(req.ResumeFingerprint),
				types.Fingerprint(req.JobFingerprint))
			if err != nil {
				writeAppError(w, "Failed to invalidate cache entry", err)
				return
			}
			writeJSONResponse(w, http.StatusOK, map[string]any{"invalidated": 1})
			return
		}

		evicted, err := s.Pipeline.EvictExpired(r.Context())
		if err != nil {
			writeAppError(w, "Failed to sweep cache", err)
			return
		}

		if metrics := om.GetMetrics(); metrics != nil {
			metrics.RecordCacheEvictions(r.Context(), evicted)
		}

		writeJSONResponse(w, http.StatusOK, map[string]any{"evicted": evicted})
	}
}

// readDocument extracts the uploaded résumé from a multipart form field or,
// for direct uploads, from the raw request body
func (s *Server) readDocument(r *http.Request, field string) (types.RawDocument, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, err := r.FormFile(field)
		if err != nil {
			return types.RawDocument{}, apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
				fmt.Sprintf("multipart field %q is required", field), err)
		}
		defer func() {
			if err := file.Close(); err != nil && s.Logger != nil {
				s.Logger.Warn("Failed to close uploaded file", "error", err)
			}
		}()

		data, err := io.ReadAll(file)
		if err != nil {
			return types.RawDocument{}, apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
				"failed to read uploaded file", err)
		}

		return types.RawDocument{
			Bytes:       data,
			ContentType: header.Header.Get("Content-Type"),
			Filename:    filepath.Base(header.Filename),
		}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return types.RawDocument{}, apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
			"failed to read request body", err)
	}
	if len(data) == 0 {
		return types.RawDocument{}, apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
			"request body is empty", nil)
	}

	return types.RawDocument{
		Bytes:       data,
		ContentType: mediaType,
		Filename:    r.URL.Query().Get("filename"),
	}, nil
}

// readMatchDocumentRequest parses the one-shot match multipart body: a
// "resume" file part plus a "job" part holding the JSON requirement
func (s *Server) readMatchDocumentRequest(r *http.Request) (types.RawDocument, *types.JobRequirement, error) {
	doc, err := s.readDocument(r, "resume")
	if err != nil {
		return types.RawDocument{}, nil, err
	}

	jobValue := r.FormValue("job")
	if jobValue == "" {
		return types.RawDocument{}, nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
			`multipart field "job" is required`, nil)
	}

	var job types.JobRequirement
	if err := unmarshalJob([]byte(jobValue), &job); err != nil {
		return types.RawDocument{}, nil, err
	}
	if err := validateJobRequirement(&job); err != nil {
		return types.RawDocument{}, nil, err
	}

	return doc, &job, nil
}

// unmarshalJob decodes a JSON job requirement
func unmarshalJob(data []byte, job *types.JobRequirement) error {
	if err := json.Unmarshal(data, job); err != nil {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
			"failed to parse job requirement", err)
	}
	return nil
}

// parseMatchRequest parses and validates the JSON match request body
func parseMatchRequest(r *http.Request) (*types.JobRequirement, error) {
	var req MatchRequest
	if err := parseJSONRequest(r, &req); err != nil {
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest, "invalid match request", err)
	}

	if err := validateJobRequirement(&req.Job); err != nil {
		return nil, err
	}

	return &req.Job, nil
}

// validateJobRequirement enforces the job requirement invariants the scorer
// relies on
func validateJobRequirement(job *types.JobRequirement) error {
	for _, skill := range job.Skills {
		if strings.TrimSpace(skill.Name) == "" {
			return apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
				"required skill name must not be empty", nil)
		}
		if skill.Weight < 0 || skill.Weight > 1 {
			return apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
				fmt.Sprintf("skill %q weight must be in [0,1], got %v", skill.Name, skill.Weight), nil)
		}
	}

	if job.MinExperience < 0 {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
			"minimum experience must not be negative", nil)
	}

	if job.EducationLevel != "" && types.EducationRank(job.EducationLevel) == 0 {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
			fmt.Sprintf("unknown education level %q", job.EducationLevel), nil)
	}

	return nil
}

// recordOutcome counts a pipeline operation for the metrics views
func (s *Server) recordOutcome(om *observability.ObservabilityManager, r *http.Request, operation, errorCode string) {
	if metrics := om.GetMetrics(); metrics != nil {
		metrics.RecordPipelineOutcome(r.Context(), operation, errorCode)
	}
}

// createRateLimitMiddleware adds observability to rate limiting
func (s *Server) createRateLimitMiddleware(om *observability.ObservabilityManager) func(http.HandlerFunc) http.HandlerFunc {
	originalMiddleware := s.rateLimitMiddleware()

	return func(next http.HandlerFunc) http.HandlerFunc {
		return originalMiddleware(func(w http.ResponseWriter, r *http.Request) {
			// Wrap the ResponseWriter to detect rate limit responses
			wrapper := &responseWrapper{ResponseWriter: w, statusCode: 200}

			next(wrapper, r)

			// If rate limited, record metric
			if wrapper.statusCode == http.StatusTooManyRequests {
				if metrics := om.GetMetrics(); metrics != nil {
					metrics.RecordRateLimitHit(r.Context(),
						attribute.String("endpoint", r.URL.Path),
						attribute.String("method", r.Method))
				}
			}
		})
	}
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
