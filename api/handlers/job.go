package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mediaFetcher/api/dto"
	"mediaFetcher/api/middleware"
	"mediaFetcher/api/validation"
)

const maxRequestBody = 2 << 20

type JobService interface {
	CreateJob(ctx context.Context, traceID string, req *dto.CreateJobRequest) (*dto.CreateJobResponse, error)
	GetJobStatus(ctx context.Context, jobID string) (*dto.JobStatusResponse, error)
}

type JobHandler struct {
	service JobService
	logger  *zap.Logger
}

func NewJobHandler(service JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.CreateJobRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		handleError(w, h.logger, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.CreateJob(r.Context(), traceID, &req)
	if err != nil {
		if isValidationError(err) {
			handleError(w, h.logger, err.Error(), err, traceID, http.StatusBadRequest)
			return
		}
		handleError(w, h.logger, "Failed to create job", err, traceID, http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusAccepted, resp)
}

func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	jobID := strings.TrimSpace(r.PathValue("job_id"))
	if jobID == "" {
		handleError(w, h.logger, "Job ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetJobStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, dto.ErrJobNotFound) {
			handleError(w, h.logger, "Job not found", err, traceID, http.StatusNotFound)
			return
		}
		handleError(w, h.logger, "Failed to get job status", err, traceID, http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func isValidationError(err error) bool {
	for _, target := range []error{
		validation.ErrMissingTarget,
		validation.ErrInvalidTarget,
		validation.ErrTargetTooLong,
		validation.ErrInvalidOutputKind,
		validation.ErrCredentialTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func handleError(w http.ResponseWriter, logger *zap.Logger, message string, err error, traceID string, status int) {
	fields := []zap.Field{
		zap.String("trace_id", traceID),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error(message, fields...)
	} else {
		logger.Info(message, fields...)
	}

	respondJSON(w, status, dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
