package dto

import "errors"

var ErrJobNotFound = errors.New("job not found")

type CreateJobRequest struct {
	Target     string `json:"target"`
	OutputKind string `json:"output_kind,omitempty"`
	Credential string `json:"credential,omitempty"`
}

type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type JobStatusResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	DownloadURL string `json:"download_url,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	Error       string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Active int64  `json:"active"`
	Queued int64  `json:"queued"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
