package models

import (
	"strings"
	"time"
)

type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type OutputKind string

const (
	OutputAudio OutputKind = "audio"
	OutputVideo OutputKind = "video"
)

// ParseOutputKind accepts the kind names and their container aliases.
// An empty string selects video.
func ParseOutputKind(s string) (OutputKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "video", "mp4":
		return OutputVideo, true
	case "audio", "mp3":
		return OutputAudio, true
	default:
		return "", false
	}
}

// Extension is the canonical file extension, including the dot.
func (k OutputKind) Extension() string {
	if k == OutputAudio {
		return ".mp3"
	}
	return ".mp4"
}

func (k OutputKind) ContentType() string {
	if k == OutputAudio {
		return "audio/mpeg"
	}
	return "video/mp4"
}

// Result describes the file produced by a completed job.
type Result struct {
	FileName    string     `json:"file_name"`
	FilePath    string     `json:"file_path"`
	OutputKind  OutputKind `json:"output_kind"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
}

// Job is one tracked fetch request. Result is set only when Status is
// completed and Error only when Status is failed.
type Job struct {
	ID          string     `json:"id"`
	TraceID     string     `json:"trace_id"`
	Target      string     `json:"target"`
	OutputKind  OutputKind `json:"output_kind"`
	Status      JobStatus  `json:"status"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
