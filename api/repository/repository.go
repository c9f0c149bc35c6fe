package repository

import (
	"context"
	"errors"
	"time"

	"mediaFetcher/api/models"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobAlreadyExists = errors.New("job already exists")
	ErrJobTerminal      = errors.New("job already in terminal state")
)

// Repository is the source of truth for job lifecycle state. Complete and
// Fail replace the record atomically, so Get never observes a half-written
// transition.
type Repository interface {
	Create(ctx context.Context, job *models.Job) error
	Complete(ctx context.Context, id string, result models.Result) error
	Fail(ctx context.Context, id string, message string) error
	Get(ctx context.Context, id string) (*models.Job, error)
}

// Evicter is implemented by stores that need an explicit sweep to drop old
// terminal records.
type Evicter interface {
	Evict(ctx context.Context, before time.Time) (int, error)
}

func completed(job *models.Job, result models.Result, now time.Time) *models.Job {
	next := job.Clone()
	r := result
	next.Status = models.StatusCompleted
	next.Result = &r
	next.Error = ""
	next.CompletedAt = &now
	return next
}

func failed(job *models.Job, message string, now time.Time) *models.Job {
	next := job.Clone()
	next.Status = models.StatusFailed
	next.Result = nil
	next.Error = message
	next.CompletedAt = &now
	return next
}
