// Package runner executes fetch jobs in the background and records their
// terminal state.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"mediaFetcher/api/kafka"
	"mediaFetcher/api/models"
	"mediaFetcher/api/repository"
	"mediaFetcher/worker/fetcher"
	"mediaFetcher/worker/pool"
)

const (
	maxErrorLength  = 300
	storeTimeout    = 5 * time.Second
	msgInternal     = "internal error"
	msgShuttingDown = "service is shutting down"
	msgFinalize     = "failed to prepare downloaded file"
	msgFetchFailed  = "download failed"
)

var errProducedFileMissing = errors.New("downloaded file not found after processing")

type Options struct {
	StorageDir   string
	Debug        bool
	SettleDelay  time.Duration
	FetchTimeout time.Duration
}

type Runner struct {
	repo    repository.Repository
	fetcher fetcher.Fetcher
	pool    *pool.WorkerPool
	events  kafka.Publisher
	logger  *zap.Logger
	opts    Options
}

func NewRunner(repo repository.Repository, f fetcher.Fetcher, p *pool.WorkerPool, events kafka.Publisher, logger *zap.Logger, opts Options) *Runner {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &Runner{
		repo:    repo,
		fetcher: f,
		pool:    p,
		events:  events,
		logger:  logger,
		opts:    opts,
	}
}

// Launch schedules the job and returns before the fetch starts. The
// credential is handed to the fetcher and dropped when the fetch returns.
func (r *Runner) Launch(job models.Job, credential string) error {
	return r.pool.Submit(func(ctx context.Context) {
		r.run(ctx, job, credential)
	})
}

func (r *Runner) run(ctx context.Context, job models.Job, credential string) {
	logger := r.logger.With(
		zap.String("job_id", job.ID),
		zap.String("trace_id", job.TraceID),
	)

	completed := false
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Job runner panicked", zap.Any("panic", rec), zap.Stack("stack"))
			if !completed {
				r.fail(logger, job, msgInternal)
			}
		}
	}()

	if ctx.Err() != nil {
		logger.Warn("Job abandoned before start")
		r.fail(logger, job, msgShuttingDown)
		return
	}

	fetchCtx := ctx
	if r.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.opts.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	produced, err := r.fetcher.Fetch(fetchCtx, fetcher.Request{
		Target:     job.Target,
		OutputKind: job.OutputKind,
		Credential: credential,
		OutputDir:  r.opts.StorageDir,
		BaseName:   job.ID,
	})
	if err != nil {
		fields := []zap.Field{zap.Error(err), zap.Duration("duration", time.Since(start))}
		if fetcher.IsUserFault(err) {
			logger.Warn("Fetch rejected", fields...)
		} else {
			logger.Error("Fetch failed", fields...)
		}
		r.fail(logger, job, r.summarize(err))
		return
	}

	result, err := r.finalize(ctx, job, produced)
	if err != nil {
		logger.Error("Failed to finalize produced file",
			zap.String("produced", produced),
			zap.Error(err),
		)
		msg := msgFinalize
		if errors.Is(err, errProducedFileMissing) {
			msg = errProducedFileMissing.Error()
		}
		if r.opts.Debug {
			msg = err.Error()
		}
		r.fail(logger, job, msg)
		return
	}

	storeCtx, cancel := storeContext(ctx)
	defer cancel()

	if err := r.repo.Complete(storeCtx, job.ID, *result); err != nil {
		logger.Error("Failed to record completion", zap.Error(err))
		r.fail(logger, job, msgInternal)
		return
	}
	completed = true

	logger.Info("Job completed",
		zap.String("file_name", result.FileName),
		zap.Int64("size", result.Size),
		zap.Duration("duration", time.Since(start)),
	)
	r.publish(storeCtx, logger, &kafka.JobEvent{
		Type:       kafka.EventJobCompleted,
		JobID:      job.ID,
		TraceID:    job.TraceID,
		OutputKind: string(job.OutputKind),
		FileName:   result.FileName,
	})
}

// fail removes whatever the job produced and records the terminal failure.
func (r *Runner) fail(logger *zap.Logger, job models.Job, message string) {
	r.removeArtifacts(logger, job.ID)

	ctx, cancel := storeContext(context.Background())
	defer cancel()

	if err := r.repo.Fail(ctx, job.ID, message); err != nil {
		logger.Error("Failed to record failure", zap.Error(err))
		return
	}

	r.publish(ctx, logger, &kafka.JobEvent{
		Type:       kafka.EventJobFailed,
		JobID:      job.ID,
		TraceID:    job.TraceID,
		OutputKind: string(job.OutputKind),
		Error:      message,
	})
}

func (r *Runner) publish(ctx context.Context, logger *zap.Logger, event *kafka.JobEvent) {
	event.OccurredAt = time.Now().UTC()
	if err := r.events.PublishJobEvent(ctx, event); err != nil {
		logger.Warn("Failed to publish job event",
			zap.String("event", event.Type),
			zap.Error(err),
		)
	}
}

// finalize maps the fetcher's reported path to a file in the storage
// directory carrying the requested kind's extension.
func (r *Runner) finalize(ctx context.Context, job models.Job, produced string) (*models.Result, error) {
	name := filepath.Base(produced)
	if !strings.HasPrefix(name, job.ID+"_") {
		return nil, fmt.Errorf("produced file %q does not belong to job", name)
	}

	ext := job.OutputKind.Extension()
	finalName := strings.TrimSuffix(name, filepath.Ext(name)) + ext
	path := filepath.Join(r.opts.StorageDir, name)
	finalPath := filepath.Join(r.opts.StorageDir, finalName)

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, r.opts.SettleDelay); err != nil {
				return nil, err
			}
		}

		if info, err := os.Stat(finalPath); err == nil {
			if path != finalPath {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					r.logger.Warn("Failed to remove intermediate file", zap.String("file_name", name), zap.Error(err))
				}
			}
			return newResult(job.OutputKind, finalName, finalPath, info.Size()), nil
		}

		if _, err := os.Stat(path); err == nil {
			if err := os.Rename(path, finalPath); err != nil {
				return nil, fmt.Errorf("normalize extension: %w", err)
			}
			info, err := os.Stat(finalPath)
			if err != nil {
				return nil, fmt.Errorf("stat normalized file: %w", err)
			}
			return newResult(job.OutputKind, finalName, finalPath, info.Size()), nil
		}
	}

	return nil, errProducedFileMissing
}

func newResult(kind models.OutputKind, name, path string, size int64) *models.Result {
	return &models.Result{
		FileName:    name,
		FilePath:    path,
		OutputKind:  kind,
		ContentType: kind.ContentType(),
		Size:        size,
	}
}

// removeArtifacts deletes every file in the storage directory owned by the job.
func (r *Runner) removeArtifacts(logger *zap.Logger, jobID string) {
	matches, err := filepath.Glob(filepath.Join(r.opts.StorageDir, jobID+"_*"))
	if err != nil {
		logger.Warn("Failed to list job artifacts", zap.Error(err))
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove job artifact",
				zap.String("file_name", filepath.Base(path)),
				zap.Error(err),
			)
			continue
		}
		logger.Info("Removed job artifact", zap.String("file_name", filepath.Base(path)))
	}
}

// summarize returns the caller-facing failure text: the first non-empty
// line unless debug output is enabled.
func (r *Runner) summarize(err error) string {
	msg := strings.TrimSpace(err.Error())
	if r.opts.Debug && msg != "" {
		return msg
	}
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if runes := []rune(line); len(runes) > maxErrorLength {
			line = string(runes[:maxErrorLength])
		}
		return line
	}
	return msgFetchFailed
}

func storeContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), storeTimeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
