// Package janitor periodically drops expired job records and files that were
// produced but never downloaded.
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mediaFetcher/api/repository"
)

// Claims reports whether a file is currently being delivered. Such files are
// owned by the delivery manager and left alone.
type Claims interface {
	Pending(name string) bool
}

type Options struct {
	StorageDir string
	Interval   time.Duration
	JobTTL     time.Duration
	MaxFileAge time.Duration
}

type Janitor struct {
	evicter repository.Evicter
	claims  Claims
	logger  *zap.Logger
	opts    Options
	now     func() time.Time
}

// NewJanitor builds a janitor. evicter may be nil for stores that expire
// records on their own.
func NewJanitor(evicter repository.Evicter, claims Claims, logger *zap.Logger, opts Options) *Janitor {
	return &Janitor{
		evicter: evicter,
		claims:  claims,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.opts.Interval)
	defer ticker.Stop()

	j.logger.Info("Janitor started",
		zap.Duration("interval", j.opts.Interval),
		zap.Duration("job_ttl", j.opts.JobTTL),
		zap.Duration("max_file_age", j.opts.MaxFileAge),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Janitor stopped")
			return nil
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one pass over the store and the storage directory.
func (j *Janitor) Sweep(ctx context.Context) {
	now := j.now()

	if j.evicter != nil {
		n, err := j.evicter.Evict(ctx, now.Add(-j.opts.JobTTL))
		if err != nil {
			j.logger.Warn("Job eviction failed", zap.Error(err))
		} else if n > 0 {
			j.logger.Info("Evicted expired jobs", zap.Int("count", n))
		}
	}

	if j.opts.MaxFileAge > 0 {
		j.sweepFiles(now.Add(-j.opts.MaxFileAge))
	}
}

func (j *Janitor) sweepFiles(before time.Time) {
	entries, err := os.ReadDir(j.opts.StorageDir)
	if err != nil {
		j.logger.Warn("Failed to list storage dir", zap.String("dir", j.opts.StorageDir), zap.Error(err))
		return
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if j.claims != nil && j.claims.Pending(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}

		if err := os.Remove(filepath.Join(j.opts.StorageDir, name)); err != nil && !os.IsNotExist(err) {
			j.logger.Warn("Failed to remove stale file", zap.String("file_name", name), zap.Error(err))
			continue
		}
		j.logger.Info("Removed undelivered file",
			zap.String("file_name", name),
			zap.Time("modified", info.ModTime()),
		)
	}
}
