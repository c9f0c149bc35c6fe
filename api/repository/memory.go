package repository

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"mediaFetcher/api/models"
)

const shardCount = 32

type shard struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// MemoryRepo keeps jobs in process memory, spread over independently locked
// shards.
type MemoryRepo struct {
	shards [shardCount]*shard
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	r := &MemoryRepo{now: time.Now}
	for i := range r.shards {
		r.shards[i] = &shard{jobs: make(map[string]*models.Job)}
	}
	return r
}

func (r *MemoryRepo) shardFor(id string) *shard {
	return r.shards[xxhash.Sum64String(id)%shardCount]
}

func (r *MemoryRepo) Create(ctx context.Context, job *models.Job) error {
	s := r.shardFor(job.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobAlreadyExists
	}

	stored := job.Clone()
	stored.Status = models.StatusProcessing
	stored.Result = nil
	stored.Error = ""
	stored.CompletedAt = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now()
	}
	s.jobs[job.ID] = stored
	return nil
}

func (r *MemoryRepo) Complete(ctx context.Context, id string, result models.Result) error {
	return r.transition(id, func(job *models.Job) *models.Job {
		return completed(job, result, r.now())
	})
}

func (r *MemoryRepo) Fail(ctx context.Context, id string, message string) error {
	return r.transition(id, func(job *models.Job) *models.Job {
		return failed(job, message, r.now())
	})
}

func (r *MemoryRepo) transition(id string, next func(*models.Job) *models.Job) error {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return ErrJobTerminal
	}
	s.jobs[id] = next(job)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (*models.Job, error) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// Evict drops terminal jobs that finished before the cutoff. Jobs still
// processing are never evicted.
func (r *MemoryRepo) Evict(ctx context.Context, before time.Time) (int, error) {
	evicted := 0
	for _, s := range r.shards {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		s.mu.Lock()
		for id, job := range s.jobs {
			if job.CompletedAt != nil && job.CompletedAt.Before(before) {
				delete(s.jobs, id)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted, nil
}

// Len reports the number of tracked jobs.
func (r *MemoryRepo) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.jobs)
		s.mu.RUnlock()
	}
	return n
}
