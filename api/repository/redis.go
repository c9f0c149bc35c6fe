package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mediaFetcher/api/models"
)

const (
	jobKeyPrefix       = "job:"
	maxTransitionTries = 5
)

// RedisRepo stores each job as one JSON value. Records expire after ttl,
// which is how finished jobs are evicted.
type RedisRepo struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisRepo(client *redis.Client, ttl time.Duration) *RedisRepo {
	return &RedisRepo{client: client, ttl: ttl, now: time.Now}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func (r *RedisRepo) Create(ctx context.Context, job *models.Job) error {
	stored := job.Clone()
	stored.Status = models.StatusProcessing
	stored.Result = nil
	stored.Error = ""
	stored.CompletedAt = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ok, err := r.client.SetNX(ctx, jobKey(job.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !ok {
		return ErrJobAlreadyExists
	}
	return nil
}

func (r *RedisRepo) Complete(ctx context.Context, id string, result models.Result) error {
	return r.transition(ctx, id, func(job *models.Job) *models.Job {
		return completed(job, result, r.now())
	})
}

func (r *RedisRepo) Fail(ctx context.Context, id string, message string) error {
	return r.transition(ctx, id, func(job *models.Job) *models.Job {
		return failed(job, message, r.now())
	})
}

// transition rewrites the record under WATCH so a concurrent writer aborts
// the transaction instead of interleaving with it.
func (r *RedisRepo) transition(ctx context.Context, id string, next func(*models.Job) *models.Job) error {
	key := jobKey(id)

	txf := func(tx *redis.Tx) error {
		job, err := decodeJob(tx.Get(ctx, key))
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return ErrJobTerminal
		}

		data, err := json.Marshal(next(job))
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTransitionTries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update job %s: %w", id, redis.TxFailedErr)
}

func (r *RedisRepo) Get(ctx context.Context, id string) (*models.Job, error) {
	return decodeJob(r.client.Get(ctx, jobKey(id)))
}

func decodeJob(cmd *redis.StringCmd) (*models.Job, error) {
	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
