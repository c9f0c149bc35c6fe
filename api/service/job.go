package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"mediaFetcher/api/dto"
	"mediaFetcher/api/idgen"
	"mediaFetcher/api/kafka"
	"mediaFetcher/api/models"
	"mediaFetcher/api/repository"
	"mediaFetcher/api/validation"
)

const msgNotAccepted = "service is not accepting new jobs"

// Launcher starts a registered job in the background without blocking.
type Launcher interface {
	Launch(job models.Job, credential string) error
}

type JobService struct {
	repo     repository.Repository
	ids      idgen.Allocator
	launcher Launcher
	events   kafka.Publisher
	logger   *zap.Logger
	baseURL  string
}

func NewJobService(repo repository.Repository, ids idgen.Allocator, launcher Launcher, events kafka.Publisher, logger *zap.Logger, baseURL string) *JobService {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &JobService{
		repo:     repo,
		ids:      ids,
		launcher: launcher,
		events:   events,
		logger:   logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// CreateJob validates the request, records the job and hands it to the
// launcher. Fetch failures surface only through GetJobStatus.
func (s *JobService) CreateJob(ctx context.Context, traceID string, req *dto.CreateJobRequest) (*dto.CreateJobResponse, error) {
	target, err := validation.ValidateTarget(req.Target)
	if err != nil {
		return nil, err
	}
	kind, err := validation.ValidateOutputKind(req.OutputKind)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateCredential(req.Credential); err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:         s.ids.Allocate(),
		TraceID:    traceID,
		Target:     target,
		OutputKind: kind,
		Status:     models.StatusProcessing,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	logger := s.logger.With(zap.String("trace_id", traceID), zap.String("job_id", job.ID))

	s.publish(ctx, logger, &kafka.JobEvent{
		Type:       kafka.EventJobSubmitted,
		JobID:      job.ID,
		TraceID:    traceID,
		OutputKind: string(kind),
	})

	if err := s.launcher.Launch(*job, req.Credential); err != nil {
		logger.Error("Failed to launch job", zap.Error(err))
		if ferr := s.repo.Fail(context.WithoutCancel(ctx), job.ID, msgNotAccepted); ferr != nil {
			logger.Error("Failed to record launch failure", zap.Error(ferr))
		} else {
			s.publish(ctx, logger, &kafka.JobEvent{
				Type:       kafka.EventJobFailed,
				JobID:      job.ID,
				TraceID:    traceID,
				OutputKind: string(kind),
				Error:      msgNotAccepted,
			})
		}
	}

	logger.Info("Job submitted",
		zap.String("target", target),
		zap.String("output_kind", string(kind)),
		zap.Bool("credential", req.Credential != ""),
	)

	return &dto.CreateJobResponse{
		JobID:  job.ID,
		Status: string(models.StatusProcessing),
	}, nil
}

func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (*dto.JobStatusResponse, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, dto.ErrJobNotFound
		}
		return nil, err
	}

	return s.toResponse(job), nil
}

func (s *JobService) toResponse(job *models.Job) *dto.JobStatusResponse {
	resp := &dto.JobStatusResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	}

	switch job.Status {
	case models.StatusCompleted:
		if job.Result != nil {
			resp.FileName = job.Result.FileName
			resp.DownloadURL = s.downloadURL(job.Result.FileName)
		}
	case models.StatusFailed:
		resp.Error = job.Error
	}

	return resp
}

func (s *JobService) downloadURL(fileName string) string {
	return s.baseURL + "/files/" + url.PathEscape(fileName)
}

func (s *JobService) publish(ctx context.Context, logger *zap.Logger, event *kafka.JobEvent) {
	event.OccurredAt = time.Now().UTC()
	if err := s.events.PublishJobEvent(ctx, event); err != nil {
		logger.Warn("Failed to publish job event", zap.String("event", event.Type), zap.Error(err))
	}
}
