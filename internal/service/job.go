// Package service implements the business layer between the HTTP handlers
// and the pipeline. It validates requests, owns persistence of job records
// and hands accepted jobs to the orchestrator.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/forensics"
	"github.com/virtforensics/memory-inspector/internal/store"
	"github.com/virtforensics/memory-inspector/internal/store/model"
	"github.com/virtforensics/memory-inspector/pkg/log"
)

type JobService struct {
	store        store.Store
	cfg          *config.Config
	orchestrator *forensics.Orchestrator
	acquirer     forensics.Acquirer
	validator    *validator.Validate
	logger       *log.StructuredLogger
}

func NewJobService(s store.Store, cfg *config.Config, orchestrator *forensics.Orchestrator, acquirer forensics.Acquirer) *JobService {
	return &JobService{
		store:        s,
		cfg:          cfg,
		orchestrator: orchestrator,
		acquirer:     acquirer,
		validator:    validator.New(validator.WithRequiredStructEnabled()),
		logger:       log.NewInfoLogger("job_service"),
	}
}

// CreateJob validates a submission, persists the pending job and schedules
// it. The call returns as soon as the job is accepted, progress is observed
// through GetJob.
func (s *JobService) CreateJob(ctx context.Context, request api.SubmitJobRequest) (*api.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("create_job").Build()

	if err := s.validator.Struct(request); err != nil {
		tracer.Error(err).Log()
		return nil, NewErrInvalidRequest(err.Error())
	}
	if err := s.validateTools(request.Tools); err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	job := api.Job{
		Id:         uuid.New(),
		InstanceId: request.InstanceId,
		Status:     api.JobStatusPending,
		Tools:      request.Tools,
	}

	if request.ImageId != nil {
		// analysis of a previously captured image, no hypervisor involved
		image, err := s.getImage(ctx, *request.ImageId)
		if err != nil {
			tracer.Error(err).Log()
			return nil, err
		}
		if image.InstanceId != request.InstanceId {
			err := NewErrInstanceMismatch(image.Id, request.InstanceId)
			tracer.Error(err).Log()
			return nil, err
		}
		job.Image = image
	} else if err := s.acquirer.Preflight(ctx); err != nil {
		err := NewErrHypervisorUnavailable(err)
		tracer.Error(err).Log()
		return nil, err
	}

	record, err := s.store.Job().Create(ctx, model.NewJobFromApi(job))
	if err != nil {
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	created := record.ToApiResource()
	created.Image = job.Image

	if err := s.orchestrator.Start(created); err != nil {
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to schedule job: %w", err)
	}

	tracer.Success().WithParam("job_id", created.Id).WithParam("instance_id", created.InstanceId).Log()
	return &created, nil
}

func (s *JobService) ListJobs(ctx context.Context, filter JobFilter) (api.JobList, error) {
	tracer := s.logger.WithContext(ctx).Operation("list_jobs").Build()

	queryFilter := store.NewJobQueryFilter()
	if filter.InstanceID != "" {
		queryFilter = queryFilter.ByInstanceID(filter.InstanceID)
	}
	if filter.Status != "" {
		status := api.StringToJobStatus(filter.Status)
		if status == "" {
			err := NewErrInvalidRequest(fmt.Sprintf("unknown status %q", filter.Status))
			tracer.Error(err).Log()
			return nil, err
		}
		queryFilter = queryFilter.ByStatus(status)
	}

	records, err := s.store.Job().List(ctx, queryFilter)
	if err != nil {
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	tracer.Success().WithParam("count", len(records)).Log()
	return records.ToApiResource(), nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("get_job").Build()

	record, err := s.store.Job().Get(ctx, id)
	if err != nil {
		tracer.Error(err).Log()
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job := record.ToApiResource()
	tracer.Success().WithParam("job_id", id).Log()
	return &job, nil
}

// CancelJob stops a running job. Cancelling a terminal job is an error, the
// terminal state never changes afterwards.
func (s *JobService) CancelJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("cancel_job").Build()

	record, err := s.store.Job().Get(ctx, id)
	if err != nil {
		tracer.Error(err).Log()
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job := record.ToApiResource()
	if job.Status.Terminal() {
		err := NewErrJobFinished(id)
		tracer.Error(err).Log()
		return nil, err
	}

	if err := s.orchestrator.Cancel(id); err != nil {
		if errors.Is(err, forensics.ErrJobNotRunning) {
			// pending in the store but never scheduled, settle it directly
			return s.settleUnscheduled(ctx, tracer, job)
		}
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}

	record, err = s.store.Job().Get(ctx, id)
	if err != nil {
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	cancelled := record.ToApiResource()
	tracer.Success().WithParam("job_id", id).Log()
	return &cancelled, nil
}

func (s *JobService) settleUnscheduled(ctx context.Context, tracer *log.Tracer, job api.Job) (*api.Job, error) {
	now := time.Now()
	job.Status = api.JobStatusCancelled
	job.CurrentStep = "Cancelled"
	job.Error = "cancelled on request"
	job.FinishedAt = &now

	record, err := s.store.Job().Update(ctx, model.NewJobFromApi(job))
	if err != nil {
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}
	cancelled := record.ToApiResource()
	tracer.Success().WithParam("job_id", job.Id).Log()
	return &cancelled, nil
}

// DeleteJob removes the job together with its captured image, unless another
// job still references the same image. Row deletes share one transaction,
// the image file is only removed once that transaction committed.
func (s *JobService) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tracer := s.logger.WithContext(ctx).Operation("delete_job").Build()

	if s.orchestrator.Running(id) {
		if err := s.orchestrator.Cancel(id); err != nil && !errors.Is(err, forensics.ErrJobNotRunning) {
			tracer.Error(err).Log()
			return fmt.Errorf("failed to stop job before delete: %w", err)
		}
	}

	record, err := s.store.Job().Get(ctx, id)
	if err != nil {
		tracer.Error(err).Log()
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(id)
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	ctx, err = s.store.NewTransactionContext(ctx)
	if err != nil {
		tracer.Error(err).Log()
		return fmt.Errorf("failed to delete job: %w", err)
	}

	if err := s.store.Job().Delete(ctx, id); err != nil {
		_, _ = store.Rollback(ctx)
		tracer.Error(err).Log()
		return fmt.Errorf("failed to delete job: %w", err)
	}

	imagePath := ""
	if record.ImageID != nil {
		others, err := s.store.Job().List(ctx, store.NewJobQueryFilter().ByImageID(*record.ImageID))
		if err != nil {
			_, _ = store.Rollback(ctx)
			tracer.Error(err).Log()
			return fmt.Errorf("failed to delete job: %w", err)
		}
		if len(others) == 0 {
			if err := s.store.Image().Delete(ctx, *record.ImageID); err != nil {
				_, _ = store.Rollback(ctx)
				tracer.Error(err).Log()
				return fmt.Errorf("failed to delete image: %w", err)
			}
			if record.Image != nil {
				imagePath = record.Image.Path
			}
		}
	}

	if _, err := store.Commit(ctx); err != nil {
		tracer.Error(err).Log()
		return fmt.Errorf("failed to delete job: %w", err)
	}

	if imagePath != "" {
		// a leftover file is collected by the retention sweep
		if err := os.Remove(imagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			tracer.Error(err).Log()
		}
	}

	tracer.Success().WithParam("job_id", id).Log()
	return nil
}

// JobFilter narrows ListJobs. Empty fields match everything.
type JobFilter struct {
	InstanceID string
	Status     string
}

func (s *JobService) validateTools(names []string) error {
	known := map[string]bool{}
	for _, name := range forensics.KnownTools() {
		known[name] = true
	}
	for _, name := range names {
		if !known[name] {
			return NewErrInvalidRequest(fmt.Sprintf("unknown tool %q", name))
		}
	}
	return nil
}

func (s *JobService) getImage(ctx context.Context, id uuid.UUID) (*api.Image, error) {
	record, err := s.store.Image().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrImageNotFound(id)
		}
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	image := record.ToApiResource()
	return &image, nil
}
