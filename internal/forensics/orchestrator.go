// Package forensics drives forensic analysis jobs through their lifecycle.
// The orchestrator is the only component that knows job identity; every
// stage below it is a stateless function over explicit inputs.
package forensics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/events"
	"github.com/virtforensics/memory-inspector/internal/forensics/acquire"
	"github.com/virtforensics/memory-inspector/internal/forensics/normalize"
	"github.com/virtforensics/memory-inspector/internal/forensics/symbols"
	"github.com/virtforensics/memory-inspector/internal/forensics/tools"
	"github.com/virtforensics/memory-inspector/internal/store"
	"github.com/virtforensics/memory-inspector/internal/store/model"
	"github.com/virtforensics/memory-inspector/pkg/metrics"
)

var (
	ErrJobNotRunning  = errors.New("job is not running")
	ErrJobAlreadyRuns = errors.New("job is already running")
)

// KnownTools lists the analysis tools the pipeline can dispatch.
func KnownTools() []string {
	return tools.NewRegistry().Names()
}

// Acquirer captures a guest memory image.
type Acquirer interface {
	Acquire(ctx context.Context, instanceID string) (*acquire.Image, error)
	Preflight(ctx context.Context) error
}

// Resolver produces a symbol table for a kernel version.
type Resolver interface {
	Resolve(ctx context.Context, key symbols.Key) (*symbols.Artifact, error)
}

// Dispatcher fans analysis tools out against an image.
type Dispatcher interface {
	Dispatch(ctx context.Context, target tools.Target, requested []string, onFinished func(done, total int)) []tools.Invocation
}

// Renderer turns a finished job into a report file.
type Renderer interface {
	Render(job *api.Job) (string, error)
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Orchestrator struct {
	cfg        *config.Config
	store      store.Store
	acquirer   Acquirer
	resolver   Resolver
	dispatcher Dispatcher
	registry   *tools.Registry
	renderer   Renderer
	producer   *events.EventProducer

	mu    sync.Mutex
	tasks map[uuid.UUID]*task
}

func NewOrchestrator(cfg *config.Config, s store.Store, acquirer Acquirer, resolver Resolver, dispatcher Dispatcher, registry *tools.Registry, renderer Renderer, producer *events.EventProducer) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		store:      s,
		acquirer:   acquirer,
		resolver:   resolver,
		dispatcher: dispatcher,
		registry:   registry,
		renderer:   renderer,
		producer:   producer,
		tasks:      map[uuid.UUID]*task{},
	}
}

// Start schedules an already persisted job for execution. The job runs on
// its own background context, it outlives the submitting request.
func (o *Orchestrator) Start(job api.Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, found := o.tasks[job.Id]; found {
		return ErrJobAlreadyRuns
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	o.tasks[job.Id] = t
	metrics.UpdateActiveJobsCountMetric(len(o.tasks))

	go o.run(ctx, job, t)
	return nil
}

// Cancel requests cancellation of a running job and waits for it to settle
// within the configured grace period. Terminal jobs are not running and
// return ErrJobNotRunning.
func (o *Orchestrator) Cancel(jobID uuid.UUID) error {
	o.mu.Lock()
	t, found := o.tasks[jobID]
	o.mu.Unlock()
	if !found {
		return ErrJobNotRunning
	}

	t.cancel()
	select {
	case <-t.done:
		return nil
	case <-time.After(o.cfg.Forensics.CancelGrace):
		return fmt.Errorf("job %s did not settle within %s", jobID, o.cfg.Forensics.CancelGrace)
	}
}

// Running reports whether the job currently executes.
func (o *Orchestrator) Running(jobID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, found := o.tasks[jobID]
	return found
}

// Recover settles jobs that were mid-flight when the previous process died.
// Their child processes are gone, the honest terminal state is Failed.
func (o *Orchestrator) Recover(ctx context.Context) error {
	jobs, err := o.store.Job().List(ctx, store.NewJobQueryFilter().ByNonTerminalStatus())
	if err != nil {
		return err
	}
	for _, j := range jobs {
		job := j.ToApiResource()
		job.Status = api.JobStatusFailed
		job.Error = "interrupted by service restart"
		now := time.Now()
		job.FinishedAt = &now
		if _, err := o.store.Job().Update(ctx, model.NewJobFromApi(job)); err != nil {
			return err
		}
		zap.S().Named("orchestrator").Warnf("job %s marked failed after restart", job.Id)
	}
	return nil
}

func (o *Orchestrator) unregister(jobID uuid.UUID, t *task) {
	o.mu.Lock()
	delete(o.tasks, jobID)
	metrics.UpdateActiveJobsCountMetric(len(o.tasks))
	o.mu.Unlock()
	close(t.done)
}

// run executes the full pipeline for one job. Persistence always happens on
// a background context so a cancelled job can still record its terminal
// state.
func (o *Orchestrator) run(ctx context.Context, job api.Job, t *task) {
	defer o.unregister(job.Id, t)
	logger := zap.S().Named("orchestrator")

	now := time.Now()
	job.StartedAt = &now
	o.emit(&job)

	workDir, err := tools.NewWorkDir("", job.Id.String())
	if err != nil {
		o.fail(&job, fmt.Errorf("creating scratch directory: %w", err))
		return
	}
	defer os.RemoveAll(workDir)

	// stage 1: acquisition
	if job.Image == nil {
		o.advance(&job, api.JobStatusAcquiring, 5, "Locating guest domain")

		image, err := o.acquirer.Acquire(ctx, job.InstanceId)
		if err != nil {
			if ctx.Err() != nil {
				o.settleCancelled(&job)
				return
			}
			o.fail(&job, err)
			return
		}
		apiImage, err := o.persistImage(image)
		if err != nil {
			o.fail(&job, err)
			return
		}
		job.Image = apiImage
		logger.Infof("job %s acquired image %s (%d bytes)", job.Id, apiImage.Path, apiImage.SizeBytes)
	}
	o.advance(&job, api.JobStatusAcquiring, 20, "Memory image acquired")

	if ctx.Err() != nil {
		o.settleCancelled(&job)
		return
	}

	// stage 2: symbols and analysis
	o.advance(&job, api.JobStatusAnalyzing, 30, "Resolving kernel symbols")
	target := tools.Target{ImagePath: job.Image.Path, WorkDir: workDir}
	o.resolveSymbols(ctx, &job, &target)

	if ctx.Err() != nil {
		o.settleCancelled(&job)
		return
	}

	requested := job.Tools
	if len(requested) == 0 {
		requested = o.cfg.Forensics.Tools
	}
	o.advance(&job, api.JobStatusAnalyzing, 32, "Running analysis tools")
	var progressMu sync.Mutex
	invocations := o.dispatcher.Dispatch(ctx, target, requested, func(done, total int) {
		// tool goroutines report completion concurrently
		progressMu.Lock()
		defer progressMu.Unlock()
		o.advance(&job, api.JobStatusAnalyzing, 32+(48*done)/total, fmt.Sprintf("Running analysis tools (%d/%d)", done, total))
	})

	if ctx.Err() != nil {
		o.settleCancelled(&job)
		return
	}

	// stage 3: aggregation
	o.advance(&job, api.JobStatusAggregating, 85, "Aggregating results")
	results := o.buildResults(invocations, target.SymbolsDegraded)
	job.Results = results

	if !anyRan(results.Invocations) {
		o.fail(&job, fmt.Errorf("no runnable analysis tools for image"))
		return
	}

	// stage 4: report, failure here never erases the results
	o.advance(&job, api.JobStatusAggregating, 95, "Generating report")
	if path, err := o.renderer.Render(&job); err != nil {
		logger.Errorf("report generation failed for job %s: %v", job.Id, err)
		metrics.IncreaseReportGenerationsFailedMetric()
	} else {
		job.ReportPath = path
	}

	finished := time.Now()
	job.FinishedAt = &finished
	o.advance(&job, api.JobStatusCompleted, 100, "Completed")
	metrics.IncreaseForensicJobsTotalMetric(string(api.JobStatusCompleted))
	o.emit(&job)
	logger.Infof("job %s completed: %d/%d tools succeeded", job.Id, results.Summary.ToolsSucceeded, results.Summary.ToolsRequested)
}

// resolveSymbols resolves a table when any requested tool needs one. An
// unresolved table degrades dependent tools to skipped, never the job.
func (o *Orchestrator) resolveSymbols(ctx context.Context, job *api.Job, target *tools.Target) {
	logger := zap.S().Named("orchestrator")

	needed := false
	requested := job.Tools
	if len(requested) == 0 {
		requested = o.cfg.Forensics.Tools
	}
	for _, name := range requested {
		if spec, ok := o.registry.Get(name); ok && spec.NeedsSymbols {
			needed = true
			break
		}
	}
	if !needed {
		return
	}

	banner, err := acquire.ScanKernelBanner(job.Image.Path)
	if err != nil {
		logger.Warnf("job %s: kernel banner not found, symbol-dependent tools will be skipped: %v", job.Id, err)
		return
	}

	artifact, err := o.resolver.Resolve(ctx, symbols.Key{KernelVersion: banner.KernelVersion, Banner: banner.Raw})
	if err != nil {
		logger.Warnf("job %s: symbol resolution failed for kernel %s: %v", job.Id, banner.KernelVersion, err)
		return
	}
	target.SymbolPath = artifact.Path
	target.SymbolsDegraded = artifact.Degraded
}

func (o *Orchestrator) buildResults(invocations []tools.Invocation, degraded bool) *api.ResultSet {
	apiInvocations := make([]api.ToolInvocation, 0, len(invocations))
	for _, invocation := range invocations {
		apiInvocation := api.ToolInvocation{
			Tool:     invocation.Tool,
			Status:   invocation.Status,
			Duration: invocation.Duration,
			Error:    invocation.Error,
		}
		if invocation.Status == api.ToolStatusCompleted {
			result := normalize.Normalize(invocation.Tool, invocation.Raw)
			apiInvocation.Result = &result
		}
		apiInvocations = append(apiInvocations, apiInvocation)
	}

	return &api.ResultSet{
		Invocations: apiInvocations,
		Summary:     normalize.Aggregate(apiInvocations),
		Degraded:    degraded,
	}
}

func anyRan(invocations []api.ToolInvocation) bool {
	for _, invocation := range invocations {
		if invocation.Status == api.ToolStatusCompleted || invocation.Status == api.ToolStatusFailed {
			return true
		}
	}
	return false
}

// advance moves the job forward and persists the snapshot. Progress never
// moves backwards.
func (o *Orchestrator) advance(job *api.Job, status api.JobStatus, progress int, step string) {
	if progress < job.Progress {
		progress = job.Progress
	}
	job.Status = status
	job.Progress = progress
	job.CurrentStep = step

	if _, err := o.store.Job().Update(context.Background(), model.NewJobFromApi(*job)); err != nil {
		zap.S().Named("orchestrator").Errorf("failed to persist job %s: %v", job.Id, err)
	}
}

func (o *Orchestrator) fail(job *api.Job, cause error) {
	now := time.Now()
	job.FinishedAt = &now
	job.Error = cause.Error()
	o.advance(job, api.JobStatusFailed, job.Progress, "Failed")
	metrics.IncreaseForensicJobsTotalMetric(string(api.JobStatusFailed))
	o.emit(job)
	zap.S().Named("orchestrator").Errorf("job %s failed: %v", job.Id, cause)
}

func (o *Orchestrator) settleCancelled(job *api.Job) {
	now := time.Now()
	job.FinishedAt = &now
	job.Error = "cancelled on request"
	o.advance(job, api.JobStatusCancelled, job.Progress, "Cancelled")
	metrics.IncreaseForensicJobsTotalMetric(string(api.JobStatusCancelled))
	o.emit(job)
	zap.S().Named("orchestrator").Infof("job %s cancelled", job.Id)
}

func (o *Orchestrator) persistImage(image *acquire.Image) (*api.Image, error) {
	record, err := o.store.Image().Create(context.Background(), model.Image{
		ID:         uuid.New(),
		InstanceID: image.InstanceID,
		Domain:     image.Domain,
		Path:       image.Path,
		Format:     image.Format,
		SizeBytes:  image.SizeBytes,
		Sha256:     image.Sha256,
	})
	if err != nil {
		return nil, err
	}
	apiImage := record.ToApiResource()

	if o.producer != nil {
		payload, err := json.Marshal(events.ImageEvent{
			ImageID:    apiImage.Id.String(),
			InstanceID: apiImage.InstanceId,
			Domain:     apiImage.Domain,
			SizeBytes:  apiImage.SizeBytes,
			Sha256:     apiImage.Sha256,
		})
		if err == nil {
			_ = o.producer.Write(context.TODO(), events.ImageMessageKind, bytes.NewReader(payload))
		}
	}
	return &apiImage, nil
}

func (o *Orchestrator) emit(job *api.Job) {
	if o.producer == nil {
		return
	}
	payload, err := json.Marshal(events.JobEvent{
		JobID:      job.Id.String(),
		InstanceID: job.InstanceId,
		Status:     string(job.Status),
		Error:      job.Error,
	})
	if err != nil {
		return
	}
	_ = o.producer.Write(context.TODO(), events.JobMessageKind, bytes.NewReader(payload))
}
