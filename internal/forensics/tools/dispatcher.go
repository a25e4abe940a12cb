package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/forensics/runner"
	"github.com/virtforensics/memory-inspector/pkg/metrics"
)

// Invocation is one tool's finished run. Raw carries the captured output the
// normalizer works on.
type Invocation struct {
	Tool      string
	Status    api.ToolStatus
	Duration  time.Duration
	Error     string
	Raw       []byte
	Truncated bool
}

// Dispatcher fans requested tools out over a bounded worker pool. Each
// invocation is independent, a crash or timeout in one never touches its
// siblings.
type Dispatcher struct {
	run         runner.Runner
	registry    *Registry
	maxParallel int64
	toolTimeout time.Duration
}

func NewDispatcher(cfg *config.Config, run runner.Runner, registry *Registry) *Dispatcher {
	return &Dispatcher{
		run:         run,
		registry:    registry,
		maxParallel: cfg.Forensics.MaxParallel,
		toolTimeout: cfg.Forensics.ToolTimeout,
	}
}

// Dispatch runs every requested tool against the target. The returned slice
// holds one entry per requested tool in request order, each with a definite
// terminal status. onFinished, when set, is called after each tool settles.
func (d *Dispatcher) Dispatch(ctx context.Context, target Target, requested []string, onFinished func(done, total int)) []Invocation {
	logger := zap.S().Named("dispatch")

	invocations := make([]Invocation, len(requested))
	sem := semaphore.NewWeighted(d.maxParallel)
	var wg sync.WaitGroup
	var finished int32
	total := len(requested)

	notify := func() {
		if onFinished != nil {
			onFinished(int(atomic.AddInt32(&finished, 1)), total)
		}
	}

	for i, name := range requested {
		invocations[i] = Invocation{Tool: name, Status: api.ToolStatusNotRun}

		spec, ok := d.registry.Get(name)
		if !ok {
			invocations[i].Status = api.ToolStatusSkipped
			invocations[i].Error = "unknown tool"
			notify()
			continue
		}
		if _, err := d.run.LookPath(spec.Binary); err != nil {
			invocations[i].Status = api.ToolStatusSkipped
			invocations[i].Error = fmt.Sprintf("%s not installed", spec.Binary)
			metrics.IncreaseToolInvocationsTotalMetric(name, string(api.ToolStatusSkipped))
			notify()
			continue
		}
		if spec.NeedsSymbols && target.SymbolPath == "" {
			invocations[i].Status = api.ToolStatusSkipped
			invocations[i].Error = "symbol table unresolved"
			metrics.IncreaseToolInvocationsTotalMetric(name, string(api.ToolStatusSkipped))
			notify()
			continue
		}

		wg.Add(1)
		go func(i int, spec Spec) {
			defer wg.Done()
			defer notify()

			if err := sem.Acquire(ctx, 1); err != nil {
				invocations[i].Status = api.ToolStatusFailed
				invocations[i].Error = "cancelled before start"
				return
			}
			defer sem.Release(1)

			invocations[i] = d.invoke(ctx, spec, target)
			logger.Infof("tool %s finished with status %s in %s", spec.Name, invocations[i].Status, invocations[i].Duration)
			metrics.IncreaseToolInvocationsTotalMetric(spec.Name, string(invocations[i].Status))
		}(i, spec)
	}

	wg.Wait()
	return invocations
}

func (d *Dispatcher) invoke(ctx context.Context, spec Spec, target Target) Invocation {
	invocation := Invocation{Tool: spec.Name, Status: api.ToolStatusRunning}

	if spec.Prepare != nil {
		if err := spec.Prepare(target); err != nil {
			invocation.Status = api.ToolStatusFailed
			invocation.Error = fmt.Sprintf("prepare failed: %v", err)
			return invocation
		}
	}

	binary, err := d.run.LookPath(spec.Binary)
	if err != nil {
		invocation.Status = api.ToolStatusSkipped
		invocation.Error = fmt.Sprintf("%s not installed", spec.Binary)
		return invocation
	}

	result, err := d.run.Run(ctx, runner.Command{
		Path:    binary,
		Args:    spec.BuildArgs(target),
		Dir:     target.WorkDir,
		Timeout: d.toolTimeout,
	})
	invocation.Duration = result.Duration
	invocation.Raw = result.Stdout
	invocation.Truncated = result.Truncated

	switch {
	case err != nil && errors.Is(err, runner.ErrToolUnavailable):
		invocation.Status = api.ToolStatusSkipped
		invocation.Error = fmt.Sprintf("%s not installed", spec.Binary)
		return invocation
	case err != nil:
		invocation.Status = api.ToolStatusFailed
		invocation.Error = err.Error()
		return invocation
	case result.TimedOut:
		invocation.Status = api.ToolStatusFailed
		invocation.Error = fmt.Sprintf("timed out after %s", d.toolTimeout)
		return invocation
	case result.ExitCode != 0:
		invocation.Status = api.ToolStatusFailed
		invocation.Error = fmt.Sprintf("exited %d: %s", result.ExitCode, firstLine(result.Stderr))
		return invocation
	}

	if spec.Collect != nil {
		invocation.Raw = spec.Collect(target, invocation.Raw)
	}
	invocation.Status = api.ToolStatusCompleted
	return invocation
}

// NewWorkDir creates the per-invocation scratch directory.
func NewWorkDir(base, jobID string) (string, error) {
	dir, err := os.MkdirTemp(base, "job-"+jobID+"-")
	if err != nil {
		return "", err
	}
	return dir, nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
