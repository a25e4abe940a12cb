package tools_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/forensics/runner"
	"github.com/virtforensics/memory-inspector/internal/forensics/tools"
)

func TestTools(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tools Suite")
}

type fakeRunner struct {
	mu       sync.Mutex
	missing  map[string]bool
	results  map[string]runner.Result
	inFlight int32
	maxSeen  int32
	holdEach time.Duration
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing[name] {
		return "", runner.ErrToolUnavailable
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if current <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, current) {
			break
		}
	}
	if f.holdEach > 0 {
		time.Sleep(f.holdEach)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for name, result := range f.results {
		if "/usr/bin/"+name == cmd.Path {
			return result, nil
		}
	}
	return runner.Result{Stdout: []byte("ok")}, nil
}

func newRegistry(names ...string) *tools.Registry {
	r := tools.NewRegistry()
	for _, name := range names {
		binary := name
		r.Register(tools.Spec{
			Name:      name,
			Binary:    binary,
			BuildArgs: func(t tools.Target) []string { return []string{t.ImagePath} },
		})
	}
	return r
}

var _ = Describe("tool dispatcher", func() {
	var (
		cfg    *config.Config
		target tools.Target
	)

	BeforeEach(func() {
		cfg = config.NewDefault()
		cfg.Forensics.MaxParallel = 2
		target = tools.Target{
			ImagePath: "/tmp/image.dump",
			WorkDir:   GinkgoT().TempDir(),
		}
	})

	It("keeps sibling invocations independent", func() {
		run := &fakeRunner{
			results: map[string]runner.Result{
				"toolbad": {ExitCode: 2, Stderr: []byte("boom")},
			},
		}
		d := tools.NewDispatcher(cfg, run, newRegistry("toolgood", "toolbad"))

		invocations := d.Dispatch(context.TODO(), target, []string{"toolgood", "toolbad"}, nil)
		Expect(invocations).To(HaveLen(2))
		Expect(invocations[0].Status).To(Equal(api.ToolStatusCompleted))
		Expect(invocations[1].Status).To(Equal(api.ToolStatusFailed))
		Expect(invocations[1].Error).To(ContainSubstring("exited 2"))
	})

	It("skips tools whose binary is missing", func() {
		run := &fakeRunner{missing: map[string]bool{"toolgone": true}}
		d := tools.NewDispatcher(cfg, run, newRegistry("toolgone", "toolgood"))

		invocations := d.Dispatch(context.TODO(), target, []string{"toolgone", "toolgood"}, nil)
		Expect(invocations[0].Status).To(Equal(api.ToolStatusSkipped))
		Expect(invocations[0].Error).To(ContainSubstring("not installed"))
		Expect(invocations[1].Status).To(Equal(api.ToolStatusCompleted))
	})

	It("skips symbol-dependent tools when no table was resolved", func() {
		run := &fakeRunner{}
		d := tools.NewDispatcher(cfg, run, tools.NewRegistry())

		invocations := d.Dispatch(context.TODO(), target, []string{"volatility"}, nil)
		Expect(invocations[0].Status).To(Equal(api.ToolStatusSkipped))
		Expect(invocations[0].Error).To(ContainSubstring("symbol table"))
	})

	It("rejects unknown tool names without failing the batch", func() {
		run := &fakeRunner{}
		d := tools.NewDispatcher(cfg, run, newRegistry("toolgood"))

		invocations := d.Dispatch(context.TODO(), target, []string{"nonsense", "toolgood"}, nil)
		Expect(invocations[0].Status).To(Equal(api.ToolStatusSkipped))
		Expect(invocations[1].Status).To(Equal(api.ToolStatusCompleted))
	})

	It("bounds concurrent invocations", func() {
		run := &fakeRunner{holdEach: 50 * time.Millisecond}
		d := tools.NewDispatcher(cfg, run, newRegistry("t1", "t2", "t3", "t4", "t5"))

		d.Dispatch(context.TODO(), target, []string{"t1", "t2", "t3", "t4", "t5"}, nil)
		Expect(run.maxSeen).To(BeNumerically("<=", 2))
	})

	It("reports a timeout as a failed invocation", func() {
		run := &fakeRunner{
			results: map[string]runner.Result{
				"toolslow": {TimedOut: true},
			},
		}
		d := tools.NewDispatcher(cfg, run, newRegistry("toolslow"))

		invocations := d.Dispatch(context.TODO(), target, []string{"toolslow"}, nil)
		Expect(invocations[0].Status).To(Equal(api.ToolStatusFailed))
		Expect(invocations[0].Error).To(ContainSubstring("timed out"))
	})
})
