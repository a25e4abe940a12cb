package runner_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/virtforensics/memory-inspector/internal/forensics/runner"
)

func TestRunner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Runner Suite")
}

var _ = Describe("local runner", func() {
	var r *runner.LocalRunner

	BeforeEach(func() {
		r = runner.NewLocalRunner(30*time.Second, 1<<20)
	})

	Context("run", func() {
		It("captures stdout and exit code zero", func() {
			result, err := r.Run(context.TODO(), runner.Command{
				Path: "/bin/sh",
				Args: []string{"-c", "echo hello"},
			})
			Expect(err).To(BeNil())
			Expect(result.ExitCode).To(Equal(0))
			Expect(string(result.Stdout)).To(Equal("hello\n"))
			Expect(result.TimedOut).To(BeFalse())
		})

		It("reports a non-zero exit code without an error", func() {
			result, err := r.Run(context.TODO(), runner.Command{
				Path: "/bin/sh",
				Args: []string{"-c", "echo oops >&2; exit 3"},
			})
			Expect(err).To(BeNil())
			Expect(result.ExitCode).To(Equal(3))
			Expect(string(result.Stderr)).To(ContainSubstring("oops"))
		})

		It("reports a timeout as a normal outcome", func() {
			result, err := r.Run(context.TODO(), runner.Command{
				Path:    "/bin/sh",
				Args:    []string{"-c", "sleep 10"},
				Timeout: 100 * time.Millisecond,
			})
			Expect(err).To(BeNil())
			Expect(result.TimedOut).To(BeTrue())
		})

		It("returns the context error when the caller cancels", func() {
			ctx, cancel := context.WithCancel(context.TODO())
			go func() {
				time.Sleep(100 * time.Millisecond)
				cancel()
			}()
			_, err := r.Run(ctx, runner.Command{
				Path: "/bin/sh",
				Args: []string{"-c", "sleep 10"},
			})
			Expect(err).To(MatchError(context.Canceled))
		})

		It("flags a missing binary as unavailable", func() {
			_, err := r.Run(context.TODO(), runner.Command{
				Path: "/nonexistent/binary",
			})
			Expect(err).To(MatchError(runner.ErrToolUnavailable))
		})

		It("truncates output beyond the cap", func() {
			result, err := r.Run(context.TODO(), runner.Command{
				Path:           "/bin/sh",
				Args:           []string{"-c", "head -c 4096 /dev/zero"},
				MaxOutputBytes: 128,
			})
			Expect(err).To(BeNil())
			Expect(result.Truncated).To(BeTrue())
			Expect(result.Stdout).To(HaveLen(128))
		})
	})

	Context("lookpath", func() {
		It("finds an existing binary", func() {
			path, err := r.LookPath("sh")
			Expect(err).To(BeNil())
			Expect(path).ToNot(BeEmpty())
		})

		It("flags a missing binary as unavailable", func() {
			_, err := r.LookPath("definitely-not-a-real-tool")
			Expect(err).To(MatchError(runner.ErrToolUnavailable))
		})
	})
})
