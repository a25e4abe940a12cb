package runner

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ErrToolUnavailable marks a binary that could not be started at all, as
// opposed to one that ran and exited non-zero.
var ErrToolUnavailable = errors.New("tool unavailable")

// Command describes one external program invocation.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Timeout time.Duration
	// MaxOutputBytes caps each captured stream. Zero means the runner's
	// default cap.
	MaxOutputBytes int64
	// StdoutFile streams stdout to the named file instead of capturing it.
	// Used when the output is the artifact itself and may exceed any
	// reasonable in-memory cap.
	StdoutFile string
}

// Result is the outcome of a finished invocation. A timeout is a normal
// outcome reported through TimedOut, not an error.
type Result struct {
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	LookPath(name string) (string, error)
}

type LocalRunner struct {
	defaultTimeout time.Duration
	maxOutputBytes int64
}

// Make sure we conform to Runner interface
var _ Runner = (*LocalRunner)(nil)

func NewLocalRunner(defaultTimeout time.Duration, maxOutputBytes int64) *LocalRunner {
	return &LocalRunner{
		defaultTimeout: defaultTimeout,
		maxOutputBytes: maxOutputBytes,
	}
}

func (r *LocalRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", ErrToolUnavailable
	}
	return path, nil
}

// Run executes the command, capturing bounded stdout and stderr. Tools like
// hexdump can emit output proportional to a multi-gigabyte image, so both
// streams are truncated at the cap instead of buffered whole.
func (r *LocalRunner) Run(ctx context.Context, command Command) (Result, error) {
	timeout := command.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	cap := command.MaxOutputBytes
	if cap <= 0 {
		cap = r.maxOutputBytes
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command.Path, command.Args...)
	cmd.Dir = command.Dir

	// The whole process group is killed so a tool cannot leave workers
	// behind after a timeout or cancellation.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	stdout := newCapWriter(cap)
	stderr := newCapWriter(cap)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	var outFile *os.File
	if command.StdoutFile != "" {
		f, err := os.Create(command.StdoutFile)
		if err != nil {
			return Result{}, err
		}
		outFile = f
		cmd.Stdout = f
	}

	start := time.Now()
	err := cmd.Run()
	if outFile != nil {
		if closeErr := outFile.Close(); err == nil {
			err = closeErr
		}
	}
	result := Result{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			result.TimedOut = true
			result.ExitCode = -1
			return result, nil
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}

		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return result, ErrToolUnavailable
		}
		return result, err
	}

	result.ExitCode = 0
	return result, nil
}

// capWriter buffers up to limit bytes and discards the rest.
type capWriter struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func newCapWriter(limit int64) *capWriter {
	return &capWriter{limit: limit}
}

func (w *capWriter) Write(p []byte) (int, error) {
	remaining := w.limit - int64(w.buf.Len())
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		w.truncated = true
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *capWriter) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *capWriter) Truncated() bool {
	return w.truncated
}
