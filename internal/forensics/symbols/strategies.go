package symbols

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/virtforensics/memory-inspector/internal/forensics/runner"
)

// debugKernelPaths are the locations where a distribution drops the debug
// vmlinux for an installed kernel.
var debugKernelPaths = []string{
	"/usr/lib/debug/boot/vmlinux-%s",
	"/usr/lib/debug/lib/modules/%s/vmlinux",
}

// generateStrategy builds an authoritative table from a local debug kernel
// using dwarf2json.
type generateStrategy struct {
	run        runner.Runner
	binary     string
	dir        string
	debugPaths []string
}

func newGenerateStrategy(run runner.Runner, binary, dir string) *generateStrategy {
	return &generateStrategy{run: run, binary: binary, dir: dir, debugPaths: debugKernelPaths}
}

func (s *generateStrategy) Name() string { return "generated" }

func (s *generateStrategy) Attempt(ctx context.Context, key Key) (*Artifact, error) {
	binary, err := s.run.LookPath(s.binary)
	if err != nil {
		return nil, fmt.Errorf("dwarf2json not installed: %w", err)
	}

	var vmlinux string
	for _, pattern := range s.debugPaths {
		candidate := fmt.Sprintf(pattern, key.KernelVersion)
		if _, err := os.Stat(candidate); err == nil {
			vmlinux = candidate
			break
		}
	}
	if vmlinux == "" {
		return nil, fmt.Errorf("no debug kernel found for %s", key.KernelVersion)
	}

	tmp := tablePath(s.dir, key.KernelVersion) + ".tmp"
	defer os.Remove(tmp)

	result, err := s.run.Run(ctx, runner.Command{
		Path:       binary,
		Args:       []string{"linux", "--elf", vmlinux},
		StdoutFile: tmp,
	})
	if err != nil {
		return nil, err
	}
	if result.TimedOut {
		return nil, fmt.Errorf("dwarf2json timed out after %s", result.Duration)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("dwarf2json exited %d: %s", result.ExitCode, strings.TrimSpace(string(result.Stderr)))
	}

	return commit(tmp, s.dir, key, s.Name(), false)
}

// downloadStrategy fetches a precompiled table from one of the configured
// remote sources.
type downloadStrategy struct {
	client  *http.Client
	sources []string
	dir     string
}

func newDownloadStrategy(sources []string, timeout time.Duration, dir string) *downloadStrategy {
	return &downloadStrategy{
		client:  &http.Client{Timeout: timeout},
		sources: sources,
		dir:     dir,
	}
}

func (s *downloadStrategy) Name() string { return "downloaded" }

func (s *downloadStrategy) Attempt(ctx context.Context, key Key) (*Artifact, error) {
	var lastErr error
	for _, source := range s.sources {
		tableURL, err := url.JoinPath(source, "linux", key.KernelVersion+".json")
		if err != nil {
			lastErr = err
			continue
		}

		tmp := tablePath(s.dir, key.KernelVersion) + ".tmp"
		operation := func() error {
			return s.fetch(ctx, tableURL, tmp)
		}
		if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)); err != nil {
			os.Remove(tmp)
			lastErr = err
			zap.S().Named("symbols").Debugf("download from %s failed: %v", source, err)
			continue
		}

		artifact, err := commit(tmp, s.dir, key, s.Name(), false)
		if err != nil {
			os.Remove(tmp)
			lastErr = err
			continue
		}
		return artifact, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no symbol sources configured")
	}
	return nil, lastErr
}

func (s *downloadStrategy) fetch(ctx context.Context, tableURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tableURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return backoff.Permanent(fmt.Errorf("symbol table not published for this kernel"))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, tableURL)
	}

	f, err := os.Create(dest)
	if err != nil {
		return backoff.Permanent(err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	return nil
}

// systemMapStrategy derives a reduced table from /boot/System.map when it
// carries enough entries to be useful.
type systemMapStrategy struct {
	dir     string
	mapPath string
}

const minSystemMapEntries = 1000

func newSystemMapStrategy(dir string) *systemMapStrategy {
	return &systemMapStrategy{dir: dir, mapPath: "/boot/System.map-%s"}
}

func (s *systemMapStrategy) Name() string { return "system_map" }

func (s *systemMapStrategy) Attempt(ctx context.Context, key Key) (*Artifact, error) {
	mapFile := fmt.Sprintf(s.mapPath, key.KernelVersion)
	f, err := os.Open(mapFile)
	if err != nil {
		return nil, fmt.Errorf("no System.map for %s", key.KernelVersion)
	}
	defer f.Close()

	entries := map[string]symbolEntry{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			continue
		}
		entries[fields[2]] = symbolEntry{Address: "0x" + fields[0]}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(entries) < minSystemMapEntries {
		return nil, fmt.Errorf("System.map has only %d entries", len(entries))
	}

	tmp := tablePath(s.dir, key.KernelVersion) + ".tmp"
	if err := writeTable(tmp, key, entries); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	return commit(tmp, s.dir, key, s.Name(), false)
}

// installStrategy installs the distribution debug package for the kernel and
// retries generation. Disabled unless explicitly allowed, installing packages
// on a forensic workstation is an operator decision.
type installStrategy struct {
	run      runner.Runner
	generate *generateStrategy
}

func newInstallStrategy(run runner.Runner, generate *generateStrategy) *installStrategy {
	return &installStrategy{run: run, generate: generate}
}

func (s *installStrategy) Name() string { return "installed" }

func (s *installStrategy) Attempt(ctx context.Context, key Key) (*Artifact, error) {
	aptGet, err := s.run.LookPath("apt-get")
	if err != nil {
		return nil, fmt.Errorf("apt-get not available: %w", err)
	}

	pkg := fmt.Sprintf("linux-image-%s-dbgsym", key.KernelVersion)
	result, err := s.run.Run(ctx, runner.Command{
		Path: aptGet,
		Args: []string{"install", "-y", pkg},
	})
	if err != nil {
		return nil, err
	}
	if result.TimedOut {
		return nil, fmt.Errorf("installing %s timed out", pkg)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("installing %s exited %d", pkg, result.ExitCode)
	}

	artifact, err := s.generate.Attempt(ctx, key)
	if err != nil {
		return nil, err
	}
	artifact.Strategy = s.Name()
	return artifact, nil
}

// minimalSymbols are the handful of anchors basic kernel walks need. A table
// synthesized from these supports process listing and little else.
var minimalSymbols = []string{
	"init_task",
	"init_mm",
	"init_files",
	"init_fs",
	"swapper_pg_dir",
	"linux_banner",
	"modules",
	"init_net",
}

// minimalStrategy synthesizes a degraded table so the pipeline can proceed
// with reduced capability instead of failing outright.
type minimalStrategy struct {
	dir string
}

func newMinimalStrategy(dir string) *minimalStrategy {
	return &minimalStrategy{dir: dir}
}

func (s *minimalStrategy) Name() string { return "minimal" }

func (s *minimalStrategy) Attempt(ctx context.Context, key Key) (*Artifact, error) {
	entries := map[string]symbolEntry{}
	for _, name := range minimalSymbols {
		entries[name] = symbolEntry{Address: "0x0"}
	}

	tmp := tablePath(s.dir, key.KernelVersion) + ".tmp"
	if err := writeTable(tmp, key, entries); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	return commit(tmp, s.dir, key, s.Name(), true)
}

type symbolEntry struct {
	Address string `json:"address"`
}

// writeTable emits a table in the interchange layout downstream tools expect.
func writeTable(path string, key Key, entries map[string]symbolEntry) error {
	table := map[string]any{
		"metadata": map[string]any{
			"format": "6.2.0",
			"producer": map[string]string{
				"name":    "memory-inspector",
				"version": key.KernelVersion,
			},
		},
		"base_types": map[string]any{
			"pointer":       map[string]any{"size": 8, "signed": false, "kind": "int", "endian": "little"},
			"long unsigned int": map[string]any{"size": 8, "signed": false, "kind": "int", "endian": "little"},
		},
		"user_types": map[string]any{},
		"enums":      map[string]any{},
		"symbols":    entries,
	}

	data, err := json.Marshal(table)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// commit validates the staged table and moves it to its final cache location.
// Rename keeps partially written tables from ever being visible under the
// cache path.
func commit(tmp, dir string, key Key, strategy string, degraded bool) (*Artifact, error) {
	if err := validateTable(tmp, degraded); err != nil {
		return nil, err
	}
	final := tablePath(dir, key.KernelVersion)
	if err := os.Rename(tmp, final); err != nil {
		return nil, err
	}
	return &Artifact{
		KernelVersion: key.KernelVersion,
		Path:          final,
		Strategy:      strategy,
		Degraded:      degraded,
		CreatedAt:     time.Now(),
	}, nil
}

func tablePath(dir, kernelVersion string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, kernelVersion)
	return filepath.Join(dir, safe+".json")
}
