// Package acquire captures point-in-time memory images from hypervisor
// guests. The hypervisor is driven exclusively through the virsh command
// line, its text output is the only contract.
package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/forensics/runner"
	"github.com/virtforensics/memory-inspector/pkg/metrics"
)

var (
	ErrDomainNotFound = errors.New("domain not found")
	ErrCaptureFailed  = errors.New("capture failed")
)

// Image is a completed memory capture. Once returned, path, size and
// checksum never change.
type Image struct {
	InstanceID string
	Domain     string
	Path       string
	Format     string
	SizeBytes  int64
	Sha256     string
	CreatedAt  time.Time
}

type Acquirer struct {
	run            runner.Runner
	virsh          string
	dumpDir        string
	minImageBytes  int64
	captureTimeout time.Duration
	probeTimeout   time.Duration
}

func NewAcquirer(cfg *config.Config, run runner.Runner) *Acquirer {
	return &Acquirer{
		run:            run,
		virsh:          cfg.Forensics.VirshBinary,
		dumpDir:        cfg.Forensics.DumpDirectory,
		minImageBytes:  cfg.Forensics.MinImageBytes,
		captureTimeout: cfg.Forensics.CaptureTimeout,
		probeTimeout:   cfg.Forensics.ProbeTimeout,
	}
}

// Preflight verifies the hypervisor control interface answers before a job
// is accepted.
func (a *Acquirer) Preflight(ctx context.Context) error {
	virsh, err := a.run.LookPath(a.virsh)
	if err != nil {
		return fmt.Errorf("virsh not installed: %w", err)
	}
	result, err := a.run.Run(ctx, runner.Command{Path: virsh, Args: []string{"version"}, Timeout: a.probeTimeout})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("virsh version exited %d: %s", result.ExitCode, strings.TrimSpace(string(result.Stderr)))
	}
	return nil
}

// Acquire resolves the guest's libvirt domain and dumps its memory to a
// fresh file under the dump directory.
func (a *Acquirer) Acquire(ctx context.Context, instanceID string) (*Image, error) {
	logger := zap.S().Named("acquire")

	domains, err := a.listDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	domain, err := a.resolveDomain(ctx, instanceID, domains)
	if err != nil {
		return nil, err
	}
	logger.Infof("instance %s resolved to domain %q", instanceID, domain)

	if err := os.MkdirAll(a.dumpDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	path := filepath.Join(a.dumpDir, fmt.Sprintf("%s-%s.dump", sanitize(instanceID), uuid.NewString()))

	start := time.Now()
	if err := a.dump(ctx, domain, path); err != nil {
		os.Remove(path)
		return nil, err
	}
	metrics.ObserveAcquisitionDurationMetric(time.Since(start))

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: dump file never materialized", ErrCaptureFailed)
	}
	if info.Size() < a.minImageBytes {
		// a truncated capture still holds forensic value, keep it
		logger.Warnf("capture of %s is suspiciously small: %d bytes", domain, info.Size())
	}

	// later pipeline stages run tools as unprivileged processes
	if err := os.Chmod(path, 0o644); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	sum, err := checksum(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	format, err := detectFormat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	return &Image{
		InstanceID: instanceID,
		Domain:     domain,
		Path:       path,
		Format:     format,
		SizeBytes:  info.Size(),
		Sha256:     sum,
		CreatedAt:  time.Now(),
	}, nil
}

func (a *Acquirer) listDomains(ctx context.Context) ([]string, error) {
	virsh, err := a.run.LookPath(a.virsh)
	if err != nil {
		return nil, err
	}
	result, err := a.run.Run(ctx, runner.Command{Path: virsh, Args: []string{"-q", "list", "--name"}})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("virsh list exited %d: %s", result.ExitCode, strings.TrimSpace(string(result.Stderr)))
	}

	var domains []string
	for _, line := range strings.Split(string(result.Stdout), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			domains = append(domains, name)
		}
	}
	return domains, nil
}

// resolveDomain maps an instance id to a running domain, most specific
// strategy first. The first match wins.
func (a *Acquirer) resolveDomain(ctx context.Context, instanceID string, domains []string) (string, error) {
	if domain := a.matchByProcess(ctx, instanceID, domains); domain != "" {
		return domain, nil
	}
	if domain := matchByPattern(instanceID, domains); domain != "" {
		return domain, nil
	}
	if domain := matchPartial(instanceID, domains); domain != "" {
		return domain, nil
	}
	return "", fmt.Errorf("%w: no domain matches instance %s", ErrDomainNotFound, instanceID)
}

// matchByProcess ties the instance to the exact running QEMU process by
// looking for its id inside the process command line. The domain name is the
// value of the -name guest= argument.
func (a *Acquirer) matchByProcess(ctx context.Context, instanceID string, domains []string) string {
	ps, err := a.run.LookPath("ps")
	if err != nil {
		return ""
	}
	result, err := a.run.Run(ctx, runner.Command{Path: ps, Args: []string{"-eo", "args"}})
	if err != nil || result.ExitCode != 0 {
		return ""
	}

	for _, line := range strings.Split(string(result.Stdout), "\n") {
		if !strings.Contains(line, "qemu") || !strings.Contains(line, instanceID) {
			continue
		}
		guest := guestNameFromCmdline(line)
		if guest == "" {
			continue
		}
		for _, domain := range domains {
			if domain == guest {
				return domain
			}
		}
	}
	return ""
}

// guestNameFromCmdline extracts NAME from "-name guest=NAME,debug-threads=on"
// or the plain "-name NAME" form.
func guestNameFromCmdline(line string) string {
	fields := strings.Fields(line)
	for i, field := range fields {
		if field != "-name" || i+1 >= len(fields) {
			continue
		}
		value := fields[i+1]
		value = strings.TrimPrefix(value, "guest=")
		if comma := strings.Index(value, ","); comma >= 0 {
			value = value[:comma]
		}
		return value
	}
	return ""
}

// matchByPattern checks the deterministic names a hypervisor layer derives
// from the instance id. OpenStack-style layers strip the dashes from the
// uuid or keep only its first segment.
func matchByPattern(instanceID string, domains []string) string {
	candidates := []string{
		instanceID,
		"instance-" + instanceID,
		"guest-" + instanceID,
	}
	if compact := strings.ReplaceAll(instanceID, "-", ""); compact != instanceID {
		candidates = append(candidates, "instance-"+compact)
	}
	if len(instanceID) > 8 {
		candidates = append(candidates, "instance-"+instanceID[:8])
	}
	for _, domain := range domains {
		for _, candidate := range candidates {
			if domain == candidate {
				return domain
			}
		}
	}
	return ""
}

func matchPartial(instanceID string, domains []string) string {
	for _, domain := range domains {
		if strings.Contains(domain, instanceID) || strings.Contains(instanceID, domain) {
			return domain
		}
	}
	return ""
}

func (a *Acquirer) dump(ctx context.Context, domain, path string) error {
	virsh, err := a.run.LookPath(a.virsh)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	result, err := a.run.Run(ctx, runner.Command{
		Path:    virsh,
		Args:    []string{"dump", domain, path, "--memory-only"},
		Timeout: a.captureTimeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if result.TimedOut {
		return fmt.Errorf("%w: dump of %s timed out", ErrCaptureFailed, domain)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: virsh dump exited %d: %s", ErrCaptureFailed, result.ExitCode, strings.TrimSpace(string(result.Stderr)))
	}
	return nil
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// detectFormat distinguishes a raw dump from the ELF core format newer
// virsh versions emit.
func detectFormat(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "raw", nil
		}
		return "", err
	}
	if magic[0] == 0x7f && magic[1] == 'E' && magic[2] == 'L' && magic[3] == 'F' {
		return "elf", nil
	}
	return "raw", nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
