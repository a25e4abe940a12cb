package symbols

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/forensics/runner"
	"github.com/virtforensics/memory-inspector/internal/store"
	"github.com/virtforensics/memory-inspector/internal/store/model"
	"github.com/virtforensics/memory-inspector/pkg/metrics"
)

const strategyCached = "cached"

// Resolver walks the strategy waterfall for a kernel version and caches the
// winning artifact. Concurrent jobs asking for the same kernel share a single
// resolution.
type Resolver struct {
	store      store.Store
	dir        string
	strategies []Strategy
	group      singleflight.Group
}

func NewResolver(cfg *config.Config, s store.Store, run runner.Runner) *Resolver {
	dir := cfg.Forensics.SymbolDirectory
	generate := newGenerateStrategy(run, cfg.Forensics.Dwarf2JSONBinary, dir)

	strategies := []Strategy{
		generate,
		newDownloadStrategy(cfg.Forensics.SymbolSources, cfg.Forensics.ResolveTimeout, dir),
		newSystemMapStrategy(dir),
	}
	if cfg.Forensics.SymbolInstallEnabled {
		strategies = append(strategies, newInstallStrategy(run, generate))
	}
	strategies = append(strategies, newMinimalStrategy(dir))

	return &Resolver{
		store:      s,
		dir:        dir,
		strategies: strategies,
	}
}

// NewResolverWithStrategies is used by tests to control the waterfall.
func NewResolverWithStrategies(s store.Store, dir string, strategies ...Strategy) *Resolver {
	return &Resolver{store: s, dir: dir, strategies: strategies}
}

// Resolve returns a symbol table for the kernel, trying the cache first and
// then each strategy in order. The first structurally valid artifact wins and
// later strategies are never invoked. ErrUnresolved is returned only when
// every strategy, including minimal synthesis, failed.
func (r *Resolver) Resolve(ctx context.Context, key Key) (*Artifact, error) {
	v, err, _ := r.group.Do(key.KernelVersion, func() (interface{}, error) {
		return r.resolve(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

func (r *Resolver) resolve(ctx context.Context, key Key) (*Artifact, error) {
	logger := zap.S().Named("symbols")

	if artifact := r.cached(ctx, key); artifact != nil {
		logger.Debugf("symbol table for %s served from cache", key.KernelVersion)
		metrics.IncreaseSymbolResolutionsTotalMetric(strategyCached)
		return artifact, nil
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, err
	}

	for _, strategy := range r.strategies {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		artifact, err := strategy.Attempt(ctx, key)
		if err != nil {
			logger.Infof("strategy %q failed for kernel %s: %v", strategy.Name(), key.KernelVersion, err)
			continue
		}

		if err := r.persist(ctx, artifact); err != nil {
			logger.Warnf("failed to persist symbol table for %s: %v", key.KernelVersion, err)
		}
		metrics.IncreaseSymbolResolutionsTotalMetric(artifact.Strategy)
		logger.Infof("resolved symbol table for %s via %q (degraded=%t)", key.KernelVersion, artifact.Strategy, artifact.Degraded)
		return artifact, nil
	}

	return nil, ErrUnresolved
}

// cached returns the persisted artifact if its file still exists on disk.
func (r *Resolver) cached(ctx context.Context, key Key) *Artifact {
	if r.store == nil {
		return nil
	}
	record, err := r.store.Symbol().Get(ctx, key.KernelVersion)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			zap.S().Named("symbols").Warnf("symbol cache lookup failed: %v", err)
		}
		return nil
	}
	if err := validateTable(record.Path, record.Degraded); err != nil {
		return nil
	}
	return &Artifact{
		KernelVersion: record.KernelVersion,
		Path:          record.Path,
		Strategy:      record.Strategy,
		Degraded:      record.Degraded,
		CreatedAt:     record.CreatedAt,
	}
}

func (r *Resolver) persist(ctx context.Context, artifact *Artifact) error {
	if r.store == nil {
		return nil
	}
	_, err := r.store.Symbol().Upsert(ctx, model.SymbolTable{
		KernelVersion: artifact.KernelVersion,
		Path:          artifact.Path,
		Strategy:      artifact.Strategy,
		Degraded:      artifact.Degraded,
	})
	return err
}
