// Package sweeper reclaims disk space held by expired memory images and
// report files.
package sweeper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/store"
)

type Sweeper struct {
	store store.Store
	cfg   *config.Config
}

func New(s store.Store, cfg *config.Config) *Sweeper {
	return &Sweeper{store: s, cfg: cfg}
}

// Run sweeps on a jittered interval until the context is cancelled. Jitter
// keeps replicas sharing a database from sweeping in lockstep.
func (s *Sweeper) Run(ctx context.Context) {
	logger := zap.S().Named("sweeper")

	ticker := jitterbug.New(s.cfg.Forensics.SweepInterval, &jitterbug.Norm{Stdev: 30 * time.Second, Mean: 0})
	defer ticker.Stop()

	logger.Infof("retention sweep every %s, retention %s", s.cfg.Forensics.SweepInterval, s.cfg.Forensics.Retention)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				logger.Errorf("retention sweep failed: %v", err)
			}
		}
	}
}

// Sweep removes images and reports that outlived the retention period.
func (s *Sweeper) Sweep(ctx context.Context) error {
	logger := zap.S().Named("sweeper")
	cutoff := time.Now().Add(-s.cfg.Forensics.Retention)

	images, err := s.store.Image().List(ctx, store.NewImageQueryFilter().OlderThan(cutoff))
	if err != nil {
		return err
	}
	for _, image := range images {
		if err := os.Remove(image.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("could not remove image file %s: %v", image.Path, err)
			continue
		}
		if err := s.store.Image().Delete(ctx, image.ID); err != nil {
			logger.Warnf("could not delete image record %s: %v", image.ID, err)
			continue
		}
		logger.Infof("expired image %s removed (%s)", image.ID, image.Path)
	}

	s.sweepReports(cutoff)
	return nil
}

func (s *Sweeper) sweepReports(cutoff time.Time) {
	logger := zap.S().Named("sweeper")

	entries, err := os.ReadDir(s.cfg.Forensics.ReportDirectory)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("could not read report directory: %v", err)
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.cfg.Forensics.ReportDirectory, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warnf("could not remove report %s: %v", path, err)
			continue
		}
		logger.Infof("expired report %s removed", path)
	}
}
