// Package cleanup removes orphaned scan work trees. A crashed worker can
// leave its temp directory behind; the sweeper reclaims them on a schedule.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/internal/infra/acquire"
	"github.com/scanforge/api/internal/metrics"
	"github.com/scanforge/api/pkg/logger"
)

// Sweeper periodically removes scan work directories older than the
// configured age. Live scans hold directories younger than the cutoff, so
// only abandoned trees are touched.
type Sweeper struct {
	cfg      *config.CleanupConfig
	tempRoot string
	logger   *logger.Logger
	cron     *cron.Cron
}

// NewSweeper creates a sweeper over the scanner's temp root.
func NewSweeper(cfg *config.CleanupConfig, tempRoot string, log *logger.Logger) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		tempRoot: tempRoot,
		logger:   log,
	}
}

// Start schedules the sweep and blocks until ctx is done, then waits for any
// in-flight sweep to finish.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.SweepSchedule, func() {
		removed, err := s.RunOnce(ctx)
		if err != nil {
			s.logger.Warn("temp dir sweep failed", "error", err)
			return
		}
		if removed > 0 {
			s.logger.Info("swept orphaned work trees", "removed", removed)
		}
	})
	if err != nil {
		return err
	}
	s.cron = c

	c.Start()
	s.logger.Info("cleanup sweeper started",
		"schedule", s.cfg.SweepSchedule,
		"max_age", s.cfg.MaxTempAge,
		"root", s.tempRoot,
	)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce performs a single sweep pass and returns the number of directories
// removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.tempRoot)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.cfg.MaxTempAge)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), acquire.WorkDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.tempRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to remove orphaned work tree",
				"path", path,
				"error", err,
			)
			continue
		}
		removed++
		metrics.TempDirsSweptTotal.Inc()
		s.logger.Debug("removed orphaned work tree",
			"path", path,
			"age", time.Since(info.ModTime()).Round(time.Second),
		)
	}
	return removed, nil
}
