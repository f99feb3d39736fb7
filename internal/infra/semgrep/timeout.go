package semgrep

import (
	"time"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/pkg/domain/scan"
)

// Timeout computes the analyzer deadline for a target of fileCount files at
// the given tier: clamp(base + fileCount*perFile*multiplier, min, max).
// The per-file term scales with tier because deep analysis runs more rule
// bundles over each file.
func Timeout(cfg *config.ScannerConfig, fileCount int, tier scan.Tier) time.Duration {
	d := cfg.TimeoutBase + time.Duration(fileCount)*cfg.TimeoutPerFile*time.Duration(tier.Multiplier())
	if d < cfg.TimeoutMin {
		return cfg.TimeoutMin
	}
	if d > cfg.TimeoutMax {
		return cfg.TimeoutMax
	}
	return d
}
