package semgrep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/pkg/domain/scan"
)

func timeoutConfig() *config.ScannerConfig {
	return &config.ScannerConfig{
		TimeoutBase:    60 * time.Second,
		TimeoutPerFile: 250 * time.Millisecond,
		TimeoutMin:     90 * time.Second,
		TimeoutMax:     20 * time.Minute,
	}
}

func TestTimeout_LinearInFileCount(t *testing.T) {
	cfg := timeoutConfig()

	// 1000 files fast: 60s + 1000*250ms = 310s, inside the clamp band.
	assert.Equal(t, 310*time.Second, Timeout(cfg, 1000, scan.TierFast))

	// Deep tier doubles the per-file term.
	assert.Equal(t, 560*time.Second, Timeout(cfg, 1000, scan.TierDeep))
}

func TestTimeout_ClampsToMinimum(t *testing.T) {
	cfg := timeoutConfig()

	// A tiny target still gets the floor: 60s + 10*250ms = 62.5s < 90s.
	assert.Equal(t, cfg.TimeoutMin, Timeout(cfg, 10, scan.TierFast))
	assert.Equal(t, cfg.TimeoutMin, Timeout(cfg, 0, scan.TierDeep))
}

func TestTimeout_ClampsToMaximum(t *testing.T) {
	cfg := timeoutConfig()

	assert.Equal(t, cfg.TimeoutMax, Timeout(cfg, 1_000_000, scan.TierFast))
	assert.Equal(t, cfg.TimeoutMax, Timeout(cfg, 1_000_000, scan.TierDeep))
}

func TestTimeout_DeepNeverShorterThanFast(t *testing.T) {
	cfg := timeoutConfig()
	for _, files := range []int{0, 1, 100, 5000, 500_000} {
		fast := Timeout(cfg, files, scan.TierFast)
		deep := Timeout(cfg, files, scan.TierDeep)
		assert.GreaterOrEqual(t, deep, fast, "files=%d", files)
	}
}
