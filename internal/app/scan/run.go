// Package scan wires the scan pipeline: acquisition, analysis, finding
// normalization, risk scoring, enrichment and resilient persistence.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/internal/infra/acquire"
	"github.com/scanforge/api/internal/infra/semgrep"
	"github.com/scanforge/api/internal/metrics"
	"github.com/scanforge/api/pkg/domain/finding"
	"github.com/scanforge/api/pkg/domain/progress"
	"github.com/scanforge/api/pkg/domain/scan"
	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/logger"
)

// Analyzer runs the external static analysis tool.
type Analyzer interface {
	Scan(ctx context.Context, scanID shared.ID, dir string, tier scan.Tier, deadline time.Duration, totalFiles int) (*semgrep.Output, error)
}

// StatusCache caches terminal scan status for cheap polling.
type StatusCache interface {
	SetStatus(ctx context.Context, scanID string, payload []byte, ttl time.Duration) error
}

// Supervisor owns one scan's lifecycle from queued to terminal status. The
// whole pipeline runs under a single deadline that is wider than the
// analyzer's own; cleanup of the acquired target and the terminal status
// write happen exactly once on every exit path.
type Supervisor struct {
	cfg        *config.ScannerConfig
	acquirer   acquire.Acquirer
	analyzer   Analyzer
	normalizer *Normalizer
	enricher   *Enricher
	store      *Store
	tracker    *progress.Tracker
	tokens     *TokenVault
	cache      StatusCache
	log        *logger.Logger
}

// NewSupervisor creates the pipeline supervisor. cache may be nil.
func NewSupervisor(
	cfg *config.ScannerConfig,
	acquirer acquire.Acquirer,
	analyzer Analyzer,
	normalizer *Normalizer,
	enricher *Enricher,
	store *Store,
	tracker *progress.Tracker,
	tokens *TokenVault,
	cache StatusCache,
	log *logger.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		acquirer:   acquirer,
		analyzer:   analyzer,
		normalizer: normalizer,
		enricher:   enricher,
		store:      store,
		tracker:    tracker,
		tokens:     tokens,
		cache:      cache,
		log:        log,
	}
}

// Run executes the pipeline for an already-submitted scan.
func (s *Supervisor) Run(ctx context.Context, scanID shared.ID) error {
	sc, err := s.store.GetScan(ctx, scanID)
	if err != nil {
		return err
	}
	if sc.Status.IsTerminal() {
		s.log.Warn("scan already terminal, skipping", "scan_id", scanID, "status", string(sc.Status))
		return nil
	}

	if err := sc.Start(); err != nil {
		return err
	}
	s.store.UpdateScan(ctx, sc)
	s.tracker.Start(scanID, 0)

	metrics.ScansInProgress.Inc()
	defer metrics.ScansInProgress.Dec()

	pipeCtx, cancel := context.WithTimeout(ctx, s.cfg.PipelineTimeout)
	defer cancel()

	sum, partial, runErr := s.execute(pipeCtx, sc)

	// Terminal handling happens exactly once, here, whatever execute did.
	switch {
	case runErr == nil:
		if partial {
			sc.ErrorMessage = "analysis terminated early; results may be incomplete"
		}
		if err := sc.Complete(sum); err != nil {
			return err
		}
		s.store.UpdateScan(ctx, sc)
		s.tracker.Complete(scanID, sum.Total)
		metrics.ScansTotal.WithLabelValues("completed", string(sc.Tier)).Inc()
	default:
		msg := failureMessage(pipeCtx, runErr)
		s.log.Error("scan failed", "scan_id", scanID, "error", runErr)
		if err := sc.Fail(msg); err != nil {
			return err
		}
		s.store.UpdateScan(ctx, sc)
		s.tracker.Fail(scanID, msg)
		metrics.ScansTotal.WithLabelValues("failed", string(sc.Tier)).Inc()
	}

	metrics.ScanDuration.WithLabelValues(string(sc.Tier)).Observe(sc.Elapsed(time.Now()).Seconds())
	s.cacheTerminalStatus(sc)
	return nil
}

// execute runs the fallible middle of the pipeline. The acquired target is
// released on every return path.
func (s *Supervisor) execute(ctx context.Context, sc *scan.Scan) (scan.Summary, bool, error) {
	var zero scan.Summary

	if sc.Target.RepoURL != "" {
		s.tracker.SetStage(sc.ID, progress.StageCloning, progress.Update{})
		ctx = acquire.WithToken(ctx, s.tokens.Take(sc.ID))
	} else {
		s.tracker.SetStage(sc.ID, progress.StageExtracting, progress.Update{})
	}

	target, err := s.acquirer.Acquire(ctx, sc.Target)
	if err != nil {
		return zero, false, err
	}
	defer target.Cleanup()

	s.tracker.SetStage(sc.ID, progress.StageCounting, progress.Update{
		TotalFiles: &target.FileCount,
	})

	deadline := semgrep.Timeout(s.cfg, target.FileCount, sc.Tier)
	out, err := s.analyzer.Scan(ctx, sc.ID, target.Dir, sc.Tier, deadline, target.FileCount)
	if err != nil {
		return zero, false, err
	}

	s.tracker.SetStage(sc.ID, progress.StageProcessing, progress.Update{})

	findings := s.normalizer.Normalize(sc.ID, target.Dir, out.Result.Results)
	fsum := finding.Summarize(findings)
	for _, f := range findings {
		metrics.FindingsTotal.WithLabelValues(string(f.Severity)).Inc()
	}

	sum := scan.Summary{
		Critical:  fsum.Critical,
		High:      fsum.High,
		Medium:    fsum.Medium,
		Low:       fsum.Low,
		Total:     fsum.Total,
		RiskScore: scan.Score(fsum.Critical, fsum.High, fsum.Medium, fsum.Low),
		Grade:     scan.GradeForCounts(fsum.Critical, fsum.High, fsum.Medium, fsum.Low),
	}

	if guidance := s.enricher.Enrich(ctx, findings); len(guidance) > 0 {
		s.store.SaveGuidance(sc.ID, guidance)
	}

	if w := s.store.SaveFindings(ctx, sc.ID, findings); w.Degraded {
		sc.MarkDegraded()
	}
	return sum, out.Partial, nil
}

// failureMessage maps pipeline errors to short user-visible messages.
func failureMessage(ctx context.Context, err error) string {
	var acqErr *scan.AcquisitionError
	var timeoutErr *scan.AnalysisTimeoutError
	var procErr *scan.AnalysisProcessError

	switch {
	case errors.As(err, &acqErr):
		return "target acquisition failed: " + acqErr.Reason
	case errors.As(err, &timeoutErr):
		return "analysis timed out after " + timeoutErr.Deadline
	case errors.As(err, &procErr):
		return "analyzer exited abnormally"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "scan pipeline timed out"
	default:
		return "scan failed"
	}
}

// terminalStatusTTL bounds how long cached terminal statuses serve polls
// before readers fall through to the store.
const terminalStatusTTL = time.Hour

// terminalStatus is the redis snapshot of a finished scan, written here and
// read back by Service.Status once the progress record has expired.
type terminalStatus struct {
	Status        string `json:"status"`
	RiskScore     int    `json:"risk_score"`
	Grade         string `json:"grade,omitempty"`
	FindingsCount int    `json:"findings_count"`
	Error         string `json:"error,omitempty"`
}

func (s *Supervisor) cacheTerminalStatus(sc *scan.Scan) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(terminalStatus{
		Status:        string(sc.Status),
		RiskScore:     sc.RiskScore,
		Grade:         sc.Grade,
		FindingsCount: sc.TotalCount,
		Error:         sc.ErrorMessage,
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.SetStatus(ctx, sc.ID.String(), payload, terminalStatusTTL); err != nil {
		s.log.Warn("failed to cache terminal status", "scan_id", sc.ID, "error", err)
	}
}
