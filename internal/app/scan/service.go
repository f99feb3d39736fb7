package scan

import (
	"context"
	"encoding/json"
	"time"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/internal/infra/redis"
	"github.com/scanforge/api/internal/infra/semgrep"
	"github.com/scanforge/api/pkg/domain/finding"
	"github.com/scanforge/api/pkg/domain/progress"
	"github.com/scanforge/api/pkg/domain/project"
	"github.com/scanforge/api/pkg/domain/scan"
	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/logger"
	"github.com/scanforge/api/pkg/pagination"
	"github.com/scanforge/api/pkg/validator"
)

// Enqueuer hands scan runs to the background worker.
type Enqueuer interface {
	EnqueueScanRun(ctx context.Context, scanID shared.ID) error
}

// StatusReader reads back the terminal snapshots the Supervisor caches, so
// polling a finished scan does not hit Postgres for every request.
type StatusReader interface {
	GetStatus(ctx context.Context, scanID string) ([]byte, error)
}

// Service is the application service behind the HTTP handlers.
type Service struct {
	cfg       *config.ScannerConfig
	store     *Store
	tracker   *progress.Tracker
	enqueuer  Enqueuer
	tokens    *TokenVault
	cache     StatusReader
	validator *validator.Validator
	log       *logger.Logger
}

// NewService creates the scan application service. cache may be nil.
func NewService(
	cfg *config.ScannerConfig,
	store *Store,
	tracker *progress.Tracker,
	enqueuer Enqueuer,
	tokens *TokenVault,
	cache StatusReader,
	v *validator.Validator,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		tracker:   tracker,
		enqueuer:  enqueuer,
		tokens:    tokens,
		cache:     cache,
		validator: v,
		log:       log,
	}
}

// SubmitInput is a scan submission.
type SubmitInput struct {
	Source      string `json:"source" validate:"required,scan_source"`
	Tier        string `json:"tier" validate:"required,scan_tier"`
	ProjectName string `json:"project_name" validate:"omitempty,max=200"`

	// Repository source.
	RepoURL     string `json:"repo_url" validate:"omitempty,repo_url"`
	Branch      string `json:"branch" validate:"omitempty,max=250"`
	AccessToken string `json:"access_token" validate:"omitempty,max=500"`

	// Upload source.
	UploadPath string `json:"upload_path" validate:"omitempty,max=4096"`

	// S3 source.
	Bucket string `json:"bucket" validate:"omitempty,max=255"`
	Key    string `json:"key" validate:"omitempty,max=1024"`
}

// SubmitOutput is returned to the submitting client. The scan runs in the
// background; EstimatedSeconds is the analyzer budget ceiling, not a
// promise.
type SubmitOutput struct {
	ScanID           shared.ID `json:"scan_id"`
	Status           string    `json:"status"`
	EstimatedSeconds int       `json:"estimated_seconds"`
}

// Submit validates the request, creates the project and queued scan, and
// enqueues the background run. Any access token goes into the in-memory
// vault for the clone step; it is never persisted or enqueued.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*SubmitOutput, error) {
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}
	if err := validateSource(input); err != nil {
		return nil, err
	}

	kind := sourceKind(input.Source)
	name := input.ProjectName
	if name == "" {
		name = defaultProjectName(input, kind)
	}

	proj, err := project.NewProject(name, kind, input.RepoURL)
	if err != nil {
		return nil, err
	}
	if w := s.store.SaveProject(ctx, proj); w.Degraded {
		s.log.Warn("project created in degraded mode", "project_id", proj.ID)
	}

	target := scan.Target{
		UploadPath: input.UploadPath,
		RepoURL:    input.RepoURL,
		Branch:     input.Branch,
		S3Bucket:   input.Bucket,
		S3Key:      input.Key,
	}
	sc, err := scan.NewScan(proj.ID, scan.Tier(input.Tier), target)
	if err != nil {
		return nil, err
	}

	if w := s.store.SaveScan(ctx, sc); w.Degraded {
		s.log.Warn("scan submitted in degraded mode", "scan_id", sc.ID)
	}
	s.tokens.Put(sc.ID, input.AccessToken)

	if err := s.enqueuer.EnqueueScanRun(ctx, sc.ID); err != nil {
		sc.Fail("failed to enqueue scan")
		s.store.UpdateScan(ctx, sc)
		return nil, err
	}

	s.log.Info("scan submitted",
		"scan_id", sc.ID,
		"project_id", proj.ID,
		"tier", input.Tier,
		"source", input.Source,
	)

	// The estimate assumes a mid-size target; clients treat it as a polling
	// hint only.
	estimate := semgrep.Timeout(s.cfg, estimateFileCount, scan.Tier(input.Tier))
	return &SubmitOutput{
		ScanID:           sc.ID,
		Status:           string(sc.Status),
		EstimatedSeconds: int(estimate / time.Second),
	}, nil
}

const estimateFileCount = 500

// StatusOutput is the polling view of a scan.
type StatusOutput struct {
	ScanID         shared.ID `json:"scan_id"`
	Status         string    `json:"status"`
	Stage          string    `json:"stage,omitempty"`
	Percentage     int       `json:"percentage"`
	ProcessedFiles int       `json:"processed_files"`
	TotalFiles     int       `json:"total_files"`
	CurrentFile    string    `json:"current_file,omitempty"`
	FindingsCount  int       `json:"findings_count"`
	ElapsedMS      int64     `json:"elapsed_ms"`
	Error          string    `json:"error,omitempty"`
}

// Status reads live progress first, then the cached terminal snapshot, and
// only falls back to the durable scan for anything both have expired.
func (s *Service) Status(ctx context.Context, id shared.ID) (*StatusOutput, error) {
	if rec, ok := s.tracker.Get(id); ok {
		return &StatusOutput{
			ScanID:         id,
			Status:         statusForStage(rec.Stage),
			Stage:          string(rec.Stage),
			Percentage:     rec.Percentage,
			ProcessedFiles: rec.ProcessedFiles,
			TotalFiles:     rec.TotalFiles,
			CurrentFile:    rec.CurrentFile,
			FindingsCount:  rec.FindingsCount,
			ElapsedMS:      rec.Elapsed(time.Now()).Milliseconds(),
			Error:          rec.Error,
		}, nil
	}

	if out, ok := s.cachedStatus(ctx, id); ok {
		return out, nil
	}

	sc, err := s.store.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &StatusOutput{
		ScanID:        id,
		Status:        string(sc.Status),
		FindingsCount: sc.TotalCount,
		ElapsedMS:     sc.Elapsed(time.Now()).Milliseconds(),
		Error:         sc.ErrorMessage,
	}
	if sc.Status == scan.StatusCompleted {
		out.Percentage = 100
	}
	return out, nil
}

// cachedStatus serves a terminal status from the redis snapshot. Any cache
// failure is a fall-through to the durable read, not an error.
func (s *Service) cachedStatus(ctx context.Context, id shared.ID) (*StatusOutput, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.GetStatus(ctx, id.String())
	if err != nil {
		if !redis.IsMiss(err) {
			s.log.Warn("status cache read failed", "scan_id", id, "error", err)
		}
		return nil, false
	}

	var cached terminalStatus
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false
	}

	out := &StatusOutput{
		ScanID:        id,
		Status:        cached.Status,
		FindingsCount: cached.FindingsCount,
		Error:         cached.Error,
	}
	if cached.Status == string(scan.StatusCompleted) {
		out.Percentage = 100
	}
	return out, true
}

func statusForStage(stage progress.Stage) string {
	switch stage {
	case progress.StageCompleted:
		return string(scan.StatusCompleted)
	case progress.StageFailed:
		return string(scan.StatusFailed)
	default:
		return string(scan.StatusRunning)
	}
}

// ResultsOutput is the full report for a terminal scan.
type ResultsOutput struct {
	Scan     *scan.Scan         `json:"scan"`
	Project  *project.Project   `json:"project"`
	Findings []*finding.Finding `json:"findings"`
	Guidance []Enrichment       `json:"guidance,omitempty"`
}

// Results returns the report. Only terminal scans have results; a running
// scan yields a conflict so clients keep polling Status instead.
func (s *Service) Results(ctx context.Context, id shared.ID) (*ResultsOutput, error) {
	sc, err := s.store.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sc.Status.IsTerminal() {
		return nil, shared.NewDomainError("CONFLICT", "scan is still running", shared.ErrConflict)
	}

	proj, err := s.store.GetProject(ctx, sc.ProjectID)
	if err != nil {
		return nil, err
	}

	findings, err := s.store.GetFindings(ctx, id)
	if err != nil {
		return nil, err
	}

	return &ResultsOutput{
		Scan:     sc,
		Project:  proj,
		Findings: findings,
		Guidance: s.store.GetGuidance(id),
	}, nil
}

// List paginates scans, newest first.
func (s *Service) List(ctx context.Context, filter scan.Filter, page pagination.Pagination) (pagination.Result[*scan.Scan], error) {
	return s.store.ListScans(ctx, filter, page)
}

func sourceKind(source string) project.SourceKind {
	switch source {
	case "github", "git", "repo":
		return project.SourceGitHub
	case "s3":
		return project.SourceS3
	default:
		return project.SourceUpload
	}
}

// validateSource enforces the per-source required fields the struct tags
// cannot express.
func validateSource(input SubmitInput) error {
	switch sourceKind(input.Source) {
	case project.SourceGitHub:
		if input.RepoURL == "" {
			return shared.NewDomainError("VALIDATION", "repo_url is required for repository scans", shared.ErrValidation)
		}
	case project.SourceS3:
		if input.Bucket == "" || input.Key == "" {
			return shared.NewDomainError("VALIDATION", "bucket and key are required for s3 scans", shared.ErrValidation)
		}
	case project.SourceUpload:
		if input.UploadPath == "" {
			return shared.NewDomainError("VALIDATION", "upload_path is required for upload scans", shared.ErrValidation)
		}
	}
	return nil
}

func defaultProjectName(input SubmitInput, kind project.SourceKind) string {
	switch kind {
	case project.SourceGitHub:
		return input.RepoURL
	case project.SourceS3:
		return input.Bucket + "/" + input.Key
	default:
		return input.UploadPath
	}
}
