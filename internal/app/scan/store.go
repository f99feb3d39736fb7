package scan

import (
	"context"
	"sort"
	"sync"

	"github.com/scanforge/api/internal/metrics"
	"github.com/scanforge/api/pkg/domain/finding"
	"github.com/scanforge/api/pkg/domain/project"
	"github.com/scanforge/api/pkg/domain/scan"
	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/logger"
	"github.com/scanforge/api/pkg/pagination"
)

// Write is the outcome of a gateway write. Degraded marks records that
// live only in process memory because the durable store rejected them.
type Write[T any] struct {
	Record   T
	Degraded bool
}

// Store is the persistence gateway in front of the repositories. Store
// failures never abort a scan: the write degrades to an in-memory record,
// logged at WARN and counted, and the pipeline continues. The scan itself
// is marked degraded so readers know history re-fetch may be stale.
type Store struct {
	projects project.Repository
	scans    scan.Repository
	findings finding.Repository
	log      *logger.Logger

	mu               sync.RWMutex
	fallbackProjects map[shared.ID]*project.Project
	fallbackScans    map[shared.ID]*scan.Scan
	fallbackFindings map[shared.ID][]*finding.Finding
	guidance         map[shared.ID][]Enrichment
}

// NewStore creates the gateway.
func NewStore(projects project.Repository, scans scan.Repository, findings finding.Repository, log *logger.Logger) *Store {
	return &Store{
		projects:         projects,
		scans:            scans,
		findings:         findings,
		log:              log,
		fallbackProjects: make(map[shared.ID]*project.Project),
		fallbackScans:    make(map[shared.ID]*scan.Scan),
		fallbackFindings: make(map[shared.ID][]*finding.Finding),
		guidance:         make(map[shared.ID][]Enrichment),
	}
}

// SaveProject inserts a new project record. A failed write degrades to
// memory so a submission never bounces on a dead store.
func (s *Store) SaveProject(ctx context.Context, p *project.Project) Write[*project.Project] {
	if err := s.projects.Create(ctx, p); err != nil {
		s.log.Warn("project write failed, keeping record in memory",
			"project_id", p.ID,
			"error", err,
		)
		metrics.PersistenceFallbacksTotal.WithLabelValues("create_project").Inc()

		s.mu.Lock()
		s.fallbackProjects[p.ID] = p
		s.mu.Unlock()
		return Write[*project.Project]{Record: p, Degraded: true}
	}
	return Write[*project.Project]{Record: p}
}

// GetProject reads a project, consulting the fallback map on store miss or
// error.
func (s *Store) GetProject(ctx context.Context, id shared.ID) (*project.Project, error) {
	p, err := s.projects.GetByID(ctx, id)
	if err == nil {
		return p, nil
	}

	s.mu.RLock()
	fallback, ok := s.fallbackProjects[id]
	s.mu.RUnlock()
	if ok {
		return fallback, nil
	}
	return nil, err
}

// SaveGuidance keeps enrichment output for a scan. Guidance is advisory
// and process-local; it is not written to the durable store.
func (s *Store) SaveGuidance(scanID shared.ID, guidance []Enrichment) {
	s.mu.Lock()
	s.guidance[scanID] = guidance
	s.mu.Unlock()
}

// GetGuidance returns any enrichment output recorded for a scan.
func (s *Store) GetGuidance(scanID shared.ID) []Enrichment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guidance[scanID]
}

// SaveScan inserts a new scan record.
func (s *Store) SaveScan(ctx context.Context, sc *scan.Scan) Write[*scan.Scan] {
	if err := s.scans.Create(ctx, sc); err != nil {
		return s.degradeScan(sc, "create_scan", err)
	}
	return Write[*scan.Scan]{Record: sc}
}

// UpdateScan persists scan mutations. A scan already degraded to memory is
// updated in memory only.
func (s *Store) UpdateScan(ctx context.Context, sc *scan.Scan) Write[*scan.Scan] {
	s.mu.RLock()
	_, inFallback := s.fallbackScans[sc.ID]
	s.mu.RUnlock()

	if inFallback {
		s.mu.Lock()
		s.fallbackScans[sc.ID] = sc
		s.mu.Unlock()
		return Write[*scan.Scan]{Record: sc, Degraded: true}
	}

	if err := s.scans.Update(ctx, sc); err != nil {
		return s.degradeScan(sc, "update_scan", err)
	}
	return Write[*scan.Scan]{Record: sc}
}

// SaveFindings inserts the finding batch for a scan.
func (s *Store) SaveFindings(ctx context.Context, scanID shared.ID, findings []*finding.Finding) Write[[]*finding.Finding] {
	if err := s.findings.CreateBatch(ctx, findings); err != nil {
		s.log.Warn("finding batch write failed, keeping results in memory",
			"scan_id", scanID,
			"count", len(findings),
			"error", err,
		)
		metrics.PersistenceFallbacksTotal.WithLabelValues("create_findings").Inc()

		s.mu.Lock()
		s.fallbackFindings[scanID] = findings
		s.mu.Unlock()
		return Write[[]*finding.Finding]{Record: findings, Degraded: true}
	}
	return Write[[]*finding.Finding]{Record: findings}
}

// GetScan reads a scan, consulting the fallback map on store miss or error.
func (s *Store) GetScan(ctx context.Context, id shared.ID) (*scan.Scan, error) {
	sc, err := s.scans.GetByID(ctx, id)
	if err == nil {
		return sc, nil
	}

	s.mu.RLock()
	fallback, ok := s.fallbackScans[id]
	s.mu.RUnlock()
	if ok {
		return fallback, nil
	}
	return nil, err
}

// GetFindings reads the findings of a scan, consulting the fallback map on
// store miss or error.
func (s *Store) GetFindings(ctx context.Context, scanID shared.ID) ([]*finding.Finding, error) {
	s.mu.RLock()
	fallback, ok := s.fallbackFindings[scanID]
	s.mu.RUnlock()
	if ok {
		return fallback, nil
	}
	return s.findings.ListByScan(ctx, scanID)
}

// ListScans lists durable scans, merging in degraded in-memory ones that
// match the filter so they do not vanish from the API while the store is
// down.
func (s *Store) ListScans(ctx context.Context, filter scan.Filter, page pagination.Pagination) (pagination.Result[*scan.Scan], error) {
	result, err := s.scans.List(ctx, filter, page)
	if err != nil {
		return pagination.Result[*scan.Scan]{}, err
	}

	s.mu.RLock()
	var degraded []*scan.Scan
	for _, sc := range s.fallbackScans {
		if matchesFilter(sc, filter) {
			degraded = append(degraded, sc)
		}
	}
	s.mu.RUnlock()

	if len(degraded) > 0 {
		sort.Slice(degraded, func(i, j int) bool {
			return degraded[i].CreatedAt.After(degraded[j].CreatedAt)
		})
		result.Data = append(degraded, result.Data...)
		result.Total += int64(len(degraded))
	}
	return result, nil
}

func (s *Store) degradeScan(sc *scan.Scan, operation string, err error) Write[*scan.Scan] {
	s.log.Warn("scan write failed, keeping record in memory",
		"scan_id", sc.ID,
		"operation", operation,
		"error", err,
	)
	metrics.PersistenceFallbacksTotal.WithLabelValues(operation).Inc()

	sc.MarkDegraded()
	s.mu.Lock()
	s.fallbackScans[sc.ID] = sc
	s.mu.Unlock()
	return Write[*scan.Scan]{Record: sc, Degraded: true}
}

func matchesFilter(sc *scan.Scan, f scan.Filter) bool {
	if f.ProjectID != nil && sc.ProjectID != *f.ProjectID {
		return false
	}
	if f.Status != nil && sc.Status != *f.Status {
		return false
	}
	if f.Tier != nil && sc.Tier != *f.Tier {
		return false
	}
	return true
}
