package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/api/pkg/domain/finding"
	"github.com/scanforge/api/pkg/domain/project"
	"github.com/scanforge/api/pkg/domain/scan"
	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/logger"
	"github.com/scanforge/api/pkg/pagination"
)

var errStoreDown = errors.New("connection refused")

// fakeProjectRepo is an in-memory project.Repository that can be switched
// into a failing mode.
type fakeProjectRepo struct {
	failing  bool
	projects map[shared.ID]*project.Project
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: make(map[shared.ID]*project.Project)}
}

func (r *fakeProjectRepo) Create(ctx context.Context, p *project.Project) error {
	if r.failing {
		return errStoreDown
	}
	r.projects[p.ID] = p
	return nil
}

func (r *fakeProjectRepo) GetByID(ctx context.Context, id shared.ID) (*project.Project, error) {
	if r.failing {
		return nil, errStoreDown
	}
	p, ok := r.projects[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "project not found", shared.ErrNotFound)
	}
	return p, nil
}

// fakeScanRepo is an in-memory scan.Repository that can be switched into a
// failing mode.
type fakeScanRepo struct {
	failing bool
	scans   map[shared.ID]*scan.Scan
}

func newFakeScanRepo() *fakeScanRepo {
	return &fakeScanRepo{scans: make(map[shared.ID]*scan.Scan)}
}

func (r *fakeScanRepo) Create(ctx context.Context, s *scan.Scan) error {
	if r.failing {
		return errStoreDown
	}
	r.scans[s.ID] = s
	return nil
}

func (r *fakeScanRepo) GetByID(ctx context.Context, id shared.ID) (*scan.Scan, error) {
	if r.failing {
		return nil, errStoreDown
	}
	s, ok := r.scans[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	return s, nil
}

func (r *fakeScanRepo) Update(ctx context.Context, s *scan.Scan) error {
	if r.failing {
		return errStoreDown
	}
	if _, ok := r.scans[s.ID]; !ok {
		return shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	r.scans[s.ID] = s
	return nil
}

func (r *fakeScanRepo) List(ctx context.Context, filter scan.Filter, page pagination.Pagination) (pagination.Result[*scan.Scan], error) {
	if r.failing {
		return pagination.Result[*scan.Scan]{}, errStoreDown
	}
	var out []*scan.Scan
	for _, s := range r.scans {
		out = append(out, s)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

type fakeFindingRepo struct {
	failing  bool
	findings map[shared.ID][]*finding.Finding
}

func newFakeFindingRepo() *fakeFindingRepo {
	return &fakeFindingRepo{findings: make(map[shared.ID][]*finding.Finding)}
}

func (r *fakeFindingRepo) CreateBatch(ctx context.Context, batch []*finding.Finding) error {
	if r.failing {
		return errStoreDown
	}
	if len(batch) == 0 {
		return nil
	}
	r.findings[batch[0].ScanID] = batch
	return nil
}

func (r *fakeFindingRepo) ListByScan(ctx context.Context, scanID shared.ID) ([]*finding.Finding, error) {
	if r.failing {
		return nil, errStoreDown
	}
	return r.findings[scanID], nil
}

func (r *fakeFindingRepo) CountBySeverity(ctx context.Context, scanID shared.ID) (map[finding.Severity]int, error) {
	if r.failing {
		return nil, errStoreDown
	}
	counts := make(map[finding.Severity]int)
	for _, f := range r.findings[scanID] {
		counts[f.Severity]++
	}
	return counts, nil
}

func newTestScan(t *testing.T) *scan.Scan {
	t.Helper()
	sc, err := scan.NewScan(shared.NewID(), scan.TierFast, scan.Target{UploadPath: "/tmp/u.zip"})
	require.NoError(t, err)
	return sc
}

func TestStore_SaveScanDurable(t *testing.T) {
	scans, findings := newFakeScanRepo(), newFakeFindingRepo()
	store := NewStore(newFakeProjectRepo(), scans, findings, logger.NewNop())
	sc := newTestScan(t)

	w := store.SaveScan(context.Background(), sc)
	assert.False(t, w.Degraded)
	assert.False(t, sc.Degraded)

	got, err := store.GetScan(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, sc.ID, got.ID)
}

func TestStore_SaveScanDegradesOnFailure(t *testing.T) {
	scans, findings := newFakeScanRepo(), newFakeFindingRepo()
	scans.failing = true
	store := NewStore(newFakeProjectRepo(), scans, findings, logger.NewNop())
	sc := newTestScan(t)

	w := store.SaveScan(context.Background(), sc)
	assert.True(t, w.Degraded)
	assert.True(t, sc.Degraded)

	// The scan is still readable through the gateway.
	got, err := store.GetScan(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.True(t, got.Degraded)
}

func TestStore_DegradedScanUpdatesStayInMemory(t *testing.T) {
	scans, findings := newFakeScanRepo(), newFakeFindingRepo()
	scans.failing = true
	store := NewStore(newFakeProjectRepo(), scans, findings, logger.NewNop())
	sc := newTestScan(t)

	store.SaveScan(context.Background(), sc)

	// The store coming back must not resurrect the scan into Postgres via
	// an update; a degraded scan lives out its life in memory.
	scans.failing = false
	require.NoError(t, sc.Start())
	w := store.UpdateScan(context.Background(), sc)
	assert.True(t, w.Degraded)
	assert.Empty(t, scans.scans)
}

func TestStore_SaveFindingsDegradesOnFailure(t *testing.T) {
	scans, findingsRepo := newFakeScanRepo(), newFakeFindingRepo()
	findingsRepo.failing = true
	store := NewStore(newFakeProjectRepo(), scans, findingsRepo, logger.NewNop())
	sc := newTestScan(t)

	batch := []*finding.Finding{
		{ID: shared.NewID(), ScanID: sc.ID, RuleID: "rules.a", Severity: finding.SeverityHigh},
	}
	w := store.SaveFindings(context.Background(), sc.ID, batch)
	assert.True(t, w.Degraded)

	// Findings stay readable even though the batch insert failed, and the
	// fallback keeps serving them once the repo recovers.
	findingsRepo.failing = false
	got, err := store.GetFindings(context.Background(), sc.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rules.a", got[0].RuleID)
}

func TestStore_ListScansMergesDegraded(t *testing.T) {
	scans, findings := newFakeScanRepo(), newFakeFindingRepo()
	store := NewStore(newFakeProjectRepo(), scans, findings, logger.NewNop())

	durable := newTestScan(t)
	store.SaveScan(context.Background(), durable)

	scans.failing = true
	degraded := newTestScan(t)
	store.SaveScan(context.Background(), degraded)
	scans.failing = false

	result, err := store.ListScans(context.Background(), scan.Filter{}, pagination.New(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
	require.Len(t, result.Data, 2)
	// Degraded records are surfaced ahead of the durable page.
	assert.Equal(t, degraded.ID, result.Data[0].ID)
}

func TestStore_ListScansFiltersDegraded(t *testing.T) {
	scans, findings := newFakeScanRepo(), newFakeFindingRepo()
	scans.failing = true
	store := NewStore(newFakeProjectRepo(), scans, findings, logger.NewNop())

	degraded := newTestScan(t)
	store.SaveScan(context.Background(), degraded)
	scans.failing = false

	otherProject := shared.NewID()
	result, err := store.ListScans(context.Background(),
		scan.Filter{ProjectID: &otherProject}, pagination.New(1, 20))
	require.NoError(t, err)
	assert.Empty(t, result.Data)

	result, err = store.ListScans(context.Background(),
		scan.Filter{ProjectID: &degraded.ProjectID}, pagination.New(1, 20))
	require.NoError(t, err)
	assert.Len(t, result.Data, 1)
}

func TestStore_Guidance(t *testing.T) {
	store := NewStore(newFakeProjectRepo(), newFakeScanRepo(), newFakeFindingRepo(), logger.NewNop())
	id := shared.NewID()

	assert.Empty(t, store.GetGuidance(id))

	store.SaveGuidance(id, []Enrichment{{RuleID: "rules.a", Remediation: "use prepared statements"}})
	got := store.GetGuidance(id)
	require.Len(t, got, 1)
	assert.Equal(t, "rules.a", got[0].RuleID)
}

func TestStore_SaveProjectDegradesOnFailure(t *testing.T) {
	projects := newFakeProjectRepo()
	projects.failing = true
	store := NewStore(projects, newFakeScanRepo(), newFakeFindingRepo(), logger.NewNop())

	proj, err := project.NewProject("acme/app", project.SourceGitHub, "https://github.com/acme/app")
	require.NoError(t, err)

	w := store.SaveProject(context.Background(), proj)
	assert.True(t, w.Degraded)

	// The project stays readable through the gateway, including after the
	// repo recovers without ever seeing the row.
	projects.failing = false
	got, err := store.GetProject(context.Background(), proj.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme/app", got.Name)
	assert.Empty(t, projects.projects)
}

func TestStore_GetProjectPrefersDurable(t *testing.T) {
	projects := newFakeProjectRepo()
	store := NewStore(projects, newFakeScanRepo(), newFakeFindingRepo(), logger.NewNop())

	proj, err := project.NewProject("acme/app", project.SourceGitHub, "https://github.com/acme/app")
	require.NoError(t, err)
	w := store.SaveProject(context.Background(), proj)
	assert.False(t, w.Degraded)

	got, err := store.GetProject(context.Background(), proj.ID)
	require.NoError(t, err)
	assert.Equal(t, proj.ID, got.ID)

	_, err = store.GetProject(context.Background(), shared.NewID())
	assert.Error(t, err)
}
