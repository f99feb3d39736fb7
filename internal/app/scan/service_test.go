package scan

import (
	"context"
	"encoding/json"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/api/pkg/domain/progress"
	"github.com/scanforge/api/pkg/domain/scan"
	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/logger"
	"github.com/scanforge/api/pkg/validator"
)

type fakeEnqueuer struct {
	enqueued []shared.ID
	err      error
}

func (f *fakeEnqueuer) EnqueueScanRun(ctx context.Context, scanID shared.ID) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, scanID)
	return nil
}

// GetStatus completes the StatusReader side of fakeCache; a scan the
// supervisor never cached is a miss.
func (c *fakeCache) GetStatus(ctx context.Context, scanID string) ([]byte, error) {
	payload, ok := c.payloads[scanID]
	if !ok {
		return nil, goredis.Nil
	}
	return payload, nil
}

type serviceHarness struct {
	svc      *Service
	projects *fakeProjectRepo
	scans    *fakeScanRepo
	findings *fakeFindingRepo
	store    *Store
	enqueuer *fakeEnqueuer
	cache    *fakeCache
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()

	h := &serviceHarness{
		projects: newFakeProjectRepo(),
		scans:    newFakeScanRepo(),
		findings: newFakeFindingRepo(),
		enqueuer: &fakeEnqueuer{},
		cache:    &fakeCache{},
	}
	h.store = NewStore(h.projects, h.scans, h.findings, logger.NewNop())
	h.svc = NewService(
		supervisorConfig(),
		h.store,
		progress.NewTracker(),
		h.enqueuer,
		NewTokenVault(),
		h.cache,
		validator.New(),
		logger.NewNop(),
	)
	return h
}

func TestService_Submit(t *testing.T) {
	h := newServiceHarness(t)

	out, err := h.svc.Submit(context.Background(), SubmitInput{
		Source:     "upload",
		Tier:       "fast",
		UploadPath: "/tmp/upload.zip",
	})
	require.NoError(t, err)

	assert.Equal(t, string(scan.StatusQueued), out.Status)
	assert.Greater(t, out.EstimatedSeconds, 0)
	require.Len(t, h.enqueuer.enqueued, 1)
	assert.Equal(t, out.ScanID, h.enqueuer.enqueued[0])
}

func TestService_SubmitSurvivesStoreOutage(t *testing.T) {
	h := newServiceHarness(t)
	h.projects.failing = true
	h.scans.failing = true

	out, err := h.svc.Submit(context.Background(), SubmitInput{
		Source:     "upload",
		Tier:       "fast",
		UploadPath: "/tmp/upload.zip",
	})
	require.NoError(t, err)
	require.Len(t, h.enqueuer.enqueued, 1)

	// Both records degraded to memory and stay readable through the gateway.
	sc, err := h.store.GetScan(context.Background(), out.ScanID)
	require.NoError(t, err)
	assert.True(t, sc.Degraded)

	proj, err := h.store.GetProject(context.Background(), sc.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/upload.zip", proj.Name)
}

func TestService_ResultsServesDegradedScan(t *testing.T) {
	h := newServiceHarness(t)
	h.projects.failing = true
	h.scans.failing = true
	h.findings.failing = true

	out, err := h.svc.Submit(context.Background(), SubmitInput{
		Source:     "upload",
		Tier:       "fast",
		UploadPath: "/tmp/upload.zip",
	})
	require.NoError(t, err)

	sc, err := h.store.GetScan(context.Background(), out.ScanID)
	require.NoError(t, err)
	require.NoError(t, sc.Start())
	require.NoError(t, sc.Complete(scan.Summary{High: 1, Total: 1, RiskScore: 90, Grade: "A"}))
	h.store.UpdateScan(context.Background(), sc)

	res, err := h.svc.Results(context.Background(), out.ScanID)
	require.NoError(t, err)
	assert.Equal(t, out.ScanID, res.Scan.ID)
	assert.Equal(t, "/tmp/upload.zip", res.Project.Name)
}

func TestService_ResultsConflictsWhileRunning(t *testing.T) {
	h := newServiceHarness(t)

	out, err := h.svc.Submit(context.Background(), SubmitInput{
		Source:     "upload",
		Tier:       "fast",
		UploadPath: "/tmp/upload.zip",
	})
	require.NoError(t, err)

	_, err = h.svc.Results(context.Background(), out.ScanID)
	assert.True(t, shared.IsConflict(err))
}

func TestService_StatusServesCachedTerminal(t *testing.T) {
	h := newServiceHarness(t)
	id := shared.NewID()

	payload, err := json.Marshal(terminalStatus{
		Status:        string(scan.StatusCompleted),
		RiskScore:     72,
		Grade:         "C",
		FindingsCount: 3,
	})
	require.NoError(t, err)
	require.NoError(t, h.cache.SetStatus(context.Background(), id.String(), payload, 0))

	// The store stays down: the cached snapshot alone must answer the poll.
	h.scans.failing = true

	out, err := h.svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, string(scan.StatusCompleted), out.Status)
	assert.Equal(t, 100, out.Percentage)
	assert.Equal(t, 3, out.FindingsCount)
}

func TestService_StatusFallsBackToDurable(t *testing.T) {
	h := newServiceHarness(t)

	sc := newTestScan(t)
	h.store.SaveScan(context.Background(), sc)
	require.NoError(t, sc.Start())
	require.NoError(t, sc.Complete(scan.Summary{Total: 2, RiskScore: 95, Grade: "A"}))
	h.store.UpdateScan(context.Background(), sc)

	// Tracker empty, cache miss: the durable scan answers.
	out, err := h.svc.Status(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, string(scan.StatusCompleted), out.Status)
	assert.Equal(t, 100, out.Percentage)
	assert.Equal(t, 2, out.FindingsCount)
}
