package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/api/pkg/domain/shared"
)

func TestNewScan(t *testing.T) {
	sc, err := NewScan(shared.NewID(), TierFast, Target{RepoURL: "https://github.com/acme/app.git"})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, sc.Status)
	assert.False(t, sc.ID.IsZero())
	assert.Nil(t, sc.StartedAt)
	assert.Nil(t, sc.FinishedAt)
}

func TestNewScan_Validation(t *testing.T) {
	_, err := NewScan(shared.ID{}, TierFast, Target{})
	assert.Error(t, err)

	_, err = NewScan(shared.NewID(), Tier("extreme"), Target{})
	assert.Error(t, err)
}

func TestScan_Lifecycle(t *testing.T) {
	sc, err := NewScan(shared.NewID(), TierDeep, Target{UploadPath: "/tmp/upload.zip"})
	require.NoError(t, err)

	require.NoError(t, sc.Start())
	assert.Equal(t, StatusRunning, sc.Status)
	require.NotNil(t, sc.StartedAt)

	sum := Summary{Critical: 1, High: 2, Medium: 3, Low: 4, Total: 10, RiskScore: 12, Grade: "C"}
	require.NoError(t, sc.Complete(sum))
	assert.Equal(t, StatusCompleted, sc.Status)
	assert.Equal(t, 10, sc.TotalCount)
	assert.Equal(t, 12, sc.RiskScore)
	assert.Equal(t, "C", sc.Grade)
	require.NotNil(t, sc.FinishedAt)
}

func TestScan_TerminalIsSticky(t *testing.T) {
	sc, err := NewScan(shared.NewID(), TierFast, Target{})
	require.NoError(t, err)
	require.NoError(t, sc.Start())
	require.NoError(t, sc.Fail("clone failed"))

	assert.ErrorIs(t, sc.Start(), ErrTerminal)
	assert.ErrorIs(t, sc.Complete(Summary{}), ErrTerminal)
	assert.ErrorIs(t, sc.Fail("again"), ErrTerminal)
	assert.Equal(t, "clone failed", sc.ErrorMessage)
}

func TestScan_FailDefaultsMessage(t *testing.T) {
	sc, err := NewScan(shared.NewID(), TierFast, Target{})
	require.NoError(t, err)
	require.NoError(t, sc.Fail(""))
	assert.Equal(t, "scan failed", sc.ErrorMessage)
}

func TestScan_Elapsed(t *testing.T) {
	sc, err := NewScan(shared.NewID(), TierFast, Target{})
	require.NoError(t, err)
	assert.Zero(t, sc.Elapsed(time.Now()))

	start := time.Now().Add(-time.Minute)
	finish := start.Add(30 * time.Second)
	sc.StartedAt = &start

	assert.InDelta(t, time.Minute, sc.Elapsed(time.Now()), float64(time.Second))

	sc.FinishedAt = &finish
	assert.Equal(t, 30*time.Second, sc.Elapsed(time.Now()))
}
