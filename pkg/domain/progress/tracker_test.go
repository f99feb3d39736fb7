package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/api/pkg/domain/shared"
)

func intp(v int) *int { return &v }

func TestTracker_StartAndGet(t *testing.T) {
	tr := NewTracker()
	id := shared.NewID()

	tr.Start(id, 120)

	rec, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, StageCounting, rec.Stage)
	assert.Equal(t, 120, rec.TotalFiles)
	assert.Equal(t, 0, rec.Percentage)

	_, ok = tr.Get(shared.NewID())
	assert.False(t, ok)
}

func TestTracker_PercentageNeverDecreases(t *testing.T) {
	tr := NewTracker()
	id := shared.NewID()
	tr.Start(id, 100)

	tr.SetStage(id, StageScanning, Update{ProcessedFiles: intp(80)})
	rec, _ := tr.Get(id)
	high := rec.Percentage
	assert.Greater(t, high, 20)

	// A late stage update with fewer processed files must not move the
	// percentage backwards.
	tr.SetStage(id, StageScanning, Update{ProcessedFiles: intp(10)})
	rec, _ = tr.Get(id)
	assert.GreaterOrEqual(t, rec.Percentage, high)
}

func TestTracker_ScanningInterpolates(t *testing.T) {
	tr := NewTracker()
	id := shared.NewID()
	tr.Start(id, 100)

	tr.SetStage(id, StageScanning, Update{ProcessedFiles: intp(0)})
	rec, _ := tr.Get(id)
	assert.Equal(t, 20, rec.Percentage)

	tr.SetStage(id, StageScanning, Update{ProcessedFiles: intp(50), CurrentFile: "cmd/main.go"})
	rec, _ = tr.Get(id)
	assert.Equal(t, 52, rec.Percentage)
	assert.Equal(t, "cmd/main.go", rec.CurrentFile)

	// Processed count beyond total clamps at the stage ceiling.
	tr.SetStage(id, StageScanning, Update{ProcessedFiles: intp(500)})
	rec, _ = tr.Get(id)
	assert.Equal(t, 85, rec.Percentage)
}

func TestTracker_Complete(t *testing.T) {
	tr := NewTracker()
	id := shared.NewID()
	tr.Start(id, 10)

	tr.Complete(id, 7)

	rec, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, StageCompleted, rec.Stage)
	assert.Equal(t, 100, rec.Percentage)
	assert.Equal(t, 7, rec.FindingsCount)
	assert.True(t, rec.Stage.IsTerminal())
}

func TestTracker_FailKeepsLastPercentage(t *testing.T) {
	tr := NewTracker()
	id := shared.NewID()
	tr.Start(id, 100)
	tr.SetStage(id, StageScanning, Update{ProcessedFiles: intp(50)})

	tr.Fail(id, "analyzer crashed")

	rec, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, StageFailed, rec.Stage)
	assert.Equal(t, 52, rec.Percentage)
	assert.Equal(t, "analyzer crashed", rec.Error)
}

func TestTracker_TerminalRecordsExpire(t *testing.T) {
	tr := NewTracker(WithRetention(20*time.Millisecond, 10*time.Millisecond))
	id := shared.NewID()
	tr.Start(id, 1)
	tr.Complete(id, 0)

	_, ok := tr.Get(id)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := tr.Get(id)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_UpdateUnknownScanIsNoop(t *testing.T) {
	tr := NewTracker()
	id := shared.NewID()

	tr.SetStage(id, StageScanning, Update{ProcessedFiles: intp(1)})
	tr.Complete(id, 3)

	_, ok := tr.Get(id)
	assert.False(t, ok)
}

func TestTracker_ListenersSeeEveryChange(t *testing.T) {
	tr := NewTracker()
	id := shared.NewID()

	var stages []Stage
	tr.Subscribe(func(rec Record) {
		stages = append(stages, rec.Stage)
	})

	tr.Start(id, 5)
	tr.SetStage(id, StageScanning, Update{ProcessedFiles: intp(2)})
	tr.Complete(id, 1)

	require.Len(t, stages, 3)
	assert.Equal(t, []Stage{StageCounting, StageScanning, StageCompleted}, stages)
}
