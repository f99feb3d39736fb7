package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/logger"
)

type fakeRunner struct {
	ran []shared.ID
	err error
}

func (f *fakeRunner) Run(_ context.Context, scanID shared.ID) error {
	f.ran = append(f.ran, scanID)
	return f.err
}

func TestNewScanRunTask(t *testing.T) {
	scanID := shared.NewID()

	task, err := NewScanRunTask(ScanRunPayload{ScanID: scanID.String()})
	require.NoError(t, err)

	assert.Equal(t, TypeScanRun, task.Type())
	assert.Contains(t, string(task.Payload()), scanID.String())
}

func TestHandleScanRun(t *testing.T) {
	scanID := shared.NewID()
	runner := &fakeRunner{}
	h := NewScanTaskHandler(runner, logger.NewNop())

	task, err := NewScanRunTask(ScanRunPayload{ScanID: scanID.String()})
	require.NoError(t, err)

	require.NoError(t, h.HandleScanRun(context.Background(), task))

	require.Len(t, runner.ran, 1)
	assert.Equal(t, scanID, runner.ran[0])
}

func TestHandleScanRun_RunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("pipeline blew up")}
	h := NewScanTaskHandler(runner, logger.NewNop())

	task, err := NewScanRunTask(ScanRunPayload{ScanID: shared.NewID().String()})
	require.NoError(t, err)

	err = h.HandleScanRun(context.Background(), task)
	assert.ErrorContains(t, err, "pipeline blew up")
}

func TestHandleScanRun_BadPayload(t *testing.T) {
	runner := &fakeRunner{}
	h := NewScanTaskHandler(runner, logger.NewNop())

	err := h.HandleScanRun(context.Background(), asynq.NewTask(TypeScanRun, []byte("not json")))
	assert.ErrorContains(t, err, "unmarshal")
	assert.Empty(t, runner.ran)
}

func TestHandleScanRun_InvalidScanID(t *testing.T) {
	runner := &fakeRunner{}
	h := NewScanTaskHandler(runner, logger.NewNop())

	task, err := NewScanRunTask(ScanRunPayload{ScanID: "not-a-uuid"})
	require.NoError(t, err)

	err = h.HandleScanRun(context.Background(), task)
	assert.ErrorContains(t, err, "invalid scan id")
	assert.Empty(t, runner.ran)
}
