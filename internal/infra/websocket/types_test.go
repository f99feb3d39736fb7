package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/api/pkg/domain/progress"
	"github.com/scanforge/api/pkg/domain/shared"
)

func TestScanChannel(t *testing.T) {
	assert.Equal(t, "scan:abc", ScanChannel("abc"))

	id, ok := ParseScanChannel("scan:abc")
	require.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = ParseScanChannel("scan:")
	assert.False(t, ok)

	_, ok = ParseScanChannel("project:abc")
	assert.False(t, ok)

	_, ok = ParseScanChannel("")
	assert.False(t, ok)
}

func TestNewProgressData(t *testing.T) {
	scanID := shared.NewID()
	rec := progress.Record{
		ScanID:         scanID,
		Stage:          progress.StageScanning,
		Percentage:     52,
		ProcessedFiles: 50,
		TotalFiles:     100,
		CurrentFile:    "internal/db/conn.go",
		FindingsCount:  3,
		StartedAt:      time.Now().Add(-2 * time.Second),
	}

	data := NewProgressData(rec)

	assert.Equal(t, scanID.String(), data.ScanID)
	assert.Equal(t, "scanning", data.Stage)
	assert.Equal(t, 52, data.Percentage)
	assert.Equal(t, 50, data.ProcessedFiles)
	assert.Equal(t, 100, data.TotalFiles)
	assert.Equal(t, "internal/db/conn.go", data.CurrentFile)
	assert.Equal(t, 3, data.FindingsCount)
	assert.GreaterOrEqual(t, data.ElapsedMS, int64(2000))
}

func TestMessageBuilders(t *testing.T) {
	msg := NewMessage(MessageTypeProgress).
		WithChannel("scan:x").
		WithData(ProgressData{ScanID: "x", Stage: "counting"}).
		WithRequestID("req-1")

	assert.Equal(t, MessageTypeProgress, msg.Type)
	assert.Equal(t, "scan:x", msg.Channel)
	assert.Equal(t, "req-1", msg.RequestID)
	assert.NotZero(t, msg.Timestamp)

	var decoded ProgressData
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, "x", decoded.ScanID)
}
