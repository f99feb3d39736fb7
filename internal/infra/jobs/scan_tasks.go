// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/logger"
)

// Task types
const (
	TypeScanRun = "scan:run"
)

// Queue names
const (
	QueueScans       = "scans"
	QueueMaintenance = "maintenance"
)

// ScanRunPayload carries the id of the scan to run. Nothing else rides the
// payload: the scan record holds the target and tokens stay in memory.
type ScanRunPayload struct {
	ScanID string `json:"scan_id"`
}

// NewScanRunTask creates a scan:run task. MaxRetry is zero on purpose: the
// supervisor owns failure semantics and a queue-level retry would rerun a
// scan that already recorded a terminal status.
func NewScanRunTask(payload ScanRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeScanRun, data,
		asynq.Queue(QueueScans),
		asynq.MaxRetry(0),
	), nil
}

// ScanRunner executes one scan to a terminal status.
type ScanRunner interface {
	Run(ctx context.Context, scanID shared.ID) error
}

// ScanTaskHandler handles scan:run tasks.
type ScanTaskHandler struct {
	runner ScanRunner
	logger *logger.Logger
}

// NewScanTaskHandler creates a new scan task handler.
func NewScanTaskHandler(runner ScanRunner, log *logger.Logger) *ScanTaskHandler {
	return &ScanTaskHandler{
		runner: runner,
		logger: log.With("component", "scan_task_handler"),
	}
}

// HandleScanRun processes one scan:run task.
func (h *ScanTaskHandler) HandleScanRun(ctx context.Context, task *asynq.Task) error {
	var payload ScanRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	scanID, err := shared.IDFromString(payload.ScanID)
	if err != nil {
		return fmt.Errorf("invalid scan id %q: %w", payload.ScanID, err)
	}

	h.logger.Info("processing scan task", "scan_id", scanID)
	if err := h.runner.Run(ctx, scanID); err != nil {
		h.logger.Error("scan task failed", "scan_id", scanID, "error", err)
		return err
	}
	return nil
}
