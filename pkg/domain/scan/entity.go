// Package scan defines the scan aggregate and its lifecycle.
package scan

import (
	"time"

	"github.com/scanforge/api/pkg/domain/shared"
)

// Scan represents one analysis run of a project's code.
type Scan struct {
	ID        shared.ID
	ProjectID shared.ID
	Status    Status
	Tier      Tier
	Target    Target

	StartedAt  *time.Time
	FinishedAt *time.Time

	// Aggregate results, populated on completion.
	CriticalCount int
	HighCount     int
	MediumCount   int
	LowCount      int
	TotalCount    int
	RiskScore     int
	Grade         string

	// ErrorMessage is set when the scan fails.
	ErrorMessage string

	// Degraded marks a scan whose results were kept in memory because a
	// persistence write failed. The findings are still correct; history
	// re-fetch may be stale.
	Degraded bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is the aggregate outcome of a completed analysis run.
type Summary struct {
	Critical  int
	High      int
	Medium    int
	Low       int
	Total     int
	RiskScore int
	Grade     string
}

// NewScan creates a scan in the queued state.
func NewScan(projectID shared.ID, tier Tier, target Target) (*Scan, error) {
	if projectID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "project_id is required", shared.ErrValidation)
	}
	if !tier.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid tier", shared.ErrValidation)
	}
	now := time.Now()
	return &Scan{
		ID:        shared.NewID(),
		ProjectID: projectID,
		Status:    StatusQueued,
		Tier:      tier,
		Target:    target,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ErrTerminal is returned when a transition is attempted on a scan that has
// already reached a terminal status.
var ErrTerminal = shared.NewDomainError("TERMINAL", "scan already in terminal status", shared.ErrConflict)

// Start transitions the scan from queued to running.
func (s *Scan) Start() error {
	if s.Status.IsTerminal() {
		return ErrTerminal
	}
	now := time.Now()
	s.Status = StatusRunning
	s.StartedAt = &now
	s.UpdatedAt = now
	return nil
}

// Complete records the analysis summary and moves the scan to completed.
func (s *Scan) Complete(sum Summary) error {
	if s.Status.IsTerminal() {
		return ErrTerminal
	}
	now := time.Now()
	s.Status = StatusCompleted
	s.CriticalCount = sum.Critical
	s.HighCount = sum.High
	s.MediumCount = sum.Medium
	s.LowCount = sum.Low
	s.TotalCount = sum.Total
	s.RiskScore = sum.RiskScore
	s.Grade = sum.Grade
	s.FinishedAt = &now
	s.UpdatedAt = now
	return nil
}

// Fail moves the scan to failed with a short user-visible message.
func (s *Scan) Fail(message string) error {
	if s.Status.IsTerminal() {
		return ErrTerminal
	}
	if message == "" {
		message = "scan failed"
	}
	now := time.Now()
	s.Status = StatusFailed
	s.ErrorMessage = message
	s.FinishedAt = &now
	s.UpdatedAt = now
	return nil
}

// MarkDegraded flags the scan as surviving on in-memory fallback records.
func (s *Scan) MarkDegraded() {
	s.Degraded = true
	s.UpdatedAt = time.Now()
}

// Elapsed returns the wall-clock duration of the scan so far, or of the
// whole run once finished.
func (s *Scan) Elapsed(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := now
	if s.FinishedAt != nil {
		end = *s.FinishedAt
	}
	return end.Sub(*s.StartedAt)
}
