// Package finding defines normalized vulnerability findings produced by
// static analysis.
package finding

import (
	"time"

	"github.com/scanforge/api/pkg/domain/shared"
)

// Severity is the canonical four-level severity.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders severities: CRITICAL > HIGH > MEDIUM > LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Finding is one normalized vulnerability instance. Findings are created in
// bulk after a completed analysis run and never mutated; the store
// cascade-deletes them with their scan.
type Finding struct {
	ID         shared.ID
	ScanID     shared.ID
	RuleID     string
	Severity   Severity
	Category   string
	FilePath   string // relative to the scan target root, never absolute
	StartLine  int
	EndLine    int
	Message    string
	Excerpt    string
	CWE        []string
	OWASP      []string
	Confidence string
	CreatedAt  time.Time
}

// Summary holds per-severity counts for a finding set.
type Summary struct {
	Critical int
	High     int
	Medium   int
	Low      int
	Total    int
}

// Summarize counts findings by severity.
func Summarize(findings []*Finding) Summary {
	var s Summary
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
	}
	s.Total = len(findings)
	return s
}
