package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/scanforge/api/pkg/domain/finding"
	"github.com/scanforge/api/pkg/domain/shared"
)

// FindingRepository implements finding.Repository using PostgreSQL.
type FindingRepository struct {
	db *DB
}

// NewFindingRepository creates a new FindingRepository.
func NewFindingRepository(db *DB) *FindingRepository {
	return &FindingRepository{db: db}
}

// CreateBatch inserts all findings for a scan in a single transaction. A
// partial batch is never committed.
func (r *FindingRepository) CreateBatch(ctx context.Context, findings []*finding.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO findings (
				id, scan_id, rule_id, severity, category,
				file_path, start_line, end_line, message, excerpt,
				cwe, owasp, confidence, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare finding insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range findings {
			_, err := stmt.ExecContext(ctx,
				f.ID,
				f.ScanID,
				f.RuleID,
				string(f.Severity),
				f.Category,
				f.FilePath,
				f.StartLine,
				f.EndLine,
				f.Message,
				f.Excerpt,
				pq.Array(f.CWE),
				pq.Array(f.OWASP),
				f.Confidence,
				f.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert finding %s: %w", f.ID, err)
			}
		}
		return nil
	})
}

// ListByScan returns all findings for a scan ordered by severity then file.
func (r *FindingRepository) ListByScan(ctx context.Context, scanID shared.ID) ([]*finding.Finding, error) {
	query := `
		SELECT id, scan_id, rule_id, severity, category,
			file_path, start_line, end_line, message, excerpt,
			cwe, owasp, confidence, created_at
		FROM findings
		WHERE scan_id = $1
		ORDER BY
			CASE severity
				WHEN 'CRITICAL' THEN 0
				WHEN 'HIGH' THEN 1
				WHEN 'MEDIUM' THEN 2
				ELSE 3
			END,
			file_path, start_line
	`
	rows, err := r.db.QueryContext(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	var findings []*finding.Finding
	for rows.Next() {
		var f finding.Finding
		var severity string
		err := rows.Scan(
			&f.ID,
			&f.ScanID,
			&f.RuleID,
			&severity,
			&f.Category,
			&f.FilePath,
			&f.StartLine,
			&f.EndLine,
			&f.Message,
			&f.Excerpt,
			pq.Array(&f.CWE),
			pq.Array(&f.OWASP),
			&f.Confidence,
			&f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.Severity = finding.Severity(severity)
		findings = append(findings, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate findings: %w", err)
	}
	return findings, nil
}

// CountBySeverity returns per-severity finding counts for a scan.
func (r *FindingRepository) CountBySeverity(ctx context.Context, scanID shared.ID) (map[finding.Severity]int, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM findings
		WHERE scan_id = $1
		GROUP BY severity
	`
	rows, err := r.db.QueryContext(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to count findings: %w", err)
	}
	defer rows.Close()

	counts := make(map[finding.Severity]int)
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[finding.Severity(severity)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counts: %w", err)
	}
	return counts, nil
}
