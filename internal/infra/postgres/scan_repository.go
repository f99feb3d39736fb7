package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/scanforge/api/pkg/domain/scan"
	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/pagination"
)

// ScanRepository implements scan.Repository using PostgreSQL.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create persists a new scan.
func (r *ScanRepository) Create(ctx context.Context, s *scan.Scan) error {
	target, err := json.Marshal(s.Target)
	if err != nil {
		return fmt.Errorf("failed to marshal target: %w", err)
	}

	query := `
		INSERT INTO scans (
			id, project_id, status, tier, target,
			started_at, finished_at,
			critical_count, high_count, medium_count, low_count, total_count,
			risk_score, grade, error_message, degraded,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.ProjectID,
		string(s.Status),
		string(s.Tier),
		target,
		nullTime(s.StartedAt),
		nullTime(s.FinishedAt),
		s.CriticalCount,
		s.HighCount,
		s.MediumCount,
		s.LowCount,
		s.TotalCount,
		s.RiskScore,
		s.Grade,
		s.ErrorMessage,
		s.Degraded,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("ALREADY_EXISTS", "scan already exists", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create scan: %w", err)
	}
	return nil
}

// GetByID retrieves a scan by ID.
func (r *ScanRepository) GetByID(ctx context.Context, id shared.ID) (*scan.Scan, error) {
	query := selectScanQuery + " WHERE id = $1"
	row := r.db.QueryRowContext(ctx, query, id)
	return scanFromRow(row)
}

// Update persists scan mutations (status transitions, results, degradation).
func (r *ScanRepository) Update(ctx context.Context, s *scan.Scan) error {
	query := `
		UPDATE scans SET
			status = $2,
			started_at = $3,
			finished_at = $4,
			critical_count = $5,
			high_count = $6,
			medium_count = $7,
			low_count = $8,
			total_count = $9,
			risk_score = $10,
			grade = $11,
			error_message = $12,
			degraded = $13,
			updated_at = $14
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		s.ID,
		string(s.Status),
		nullTime(s.StartedAt),
		nullTime(s.FinishedAt),
		s.CriticalCount,
		s.HighCount,
		s.MediumCount,
		s.LowCount,
		s.TotalCount,
		s.RiskScore,
		s.Grade,
		s.ErrorMessage,
		s.Degraded,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	return nil
}

// scanSortColumns whitelists the sortable list fields.
var scanSortColumns = map[string]string{
	"created_at": "created_at",
	"status":     "status",
	"tier":       "tier",
	"risk_score": "risk_score",
}

// List lists scans with filters and pagination, newest first unless the
// filter carries a sort expression.
func (r *ScanRepository) List(ctx context.Context, filter scan.Filter, page pagination.Pagination) (pagination.Result[*scan.Scan], error) {
	var conditions []string
	var args []any

	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Tier != nil {
		args = append(args, string(*filter.Tier))
		conditions = append(conditions, fmt.Sprintf("tier = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scans"+where, args...).Scan(&total); err != nil {
		return pagination.Result[*scan.Scan]{}, fmt.Errorf("failed to count scans: %w", err)
	}

	args = append(args, page.Limit(), page.Offset())
	orderBy := pagination.OrderBy(filter.Sort, "created_at DESC", scanSortColumns)
	query := fmt.Sprintf("%s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		selectScanQuery, where, orderBy, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*scan.Scan]{}, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []*scan.Scan
	for rows.Next() {
		s, err := scanFromRow(rows)
		if err != nil {
			return pagination.Result[*scan.Scan]{}, err
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*scan.Scan]{}, fmt.Errorf("failed to iterate scans: %w", err)
	}

	return pagination.NewResult(scans, total, page), nil
}

const selectScanQuery = `
	SELECT id, project_id, status, tier, target,
		started_at, finished_at,
		critical_count, high_count, medium_count, low_count, total_count,
		risk_score, grade, error_message, degraded,
		created_at, updated_at
	FROM scans`

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFromRow(row rowScanner) (*scan.Scan, error) {
	var s scan.Scan
	var status, tier string
	var target []byte
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&s.ID,
		&s.ProjectID,
		&status,
		&tier,
		&target,
		&startedAt,
		&finishedAt,
		&s.CriticalCount,
		&s.HighCount,
		&s.MediumCount,
		&s.LowCount,
		&s.TotalCount,
		&s.RiskScore,
		&s.Grade,
		&s.ErrorMessage,
		&s.Degraded,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	s.Status = scan.Status(status)
	s.Tier = scan.Tier(tier)
	s.StartedAt = nullTimeValue(startedAt)
	s.FinishedAt = nullTimeValue(finishedAt)
	if len(target) > 0 {
		if err := json.Unmarshal(target, &s.Target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target: %w", err)
		}
	}
	return &s, nil
}
