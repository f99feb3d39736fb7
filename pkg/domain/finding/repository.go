package finding

import (
	"context"

	"github.com/scanforge/api/pkg/domain/shared"
)

// Repository defines the persistence interface for findings.
type Repository interface {
	CreateBatch(ctx context.Context, findings []*Finding) error
	ListByScan(ctx context.Context, scanID shared.ID) ([]*Finding, error)
	CountBySeverity(ctx context.Context, scanID shared.ID) (map[Severity]int, error)
}
