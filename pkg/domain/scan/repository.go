package scan

import (
	"context"

	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/pagination"
)

// Filter narrows scan listings.
type Filter struct {
	ProjectID *shared.ID
	Status    *Status
	Tier      *Tier

	// Sort is the raw sort expression from the request, e.g.
	// "-created_at,risk_score". The repository whitelists the fields.
	Sort string
}

// Repository defines the persistence interface for scans.
type Repository interface {
	Create(ctx context.Context, s *Scan) error
	GetByID(ctx context.Context, id shared.ID) (*Scan, error)
	Update(ctx context.Context, s *Scan) error
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Scan], error)
}
