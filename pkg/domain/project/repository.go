package project

import (
	"context"

	"github.com/scanforge/api/pkg/domain/shared"
)

// Repository defines the persistence interface for projects.
type Repository interface {
	Create(ctx context.Context, p *Project) error
	GetByID(ctx context.Context, id shared.ID) (*Project, error)
}
