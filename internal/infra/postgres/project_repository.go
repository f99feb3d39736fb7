package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scanforge/api/pkg/domain/project"
	"github.com/scanforge/api/pkg/domain/shared"
)

// ProjectRepository implements project.Repository using PostgreSQL.
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create persists a new project.
func (r *ProjectRepository) Create(ctx context.Context, p *project.Project) error {
	query := `
		INSERT INTO projects (id, name, source_kind, repo_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		string(p.SourceKind),
		p.RepoURL,
		p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("ALREADY_EXISTS", "project already exists", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID retrieves a project by ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id shared.ID) (*project.Project, error) {
	query := `
		SELECT id, name, source_kind, repo_url, created_at
		FROM projects
		WHERE id = $1
	`
	var p project.Project
	var kind string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&kind,
		&p.RepoURL,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("NOT_FOUND", "project not found", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.SourceKind = project.SourceKind(kind)
	return &p, nil
}
