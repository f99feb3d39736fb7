// Package project defines the project aggregate: the logical grouping a scan
// belongs to.
package project

import (
	"time"

	"github.com/scanforge/api/pkg/domain/shared"
)

// SourceKind identifies where a project's code comes from.
type SourceKind string

const (
	SourceUpload SourceKind = "upload"
	SourceGitHub SourceKind = "github"
	SourceS3     SourceKind = "s3"
)

// IsValid checks if the source kind is valid.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceUpload, SourceGitHub, SourceS3:
		return true
	}
	return false
}

// Project groups scans of one code artifact. Created once per scan
// submission and immutable thereafter.
type Project struct {
	ID         shared.ID
	Name       string
	SourceKind SourceKind
	RepoURL    string
	CreatedAt  time.Time
}

// NewProject creates a new project.
func NewProject(name string, kind SourceKind, repoURL string) (*Project, error) {
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation)
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid source kind", shared.ErrValidation)
	}
	return &Project{
		ID:         shared.NewID(),
		Name:       name,
		SourceKind: kind,
		RepoURL:    repoURL,
		CreatedAt:  time.Now(),
	}, nil
}
