package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/models"
)

const maxProjectName = 200

type ProjectService struct {
	store core.ProjectStore
}

func NewProjectService(store core.ProjectStore) *ProjectService {
	return &ProjectService{store: store}
}

func (s *ProjectService) Create(ctx context.Context, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.Errorf(core.ErrValidation, "name is required")
	}
	if utf8.RuneCountInString(name) > maxProjectName {
		return nil, core.Errorf(core.ErrValidation, "name must be at most %d characters", maxProjectName)
	}
	p := &models.Project{Name: name}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, core.Errorf(core.ErrStorage, "create project failed: %w", err)
	}
	return p, nil
}

func (s *ProjectService) List(ctx context.Context) ([]models.Project, error) {
	out, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, core.Errorf(core.ErrStorage, "list projects failed: %w", err)
	}
	return out, nil
}
