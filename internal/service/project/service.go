package project

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/splax/icm/internal/domain"
	"github.com/splax/icm/internal/repository"
)

var errInvalidProjectName = fmt.Errorf("%w: project name is required", repository.ErrInvalidArgument)

// Service orchestrates project management.
type Service struct {
	projects repository.ProjectRepository
	logger   *slog.Logger
}

// New returns a project service.
func New(projects repository.ProjectRepository, logger *slog.Logger) Service {
	return Service{projects: projects, logger: logger}
}

// List returns one page of projects.
func (s Service) List(ctx context.Context, page domain.Page) ([]domain.Project, domain.Pagination, error) {
	page = page.Normalize()
	projects, total, err := s.projects.ListProjects(ctx, page)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return projects, domain.NewPagination(page, total), nil
}

// Get resolves a project by name.
func (s Service) Get(ctx context.Context, name string) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidProjectName
	}
	project, err := s.projects.GetProjectByName(ctx, name)
	if err != nil {
		return nil, repository.Missing("project", name, err)
	}
	return project, nil
}

// Create registers a new project.
func (s Service) Create(ctx context.Context, name string) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidProjectName
	}
	now := time.Now().UTC()
	project := &domain.Project{Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info("project created", "project_id", project.ID, "project", project.Name)
	return project, nil
}

// Rename changes a project's name.
func (s Service) Rename(ctx context.Context, name, newName string) (*domain.Project, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, errInvalidProjectName
	}
	project, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	project.Name = newName
	project.UpdatedAt = time.Now().UTC()
	if err := s.projects.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info("project renamed", "project_id", project.ID, "from", name, "to", newName)
	return project, nil
}

// Remove deletes a project with its environments, parameters and values.
func (s Service) Remove(ctx context.Context, name string) (*domain.Project, error) {
	project, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.projects.DeleteProject(ctx, project.ID); err != nil {
		return nil, err
	}
	s.logger.Info("project removed", "project_id", project.ID, "project", project.Name)
	return project, nil
}
