package environment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/splax/icm/internal/domain"
	"github.com/splax/icm/internal/repository"
)

var errInvalidEnvironmentName = fmt.Errorf("%w: environment name is required", repository.ErrInvalidArgument)

// Service coordinates environment operations within a project.
type Service struct {
	envs     repository.EnvironmentRepository
	projects repository.ProjectRepository
	logger   *slog.Logger
}

// New constructs an environment service.
func New(envs repository.EnvironmentRepository, projects repository.ProjectRepository, logger *slog.Logger) Service {
	return Service{envs: envs, projects: projects, logger: logger}
}

func (s Service) project(ctx context.Context, name string) (*domain.Project, error) {
	project, err := s.projects.GetProjectByName(ctx, name)
	if err != nil {
		return nil, repository.Missing("project", name, err)
	}
	return project, nil
}

// List returns one page of the project's environments.
func (s Service) List(ctx context.Context, projectName string, page domain.Page) ([]domain.Environment, domain.Pagination, error) {
	project, err := s.project(ctx, projectName)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	page = page.Normalize()
	envs, total, err := s.envs.ListEnvironments(ctx, project.ID, page)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return envs, domain.NewPagination(page, total), nil
}

// Resolve finds an environment by project and environment name.
func (s Service) Resolve(ctx context.Context, projectName, name string) (*domain.Project, *domain.Environment, error) {
	project, err := s.project(ctx, projectName)
	if err != nil {
		return nil, nil, err
	}
	env, err := s.envs.GetEnvironmentByName(ctx, project.ID, name)
	if err != nil {
		return nil, nil, repository.Missing("environment", name, err)
	}
	return project, env, nil
}

// Create adds an environment to a project.
func (s Service) Create(ctx context.Context, projectName, name string) (*domain.Environment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidEnvironmentName
	}
	project, err := s.project(ctx, projectName)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	env := &domain.Environment{ProjectID: project.ID, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.envs.CreateEnvironment(ctx, env); err != nil {
		return nil, err
	}
	s.logger.Info("environment created", "project_id", project.ID, "environment_id", env.ID, "environment", name)
	return env, nil
}

// Rename changes an environment's name.
func (s Service) Rename(ctx context.Context, projectName, name, newName string) (*domain.Environment, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, errInvalidEnvironmentName
	}
	_, env, err := s.Resolve(ctx, projectName, name)
	if err != nil {
		return nil, err
	}
	env.Name = newName
	env.UpdatedAt = time.Now().UTC()
	if err := s.envs.UpdateEnvironment(ctx, env); err != nil {
		return nil, err
	}
	s.logger.Info("environment renamed", "environment_id", env.ID, "from", name, "to", newName)
	return env, nil
}

// Remove deletes an environment and the values stored for it.
func (s Service) Remove(ctx context.Context, projectName, name string) (*domain.Environment, error) {
	_, env, err := s.Resolve(ctx, projectName, name)
	if err != nil {
		return nil, err
	}
	if err := s.envs.DeleteEnvironment(ctx, env.ID); err != nil {
		return nil, err
	}
	s.logger.Info("environment removed", "environment_id", env.ID, "environment", env.Name)
	return env, nil
}
