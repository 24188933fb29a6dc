package repository

import (
	"context"

	"github.com/splax/icm/internal/domain"
)

// ProjectRepository persists projects. Deleting a project removes its
// environments, parameters and values.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByName(ctx context.Context, name string) (*domain.Project, error)
	ListProjects(ctx context.Context, page domain.Page) ([]domain.Project, int, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, projectID int64) error
}

// EnvironmentRepository persists environments scoped to a project.
type EnvironmentRepository interface {
	CreateEnvironment(ctx context.Context, env *domain.Environment) error
	GetEnvironmentByName(ctx context.Context, projectID int64, name string) (*domain.Environment, error)
	ListEnvironments(ctx context.Context, projectID int64, page domain.Page) ([]domain.Environment, int, error)
	UpdateEnvironment(ctx context.Context, env *domain.Environment) error
	DeleteEnvironment(ctx context.Context, environmentID int64) error
}

// ParameterRepository persists parameters scoped to a project.
type ParameterRepository interface {
	CreateParameter(ctx context.Context, param *domain.Parameter) error
	GetParameterByName(ctx context.Context, projectID int64, name string) (*domain.Parameter, error)
	ListParameters(ctx context.Context, projectID int64, page domain.Page) ([]domain.Parameter, int, error)
	UpdateParameter(ctx context.Context, param *domain.Parameter) error
	DeleteParameter(ctx context.Context, parameterID int64) error
}

// ValueRepository persists sealed parameter values, one per parameter and environment.
type ValueRepository interface {
	CreateValue(ctx context.Context, value *domain.ParameterValue) error
	GetValue(ctx context.Context, parameterID, environmentID int64) (*domain.ParameterValue, error)
	UpdateValue(ctx context.Context, value *domain.ParameterValue) error
	DeleteValue(ctx context.Context, valueID int64) error
}

// Store combines every repository backed by one database.
type Store interface {
	ProjectRepository
	EnvironmentRepository
	ParameterRepository
	ValueRepository
	Ping(ctx context.Context) error
}
