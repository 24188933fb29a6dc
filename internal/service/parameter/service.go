package parameter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/splax/icm/internal/domain"
	"github.com/splax/icm/internal/repository"
	"github.com/splax/icm/pkg/config"
	"github.com/splax/icm/pkg/crypto"
)

var (
	// ErrValueNotFound distinguishes an unset value from a missing parent.
	ErrValueNotFound = fmt.Errorf("%w: value not set", repository.ErrNotFound)

	errInvalidParameterName = fmt.Errorf("%w: parameter name is required", repository.ErrInvalidArgument)
)

// Value is a decrypted parameter value for API responses.
type Value struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"projectId"`
	ParameterID   int64     `json:"parameterId"`
	EnvironmentID int64     `json:"environmentId"`
	Value         string    `json:"value"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Service manages parameters and their per-environment values.
type Service struct {
	params   repository.ParameterRepository
	values   repository.ValueRepository
	envs     repository.EnvironmentRepository
	projects repository.ProjectRepository
	logger   *slog.Logger
	cfg      config.ServerConfig
}

// New constructs a parameter service.
func New(params repository.ParameterRepository, values repository.ValueRepository, envs repository.EnvironmentRepository, projects repository.ProjectRepository, logger *slog.Logger, cfg config.ServerConfig) Service {
	return Service{params: params, values: values, envs: envs, projects: projects, logger: logger, cfg: cfg}
}

func (s Service) project(ctx context.Context, name string) (*domain.Project, error) {
	project, err := s.projects.GetProjectByName(ctx, name)
	if err != nil {
		return nil, repository.Missing("project", name, err)
	}
	return project, nil
}

// List returns one page of the project's parameters.
func (s Service) List(ctx context.Context, projectName string, page domain.Page) ([]domain.Parameter, domain.Pagination, error) {
	project, err := s.project(ctx, projectName)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	page = page.Normalize()
	params, total, err := s.params.ListParameters(ctx, project.ID, page)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return params, domain.NewPagination(page, total), nil
}

func (s Service) resolve(ctx context.Context, projectName, name string) (*domain.Parameter, error) {
	project, err := s.project(ctx, projectName)
	if err != nil {
		return nil, err
	}
	param, err := s.params.GetParameterByName(ctx, project.ID, name)
	if err != nil {
		return nil, repository.Missing("parameter", name, err)
	}
	return param, nil
}

// Create adds a parameter to a project.
func (s Service) Create(ctx context.Context, projectName, name string) (*domain.Parameter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidParameterName
	}
	project, err := s.project(ctx, projectName)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	param := &domain.Parameter{ProjectID: project.ID, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.params.CreateParameter(ctx, param); err != nil {
		return nil, err
	}
	s.logger.Info("parameter created", "project_id", project.ID, "parameter_id", param.ID, "parameter", name)
	return param, nil
}

// Rename changes a parameter's name.
func (s Service) Rename(ctx context.Context, projectName, name, newName string) (*domain.Parameter, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, errInvalidParameterName
	}
	param, err := s.resolve(ctx, projectName, name)
	if err != nil {
		return nil, err
	}
	param.Name = newName
	param.UpdatedAt = time.Now().UTC()
	if err := s.params.UpdateParameter(ctx, param); err != nil {
		return nil, err
	}
	s.logger.Info("parameter renamed", "parameter_id", param.ID, "from", name, "to", newName)
	return param, nil
}

// Remove deletes a parameter and all of its values.
func (s Service) Remove(ctx context.Context, projectName, name string) (*domain.Parameter, error) {
	param, err := s.resolve(ctx, projectName, name)
	if err != nil {
		return nil, err
	}
	if err := s.params.DeleteParameter(ctx, param.ID); err != nil {
		return nil, err
	}
	s.logger.Info("parameter removed", "parameter_id", param.ID, "parameter", param.Name)
	return param, nil
}

// slot resolves the parameter and environment a value belongs to.
func (s Service) slot(ctx context.Context, projectName, paramName, envName string) (*domain.Parameter, *domain.Environment, error) {
	project, err := s.project(ctx, projectName)
	if err != nil {
		return nil, nil, err
	}
	param, err := s.params.GetParameterByName(ctx, project.ID, paramName)
	if err != nil {
		return nil, nil, repository.Missing("parameter", paramName, err)
	}
	env, err := s.envs.GetEnvironmentByName(ctx, project.ID, envName)
	if err != nil {
		return nil, nil, repository.Missing("environment", envName, err)
	}
	return param, env, nil
}

func (s Service) stored(ctx context.Context, param *domain.Parameter, env *domain.Environment) (*domain.ParameterValue, error) {
	value, err := s.values.GetValue(ctx, param.ID, env.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrValueNotFound
	}
	return value, err
}

func (s Service) open(value *domain.ParameterValue) (*Value, error) {
	plaintext, err := crypto.DecryptToString(s.cfg.ValueEncryptionKey, value.Sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypt value %d: %w", value.ID, err)
	}
	return &Value{
		ID:            value.ID,
		ProjectID:     value.ProjectID,
		ParameterID:   value.ParameterID,
		EnvironmentID: value.EnvironmentID,
		Value:         plaintext,
		CreatedAt:     value.CreatedAt,
		UpdatedAt:     value.UpdatedAt,
	}, nil
}

// GetValue returns the decrypted value of a parameter in an environment.
func (s Service) GetValue(ctx context.Context, projectName, paramName, envName string) (*Value, error) {
	param, env, err := s.slot(ctx, projectName, paramName, envName)
	if err != nil {
		return nil, err
	}
	value, err := s.stored(ctx, param, env)
	if err != nil {
		return nil, err
	}
	return s.open(value)
}

// CreateValue seals and stores a value. An existing value is a conflict.
func (s Service) CreateValue(ctx context.Context, projectName, paramName, envName, plaintext string) (*Value, error) {
	param, env, err := s.slot(ctx, projectName, paramName, envName)
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.EncryptString(s.cfg.ValueEncryptionKey, plaintext)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	value := &domain.ParameterValue{
		ProjectID:     param.ProjectID,
		ParameterID:   param.ID,
		EnvironmentID: env.ID,
		Sealed:        sealed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.values.CreateValue(ctx, value); err != nil {
		return nil, err
	}
	s.logger.Info("value created", "parameter_id", param.ID, "environment_id", env.ID)
	return s.open(value)
}

// UpdateValue replaces an existing value.
func (s Service) UpdateValue(ctx context.Context, projectName, paramName, envName, plaintext string) (*Value, error) {
	param, env, err := s.slot(ctx, projectName, paramName, envName)
	if err != nil {
		return nil, err
	}
	value, err := s.stored(ctx, param, env)
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.EncryptString(s.cfg.ValueEncryptionKey, plaintext)
	if err != nil {
		return nil, err
	}
	value.Sealed = sealed
	value.UpdatedAt = time.Now().UTC()
	if err := s.values.UpdateValue(ctx, value); err != nil {
		return nil, err
	}
	s.logger.Info("value updated", "parameter_id", param.ID, "environment_id", env.ID)
	return s.open(value)
}

// RemoveValue deletes a value and returns what was stored.
func (s Service) RemoveValue(ctx context.Context, projectName, paramName, envName string) (*Value, error) {
	param, env, err := s.slot(ctx, projectName, paramName, envName)
	if err != nil {
		return nil, err
	}
	value, err := s.stored(ctx, param, env)
	if err != nil {
		return nil, err
	}
	opened, err := s.open(value)
	if err != nil {
		return nil, err
	}
	if err := s.values.DeleteValue(ctx, value.ID); err != nil {
		return nil, err
	}
	s.logger.Info("value removed", "parameter_id", param.ID, "environment_id", env.ID)
	return opened, nil
}
