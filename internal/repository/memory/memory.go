// Package memory keeps the emulator's hierarchy in process memory. It is used
// when no DATABASE_URL is configured and by service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/splax/icm/internal/domain"
	"github.com/splax/icm/internal/repository"
)

// Repository is an in-memory repository.Store.
type Repository struct {
	mu           sync.RWMutex
	nextID       int64
	projects     map[int64]domain.Project
	environments map[int64]domain.Environment
	parameters   map[int64]domain.Parameter
	values       map[int64]domain.ParameterValue
}

var _ repository.Store = (*Repository)(nil)

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		projects:     make(map[int64]domain.Project),
		environments: make(map[int64]domain.Environment),
		parameters:   make(map[int64]domain.Parameter),
		values:       make(map[int64]domain.ParameterValue),
	}
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

func (r *Repository) id() int64 {
	r.nextID++
	return r.nextID
}

// paginate returns the requested window of items sorted by id.
func paginate[T any](items []T, id func(T) int64, page domain.Page) ([]T, int) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
	total := len(items)
	start := page.Offset()
	if start >= total {
		return []T{}, total
	}
	end := start + page.Per
	if end > total {
		end = total
	}
	return items[start:end], total
}

// CreateProject stores a project and assigns its id.
func (r *Repository) CreateProject(_ context.Context, project *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		if p.Name == project.Name {
			return repository.ErrConflict
		}
	}
	project.ID = r.id()
	r.projects[project.ID] = *project
	return nil
}

// GetProjectByName fetches a project by its unique name.
func (r *Repository) GetProjectByName(_ context.Context, name string) (*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.projects {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListProjects returns a page of projects and the total count.
func (r *Repository) ListProjects(_ context.Context, page domain.Page) ([]domain.Project, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]domain.Project, 0, len(r.projects))
	for _, p := range r.projects {
		items = append(items, p)
	}
	out, total := paginate(items, func(p domain.Project) int64 { return p.ID }, page.Normalize())
	return out, total, nil
}

// UpdateProject replaces a stored project.
func (r *Repository) UpdateProject(_ context.Context, project *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[project.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, p := range r.projects {
		if id != project.ID && p.Name == project.Name {
			return repository.ErrConflict
		}
	}
	r.projects[project.ID] = *project
	return nil
}

// DeleteProject removes a project with everything beneath it.
func (r *Repository) DeleteProject(_ context.Context, projectID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[projectID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.projects, projectID)
	for id, e := range r.environments {
		if e.ProjectID == projectID {
			delete(r.environments, id)
		}
	}
	for id, p := range r.parameters {
		if p.ProjectID == projectID {
			delete(r.parameters, id)
		}
	}
	for id, v := range r.values {
		if v.ProjectID == projectID {
			delete(r.values, id)
		}
	}
	return nil
}

// CreateEnvironment stores an environment and assigns its id.
func (r *Repository) CreateEnvironment(_ context.Context, env *domain.Environment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[env.ProjectID]; !ok {
		return repository.ErrNotFound
	}
	for _, e := range r.environments {
		if e.ProjectID == env.ProjectID && e.Name == env.Name {
			return repository.ErrConflict
		}
	}
	env.ID = r.id()
	r.environments[env.ID] = *env
	return nil
}

// GetEnvironmentByName fetches an environment within a project.
func (r *Repository) GetEnvironmentByName(_ context.Context, projectID int64, name string) (*domain.Environment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.environments {
		if e.ProjectID == projectID && e.Name == name {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListEnvironments returns a page of a project's environments.
func (r *Repository) ListEnvironments(_ context.Context, projectID int64, page domain.Page) ([]domain.Environment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]domain.Environment, 0)
	for _, e := range r.environments {
		if e.ProjectID == projectID {
			items = append(items, e)
		}
	}
	out, total := paginate(items, func(e domain.Environment) int64 { return e.ID }, page.Normalize())
	return out, total, nil
}

// UpdateEnvironment replaces a stored environment.
func (r *Repository) UpdateEnvironment(_ context.Context, env *domain.Environment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.environments[env.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, e := range r.environments {
		if id != env.ID && e.ProjectID == env.ProjectID && e.Name == env.Name {
			return repository.ErrConflict
		}
	}
	r.environments[env.ID] = *env
	return nil
}

// DeleteEnvironment removes an environment and its values.
func (r *Repository) DeleteEnvironment(_ context.Context, environmentID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.environments[environmentID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.environments, environmentID)
	for id, v := range r.values {
		if v.EnvironmentID == environmentID {
			delete(r.values, id)
		}
	}
	return nil
}

// CreateParameter stores a parameter and assigns its id.
func (r *Repository) CreateParameter(_ context.Context, param *domain.Parameter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[param.ProjectID]; !ok {
		return repository.ErrNotFound
	}
	for _, p := range r.parameters {
		if p.ProjectID == param.ProjectID && p.Name == param.Name {
			return repository.ErrConflict
		}
	}
	param.ID = r.id()
	r.parameters[param.ID] = *param
	return nil
}

// GetParameterByName fetches a parameter within a project.
func (r *Repository) GetParameterByName(_ context.Context, projectID int64, name string) (*domain.Parameter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.parameters {
		if p.ProjectID == projectID && p.Name == name {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListParameters returns a page of a project's parameters.
func (r *Repository) ListParameters(_ context.Context, projectID int64, page domain.Page) ([]domain.Parameter, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]domain.Parameter, 0)
	for _, p := range r.parameters {
		if p.ProjectID == projectID {
			items = append(items, p)
		}
	}
	out, total := paginate(items, func(p domain.Parameter) int64 { return p.ID }, page.Normalize())
	return out, total, nil
}

// UpdateParameter replaces a stored parameter.
func (r *Repository) UpdateParameter(_ context.Context, param *domain.Parameter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parameters[param.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, p := range r.parameters {
		if id != param.ID && p.ProjectID == param.ProjectID && p.Name == param.Name {
			return repository.ErrConflict
		}
	}
	r.parameters[param.ID] = *param
	return nil
}

// DeleteParameter removes a parameter and its values.
func (r *Repository) DeleteParameter(_ context.Context, parameterID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parameters[parameterID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.parameters, parameterID)
	for id, v := range r.values {
		if v.ParameterID == parameterID {
			delete(r.values, id)
		}
	}
	return nil
}

// CreateValue stores a value; one value may exist per parameter and environment.
func (r *Repository) CreateValue(_ context.Context, value *domain.ParameterValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parameters[value.ParameterID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.environments[value.EnvironmentID]; !ok {
		return repository.ErrNotFound
	}
	for _, v := range r.values {
		if v.ParameterID == value.ParameterID && v.EnvironmentID == value.EnvironmentID {
			return repository.ErrConflict
		}
	}
	value.ID = r.id()
	r.values[value.ID] = *value
	return nil
}

// GetValue fetches the value of a parameter in an environment.
func (r *Repository) GetValue(_ context.Context, parameterID, environmentID int64) (*domain.ParameterValue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.values {
		if v.ParameterID == parameterID && v.EnvironmentID == environmentID {
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

// UpdateValue replaces a stored value.
func (r *Repository) UpdateValue(_ context.Context, value *domain.ParameterValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[value.ID]; !ok {
		return repository.ErrNotFound
	}
	r.values[value.ID] = *value
	return nil
}

// DeleteValue removes a value.
func (r *Repository) DeleteValue(_ context.Context, valueID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[valueID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.values, valueID)
	return nil
}
