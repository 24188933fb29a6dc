package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/icm/internal/domain"
	"github.com/splax/icm/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.Store = (*Repository)(nil)

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// mapError translates driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return repository.ErrConflict
		case "23503":
			return repository.ErrNotFound
		case "23514", "22P02":
			return repository.ErrInvalidArgument
		}
	}
	return err
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateProject inserts a project and assigns its id.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (name, created_at, updated_at)
		VALUES ($1, $2, $3) RETURNING id`
	row := r.pool.QueryRow(ctx, query, project.Name, project.CreatedAt, project.UpdatedAt)
	return mapError(row.Scan(&project.ID))
}

// GetProjectByName fetches a project by its unique name.
func (r *Repository) GetProjectByName(ctx context.Context, name string) (*domain.Project, error) {
	const query = `SELECT id, name, created_at, updated_at FROM projects WHERE name = $1`
	var p domain.Project
	if err := r.pool.QueryRow(ctx, query, name).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

// ListProjects returns a page of projects and the total count.
func (r *Repository) ListProjects(ctx context.Context, page domain.Page) ([]domain.Project, int, error) {
	page = page.Normalize()
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM projects`).Scan(&total); err != nil {
		return nil, 0, err
	}
	const query = `SELECT id, name, created_at, updated_at FROM projects
		ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, page.Per, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		projects = append(projects, p)
	}
	return projects, total, rows.Err()
}

// UpdateProject persists a renamed project.
func (r *Repository) UpdateProject(ctx context.Context, project *domain.Project) error {
	const query = `UPDATE projects SET name = $2, updated_at = $3 WHERE id = $1`
	return affected(r.pool.Exec(ctx, query, project.ID, project.Name, project.UpdatedAt))
}

// DeleteProject removes a project; foreign keys cascade to its children.
func (r *Repository) DeleteProject(ctx context.Context, projectID int64) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID))
}

// CreateEnvironment inserts an environment and assigns its id.
func (r *Repository) CreateEnvironment(ctx context.Context, env *domain.Environment) error {
	const query = `INSERT INTO environments (project_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4) RETURNING id`
	row := r.pool.QueryRow(ctx, query, env.ProjectID, env.Name, env.CreatedAt, env.UpdatedAt)
	return mapError(row.Scan(&env.ID))
}

// GetEnvironmentByName fetches an environment within a project.
func (r *Repository) GetEnvironmentByName(ctx context.Context, projectID int64, name string) (*domain.Environment, error) {
	const query = `SELECT id, project_id, name, created_at, updated_at
		FROM environments WHERE project_id = $1 AND name = $2`
	var e domain.Environment
	if err := r.pool.QueryRow(ctx, query, projectID, name).Scan(&e.ID, &e.ProjectID, &e.Name, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &e, nil
}

// ListEnvironments returns a page of a project's environments.
func (r *Repository) ListEnvironments(ctx context.Context, projectID int64, page domain.Page) ([]domain.Environment, int, error) {
	page = page.Normalize()
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM environments WHERE project_id = $1`, projectID).Scan(&total); err != nil {
		return nil, 0, err
	}
	const query = `SELECT id, project_id, name, created_at, updated_at FROM environments
		WHERE project_id = $1 ORDER BY id LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, projectID, page.Per, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	envs := make([]domain.Environment, 0)
	for rows.Next() {
		var e domain.Environment
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Name, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		envs = append(envs, e)
	}
	return envs, total, rows.Err()
}

// UpdateEnvironment persists a renamed environment.
func (r *Repository) UpdateEnvironment(ctx context.Context, env *domain.Environment) error {
	const query = `UPDATE environments SET name = $2, updated_at = $3 WHERE id = $1`
	return affected(r.pool.Exec(ctx, query, env.ID, env.Name, env.UpdatedAt))
}

// DeleteEnvironment removes an environment and its values.
func (r *Repository) DeleteEnvironment(ctx context.Context, environmentID int64) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM environments WHERE id = $1`, environmentID))
}

// CreateParameter inserts a parameter and assigns its id.
func (r *Repository) CreateParameter(ctx context.Context, param *domain.Parameter) error {
	const query = `INSERT INTO parameters (project_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4) RETURNING id`
	row := r.pool.QueryRow(ctx, query, param.ProjectID, param.Name, param.CreatedAt, param.UpdatedAt)
	return mapError(row.Scan(&param.ID))
}

// GetParameterByName fetches a parameter within a project.
func (r *Repository) GetParameterByName(ctx context.Context, projectID int64, name string) (*domain.Parameter, error) {
	const query = `SELECT id, project_id, name, created_at, updated_at
		FROM parameters WHERE project_id = $1 AND name = $2`
	var p domain.Parameter
	if err := r.pool.QueryRow(ctx, query, projectID, name).Scan(&p.ID, &p.ProjectID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

// ListParameters returns a page of a project's parameters.
func (r *Repository) ListParameters(ctx context.Context, projectID int64, page domain.Page) ([]domain.Parameter, int, error) {
	page = page.Normalize()
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM parameters WHERE project_id = $1`, projectID).Scan(&total); err != nil {
		return nil, 0, err
	}
	const query = `SELECT id, project_id, name, created_at, updated_at FROM parameters
		WHERE project_id = $1 ORDER BY id LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, projectID, page.Per, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	params := make([]domain.Parameter, 0)
	for rows.Next() {
		var p domain.Parameter
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		params = append(params, p)
	}
	return params, total, rows.Err()
}

// UpdateParameter persists a renamed parameter.
func (r *Repository) UpdateParameter(ctx context.Context, param *domain.Parameter) error {
	const query = `UPDATE parameters SET name = $2, updated_at = $3 WHERE id = $1`
	return affected(r.pool.Exec(ctx, query, param.ID, param.Name, param.UpdatedAt))
}

// DeleteParameter removes a parameter and its values.
func (r *Repository) DeleteParameter(ctx context.Context, parameterID int64) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM parameters WHERE id = $1`, parameterID))
}

// CreateValue inserts a sealed value and assigns its id.
func (r *Repository) CreateValue(ctx context.Context, value *domain.ParameterValue) error {
	const query = `INSERT INTO parameter_values (project_id, parameter_id, environment_id, sealed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	row := r.pool.QueryRow(ctx, query, value.ProjectID, value.ParameterID, value.EnvironmentID, value.Sealed, value.CreatedAt, value.UpdatedAt)
	return mapError(row.Scan(&value.ID))
}

// GetValue fetches the value of a parameter in an environment.
func (r *Repository) GetValue(ctx context.Context, parameterID, environmentID int64) (*domain.ParameterValue, error) {
	const query = `SELECT id, project_id, parameter_id, environment_id, sealed, created_at, updated_at
		FROM parameter_values WHERE parameter_id = $1 AND environment_id = $2`
	var v domain.ParameterValue
	err := r.pool.QueryRow(ctx, query, parameterID, environmentID).
		Scan(&v.ID, &v.ProjectID, &v.ParameterID, &v.EnvironmentID, &v.Sealed, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &v, nil
}

// UpdateValue replaces the sealed payload of a value.
func (r *Repository) UpdateValue(ctx context.Context, value *domain.ParameterValue) error {
	const query = `UPDATE parameter_values SET sealed = $2, updated_at = $3 WHERE id = $1`
	return affected(r.pool.Exec(ctx, query, value.ID, value.Sealed, value.UpdatedAt))
}

// DeleteValue removes a value.
func (r *Repository) DeleteValue(ctx context.Context, valueID int64) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM parameter_values WHERE id = $1`, valueID))
}
