package icm

import (
	"context"
	"net/http"
	"net/url"
)

func environmentsPath(project string) string {
	return projectPath(project) + "/environments"
}

func environmentPath(project, env string) string {
	return environmentsPath(project) + "/" + url.PathEscape(env)
}

// ListEnvironments returns one page of a project's environments.
func (c *Client) ListEnvironments(ctx context.Context, project string, page PageRequest) (*EnvironmentList, error) {
	var list EnvironmentList
	if err := c.call(ctx, "list environments", http.MethodGet, environmentsPath(project)+"?"+page.query(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateEnvironment creates an environment inside project.
func (c *Client) CreateEnvironment(ctx context.Context, project, name string) (*Environment, error) {
	body := map[string]string{"name": name}
	var env Environment
	if err := c.call(ctx, "create environment", http.MethodPost, environmentsPath(project), body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// UpdateEnvironment renames an environment.
func (c *Client) UpdateEnvironment(ctx context.Context, project, name, newName string) (*Environment, error) {
	body := map[string]string{"name": newName}
	var env Environment
	if err := c.call(ctx, "update environment", http.MethodPut, environmentPath(project, name), body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// RemoveEnvironment deletes an environment and returns the deleted record.
func (c *Client) RemoveEnvironment(ctx context.Context, project, name string) (*Environment, error) {
	var env Environment
	if err := c.call(ctx, "remove environment", http.MethodDelete, environmentPath(project, name), nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
