package icm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

func projectPath(project string) string {
	return fmt.Sprintf("/projects/%s", url.PathEscape(project))
}

// ListProjects returns one page of projects.
func (c *Client) ListProjects(ctx context.Context, page PageRequest) (*ProjectList, error) {
	var list ProjectList
	if err := c.call(ctx, "list projects", http.MethodGet, "/projects?"+page.query(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetProject fetches a project by name.
func (c *Client) GetProject(ctx context.Context, name string) (*Project, error) {
	var project Project
	if err := c.call(ctx, "get project", http.MethodGet, projectPath(name), nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// CreateProject creates a project and returns the stored record.
func (c *Client) CreateProject(ctx context.Context, name string) (*Project, error) {
	body := map[string]string{"name": name}
	var project Project
	if err := c.call(ctx, "create project", http.MethodPost, "/projects", body, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// UpdateProject renames a project.
func (c *Client) UpdateProject(ctx context.Context, name, newName string) (*Project, error) {
	body := map[string]string{"name": newName}
	var project Project
	if err := c.call(ctx, "update project", http.MethodPut, projectPath(name), body, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// RemoveProject deletes a project and returns the deleted record.
func (c *Client) RemoveProject(ctx context.Context, name string) (*Project, error) {
	var project Project
	if err := c.call(ctx, "remove project", http.MethodDelete, projectPath(name), nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}
