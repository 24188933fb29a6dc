package icm

import (
	"context"
	"net/http"
	"net/url"
)

func parametersPath(project string) string {
	return projectPath(project) + "/parameters"
}

func parameterPath(project, param string) string {
	return parametersPath(project) + "/" + url.PathEscape(param)
}

// ListParameters returns one page of a project's parameters.
func (c *Client) ListParameters(ctx context.Context, project string, page PageRequest) (*ParameterList, error) {
	var list ParameterList
	if err := c.call(ctx, "list parameters", http.MethodGet, parametersPath(project)+"?"+page.query(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateParameter creates a parameter inside project.
func (c *Client) CreateParameter(ctx context.Context, project, name string) (*Parameter, error) {
	body := map[string]string{"name": name}
	var param Parameter
	if err := c.call(ctx, "create parameter", http.MethodPost, parametersPath(project), body, &param); err != nil {
		return nil, err
	}
	return &param, nil
}

// UpdateParameter renames a parameter.
func (c *Client) UpdateParameter(ctx context.Context, project, name, newName string) (*Parameter, error) {
	body := map[string]string{"name": newName}
	var param Parameter
	if err := c.call(ctx, "update parameter", http.MethodPut, parameterPath(project, name), body, &param); err != nil {
		return nil, err
	}
	return &param, nil
}

// RemoveParameter deletes a parameter and returns the deleted record.
func (c *Client) RemoveParameter(ctx context.Context, project, name string) (*Parameter, error) {
	var param Parameter
	if err := c.call(ctx, "remove parameter", http.MethodDelete, parameterPath(project, name), nil, &param); err != nil {
		return nil, err
	}
	return &param, nil
}
