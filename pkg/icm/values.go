package icm

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// CodeValueNotFound is the error code the server uses for an unset value.
const CodeValueNotFound = "value_not_found"

func valuePath(project, param, env string) string {
	return projectPath(project) + "/value/" + url.PathEscape(param) + "/" + url.PathEscape(env)
}

// GetValue returns the value of param in env, or nil when no value is set.
func (c *Client) GetValue(ctx context.Context, project, param, env string) (*ParameterValue, error) {
	var value ParameterValue
	err := c.call(ctx, "get value", http.MethodGet, valuePath(project, param, env), nil, &value)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && errors.Is(apiErr, ErrNotFound) && apiErr.Code == CodeValueNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &value, nil
}

// CreateValue sets the value of param in env.
func (c *Client) CreateValue(ctx context.Context, project, param, env, value string) (*ParameterValue, error) {
	return c.writeValue(ctx, "create value", http.MethodPost, project, param, env, value)
}

// UpdateValue replaces the value of param in env.
func (c *Client) UpdateValue(ctx context.Context, project, param, env, value string) (*ParameterValue, error) {
	return c.writeValue(ctx, "update value", http.MethodPut, project, param, env, value)
}

func (c *Client) writeValue(ctx context.Context, op, method, project, param, env, value string) (*ParameterValue, error) {
	body := map[string]string{"value": value}
	var out ParameterValue
	if err := c.call(ctx, op, method, valuePath(project, param, env), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveValue deletes the value of param in env and returns the deleted record.
func (c *Client) RemoveValue(ctx context.Context, project, param, env string) (*ParameterValue, error) {
	var out ParameterValue
	if err := c.call(ctx, "remove value", http.MethodDelete, valuePath(project, param, env), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
