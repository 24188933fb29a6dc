package icm

import "context"

// Session remembers a current project and environment so callers can omit
// them. A Session is meant for one goroutine; create one per logical caller and
// share the underlying Client instead.
type Session struct {
	client      *Client
	project     string
	environment string
}

// NewSession returns a Session with nothing selected.
func (c *Client) NewSession() *Session {
	return &Session{client: c}
}

// Client returns the client the session issues calls through.
func (s *Session) Client() *Client { return s.client }

// SetProject selects the current project and clears the environment.
func (s *Session) SetProject(name string) {
	s.project = name
	s.environment = ""
}

// SetEnvironment selects the current environment within the current project.
func (s *Session) SetEnvironment(name string) error {
	if s.project == "" {
		return &ContextError{Op: "set environment", Missing: "project"}
	}
	s.environment = name
	return nil
}

// CurrentProject returns the selected project, or "" when none is selected.
func (s *Session) CurrentProject() string { return s.project }

// CurrentEnvironment returns the selected environment, or "".
func (s *Session) CurrentEnvironment() string { return s.environment }

// Clear drops both selections.
func (s *Session) Clear() {
	s.project = ""
	s.environment = ""
}

func (s *Session) requireProject(op string) (string, error) {
	if s.project == "" {
		return "", &ContextError{Op: op, Missing: "project"}
	}
	return s.project, nil
}

func (s *Session) requireEnvironment(op string) (string, string, error) {
	project, err := s.requireProject(op)
	if err != nil {
		return "", "", err
	}
	if s.environment == "" {
		return "", "", &ContextError{Op: op, Missing: "environment"}
	}
	return project, s.environment, nil
}

// ListEnvironments lists environments of the current project.
func (s *Session) ListEnvironments(ctx context.Context, page PageRequest) (*EnvironmentList, error) {
	project, err := s.requireProject("list environments")
	if err != nil {
		return nil, err
	}
	return s.client.ListEnvironments(ctx, project, page)
}

// CreateEnvironment creates name in the current project.
func (s *Session) CreateEnvironment(ctx context.Context, name string) (*Environment, error) {
	project, err := s.requireProject("create environment")
	if err != nil {
		return nil, err
	}
	return s.client.CreateEnvironment(ctx, project, name)
}

// UpdateEnvironment renames an environment of the current project.
func (s *Session) UpdateEnvironment(ctx context.Context, name, newName string) (*Environment, error) {
	project, err := s.requireProject("update environment")
	if err != nil {
		return nil, err
	}
	return s.client.UpdateEnvironment(ctx, project, name, newName)
}

// RemoveEnvironment deletes name and clears the selection if it was current.
func (s *Session) RemoveEnvironment(ctx context.Context, name string) (*Environment, error) {
	project, err := s.requireProject("remove environment")
	if err != nil {
		return nil, err
	}
	env, err := s.client.RemoveEnvironment(ctx, project, name)
	if err == nil && s.environment == name {
		s.environment = ""
	}
	return env, err
}

// ListParameters lists parameters of the current project.
func (s *Session) ListParameters(ctx context.Context, page PageRequest) (*ParameterList, error) {
	project, err := s.requireProject("list parameters")
	if err != nil {
		return nil, err
	}
	return s.client.ListParameters(ctx, project, page)
}

// CreateParameter creates name in the current project.
func (s *Session) CreateParameter(ctx context.Context, name string) (*Parameter, error) {
	project, err := s.requireProject("create parameter")
	if err != nil {
		return nil, err
	}
	return s.client.CreateParameter(ctx, project, name)
}

// UpdateParameter renames a parameter of the current project.
func (s *Session) UpdateParameter(ctx context.Context, name, newName string) (*Parameter, error) {
	project, err := s.requireProject("update parameter")
	if err != nil {
		return nil, err
	}
	return s.client.UpdateParameter(ctx, project, name, newName)
}

// RemoveParameter deletes a parameter and its values from the current project.
func (s *Session) RemoveParameter(ctx context.Context, name string) (*Parameter, error) {
	project, err := s.requireProject("remove parameter")
	if err != nil {
		return nil, err
	}
	return s.client.RemoveParameter(ctx, project, name)
}

// GetValue returns nil, nil when the parameter has no value in the current environment.
func (s *Session) GetValue(ctx context.Context, param string) (*ParameterValue, error) {
	project, env, err := s.requireEnvironment("get value")
	if err != nil {
		return nil, err
	}
	return s.client.GetValue(ctx, project, param, env)
}

// CreateValue sets the value of param in the current environment.
func (s *Session) CreateValue(ctx context.Context, param, value string) (*ParameterValue, error) {
	project, env, err := s.requireEnvironment("create value")
	if err != nil {
		return nil, err
	}
	return s.client.CreateValue(ctx, project, param, env, value)
}

// UpdateValue replaces the value of param in the current environment.
func (s *Session) UpdateValue(ctx context.Context, param, value string) (*ParameterValue, error) {
	project, env, err := s.requireEnvironment("update value")
	if err != nil {
		return nil, err
	}
	return s.client.UpdateValue(ctx, project, param, env, value)
}

// RemoveValue deletes the value of param in the current environment.
func (s *Session) RemoveValue(ctx context.Context, param string) (*ParameterValue, error) {
	project, env, err := s.requireEnvironment("remove value")
	if err != nil {
		return nil, err
	}
	return s.client.RemoveValue(ctx, project, param, env)
}
