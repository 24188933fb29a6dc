package icm

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
)

func TestListProjectsClampsPerPage(t *testing.T) {
	srv := newFakeICM(t)
	c := srv.client(t)

	if _, err := c.ListProjects(context.Background(), PageRequest{Page: 2, Per: 5000}); err != nil {
		t.Fatalf("list projects: %v", err)
	}
	srv.mu.Lock()
	query, _ := url.ParseQuery(srv.lastQuery)
	srv.mu.Unlock()
	if query.Get("per") != "1000" || query.Get("page") != "2" {
		t.Fatalf("unexpected query %v", query)
	}
}

func TestPageRequestNormalize(t *testing.T) {
	cases := []struct {
		in   PageRequest
		want PageRequest
	}{
		{in: PageRequest{}, want: PageRequest{Page: 1, Per: DefaultPerPage}},
		{in: PageRequest{Page: -3, Per: -1}, want: PageRequest{Page: 1, Per: DefaultPerPage}},
		{in: PageRequest{Page: 4, Per: 1000}, want: PageRequest{Page: 4, Per: 1000}},
		{in: PageRequest{Page: 1, Per: 1001}, want: PageRequest{Page: 1, Per: MaxPerPage}},
	}
	for _, tc := range cases {
		if got := tc.in.Normalize(); got != tc.want {
			t.Fatalf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestProjectRoundTrip(t *testing.T) {
	srv := newFakeICM(t)
	c := srv.client(t)
	ctx := context.Background()

	created, err := c.CreateProject(ctx, "billing")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	fetched, err := c.GetProject(ctx, "billing")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if fetched.ID != created.ID || fetched.Name != "billing" {
		t.Fatalf("fetched %+v, created %+v", fetched, created)
	}

	renamed, err := c.UpdateProject(ctx, "billing", "payments")
	if err != nil {
		t.Fatalf("update project: %v", err)
	}
	if renamed.ID != created.ID || renamed.Name != "payments" {
		t.Fatalf("unexpected rename result %+v", renamed)
	}

	list, err := c.ListProjects(ctx, PageRequest{})
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(list.Projects) != 1 || list.Projects[0].Name != "payments" {
		t.Fatalf("unexpected project list %+v", list.Projects)
	}

	removed, err := c.RemoveProject(ctx, "payments")
	if err != nil {
		t.Fatalf("remove project: %v", err)
	}
	if removed.ID != created.ID {
		t.Fatalf("remove returned %+v", removed)
	}
	if _, err := c.GetProject(ctx, "payments"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
}

func TestAPIErrorCarriesOperationAndUpstream(t *testing.T) {
	srv := newFakeICM(t)
	c := srv.client(t)
	ctx := context.Background()

	if _, err := c.CreateProject(ctx, "billing"); err != nil {
		t.Fatalf("create project: %v", err)
	}
	_, err := c.CreateProject(ctx, "billing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Op != "create project" || apiErr.Status != http.StatusConflict {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if apiErr.Code != "conflict" || apiErr.Message != "project already exists" {
		t.Fatalf("upstream details lost: %+v", apiErr.Upstream)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("409 must not match ErrNotFound")
	}
}

func TestValueLifecycle(t *testing.T) {
	srv := newFakeICM(t)
	c := srv.client(t)
	ctx := context.Background()

	if _, err := c.CreateProject(ctx, "billing"); err != nil {
		t.Fatalf("create project: %v", err)
	}
	value, err := c.GetValue(ctx, "billing", "db_url", "prod")
	if err != nil || value != nil {
		t.Fatalf("expected absent value, got %+v, %v", value, err)
	}

	created, err := c.CreateValue(ctx, "billing", "db_url", "prod", "postgres://one")
	if err != nil {
		t.Fatalf("create value: %v", err)
	}
	if created.Value != "postgres://one" {
		t.Fatalf("unexpected created value %+v", created)
	}
	if _, err := c.UpdateValue(ctx, "billing", "db_url", "prod", "postgres://two"); err != nil {
		t.Fatalf("update value: %v", err)
	}
	value, err = c.GetValue(ctx, "billing", "db_url", "prod")
	if err != nil {
		t.Fatalf("get value: %v", err)
	}
	if value == nil || value.Value != "postgres://two" {
		t.Fatalf("unexpected value %+v", value)
	}

	removed, err := c.RemoveValue(ctx, "billing", "db_url", "prod")
	if err != nil {
		t.Fatalf("remove value: %v", err)
	}
	if removed.Value != "postgres://two" {
		t.Fatalf("remove returned %+v", removed)
	}
	value, err = c.GetValue(ctx, "billing", "db_url", "prod")
	if err != nil || value != nil {
		t.Fatalf("expected absent value after removal, got %+v, %v", value, err)
	}
}

func TestGetValueUnknownProjectIsAnError(t *testing.T) {
	srv := newFakeICM(t)
	c := srv.client(t)

	_, err := c.GetValue(context.Background(), "missing", "db_url", "prod")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown project, got %v", err)
	}
}

func TestUnauthorizedResponseDiscardsToken(t *testing.T) {
	srv := newFakeICM(t)
	c := srv.client(t)
	ctx := context.Background()

	token, err := c.AccessToken(ctx)
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	srv.mu.Lock()
	srv.revoked[token] = true
	srv.mu.Unlock()

	_, err = c.ListProjects(ctx, PageRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if _, err := c.ListProjects(ctx, PageRequest{}); err != nil {
		t.Fatalf("expected a fresh token on the next call: %v", err)
	}
	if got := srv.exchanges.Load(); got != 2 {
		t.Fatalf("expected 2 exchanges, got %d", got)
	}
}

func TestRequestsCarryRequestID(t *testing.T) {
	srv := newFakeICM(t)
	c := srv.client(t)

	if _, err := c.ListProjects(context.Background(), PageRequest{}); err != nil {
		t.Fatalf("list projects: %v", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.lastRequestID == "" {
		t.Fatalf("expected X-Request-ID header")
	}
}

func TestCloseAndReset(t *testing.T) {
	srv := newFakeICM(t)
	path := writeKeyFile(t, srv.URL+"/auth/token")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if _, err := c.AccessToken(ctx); err != nil {
		t.Fatalf("access token: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = c.ListProjects(ctx, PageRequest{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed ConfigError, got %v", err)
	}
	if got := srv.calls.Load(); got != 0 {
		t.Fatalf("closed client reached the server %d times", got)
	}

	if err := c.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := c.ListProjects(ctx, PageRequest{}); err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if got := srv.exchanges.Load(); got != 2 {
		t.Fatalf("expected reset to force a new exchange, got %d", got)
	}
}

func TestResetWithBrokenKeyFile(t *testing.T) {
	srv := newFakeICM(t)
	path := writeKeyFile(t, srv.URL+"/auth/token")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := writeFile(path, []byte("{")); err != nil {
		t.Fatalf("corrupt key file: %v", err)
	}
	err = c.Reset()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Path != path {
		t.Fatalf("expected ConfigError for %s, got %v", path, err)
	}
	if _, err := c.AccessToken(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected client to be unusable after failed reset, got %v", err)
	}
}
