package icm

import (
	"context"
	"errors"
	"testing"
)

func TestSessionRequiresSelectionBeforeNetwork(t *testing.T) {
	srv := newFakeICM(t)
	s := srv.client(t).NewSession()
	ctx := context.Background()

	_, err := s.CreateEnvironment(ctx, "prod")
	var ctxErr *ContextError
	if !errors.As(err, &ctxErr) || ctxErr.Missing != "project" {
		t.Fatalf("expected missing project ContextError, got %v", err)
	}

	s.SetProject("billing")
	_, err = s.GetValue(ctx, "db_url")
	if !errors.As(err, &ctxErr) || ctxErr.Missing != "environment" {
		t.Fatalf("expected missing environment ContextError, got %v", err)
	}

	if got := srv.exchanges.Load() + srv.calls.Load(); got != 0 {
		t.Fatalf("expected no network calls, got %d", got)
	}
}

func TestSessionSelectionTransitions(t *testing.T) {
	srv := newFakeICM(t)
	s := srv.client(t).NewSession()

	if err := s.SetEnvironment("prod"); err == nil {
		t.Fatalf("expected SetEnvironment to need a project")
	}
	s.SetProject("billing")
	if err := s.SetEnvironment("prod"); err != nil {
		t.Fatalf("set environment: %v", err)
	}
	if s.CurrentProject() != "billing" || s.CurrentEnvironment() != "prod" {
		t.Fatalf("unexpected selection %q/%q", s.CurrentProject(), s.CurrentEnvironment())
	}

	s.SetProject("payments")
	if s.CurrentEnvironment() != "" {
		t.Fatalf("changing project must clear the environment")
	}
	s.Clear()
	if s.CurrentProject() != "" {
		t.Fatalf("clear left project %q", s.CurrentProject())
	}
}

func TestSessionValueCalls(t *testing.T) {
	srv := newFakeICM(t)
	c := srv.client(t)
	ctx := context.Background()
	if _, err := c.CreateProject(ctx, "billing"); err != nil {
		t.Fatalf("create project: %v", err)
	}

	s := c.NewSession()
	s.SetProject("billing")
	if _, err := s.CreateEnvironment(ctx, "prod"); err != nil {
		t.Fatalf("create environment: %v", err)
	}
	if err := s.SetEnvironment("prod"); err != nil {
		t.Fatalf("set environment: %v", err)
	}
	if _, err := s.CreateValue(ctx, "db_url", "postgres://one"); err != nil {
		t.Fatalf("create value: %v", err)
	}
	value, err := s.GetValue(ctx, "db_url")
	if err != nil {
		t.Fatalf("get value: %v", err)
	}
	if value == nil || value.Value != "postgres://one" {
		t.Fatalf("unexpected value %+v", value)
	}
}
