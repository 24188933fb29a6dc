package environment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/splax/icm/internal/domain"
	"github.com/splax/icm/internal/repository"
	"github.com/splax/icm/internal/repository/memory"
)

func setup(t *testing.T) (Service, *memory.Repository) {
	t.Helper()
	repo := memory.New()
	now := time.Now().UTC()
	if err := repo.CreateProject(context.Background(), &domain.Project{Name: "billing", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(repo, repo, log), repo
}

func TestEnvironmentLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	env, err := svc.Create(ctx, "billing", "prod")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if env.ProjectID == 0 || env.Name != "prod" {
		t.Fatalf("unexpected environment %+v", env)
	}
	renamed, err := svc.Rename(ctx, "billing", "prod", "production")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.ID != env.ID {
		t.Fatalf("rename changed identity: %+v", renamed)
	}
	envs, pagination, err := svc.List(ctx, "billing", domain.Page{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(envs) != 1 || envs[0].Name != "production" || pagination.Total != 1 {
		t.Fatalf("unexpected list %+v %+v", envs, pagination)
	}
	if _, err := svc.Remove(ctx, "billing", "production"); err != nil {
		t.Fatalf("remove: %v", err)
	}
}

func TestEnvironmentRequiresProject(t *testing.T) {
	svc, _ := setup(t)
	if _, err := svc.Create(context.Background(), "missing", "prod"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "billing", ""); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
