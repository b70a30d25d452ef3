package server

import (
	"context"
	"testing"
	"time"

	"github.com/devkekops/skipay/internal/app/config"
	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/storage"
)

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemStore()
	cfg := &config.Config{SecretKey: "secret", TokenTTL: time.Hour, AdminLogin: "root", AdminPassword: "rootpass"}
	svc := NewServices(repo, cfg)

	for i := 0; i < 2; i++ {
		if err := seedAdmin(ctx, svc.Auth, cfg); err != nil {
			t.Fatalf("seedAdmin run %d failed: %v", i, err)
		}
	}
	u, err := repo.GetUserByLogin(ctx, "root")
	if err != nil {
		t.Fatalf("GetUserByLogin failed: %v", err)
	}
	if u.Role != entity.RoleAdmin {
		t.Errorf("role = %s, want admin", u.Role)
	}
	if _, err := svc.Auth.Login(ctx, "root", "rootpass"); err != nil {
		t.Errorf("seeded admin cannot log in: %v", err)
	}

	users, _ := repo.ListUsers(ctx)
	if len(users) != 1 {
		t.Errorf("users = %d, want 1", len(users))
	}
}

func TestSeedAdminDisabled(t *testing.T) {
	repo := storage.NewMemStore()
	cfg := &config.Config{SecretKey: "secret", TokenTTL: time.Hour}
	if err := seedAdmin(context.Background(), NewServices(repo, cfg).Auth, cfg); err != nil {
		t.Fatalf("seedAdmin failed: %v", err)
	}
	users, _ := repo.ListUsers(context.Background())
	if len(users) != 0 {
		t.Errorf("users = %d, want none without credentials", len(users))
	}
}
