package auth_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"reqmgr/internal/auth"
	"reqmgr/internal/db"
	"reqmgr/internal/domain"
	"reqmgr/internal/migrate"
	"reqmgr/internal/repo"
)

func newService(t *testing.T) (auth.Service, *time.Time) {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	u := domain.User{Username: "alice", Role: domain.RoleAdmin}
	if _, err := r.InsertUser(context.Background(), u, auth.HashCredential("s3cret")); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := auth.Service{
		Repo:    r,
		Secret:  "test-secret",
		Timeout: time.Hour,
		Now:     func() time.Time { return now },
	}
	return svc, &now
}

func TestLoginRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, token, err := svc.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.Username != "alice" || token == "" {
		t.Fatalf("login returned %v / %q", u, token)
	}

	got, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated user %d, want %d", got.ID, u.ID)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if _, _, err := svc.Login(ctx, "alice", "nope"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody", "s3cret"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestTokenExpires(t *testing.T) {
	svc, now := newService(t)
	ctx := context.Background()
	_, token, err := svc.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	*now = now.Add(2 * time.Hour)
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expired token: %v", err)
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Authenticate(context.Background(), "not-a-token"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("garbage token: %v", err)
	}
}
