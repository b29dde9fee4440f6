package session_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reqmgr/internal/session"
)

func TestSaveLoadClear(t *testing.T) {
	m := session.Manager{Dir: t.TempDir()}

	if _, err := m.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("load before save: %v", err)
	}

	if err := m.Save("token-123"); err != nil {
		t.Fatalf("save: %v", err)
	}
	token, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if token != "token-123" {
		t.Fatalf("token = %q", token)
	}

	info, err := os.Stat(filepath.Join(m.Dir, "session"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := m.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("load after clear: %v", err)
	}
	// clearing twice is fine
	if err := m.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestEmptyFileIsNoSession(t *testing.T) {
	m := session.Manager{Dir: t.TempDir()}
	if err := m.Save(""); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := m.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("empty token: %v", err)
	}
}
