// Package session persists the CLI login token under the user's home
// directory so authenticated commands survive across invocations.
package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSession indicates no stored login.
var ErrNoSession = errors.New("not logged in")

const fileName = "session"

// Manager reads and writes the session token file. Dir defaults to
// ~/.reqmgr.
type Manager struct {
	Dir string
}

// DefaultDir returns ~/.reqmgr, falling back to the current directory when
// the home directory cannot be resolved.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reqmgr"
	}
	return filepath.Join(home, ".reqmgr")
}

func (m Manager) dir() string {
	if m.Dir != "" {
		return m.Dir
	}
	return DefaultDir()
}

func (m Manager) path() string {
	return filepath.Join(m.dir(), fileName)
}

// Save writes the token, readable by the owner only.
func (m Manager) Save(token string) error {
	if err := os.MkdirAll(m.dir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(m.path(), []byte(token+"\n"), 0o600)
}

// Load returns the stored token, or ErrNoSession when none exists.
func (m Manager) Load() (string, error) {
	data, err := os.ReadFile(m.path())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoSession
	}
	return token, nil
}

// Clear removes the stored token. Clearing a missing session is not an error.
func (m Manager) Clear() error {
	err := os.Remove(m.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
