package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"reqmgr/internal/domain"
	"reqmgr/internal/repo"
)

// ErrInvalidCredentials covers both unknown usernames and wrong passwords so
// callers cannot distinguish which part failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// HashCredential returns a stable SHA-256 hex digest for the provided secret.
func HashCredential(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:])
}

// Service authenticates users and issues signed session tokens.
type Service struct {
	Repo    repo.Repo
	Secret  string
	Timeout time.Duration
	Now     func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return time.Hour
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Login verifies the password and returns the user with a fresh token.
func (s Service) Login(ctx context.Context, username, password string) (domain.User, string, error) {
	u, credential, err := s.Repo.GetCredential(ctx, username)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, "", err
	}
	hashed := HashCredential(password)
	if subtle.ConstantTimeCompare([]byte(hashed), []byte(credential)) != 1 {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, token, nil
}

// IssueToken signs an HS256 token for the user, valid for the configured
// session timeout.
func (s Service) IssueToken(u domain.User) (string, error) {
	if strings.TrimSpace(s.Secret) == "" {
		return "", errors.New("session secret not configured")
	}
	now := s.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.timeout())),
		},
		Username: u.Username,
		Role:     u.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Secret))
}

// Authenticate validates a token and resolves the user it names. Expired and
// malformed tokens both yield ErrInvalidCredentials.
func (s Service) Authenticate(ctx context.Context, token string) (domain.User, error) {
	if strings.TrimSpace(s.Secret) == "" {
		return domain.User{}, errors.New("session secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &sessionClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return domain.User{}, ErrInvalidCredentials
	}
	if claims.Subject == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	u, err := s.Repo.GetUserByUsername(ctx, claims.Subject)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}
