package engine

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"reqmgr/internal/domain"
	"reqmgr/internal/repo"
)

// UserOptions are parameters for creating a user account.
type UserOptions struct {
	Username    string
	DisplayName string
	Email       string
	Role        string
	Credential  string
}

// CreateUser registers a new account. Admin only.
func (e Engine) CreateUser(ctx context.Context, caller domain.User, opts UserOptions) (domain.User, error) {
	if err := authorize(caller, capAdmin, "create user", domain.Requirement{}); err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(opts.Username) == "" {
		return domain.User{}, ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if opts.Credential == "" {
		return domain.User{}, ValidationError{Field: "password", Reason: "must not be empty"}
	}
	role := opts.Role
	if role == "" {
		role = domain.RoleStaff
	}
	if !domain.ValidRole(role) {
		return domain.User{}, ValidationError{Field: "role", Reason: "must be admin or staff"}
	}
	if opts.Email != "" {
		if _, err := mail.ParseAddress(opts.Email); err != nil {
			return domain.User{}, ValidationError{Field: "email", Reason: "invalid address"}
		}
	}
	u := domain.User{
		Username:    opts.Username,
		DisplayName: opts.DisplayName,
		Email:       opts.Email,
		Role:        role,
	}
	id, err := e.Repo.InsertUser(ctx, u, opts.Credential)
	if err != nil {
		return domain.User{}, StoreError{Op: "insert user", Err: err}
	}
	u.ID = id
	return u, nil
}

// GetUser returns a single account. Staff may view themselves; admins anyone.
func (e Engine) GetUser(ctx context.Context, caller domain.User, id int64) (domain.User, error) {
	if caller.ID != id && !caller.IsAdmin() {
		return domain.User{}, PermissionError{Op: "view user", UserID: caller.ID}
	}
	u, err := e.Repo.GetUser(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, NotFoundError{Kind: "user", ID: id}
	}
	if err != nil {
		return domain.User{}, StoreError{Op: "get user", Err: err}
	}
	return u, nil
}

// ListUsers returns accounts, optionally filtered by role. Admin only.
func (e Engine) ListUsers(ctx context.Context, caller domain.User, role string) ([]domain.User, error) {
	if err := authorize(caller, capAdmin, "list users", domain.Requirement{}); err != nil {
		return nil, err
	}
	if role != "" && !domain.ValidRole(role) {
		return nil, ValidationError{Field: "role", Reason: "must be admin or staff"}
	}
	users, err := e.Repo.ListUsers(ctx, role)
	if err != nil {
		return nil, StoreError{Op: "list users", Err: err}
	}
	return users, nil
}

// UpdateUserOptions are the optional fields of an account update; nil fields
// are left unchanged.
type UpdateUserOptions struct {
	DisplayName *string
	Email       *string
	Role        *string
	Credential  *string
}

// UpdateUser patches an account. Staff may change their own display name,
// email and password; role changes and editing other accounts are admin only.
func (e Engine) UpdateUser(ctx context.Context, caller domain.User, id int64, opts UpdateUserOptions) (domain.User, error) {
	if caller.ID != id && !caller.IsAdmin() {
		return domain.User{}, PermissionError{Op: "update user", UserID: caller.ID}
	}
	if opts.Role != nil {
		if !caller.IsAdmin() {
			return domain.User{}, PermissionError{Op: "change role", UserID: caller.ID}
		}
		if !domain.ValidRole(*opts.Role) {
			return domain.User{}, ValidationError{Field: "role", Reason: "must be admin or staff"}
		}
	}
	if opts.Email != nil && *opts.Email != "" {
		if _, err := mail.ParseAddress(*opts.Email); err != nil {
			return domain.User{}, ValidationError{Field: "email", Reason: "invalid address"}
		}
	}
	if opts.Credential != nil && *opts.Credential == "" {
		return domain.User{}, ValidationError{Field: "password", Reason: "must not be empty"}
	}
	err := e.Repo.UpdateUser(ctx, id, opts.DisplayName, opts.Email, opts.Credential, opts.Role)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, NotFoundError{Kind: "user", ID: id}
	}
	if err != nil {
		return domain.User{}, StoreError{Op: "update user", Err: err}
	}
	return e.GetUser(ctx, caller, id)
}
