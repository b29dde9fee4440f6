package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"reqmgr/internal/domain"
)

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.Role)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// InsertUser stores a new user. credential must already be hashed by the
// caller.
func (r Repo) InsertUser(ctx context.Context, u domain.User, credential string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO users(username, credential, display_name, email, role) VALUES (?,?,?,?,?)`,
		u.Username, credential, u.DisplayName, u.Email, u.Role)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id, username, display_name, email, role FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id, username, display_name, email, role FROM users WHERE username=?`, username))
}

// GetCredential returns the user record together with the stored credential
// hash. Only the authentication collaborator should call this.
func (r Repo) GetCredential(ctx context.Context, username string) (domain.User, string, error) {
	var u domain.User
	var credential string
	row := r.DB.QueryRowContext(ctx, `SELECT id, username, credential, display_name, email, role FROM users WHERE username=?`, username)
	err := row.Scan(&u.ID, &u.Username, &credential, &u.DisplayName, &u.Email, &u.Role)
	if err == sql.ErrNoRows {
		return u, "", ErrNotFound
	}
	return u, credential, err
}

// ListUsers returns users, optionally filtered by role.
func (r Repo) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	query := `SELECT id, username, display_name, email, role FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.Role); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UpdateUser applies partial updates. Nil fields are left untouched.
func (r Repo) UpdateUser(ctx context.Context, id int64, displayName, email, credential, role *string) error {
	var (
		fields []string
		args   []any
	)
	if displayName != nil {
		fields = append(fields, "display_name=?")
		args = append(args, *displayName)
	}
	if email != nil {
		fields = append(fields, "email=?")
		args = append(args, *email)
	}
	if credential != nil {
		fields = append(fields, "credential=?")
		args = append(args, *credential)
	}
	if role != nil {
		fields = append(fields, "role=?")
		args = append(args, *role)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE users SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
