package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"qmdoc/core/internal/policy"
)

const userColumns = `id, username, display_name, email, password_hash, role, can_start_workflow, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	var role string
	var canStart int
	err := row.Scan(&user.ID, &user.Username, &user.DisplayName, &user.Email, &user.PasswordHash, &role, &canStart, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	user.Role = policy.NormalizeSystemRole(role)
	user.CanStartWorkflow = canStart != 0
	return user, nil
}

func (s *SQLite) CreateUser(ctx context.Context, user User) error {
	canStart := 0
	if user.CanStartWorkflow {
		canStart = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, email, password_hash, role, can_start_workflow, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.DisplayName, user.Email, user.PasswordHash, string(user.Role), canStart, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLite) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username)
	return scanUser(row)
}

func (s *SQLite) GetUserByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *SQLite) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

// UpdateUserRole rewrites the system role and the workflow-start grant
// for one user.
func (s *SQLite) UpdateUserRole(ctx context.Context, username string, role policy.SystemRole, canStartWorkflow bool) error {
	canStart := 0
	if canStartWorkflow {
		canStart = 1
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET role=?, can_start_workflow=? WHERE username=?
	`, string(role), canStart, username)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLite) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=? WHERE username=?`, passwordHash, username)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
