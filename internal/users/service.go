// Package users provides account management and username resolution on
// top of the user store.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"qmdoc/core/internal/policy"
	"qmdoc/core/internal/store"
	"qmdoc/core/internal/util"
)

// ErrInvalidCredentials is returned when a username/password pair does
// not match a stored account. It deliberately does not distinguish an
// unknown user from a wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrUsernameTaken is returned when creating an account whose username
// already exists.
var ErrUsernameTaken = errors.New("username already taken")

// UserStore defines the storage interface for account management.
type UserStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	UpdateUserRole(ctx context.Context, username string, role policy.SystemRole, canStartWorkflow bool) error
	UpdateUserPassword(ctx context.Context, username, passwordHash string) error
}

// Service manages user accounts.
type Service struct {
	store UserStore
}

// NewService creates a new user service.
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// CreateRequest contains account creation parameters.
type CreateRequest struct {
	Username         string
	DisplayName      string
	Email            string
	Password         string
	Role             policy.SystemRole
	CanStartWorkflow bool
}

// Create registers a new account. Usernames are unique; the password is
// stored as a bcrypt hash.
func (s *Service) Create(ctx context.Context, req CreateRequest) (store.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return store.User{}, errors.New("username and password are required")
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByUsername(ctx, req.Username); err == nil {
		return store.User{}, fmt.Errorf("%w: %s", ErrUsernameTaken, req.Username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:               util.NewID("usr"),
		Username:         req.Username,
		DisplayName:      req.DisplayName,
		Email:            req.Email,
		PasswordHash:     string(hash),
		Role:             policy.NormalizeSystemRole(string(req.Role)),
		CanStartWorkflow: req.CanStartWorkflow,
		CreatedAt:        time.Now().UTC(),
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate checks a username/password pair and returns the account
// on success.
func (s *Service) Authenticate(ctx context.Context, username, password string) (store.User, error) {
	if username == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// SetRole updates an account's system role and workflow-start flag.
func (s *Service) SetRole(ctx context.Context, username string, role policy.SystemRole, canStartWorkflow bool) error {
	if err := s.store.UpdateUserRole(ctx, username, policy.NormalizeSystemRole(string(role)), canStartWorkflow); err != nil {
		return fmt.Errorf("update role for %s: %w", username, err)
	}
	return nil
}

// ChangePassword replaces an account's password hash.
func (s *Service) ChangePassword(ctx context.Context, username, newPassword string) error {
	if len(newPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, username, string(hash)); err != nil {
		return fmt.Errorf("update password for %s: %w", username, err)
	}
	return nil
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]store.User, error) {
	return s.store.ListUsers(ctx)
}

// Current resolves a username into the policy view of the account.
func (s *Service) Current(ctx context.Context, username string) (policy.CurrentUser, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return policy.CurrentUser{}, fmt.Errorf("resolve user %s: %w", username, err)
	}
	return policy.CurrentUser{
		ID:               user.ID,
		Role:             user.Role,
		CanStartWorkflow: user.CanStartWorkflow,
	}, nil
}

// DisplayName resolves an actor identifier (user id or username) to a
// display name. Unknown actors fall back to the raw identifier so audit
// views stay renderable after account removal.
func (s *Service) DisplayName(ctx context.Context, actor string) string {
	user, err := s.store.GetUserByID(ctx, actor)
	if err != nil {
		user, err = s.store.GetUserByUsername(ctx, actor)
	}
	if err != nil || user.DisplayName == "" {
		return actor
	}
	return user.DisplayName
}

// Provider resolves usernames for read-side services without binding
// them to the full account store.
type Provider interface {
	DisplayName(ctx context.Context, username string) string
}

// StaticProvider resolves display names from a fixed map, falling back
// to the username itself.
type StaticProvider map[string]string

func (p StaticProvider) DisplayName(_ context.Context, username string) string {
	if name, ok := p[username]; ok && name != "" {
		return name
	}
	return username
}

// IsNotFound reports whether err means the account does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
