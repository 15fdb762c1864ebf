package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/acorvin/gamenight/internal/apperror"
	"github.com/acorvin/gamenight/internal/auth"
	"github.com/acorvin/gamenight/internal/model"
	"github.com/acorvin/gamenight/internal/repository"
)

// UserService covers self-service password changes and the admin-only
// account operations.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewUserService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *UserService {
	return &UserService{users: users, passwords: passwords, logger: logger}
}

// Get loads a single user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// List returns all accounts, ordered by username.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// ChangePassword verifies the caller's current password before storing
// the new one. A wrong current password is ErrUnauthorized.
func (s *UserService) ChangePassword(ctx context.Context, identity model.Identity, current, next string) error {
	user, err := s.users.GetUserByID(ctx, identity.ID)
	if err != nil {
		return err
	}

	if err := s.passwords.Verify(user.PasswordHash, current); err != nil {
		return apperror.Unauthorized("current password is incorrect")
	}
	if len(next) < MinPasswordLength {
		return apperror.ValidationFailed("newPassword",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	s.logger.Info("password changed", slog.String("userId", user.ID))
	return nil
}

// CreateUser is the admin path for provisioning an account, optionally
// with the admin flag already set.
func (s *UserService) CreateUser(ctx context.Context, username, password string, isAdmin bool) (*model.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{Username: username, PasswordHash: hash, IsAdmin: isAdmin}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created",
		slog.String("username", username),
		slog.Bool("isAdmin", isAdmin),
	)
	return user, nil
}

// ToggleRole flips a user's admin flag. Admins cannot toggle their own
// role, so the system always keeps at least the acting admin.
func (s *UserService) ToggleRole(ctx context.Context, identity model.Identity, targetID string) (*model.User, error) {
	if !canChangeRole(identity.ID, targetID) {
		return nil, apperror.Forbidden("you cannot change your own role")
	}

	user, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	user.IsAdmin = !user.IsAdmin
	if err := s.users.SetAdmin(ctx, user.ID, user.IsAdmin); err != nil {
		return nil, fmt.Errorf("updating role: %w", err)
	}

	s.logger.Info("role toggled",
		slog.String("userId", user.ID),
		slog.Bool("isAdmin", user.IsAdmin),
		slog.String("by", identity.ID),
	)
	return user, nil
}
