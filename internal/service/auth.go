package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/acorvin/gamenight/internal/apperror"
	"github.com/acorvin/gamenight/internal/auth"
	"github.com/acorvin/gamenight/internal/metrics"
	"github.com/acorvin/gamenight/internal/model"
	"github.com/acorvin/gamenight/internal/repository"
)

const (
	// MinUsernameLength and MaxUsernameLength bound usernames.
	MinUsernameLength = 3
	MaxUsernameLength = 32
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8
)

// Default credentials seeded into an empty database so the first
// operator can sign in. Meant to be changed immediately.
const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin"
)

// AuthService handles registration, login, and the bootstrap admin.
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	metrics   metrics.Sink
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	sink metrics.Sink,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		metrics:   sink,
		logger:    logger,
	}
}

// AuthResult is a successful registration or login: the account plus a
// fresh session token.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a new account and signs it in. Registration is open;
// new accounts are never admins. Returns ErrConflict when the username
// is taken.
func (s *AuthService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
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

	user := &model.User{Username: username, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	s.logger.Info("user registered", slog.String("username", username))
	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and returns a session token. An unknown
// username and a wrong password produce the same ErrUnauthorized; the
// caller cannot probe which usernames exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	s.metrics.Inc(metrics.LoginAttempts)

	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.metrics.Inc(metrics.FailedLogins)
			return nil, apperror.Unauthorized("invalid username or password")
		}
		return nil, err
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.metrics.Inc(metrics.FailedLogins)
		s.logger.Warn("failed login", slog.String("username", user.Username))
		return nil, apperror.Unauthorized("invalid username or password")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	s.metrics.Inc(metrics.SuccessfulLogins)
	s.logger.Info("user logged in", slog.String("username", user.Username))
	return &AuthResult{User: user, Token: token}, nil
}

// EnsureDefaultAdmin seeds admin/admin when the users table is empty.
// Called once at startup; a populated database is left alone.
func (s *AuthService) EnsureDefaultAdmin(ctx context.Context) error {
	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := s.passwords.Hash(defaultAdminPassword)
	if err != nil {
		return fmt.Errorf("hashing default admin password: %w", err)
	}

	admin := &model.User{
		Username:     defaultAdminUsername,
		PasswordHash: hash,
		IsAdmin:      true,
	}
	if err := s.users.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("seeding default admin: %w", err)
	}

	s.logger.Warn("seeded default admin account, change its password",
		slog.String("username", defaultAdminUsername))
	return nil
}

func validateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be at least %d characters", MinUsernameLength))
	}
	if len(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	for _, r := range username {
		if !isUsernameRune(r) {
			return apperror.ValidationFailed("username",
				"username may only contain letters, digits, '-', '_', and '.'")
		}
	}
	return nil
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}
