package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menofreact/whatsapp-sending-engine/accounts/domain"
	"github.com/menofreact/whatsapp-sending-engine/accounts/security"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
)

const invalidCredentials = "invalid credentials"

type AuthService struct {
	repo   domain.IUserRepository
	tokens *security.TokenIssuer
}

func NewAuthService(repo domain.IUserRepository, tokens *security.TokenIssuer) *AuthService {
	return &AuthService{repo: repo, tokens: tokens}
}

// Login verifies credentials and returns a signed token
func (s *AuthService) Login(ctx context.Context, username, password string) (domain.LoginResponse, error) {
	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.LoginResponse{}, pkgError.AuthError(invalidCredentials)
		}
		return domain.LoginResponse{}, err
	}
	if !user.Active || !security.CheckPasswordHash(password, user.PasswordHash) {
		return domain.LoginResponse{}, pkgError.AuthError(invalidCredentials)
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("failed to generate token: %w", err)
	}

	go func(id string) {
		if err := s.repo.UpdateLastLogin(context.Background(), id); err != nil {
			logrus.WithError(err).Warnf("[AUTH] Failed to update last login for %s", id)
		}
	}(user.ID)

	logrus.Infof("[AUTH] %s logged in", user.Username)
	return domain.LoginResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, nil
}

// ValidateToken verifies a token and that its account is still active
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*domain.User, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, pkgError.AuthError("invalid or expired token")
	}
	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, pkgError.AuthError("account not found")
		}
		return nil, err
	}
	if !user.Active {
		return nil, pkgError.AuthError("account is inactive")
	}
	return user, nil
}

// CreateUser registers a new account; username must be unique
func (s *AuthService) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	username := strings.TrimSpace(req.Username)
	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, pkgError.ValidationError("username already exists")
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := domain.NewUser(username, hash, domain.ParseRole(req.Role))
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	logrus.Infof("[AUTH] Created %s account %s", user.Role, user.Username)
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.repo.List(ctx)
}

// TenantIDs returns the ids of every active account.
func (s *AuthService) TenantIDs(ctx context.Context) ([]string, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.Active {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// SeedAdmin creates the first admin account when the user table is empty.
// It returns false when nothing was created.
func (s *AuthService) SeedAdmin(ctx context.Context, username, password string) (bool, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if password == "" {
		logrus.Warn("[AUTH] No accounts exist and ADMIN_PASSWORD is empty, skipping admin seed")
		return false, nil
	}
	if _, err := s.CreateUser(ctx, domain.CreateUserRequest{Username: username, Password: password, Role: string(domain.RoleAdmin)}); err != nil {
		return false, err
	}
	return true, nil
}
