package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/pkg/logger"
	"github.com/GoPolymarket/logreplay/internal/pkg/metrics"
	"github.com/GoPolymarket/logreplay/internal/repository"
)

const MinPasswordLength = 6

var (
	// ErrInvalidCredentials covers unknown users, inactive accounts and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrInvalidAccount     = errors.New("invalid account data")
)

type AuthService struct {
	accounts repository.AccountStore
	hasher   *PasswordHasher
	tokens   *TokenIssuer
	cfg      config.AuthConfig
	now      func() time.Time

	// dummy credentials keep the unknown-user path as slow as a real check
	dummyHash string
	dummySalt string
}

func NewAuthService(accounts repository.AccountStore, cfg *config.AuthConfig) *AuthService {
	s := &AuthService{
		accounts: accounts,
		hasher:   NewPasswordHasher(cfg.PasswordHashIterations),
		tokens:   NewTokenIssuer(cfg),
		cfg:      *cfg,
		now:      time.Now,
	}
	s.dummyHash, s.dummySalt, _ = s.hasher.Hash("logreplay-dummy")
	return s
}

// Login verifies the credentials and returns a signed token with the public account view.
func (s *AuthService) Login(ctx context.Context, username, password, clientIP string) (*model.LoginResponse, error) {
	acc, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load account: %w", err)
		}
		s.hasher.Verify(password, s.dummyHash, s.dummySalt)
		metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}

	valid := s.hasher.Verify(password, acc.PasswordHash, acc.Salt)
	if !valid || !acc.IsActive {
		metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		logger.Warn("operator login rejected", "username", username, "client_ip", clientIP, "active", acc.IsActive)
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.accounts.TouchLastLogin(ctx, acc.ID, now, clientIP); err != nil {
		logger.LogError(ctx, err, "failed to record last login", "admin_id", acc.ID)
	} else {
		acc.LastLoginAt = &now
	}

	token, expiresAt, err := s.tokens.Issue(acc)
	if err != nil {
		return nil, err
	}
	metrics.LoginAttempts.WithLabelValues("accepted").Inc()
	logger.Info("operator logged in", "admin_id", acc.ID, "username", acc.Username, "client_ip", clientIP)

	return &model.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Admin:     acc.Public(),
	}, nil
}

func (s *AuthService) CreatePasswordHash(plaintext string) (hash, salt string, err error) {
	return s.hasher.Hash(plaintext)
}

func (s *AuthService) VerifyPassword(plaintext, hash, salt string) bool {
	return s.hasher.Verify(plaintext, hash, salt)
}

func (s *AuthService) ValidateToken(token string) (*AdminClaims, error) {
	return s.tokens.Validate(token)
}

// ChangePassword rejects short passwords before touching the store.
func (s *AuthService) ChangePassword(ctx context.Context, id int64, current, next string) error {
	if len([]rune(next)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, acc.PasswordHash, acc.Salt) {
		return ErrWrongPassword
	}
	hash, salt, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, id, hash, salt); err != nil {
		return err
	}
	logger.Info("operator password changed", "admin_id", id)
	return nil
}

func (s *AuthService) GetAdminInfo(ctx context.Context, id int64) (*model.AdminInfo, error) {
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	info := acc.Public()
	return &info, nil
}

// CreateAdmin stores a new active account with a freshly salted hash.
func (s *AuthService) CreateAdmin(ctx context.Context, username, password, displayName, role string) (*model.AdminAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidAccount)
	}
	if role == "" {
		role = model.RoleAdmin
	}
	if !model.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidAccount, role)
	}
	if len([]rune(password)) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, salt, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	acc := &model.AdminAccount{
		Username:     username,
		PasswordHash: hash,
		Salt:         salt,
		DisplayName:  displayName,
		Role:         role,
		IsActive:     true,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// EnsureDefaultAdmin materializes the configured bootstrap account once.
func (s *AuthService) EnsureDefaultAdmin(ctx context.Context) error {
	if !s.cfg.EnableDefaultAdmin {
		return nil
	}
	_, err := s.accounts.GetByUsername(ctx, s.cfg.DefaultAdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	_, err = s.CreateAdmin(ctx, s.cfg.DefaultAdminUsername, s.cfg.DefaultAdminPassword, "Administrator", model.RoleAdmin)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}
	logger.Warn("default admin account created; change its password", "username", s.cfg.DefaultAdminUsername)
	return nil
}

func (s *AuthService) ListAdmins(ctx context.Context) ([]model.AdminInfo, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.AdminInfo, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, acc.Public())
	}
	return out, nil
}
