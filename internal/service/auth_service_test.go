package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func testAuthConfig() *config.AuthConfig {
	cfg := config.Default().Auth
	cfg.PasswordHashIterations = 1000
	return &cfg
}

func newTestAuth(t *testing.T) (*AuthService, *repository.MemoryAccountStore) {
	t.Helper()
	store := repository.NewMemoryAccountStore()
	return NewAuthService(store, testAuthConfig()), store
}

func TestPasswordHasherRoundTrip(t *testing.T) {
	h := NewPasswordHasher(1000)
	hash, salt, err := h.Hash("s3cret!")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(salt)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	assert.True(t, h.Verify("s3cret!", hash, salt))
	assert.False(t, h.Verify("s3cret", hash, salt))
	assert.False(t, h.Verify("s3cret!", hash, ""))

	// the encoded salt string is the KDF input, not its decoded bytes
	want := base64.StdEncoding.EncodeToString(pbkdf2.Key([]byte("s3cret!"), []byte(salt), 1000, 32, sha256.New))
	assert.Equal(t, want, hash)

	hash2, salt2, err := h.Hash("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, salt, salt2)
	assert.NotEqual(t, hash, hash2)
}

func TestLoginIssuesValidToken(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestAuth(t)
	acc, err := svc.CreateAdmin(ctx, "ops", "hunter22", "Ops", "")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, acc.Role)

	resp, err := svc.Login(ctx, "ops", "hunter22", "10.0.0.9")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "ops", resp.Admin.Username)
	assert.WithinDuration(t, time.Now().Add(60*time.Minute), resp.ExpiresAt, 2*time.Second)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, claims.AdminID)
	assert.Equal(t, "ops", claims.Username)
	assert.Equal(t, "ApiAccessLog", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"ApiAccessLogAdmin"}, claims.Audience)
	assert.NotEmpty(t, claims.ID)

	stored, err := store.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.Equal(t, "10.0.0.9", stored.LastLoginIP)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestAuth(t)
	_, err := svc.CreateAdmin(ctx, "ops", "hunter22", "", model.RoleViewer)
	require.NoError(t, err)

	hash, salt, err := svc.CreatePasswordHash("hunter22")
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, &model.AdminAccount{
		Username: "gone", PasswordHash: hash, Salt: salt, Role: model.RoleViewer, IsActive: false,
	}))

	_, err = svc.Login(ctx, "ops", "wrong-password", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "hunter22", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "gone", "hunter22", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejections(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t)
	acc, err := svc.CreateAdmin(ctx, "ops", "hunter22", "", "")
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.tokens.now = func() time.Time { return base }
	token, expiresAt, err := svc.tokens.Issue(acc)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), expiresAt)

	t.Run("valid before expiry", func(t *testing.T) {
		svc.tokens.now = func() time.Time { return expiresAt.Add(-time.Second) }
		_, err := svc.ValidateToken(token)
		assert.NoError(t, err)
	})

	t.Run("expired without skew", func(t *testing.T) {
		svc.tokens.now = func() time.Time { return expiresAt.Add(time.Second) }
		_, err := svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	svc.tokens.now = func() time.Time { return base }

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
		_, err = svc.ValidateToken("")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other algorithm", func(t *testing.T) {
		claims := AdminClaims{
			AdminID: acc.ID,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "ApiAccessLog",
				Audience:  jwt.ClaimStrings{"ApiAccessLogAdmin"},
				ExpiresAt: jwt.NewNumericDate(base.Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte(testAuthConfig().JWTSecret))
		require.NoError(t, err)
		_, err = svc.ValidateToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.JWTAudience = "SomeoneElse"
		other := NewTokenIssuer(cfg)
		other.now = func() time.Time { return base }
		foreign, _, err := other.Issue(acc)
		require.NoError(t, err)
		_, err = svc.ValidateToken(foreign)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.JWTSecret = "a-completely-different-secret-of-32+bytes"
		other := NewTokenIssuer(cfg)
		other.now = func() time.Time { return base }
		foreign, _, err := other.Issue(acc)
		require.NoError(t, err)
		_, err = svc.ValidateToken(foreign)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t)
	acc, err := svc.CreateAdmin(ctx, "ops", "hunter22", "", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, acc.ID, "hunter22", "short"), ErrPasswordTooShort)
	// length is checked before the current password
	assert.ErrorIs(t, svc.ChangePassword(ctx, acc.ID, "wrong", "abc"), ErrPasswordTooShort)
	assert.ErrorIs(t, svc.ChangePassword(ctx, acc.ID, "wrong", "brand-new"), ErrWrongPassword)
	assert.ErrorIs(t, svc.ChangePassword(ctx, 999, "hunter22", "brand-new"), repository.ErrNotFound)

	require.NoError(t, svc.ChangePassword(ctx, acc.ID, "hunter22", "brand-new"))
	_, err = svc.Login(ctx, "ops", "hunter22", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "ops", "brand-new", "")
	assert.NoError(t, err)
}

func TestEnsureDefaultAdmin(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestAuth(t)
	require.NoError(t, svc.EnsureDefaultAdmin(ctx))
	require.NoError(t, svc.EnsureDefaultAdmin(ctx))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "admin", all[0].Username)
	assert.Equal(t, "Administrator", all[0].DisplayName)

	_, err = svc.Login(ctx, "admin", "Admin@123", "")
	assert.NoError(t, err)

	cfg := testAuthConfig()
	cfg.EnableDefaultAdmin = false
	empty := repository.NewMemoryAccountStore()
	require.NoError(t, NewAuthService(empty, cfg).EnsureDefaultAdmin(ctx))
	all, err = empty.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateAdminValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t)

	_, err := svc.CreateAdmin(ctx, "  ", "hunter22", "", "")
	assert.ErrorIs(t, err, ErrInvalidAccount)
	_, err = svc.CreateAdmin(ctx, "ops", "hunter22", "", "root")
	assert.ErrorIs(t, err, ErrInvalidAccount)
	_, err = svc.CreateAdmin(ctx, "ops", "abc", "", "")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = svc.CreateAdmin(ctx, "ops", "hunter22", "", "")
	require.NoError(t, err)
	_, err = svc.CreateAdmin(ctx, "ops", "hunter22", "", "")
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}
