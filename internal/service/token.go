package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is the only error ValidateToken reports.
var ErrInvalidToken = errors.New("invalid token")

// AdminClaims identify the operator a token was issued to.
type AdminClaims struct {
	AdminID  int64  `json:"admin_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewTokenIssuer(cfg *config.AuthConfig) *TokenIssuer {
	return &TokenIssuer{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		ttl:      time.Duration(cfg.JWTExpirationMinutes) * time.Minute,
		now:      time.Now,
	}
}

// Issue signs an HS256 token for acc and returns it with its absolute expiry.
func (t *TokenIssuer) Issue(acc *model.AdminAccount) (string, time.Time, error) {
	// NumericDate has second precision; keep the reported expiry identical.
	now := t.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(t.ttl)
	claims := AdminClaims{
		AdminID:  acc.ID,
		Username: acc.Username,
		Role:     acc.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(acc.ID, 10),
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate checks signature, algorithm, issuer, audience and expiry with no
// clock skew allowance. Every failure collapses to ErrInvalidToken.
func (t *TokenIssuer) Validate(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid || claims.AdminID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
