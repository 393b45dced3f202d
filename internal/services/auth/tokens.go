package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"cipherelay/internal/domain"
)

// DefaultTokenTTL is how long an access token stays valid.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrInvalidToken rejects malformed, expired, forged or orphaned tokens.
	ErrInvalidToken = domain.Reject("Invalid or expired token")
	// ErrNoSecret is returned when Tokens is built without a signing secret.
	ErrNoSecret = errors.New("token secret must not be empty")
)

// Tokens issues and verifies HS256 bearer tokens whose subject is the
// account username.
type Tokens struct {
	secret   []byte
	ttl      time.Duration
	accounts domain.AccountStore
	now      func() time.Time
}

// NewTokens returns a token service. Verification also requires the subject
// account to still exist in accounts.
func NewTokens(secret string, ttl time.Duration, accounts domain.AccountStore) (*Tokens, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{
		secret:   []byte(secret),
		ttl:      ttl,
		accounts: accounts,
		now:      time.Now,
	}, nil
}

// IssueToken mints a token for id.
func (t *Tokens) IssueToken(id domain.Identity) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// VerifyToken implements domain.TokenVerifier.
func (t *Tokens) VerifyToken(ctx context.Context, token string) (domain.Identity, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}

	id := domain.Identity(claims.Subject)
	if t.accounts != nil {
		_, ok, err := t.accounts.AccountByUsername(ctx, id)
		if err != nil {
			return "", fmt.Errorf("lookup token subject: %w", err)
		}
		if !ok {
			return "", ErrInvalidToken
		}
	}
	return id, nil
}

var (
	_ domain.TokenIssuer   = (*Tokens)(nil)
	_ domain.TokenVerifier = (*Tokens)(nil)
)
