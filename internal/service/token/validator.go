package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garrettladley/rally/internal/xslog"
)

const (
	issuer          = "rally"
	DefaultLifetime = time.Hour
	leeway          = 5 * time.Second
)

// Validator accepts HS256 tokens signed with a shared secret whose
// subject is the user id.
type Validator struct {
	secret []byte
}

var _ Service = (*Validator)(nil)

func NewValidator(secret []byte) *Validator {
	return &Validator{secret: secret}
}

func (v *Validator) Validate(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, v.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	)
	if err != nil {
		xslog.FromContext(ctx).DebugContext(ctx, "token rejected", xslog.Error(err))
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (v *Validator) key(*jwt.Token) (any, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("signing secret not configured")
	}
	return v.secret, nil
}

// Issuer mints tokens the Validator accepts. The server only uses it in
// development and tests; production tokens come from the identity service.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewIssuer(secret []byte, lifetime time.Duration) *Issuer {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Issuer{secret: secret, lifetime: lifetime, now: time.Now}
}

// Issue returns a signed token for userID and its expiry.
func (i *Issuer) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}

	now := i.now()
	expiry := now.Add(i.lifetime)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiry, nil
}
