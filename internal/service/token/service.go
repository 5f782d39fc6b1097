package token

import (
	"context"
	"errors"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

type Service interface {
	// Validate checks a raw access token and returns the user it was issued to.
	// Returns ErrMissingToken if token is empty.
	// Returns ErrInvalidToken if the token is malformed, forged, or expired.
	Validate(ctx context.Context, token string) (string, error)
}
