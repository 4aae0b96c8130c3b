package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no credential was presented
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned for malformed, unsigned or unknown credentials
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for credentials past their expiry
	ErrExpiredToken = errors.New("token has expired")
)

// Method records how an identity was established
type Method string

const (
	MethodJWT          Method = "jwt"
	MethodServiceToken Method = "service_token"
)

// Identity is an authenticated caller
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Method Method `json:"method"`

	// ExpiresAt is when the credential stops being valid; zero if it does not expire
	ExpiresAt time.Time `json:"-"`
}

// Claims is the JWT payload. The subject carries the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves a bearer credential into an Identity
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(ctx context.Context, token string) (*Identity, error)

// Authenticate calls f
func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}
