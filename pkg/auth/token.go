package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

const (
	// TokenPrefix identifies service tokens
	TokenPrefix = "fam_"
	// TokenLength is the number of random bytes in a token (256 bits)
	TokenLength = 32
)

// TokenGenerator generates service tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new service token.
// Format: fam_<base64url(32 random bytes)>
// Only tokenHash should be stored.
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	token = TokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return token, HashToken(token), nil
}

// HashToken computes the SHA256 hash of a token for lookup
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the service token format
func ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}
	encoded := strings.TrimPrefix(token, TokenPrefix)
	if encoded == "" {
		return fmt.Errorf("token is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}

// ServiceTokens authenticates service tokens against a set of known hashes
type ServiceTokens struct {
	mu     sync.RWMutex
	hashes map[string]Identity
}

// NewServiceTokens creates an empty service token set
func NewServiceTokens() *ServiceTokens {
	return &ServiceTokens{hashes: make(map[string]Identity)}
}

// Register makes the token with the given hash authenticate as identity
func (s *ServiceTokens) Register(tokenHash string, identity Identity) error {
	if identity.UserID == "" {
		return fmt.Errorf("service token identity needs a user id")
	}
	identity.Method = MethodServiceToken
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[strings.ToLower(tokenHash)] = identity
	return nil
}

// Len returns the number of registered tokens
func (s *ServiceTokens) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes)
}

// Authenticate looks up token by hash
func (s *ServiceTokens) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if err := ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	s.mu.RLock()
	identity, ok := s.hashes[HashToken(token)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidToken
	}
	return &identity, nil
}

// Chain routes service tokens to tokens and everything else to fallback.
// A nil tokens set rejects service tokens.
func Chain(tokens *ServiceTokens, fallback Authenticator) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, token string) (*Identity, error) {
		if strings.HasPrefix(token, TokenPrefix) {
			if tokens == nil {
				return nil, ErrInvalidToken
			}
			return tokens.Authenticate(ctx, token)
		}
		return fallback.Authenticate(ctx, token)
	})
}
