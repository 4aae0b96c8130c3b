package auth

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedAuthenticator remembers successful authentications so repeated
// requests with the same bearer token skip signature verification. Entries
// are keyed by token hash and never outlive the credential's own expiry.
// Failures are not cached.
type CachedAuthenticator struct {
	next  Authenticator
	cache *lru.LRU[string, Identity]
	now   func() time.Time
}

// NewCachedAuthenticator caches up to size identities for at most ttl.
// A size of zero or less returns next unchanged.
func NewCachedAuthenticator(next Authenticator, size int, ttl time.Duration) Authenticator {
	if size <= 0 {
		return next
	}
	return &CachedAuthenticator{
		next:  next,
		cache: lru.NewLRU[string, Identity](size, nil, ttl),
		now:   time.Now,
	}
}

// Authenticate returns the cached identity for token or asks the wrapped
// authenticator
func (c *CachedAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	key := HashToken(token)
	if identity, ok := c.cache.Get(key); ok {
		if identity.ExpiresAt.IsZero() || c.now().Before(identity.ExpiresAt) {
			return &identity, nil
		}
		c.cache.Remove(key)
	}

	identity, err := c.next.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, *identity)
	return identity, nil
}

// Len returns the number of cached identities
func (c *CachedAuthenticator) Len() int {
	return c.cache.Len()
}
