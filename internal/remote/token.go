package remote

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Token is a short-lived credential such as a request digest.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the token is empty or past its expiry at now.
func (t Token) Expired(now time.Time) bool {
	return t.Value == "" || !now.Before(t.ExpiresAt)
}

// TokenSource mints a fresh token.
type TokenSource interface {
	Refresh(ctx context.Context) (Token, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (Token, error)

// Refresh implements TokenSource.
func (f TokenSourceFunc) Refresh(ctx context.Context) (Token, error) {
	return f(ctx)
}

// TokenCache holds the current token of one client and refreshes it on
// demand. Each client owns its own cache.
type TokenCache struct {
	source TokenSource
	// Skew renews the token this long before it actually expires.
	skew time.Duration
	now  func() time.Time

	mu    sync.Mutex
	token Token
}

// NewTokenCache creates a cache that renews tokens skew before expiry.
func NewTokenCache(source TokenSource, skew time.Duration) *TokenCache {
	return &TokenCache{
		source: source,
		skew:   skew,
		now:    time.Now,
	}
}

// Get returns the cached token, refreshing it first if it has expired.
func (c *TokenCache) Get(ctx context.Context) (Token, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()

	if !tok.Expired(c.now().Add(c.skew)) {
		return tok, nil
	}
	return c.Refresh(ctx)
}

// Refresh mints a new token unconditionally and caches it.
func (c *TokenCache) Refresh(ctx context.Context) (Token, error) {
	tok, err := c.source.Refresh(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("failed to refresh token: %w", err)
	}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	return tok, nil
}

// Invalidate drops the cached token so the next Get refreshes it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = Token{}
	c.mu.Unlock()
}

// Peek returns the cached token without refreshing.
func (c *TokenCache) Peek() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}
