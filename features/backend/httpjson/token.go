package httpjson

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoToken is returned by token sources that have no credential configured.
var ErrNoToken = errors.New("httpjson: no credential configured")

type (
	// TokenSource supplies the bearer token sent with each request.
	TokenSource interface {
		Token(ctx context.Context) (string, error)
	}

	// Token is a credential with an optional expiry.
	Token struct {
		Value     string    `json:"value"`
		ExpiresAt time.Time `json:"expires_at,omitempty"`
	}

	// TokenFetcher obtains a fresh token, for example through an OAuth
	// client-credentials exchange.
	TokenFetcher func(ctx context.Context) (Token, error)

	// TokenCache stores tokens by key. Get reports false when the key is
	// absent or expired.
	TokenCache interface {
		Get(ctx context.Context, key string) (Token, bool, error)
		Set(ctx context.Context, key string, tok Token) error
		Delete(ctx context.Context, key string) error
	}

	// StaticToken is a TokenSource returning a fixed token. The empty token
	// reports ErrNoToken.
	StaticToken string

	// CachingTokenSource fetches tokens on demand and keeps them in a cache
	// until shortly before they expire. It is private to one backend.
	CachingTokenSource struct {
		key   string
		fetch TokenFetcher
		cache TokenCache
		skew  time.Duration
		now   func() time.Time

		mu sync.Mutex
	}

	// MemoryTokenCache is an in-process TokenCache.
	MemoryTokenCache struct {
		mu     sync.RWMutex
		tokens map[string]Token
		now    func() time.Time
	}
)

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// NewCachingTokenSource returns a token source caching fetched tokens under
// key. Tokens are refreshed skew before they expire.
func NewCachingTokenSource(key string, fetch TokenFetcher, cache TokenCache, skew time.Duration) *CachingTokenSource {
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	return &CachingTokenSource{key: key, fetch: fetch, cache: cache, skew: skew, now: time.Now}
}

// Token returns the cached token or fetches a new one.
func (s *CachingTokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(ctx); ok {
		return tok.Value, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok, ok := s.cached(ctx); ok {
		return tok.Value, nil
	}
	if s.fetch == nil {
		return "", ErrNoToken
	}
	tok, err := s.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("httpjson: fetch token: %w", err)
	}
	if tok.Value == "" {
		return "", ErrNoToken
	}
	// A cache write failure only costs an extra fetch later.
	_ = s.cache.Set(ctx, s.key, tok)
	return tok.Value, nil
}

// Invalidate drops the cached token, for example after the provider rejected
// it.
func (s *CachingTokenSource) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx, s.key)
}

func (s *CachingTokenSource) cached(ctx context.Context) (Token, bool) {
	tok, ok, err := s.cache.Get(ctx, s.key)
	if err != nil || !ok {
		return Token{}, false
	}
	if !tok.ExpiresAt.IsZero() && !s.now().Add(s.skew).Before(tok.ExpiresAt) {
		return Token{}, false
	}
	return tok, true
}

// NewMemoryTokenCache returns an empty in-process cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[string]Token), now: time.Now}
}

// Get implements TokenCache.
func (c *MemoryTokenCache) Get(_ context.Context, key string) (Token, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.tokens[key]
	if !ok {
		return Token{}, false, nil
	}
	if !tok.ExpiresAt.IsZero() && !c.now().Before(tok.ExpiresAt) {
		return Token{}, false, nil
	}
	return tok, true, nil
}

// Set implements TokenCache.
func (c *MemoryTokenCache) Set(_ context.Context, key string, tok Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = tok
	return nil
}

// Delete implements TokenCache.
func (c *MemoryTokenCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, key)
	return nil
}
