// Package cache shares push API access tokens between service instances.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// ErrCacheMiss is returned by CacheClient.Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// DefaultKey is the cache key used for the FCM access token.
const DefaultKey = "dispatch:fcm:access-token"

const (
	// A cached token is treated as expired this long before its real expiry.
	expirySkew = 2 * time.Minute
	// Redis round trips are bounded independently of the caller.
	cacheTimeout = 500 * time.Millisecond
)

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry"`
}

// CachedTokenSource is a read-aside decorator over an oauth2.TokenSource.
// Instances behind the same Redis reuse one access token instead of each
// minting their own. Concurrent refreshes are harmless: every written value is
// a valid token and the last writer wins.
type CachedTokenSource struct {
	source oauth2.TokenSource
	cache  CacheClient
	key    string
	logger *slog.Logger
	now    func() time.Time
}

func NewCachedTokenSource(source oauth2.TokenSource, cache CacheClient, key string, logger *slog.Logger) *CachedTokenSource {
	if key == "" {
		key = DefaultKey
	}
	return &CachedTokenSource{
		source: source,
		cache:  cache,
		key:    key,
		logger: logger.With("component", "CachedTokenSource"),
		now:    time.Now,
	}
}

// Token implements oauth2.TokenSource.
func (s *CachedTokenSource) Token() (*oauth2.Token, error) {
	// 1. Try Cache
	var cached cachedToken
	err := s.get(&cached)
	switch {
	case err == nil && cached.AccessToken != "" && s.now().Add(expirySkew).Before(cached.Expiry):
		return &oauth2.Token{
			AccessToken: cached.AccessToken,
			TokenType:   cached.TokenType,
			Expiry:      cached.Expiry,
		}, nil
	case err != nil && !errors.Is(err, ErrCacheMiss):
		// Redis is an optimisation; fall through to the real source.
		s.logger.Warn("Token cache read failed", "err", err)
	}

	// 2. Fallback to the real source
	tok, err := s.source.Token()
	if err != nil {
		return nil, fmt.Errorf("token source failed: %w", err)
	}

	// 3. Populate Cache (fire and forget)
	ttl := tok.Expiry.Sub(s.now()) - expirySkew
	if tok.Expiry.IsZero() || ttl <= 0 {
		return tok, nil
	}
	entry := cachedToken{AccessToken: tok.AccessToken, TokenType: tok.TokenType, Expiry: tok.Expiry}
	if err := s.set(entry, ttl); err != nil {
		s.logger.Warn("Token cache write failed", "err", err)
	}
	return tok, nil
}

func (s *CachedTokenSource) get(dest *cachedToken) error {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	return s.cache.Get(ctx, s.key, dest)
}

func (s *CachedTokenSource) set(entry cachedToken, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	return s.cache.Set(ctx, s.key, entry, ttl)
}
