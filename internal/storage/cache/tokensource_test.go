package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tinywideclouds/go-dispatch-service/internal/storage/cache"
)

// --- Mocks ---
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest any) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Token() (*oauth2.Token, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const key = "dispatch:fcm:access-token"

func roundTrip(src, dest any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func TestCachedTokenSource_Hit(t *testing.T) {
	mockCache := new(MockCache)
	mockSource := new(MockSource)
	src := cache.NewCachedTokenSource(mockSource, mockCache, "", newTestLogger())

	expiry := time.Now().Add(30 * time.Minute)
	mockCache.On("Get", mock.Anything, key, mock.Anything).Run(func(args mock.Arguments) {
		// Simulate the JSON round trip of RedisClient by writing through the pointer.
		dest := args.Get(2)
		raw := map[string]any{"access_token": "shared", "token_type": "Bearer", "expiry": expiry}
		require.NoError(t, roundTrip(raw, dest))
	}).Return(nil).Once()

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "shared", tok.AccessToken)
	mockSource.AssertNotCalled(t, "Token")
}

func TestCachedTokenSource_MissPopulates(t *testing.T) {
	mockCache := new(MockCache)
	mockSource := new(MockSource)
	src := cache.NewCachedTokenSource(mockSource, mockCache, "", newTestLogger())

	fresh := &oauth2.Token{AccessToken: "fresh", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	mockCache.On("Get", mock.Anything, key, mock.Anything).Return(cache.ErrCacheMiss).Once()
	mockSource.On("Token").Return(fresh, nil).Once()
	mockCache.On("Set", mock.Anything, key, mock.Anything, mock.MatchedBy(func(ttl time.Duration) bool {
		// Expiry minus the skew, give or take test latency.
		return ttl > 55*time.Minute && ttl <= 58*time.Minute
	})).Return(nil).Once()

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	mockCache.AssertExpectations(t)
	mockSource.AssertExpectations(t)
}

func TestCachedTokenSource_StaleEntryRefreshes(t *testing.T) {
	mockCache := new(MockCache)
	mockSource := new(MockSource)
	src := cache.NewCachedTokenSource(mockSource, mockCache, "custom", newTestLogger())

	mockCache.On("Get", mock.Anything, "custom", mock.Anything).Run(func(args mock.Arguments) {
		raw := map[string]any{"access_token": "old", "expiry": time.Now().Add(30 * time.Second)}
		require.NoError(t, roundTrip(raw, args.Get(2)))
	}).Return(nil).Once()
	mockSource.On("Token").Return(&oauth2.Token{AccessToken: "new", Expiry: time.Now().Add(time.Hour)}, nil).Once()
	mockCache.On("Set", mock.Anything, "custom", mock.Anything, mock.Anything).Return(nil).Once()

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
}

func TestCachedTokenSource_RedisDown(t *testing.T) {
	mockCache := new(MockCache)
	mockSource := new(MockSource)
	src := cache.NewCachedTokenSource(mockSource, mockCache, "", newTestLogger())

	mockCache.On("Get", mock.Anything, key, mock.Anything).Return(errors.New("connection refused")).Once()
	mockSource.On("Token").Return(&oauth2.Token{AccessToken: "direct", Expiry: time.Now().Add(time.Hour)}, nil).Once()
	mockCache.On("Set", mock.Anything, key, mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	tok, err := src.Token()
	require.NoError(t, err, "cache failures must not block token acquisition")
	assert.Equal(t, "direct", tok.AccessToken)
}

func TestCachedTokenSource_SourceFailure(t *testing.T) {
	mockCache := new(MockCache)
	mockSource := new(MockSource)
	src := cache.NewCachedTokenSource(mockSource, mockCache, "", newTestLogger())

	mockCache.On("Get", mock.Anything, key, mock.Anything).Return(cache.ErrCacheMiss).Once()
	mockSource.On("Token").Return(nil, errors.New("invalid_grant")).Once()

	_, err := src.Token()
	require.Error(t, err)
	mockCache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
