package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-guardian-notification-service/internal/storage/cache"
)

// --- Mocks ---

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	if args.Error(0) == nil {
		// Simulate a hit by copying the prepared value into dest.
		if tokens, ok := args.Get(1).([]string); ok {
			*dest.(*[]string) = tokens
		}
	}
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockRealStore struct {
	mock.Mock
}

func (m *MockRealStore) TokensForUsers(ctx context.Context, userIDs []string) (map[string][]string, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]string), args.Error(1)
}
func (m *MockRealStore) RegisterToken(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}
func (m *MockRealStore) UnregisterToken(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}

// --- Tests ---

func TestCachedStore_ReadAside(t *testing.T) {
	ctx := context.Background()

	t.Run("Cache hit skips the database", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

		mockCache.On("Get", ctx, "notify:tokens:U1", mock.Anything).Return(nil, []string{"tok-1"})

		tokens, err := store.TokensForUsers(ctx, []string{"U1"})

		require.NoError(t, err)
		assert.Equal(t, map[string][]string{"U1": {"tok-1"}}, tokens)
		mockDB.AssertNotCalled(t, "TokensForUsers", mock.Anything, mock.Anything)
	})

	t.Run("Misses are fetched in one query and backfilled", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

		// U1 is cached; U2 and U3 miss. U3 has no registered devices.
		mockCache.On("Get", ctx, "notify:tokens:U1", mock.Anything).Return(nil, []string{"tok-1"})
		mockCache.On("Get", ctx, "notify:tokens:U2", mock.Anything).Return(assert.AnError, nil)
		mockCache.On("Get", ctx, "notify:tokens:U3", mock.Anything).Return(assert.AnError, nil)

		mockDB.On("TokensForUsers", ctx, []string{"U2", "U3"}).
			Return(map[string][]string{"U2": {"tok-2a", "tok-2b"}}, nil)

		mockCache.On("Set", ctx, "notify:tokens:U2", []string{"tok-2a", "tok-2b"}, time.Hour).Return(nil)
		// The empty state is cached too.
		mockCache.On("Set", ctx, "notify:tokens:U3", []string{}, time.Hour).Return(nil)

		tokens, err := store.TokensForUsers(ctx, []string{"U1", "U2", "U3"})

		require.NoError(t, err)
		assert.Equal(t, map[string][]string{
			"U1": {"tok-1"},
			"U2": {"tok-2a", "tok-2b"},
		}, tokens)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Database failure propagates", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

		mockCache.On("Get", ctx, "notify:tokens:U1", mock.Anything).Return(assert.AnError, nil)
		mockDB.On("TokensForUsers", ctx, []string{"U1"}).Return(nil, assert.AnError)

		_, err := store.TokensForUsers(ctx, []string{"U1"})
		assert.Error(t, err)
	})
}

func TestCachedStore_ImmediateInvalidation(t *testing.T) {
	ctx := context.Background()
	mockCache := new(MockCache)
	mockDB := new(MockRealStore)
	store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

	t.Run("Register invalidates the user's entry", func(t *testing.T) {
		mockDB.On("RegisterToken", ctx, "U1", "tok-new").Return(nil)
		mockCache.On("Del", ctx, "notify:tokens:U1").Return(nil)

		require.NoError(t, store.RegisterToken(ctx, "U1", "tok-new"))
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Unregister invalidates even though the row is gone", func(t *testing.T) {
		mockDB.On("UnregisterToken", ctx, "U2", "tok-old").Return(nil)
		mockCache.On("Del", ctx, "notify:tokens:U2").Return(nil)

		require.NoError(t, store.UnregisterToken(ctx, "U2", "tok-old"))
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})
}
