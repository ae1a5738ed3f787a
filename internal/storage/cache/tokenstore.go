// Package cache adds a Redis read-aside layer to the token store so bulk
// dispatches don't hammer Postgres for the same guardians repeatedly.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-guardian-notification-service/pkg/notify"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or a specific error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedTokenStore is a Decorator that adds Read-Aside caching to any TokenStore.
type CachedTokenStore struct {
	realStore notify.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedTokenStore(realStore notify.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (Read-Aside) ---

// TokensForUsers serves each user from cache where possible and fetches the
// misses from the real store in one query. Users with zero tokens are cached
// as an empty list so absent registrations don't bypass the cache.
func (s *CachedTokenStore) TokensForUsers(ctx context.Context, userIDs []string) (map[string][]string, error) {
	tokens := make(map[string][]string, len(userIDs))

	var misses []string
	for _, userID := range userIDs {
		var cached []string
		if err := s.cache.Get(ctx, s.cacheKey(userID), &cached); err != nil {
			misses = append(misses, userID)
			continue
		}
		if len(cached) > 0 {
			tokens[userID] = cached
		}
	}
	if len(misses) == 0 {
		return tokens, nil
	}

	fresh, err := s.realStore.TokensForUsers(ctx, misses)
	if err != nil {
		return nil, err
	}

	for _, userID := range misses {
		list := fresh[userID]
		if list == nil {
			list = []string{}
		}
		// Caching is an optimization, not a transaction: if Redis is
		// down we just keep serving from the database.
		_ = s.cache.Set(ctx, s.cacheKey(userID), list, s.ttl)
		if len(list) > 0 {
			tokens[userID] = list
		}
	}
	return tokens, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedTokenStore) RegisterToken(ctx context.Context, userID, token string) error {
	if err := s.realStore.RegisterToken(ctx, userID, token); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// UnregisterToken must clear the cache even though the row is gone, so that
// "disable notifications" takes effect immediately.
func (s *CachedTokenStore) UnregisterToken(ctx context.Context, userID, token string) error {
	if err := s.realStore.UnregisterToken(ctx, userID, token); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// --- Helpers ---

func (s *CachedTokenStore) invalidate(ctx context.Context, userID string) error {
	return s.cache.Del(ctx, s.cacheKey(userID))
}

func (s *CachedTokenStore) cacheKey(userID string) string {
	return fmt.Sprintf("notify:tokens:%s", userID)
}
