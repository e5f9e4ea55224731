package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// ProfileTTL bounds how stale a cached profile read can be. Role checks never
// go through the cache.
const ProfileTTL = 5 * time.Minute

func ProfileKey(userID string) string { return "profile:" + userID }
