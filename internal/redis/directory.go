package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	displayNameKeyFormat = "profile:displayname:%s"
	displayNameTTL       = 24 * time.Hour
)

// NameCache resolves registered-user display names from redis. Profile
// storage lives in another service; that service (or anything else that
// knows a user's name) warms the cache with SetDisplayName, and a miss
// simply yields an empty name.
type NameCache struct {
	client *goredis.Client
}

func NewNameCache(client *goredis.Client) *NameCache {
	return &NameCache{client: client}
}

// DisplayName returns the cached name for a user, or empty on a miss.
func (c *NameCache) DisplayName(ctx context.Context, userID string) (string, error) {
	key := fmt.Sprintf(displayNameKeyFormat, userID)
	val, err := c.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetDisplayName caches a user's display name.
func (c *NameCache) SetDisplayName(ctx context.Context, userID, name string) error {
	key := fmt.Sprintf(displayNameKeyFormat, userID)
	return c.client.Set(ctx, key, name, displayNameTTL).Err()
}
