package roles

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldbase/fieldbase/internal/authz"
)

const (
	cacheVersionKey = "authz:roles:version"
	cacheKeyPrefix  = "authz:roles:hierarchy:"
	// BumpChannel carries version bumps between nodes.
	BumpChannel = "roles.bump"
)

// Cache stores the resolved role hierarchy in Redis. Entries are versioned
// so a single Bump invalidates every node at once; the TTL passed to Set is
// the upper bound on staleness.
type Cache struct {
	client *redis.Client
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Get implements authz.HierarchyCache.
func (c *Cache) Get(ctx context.Context) (authz.Hierarchy, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	key, err := c.key(ctx)
	if err != nil {
		return nil, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var h authz.Hierarchy
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, false, err
	}
	return h, true, nil
}

// Set implements authz.HierarchyCache.
func (c *Cache) Set(ctx context.Context, h authz.Hierarchy, ttl time.Duration) error {
	if c == nil || c.client == nil || ttl <= 0 {
		return nil
	}
	key, err := c.key(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// Bump invalidates the cached hierarchy by incrementing the version and
// publishing it to other nodes.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if _, err := c.Version(ctx); err != nil {
		return 0, err
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	return ver, c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other nodes until
// ctx is done.
func (c *Cache) ListenForInvalidation(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					current, err := c.client.Get(ctx, cacheVersionKey).Int64()
					if err == nil && current >= ver {
						continue
					}
					_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
					continue
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
}

func (c *Cache) key(ctx context.Context) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return cacheKeyPrefix + strconv.FormatInt(ver, 10), nil
}

var _ authz.HierarchyCache = (*Cache)(nil)
