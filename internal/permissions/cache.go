package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps resolved permission sets in Redis behind version counters.
// Invalidation bumps the version for the touched role or user, so stale
// entries become unreachable immediately and expire by TTL. A nil cache is
// a no-op passthrough.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func roleVersionKey(role string) string {
	return "perm:role:" + role + ":ver"
}

func userVersionKey(userID string) string {
	return "perm:user:" + userID + ":ver"
}

func (c *Cache) version(ctx context.Context, key string) (int64, error) {
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		// INCR on a missing counter produces 1, so a missing counter must
		// read as 0 or the first invalidation would leave old entries
		// reachable.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) resolvedKey(ctx context.Context, role, userID string, projectID *string) (string, error) {
	roleVer, err := c.version(ctx, roleVersionKey(role))
	if err != nil {
		return "", err
	}
	userVer, err := c.version(ctx, userVersionKey(userID))
	if err != nil {
		return "", err
	}
	scope := "-"
	if projectID != nil {
		scope = *projectID
	}
	return fmt.Sprintf("perm:resolved:%s:%d:%s:%d:%s", role, roleVer, userID, userVer, scope), nil
}

// GetResolved loads a cached resolution; ok is false on miss.
func (c *Cache) GetResolved(ctx context.Context, role, userID string, projectID *string) (ResolvedPermissions, bool, error) {
	if c == nil || c.client == nil {
		return ResolvedPermissions{}, false, nil
	}
	key, err := c.resolvedKey(ctx, role, userID, projectID)
	if err != nil {
		return ResolvedPermissions{}, false, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ResolvedPermissions{}, false, nil
	}
	if err != nil {
		return ResolvedPermissions{}, false, err
	}
	var resolved ResolvedPermissions
	if err := json.Unmarshal(raw, &resolved); err != nil {
		return ResolvedPermissions{}, false, nil
	}
	return resolved, true, nil
}

// SetResolved stores a resolution under the current versions.
func (c *Cache) SetResolved(ctx context.Context, role, userID string, projectID *string, resolved ResolvedPermissions) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.resolvedKey(ctx, role, userID, projectID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(resolved)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// InvalidateRole makes every cached resolution for the role unreachable.
// Called by the mutator before a role mutation returns.
func (c *Cache) InvalidateRole(ctx context.Context, role string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, roleVersionKey(role)).Err()
}

// InvalidateUser makes every cached resolution for the user unreachable.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, userVersionKey(userID)).Err()
}
