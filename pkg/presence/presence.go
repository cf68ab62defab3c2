//go:generate go run go.uber.org/mock/mockgen -source=presence.go -destination=../mocks/mock_presence.go -package=mocks
package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Tracker records which users are present in a community.
type Tracker interface {
	Add(ctx context.Context, community, userID string) error
	Remove(ctx context.Context, community, userID string) error
	Members(ctx context.Context, community string) ([]string, error)
}

// RedisTracker keeps one set per community under "community:{id}:users".
type RedisTracker struct {
	redis *redis.Client
}

func NewRedisTracker(client *redis.Client) *RedisTracker {
	return &RedisTracker{redis: client}
}

func key(community string) string {
	return "community:" + community + ":users"
}

func (t *RedisTracker) Add(ctx context.Context, community, userID string) error {
	if err := t.redis.SAdd(ctx, key(community), userID).Err(); err != nil {
		return fmt.Errorf("set presence for %s in %s: %w", userID, community, err)
	}
	return nil
}

func (t *RedisTracker) Remove(ctx context.Context, community, userID string) error {
	if err := t.redis.SRem(ctx, key(community), userID).Err(); err != nil {
		return fmt.Errorf("delete presence for %s in %s: %w", userID, community, err)
	}
	return nil
}

func (t *RedisTracker) Members(ctx context.Context, community string) ([]string, error) {
	users, err := t.redis.SMembers(ctx, key(community)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch presence for %s: %w", community, err)
	}
	return users, nil
}

// Nop is used when no presence backend is configured.
type Nop struct{}

func (Nop) Add(context.Context, string, string) error         { return nil }
func (Nop) Remove(context.Context, string, string) error      { return nil }
func (Nop) Members(context.Context, string) ([]string, error) { return []string{}, nil }
