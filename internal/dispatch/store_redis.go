package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"chaintrail/internal/platform/redis"
	id "chaintrail/pkg/domain"
	dErrors "chaintrail/pkg/domain-errors"
)

const roleKeyPrefix = "chaintrail:role:"

// RedisRoleStore shares role selections across gateway instances. Expiry is
// delegated to Redis key TTLs.
type RedisRoleStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRoleStore(client *redis.Client, ttl time.Duration) *RedisRoleStore {
	return &RedisRoleStore{client: client, ttl: ttl}
}

func roleKey(caller id.Address) string {
	return roleKeyPrefix + caller.String()
}

func (s *RedisRoleStore) Set(ctx context.Context, caller id.Address, role id.Role) error {
	if err := s.client.Set(ctx, roleKey(caller), role.String(), s.ttl).Err(); err != nil {
		return dErrors.Wrap(fmt.Errorf("set role selection: %w", err), dErrors.CodeInternal, "role store write failed")
	}
	return nil
}

func (s *RedisRoleStore) Get(ctx context.Context, caller id.Address) (id.Role, error) {
	value, err := s.client.Get(ctx, roleKey(caller)).Result()
	if errors.Is(err, goredis.Nil) {
		return id.RoleUnknown, nil
	}
	if err != nil {
		return id.RoleUnknown, dErrors.Wrap(fmt.Errorf("get role selection: %w", err), dErrors.CodeInternal, "role store read failed")
	}
	role, err := id.ParseRole(value)
	if err != nil {
		// A corrupt value behaves like no selection at all.
		return id.RoleUnknown, nil
	}
	return role, nil
}
