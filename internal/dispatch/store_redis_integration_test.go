//go:build integration

package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaintrail/internal/platform/config"
	"chaintrail/internal/platform/redis"
	id "chaintrail/pkg/domain"
	"chaintrail/pkg/testutil/containers"
)

func redisClient(t *testing.T, rc *containers.RedisContainer) *redis.Client {
	t.Helper()
	client, err := redis.New(config.RedisConfig{
		URL:          rc.URL,
		PoolSize:     5,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRoleStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	client := redisClient(t, rc)

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		store := NewRedisRoleStore(client, time.Hour)

		require.NoError(t, store.Set(ctx, caller, id.RoleRetailer))
		role, err := store.Get(ctx, caller)
		require.NoError(t, err)
		assert.Equal(t, id.RoleRetailer, role)
	})

	t.Run("missing selection reads as unknown", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		store := NewRedisRoleStore(client, time.Hour)

		role, err := store.Get(ctx, caller)
		require.NoError(t, err)
		assert.Equal(t, id.RoleUnknown, role)
	})

	t.Run("selection expires", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		store := NewRedisRoleStore(client, time.Second)

		require.NoError(t, store.Set(ctx, caller, id.RoleConsumer))
		time.Sleep(1500 * time.Millisecond)

		role, err := store.Get(ctx, caller)
		require.NoError(t, err)
		assert.Equal(t, id.RoleUnknown, role)
	})

	t.Run("corrupt value reads as unknown", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		store := NewRedisRoleStore(client, time.Hour)

		require.NoError(t, client.Set(ctx, roleKey(caller), "garbage", time.Hour).Err())
		role, err := store.Get(ctx, caller)
		require.NoError(t, err)
		assert.Equal(t, id.RoleUnknown, role)
	})
}
