//go:build integration

package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLocker_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("exclusive across lockers", func(t *testing.T) {
		a := NewRedisLocker(client, "gc:exclusive", time.Second, nil)
		b := NewRedisLocker(client, "gc:exclusive", time.Second, nil)

		release, ok, err := a.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = b.TryLock(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, release(ctx))

		release, ok, err = b.TryLock(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, release(ctx))
	})

	t.Run("lease is renewed while held", func(t *testing.T) {
		l := NewRedisLocker(client, "gc:renew", 400*time.Millisecond, nil)
		release, ok, err := l.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(time.Second)
		exists, err := client.Exists(ctx, "gc:renew").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)

		require.NoError(t, release(ctx))
		exists, err = client.Exists(ctx, "gc:renew").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), exists)
	})

	t.Run("release after takeover reports not held", func(t *testing.T) {
		l := NewRedisLocker(client, "gc:takeover", time.Minute, nil)
		release, ok, err := l.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, client.Set(ctx, "gc:takeover", "someone-else", time.Minute).Err())
		assert.ErrorIs(t, release(ctx), ErrNotHeld)

		val, err := client.Get(ctx, "gc:takeover").Result()
		require.NoError(t, err)
		assert.Equal(t, "someone-else", val)
	})
}
