package quiz

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMemoryLimiter_ResetsDaily(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(1)
	l.now = func() time.Time { return now }
	ctx := t.Context()

	if ok, _ := l.Allow(ctx, "s"); !ok {
		t.Fatal("first submission should be allowed")
	}
	if ok, _ := l.Allow(ctx, "s"); ok {
		t.Fatal("second submission on the same day should be refused")
	}

	now = now.Add(2 * time.Hour)
	if ok, _ := l.Allow(ctx, "s"); !ok {
		t.Error("limit should reset on the next UTC day")
	}
}

func TestMemoryLimiter_Disabled(t *testing.T) {
	l := NewMemoryLimiter(0)
	for range 5 {
		if ok, _ := l.Allow(t.Context(), "s"); !ok {
			t.Fatal("limit 0 should allow everything")
		}
	}
}

func TestRedisLimiter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := t.Context()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	addr, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, 2)
	for i := range 2 {
		ok, err := l.Allow(ctx, "s")
		require.NoError(t, err)
		require.True(t, ok, "submission %d should be allowed", i+1)
	}
	ok, err := l.Allow(ctx, "s")
	require.NoError(t, err)
	require.False(t, ok)

	ttl, err := client.TTL(ctx, "medq:quiz:"+dayKey("s", l.now())).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 24*time.Hour)
}
