package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/config"
	"github.com/poste-inventory/backend/internal/models"
)

func TestNew_DisabledWithoutURL(t *testing.T) {
	c, err := New(&config.Config{RedisURL: ""}, zap.NewNop())
	require.NoError(t, err)

	_, ok := c.(NoopCache)
	assert.True(t, ok)
}

func TestNoopCache_AlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := NoopCache{}

	require.NoError(t, c.SetCount(ctx, KeyPosteCount, 0, 3))
	_, _, ok := c.GetCount(ctx, KeyPosteCount)
	assert.False(t, ok)

	require.NoError(t, c.SetPostePage(ctx, 0, 1, 10, &PostePage{Total: 1}))
	_, _, ok = c.GetPostePage(ctx, 1, 10)
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "postes:page:3:2:10", pageKey(3, 2, 10))
	assert.Equal(t, "usuarios:count:4", countKey(KeyUserCount, 4))
	assert.Equal(t, "usuarios:gen", generationKey(KeyUserCount))
	assert.Equal(t, posteGenerationKey, generationKey(KeyPosteCount))
}

// setupRedis starts Redis in a container.
func setupRedis(t *testing.T) *RedisCache {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	c := newRedisCache(client, time.Minute, zap.NewNop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCache_Integration(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	_, gen, ok := c.GetCount(ctx, KeyUserCount)
	require.False(t, ok)
	require.NoError(t, c.SetCount(ctx, KeyUserCount, gen, 7))
	n, _, ok := c.GetCount(ctx, KeyUserCount)
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	require.NoError(t, c.InvalidateUsers(ctx))
	_, _, ok = c.GetCount(ctx, KeyUserCount)
	assert.False(t, ok)

	_, gen, ok = c.GetPostePage(ctx, 1, 10)
	require.False(t, ok)
	page := &PostePage{Postes: []models.Poste{{ID: "p1", NumeroIdentificacao: "12345-6"}}, Total: 1}
	require.NoError(t, c.SetPostePage(ctx, gen, 1, 10, page))
	require.NoError(t, c.SetCount(ctx, KeyPosteCount, gen, 1))

	got, _, ok := c.GetPostePage(ctx, 1, 10)
	require.True(t, ok)
	assert.Equal(t, "12345-6", got.Postes[0].NumeroIdentificacao)

	require.NoError(t, c.InvalidatePostes(ctx))

	_, _, ok = c.GetPostePage(ctx, 1, 10)
	assert.False(t, ok)
	_, _, ok = c.GetCount(ctx, KeyPosteCount)
	assert.False(t, ok)
}

func TestRedisCache_WriteRacingInvalidation(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	// A reader misses, a writer commits and invalidates, then the reader
	// stores what it loaded before the write.
	_, pageGen, ok := c.GetPostePage(ctx, 1, 10)
	require.False(t, ok)
	_, countGen, ok := c.GetCount(ctx, KeyPosteCount)
	require.False(t, ok)
	_, userGen, ok := c.GetCount(ctx, KeyUserCount)
	require.False(t, ok)

	require.NoError(t, c.InvalidatePostes(ctx))
	require.NoError(t, c.InvalidateUsers(ctx))

	require.NoError(t, c.SetPostePage(ctx, pageGen, 1, 10, &PostePage{Postes: []models.Poste{}, Total: 0}))
	require.NoError(t, c.SetCount(ctx, KeyPosteCount, countGen, 0))
	require.NoError(t, c.SetCount(ctx, KeyUserCount, userGen, 1))

	_, _, ok = c.GetPostePage(ctx, 1, 10)
	assert.False(t, ok, "stale page must not be served")
	_, _, ok = c.GetCount(ctx, KeyPosteCount)
	assert.False(t, ok, "stale pole count must not be served")
	_, _, ok = c.GetCount(ctx, KeyUserCount)
	assert.False(t, ok, "stale user count must not be served")
}

func TestRedisCache_SkipsUnknownGeneration(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.SetCount(ctx, KeyPosteCount, NoGeneration, 9))
	_, _, ok := c.GetCount(ctx, KeyPosteCount)
	assert.False(t, ok)
}
