package httpjson

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testRedisClient    *redis.Client
	testRedisContainer testcontainers.Container
	skipIntegration    bool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		testRedisContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections"),
			},
			Started: true,
		})
	}()

	if containerErr != nil {
		fmt.Printf("Docker not available, redis tests will be skipped: %v\n", containerErr)
		skipIntegration = true
	} else if err := connectRedis(ctx); err != nil {
		fmt.Printf("Redis not reachable, redis tests will be skipped: %v\n", err)
		skipIntegration = true
	}

	code := m.Run()

	if testRedisClient != nil {
		_ = testRedisClient.Close()
	}
	if testRedisContainer != nil {
		_ = testRedisContainer.Terminate(ctx)
	}
	os.Exit(code)
}

func connectRedis(ctx context.Context) error {
	host, err := testRedisContainer.Host(ctx)
	if err != nil {
		return err
	}
	port, err := testRedisContainer.MappedPort(ctx, "6379")
	if err != nil {
		return err
	}
	testRedisClient = redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	return testRedisClient.Ping(ctx).Err()
}

func getRedis(t *testing.T) *redis.Client {
	t.Helper()
	if skipIntegration {
		t.Skip("Docker not available, skipping redis test")
	}
	require.NoError(t, testRedisClient.FlushDB(context.Background()).Err())
	return testRedisClient
}

func TestRedisTokenCache(t *testing.T) {
	rdb := getRedis(t)
	ctx := context.Background()
	c := NewRedisTokenCache(rdb, "")

	_, ok, err := c.Get(ctx, "billing")
	require.NoError(t, err)
	require.False(t, ok)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, c.Set(ctx, "billing", Token{Value: "tok", ExpiresAt: exp}))
	tok, ok, err := c.Get(ctx, "billing")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok", tok.Value)
	require.True(t, exp.Equal(tok.ExpiresAt))

	ttl, err := rdb.TTL(ctx, "integrations:token:billing").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 59*time.Minute)

	require.NoError(t, c.Set(ctx, "stale", Token{Value: "old", ExpiresAt: time.Now().Add(-time.Minute)}))
	_, ok, err = c.Get(ctx, "stale")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Delete(ctx, "billing"))
	_, ok, err = c.Get(ctx, "billing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCachingTokenSourceSharesRedisCache(t *testing.T) {
	rdb := getRedis(t)
	fetches := 0
	fetch := func(context.Context) (Token, error) {
		fetches++
		return Token{Value: "shared", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	a := NewCachingTokenSource("crm", fetch, NewRedisTokenCache(rdb, "test:"), time.Minute)
	b := NewCachingTokenSource("crm", fetch, NewRedisTokenCache(rdb, "test:"), time.Minute)

	v, err := a.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "shared", v)
	v, err = b.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "shared", v)
	require.Equal(t, 1, fetches)
}
