package redis

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/formpulse/formpulse/internal/resilience"
)

var (
	testRedisURL string
	redContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	flag.Parse()

	// Skip container setup if running in short mode
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redContainer, err = redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()

	if err := redContainer.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
	}
	os.Exit(code)
}

func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, testRedisURL)
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}

	// Flush all keys before each test
	if err := client.FlushAll(ctx).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func testTTLs() TTLs {
	return TTLs{
		Session:   30 * time.Minute,
		Survey:    time.Hour,
		Analytics: 5 * time.Minute,
		RateLimit: time.Minute,
		Temp:      10 * time.Minute,
	}
}

func newCacheGuard() *resilience.Guard {
	return resilience.New(resilience.Config{
		Name:             "cache-test",
		Timeout:          time.Second,
		MaxAttempts:      1,
		FailureThreshold: 1000,
		Cooldown:         time.Minute,
	})
}

// setupTestCache builds a cache on top of the shared test container.
func setupTestCache(t *testing.T) (*Cache, *goredis.Client) {
	t.Helper()
	client := setupTestClient(t)
	return NewCache(client, newCacheGuard(), testTTLs()), client
}

// newUnreachableCache points at a port nothing listens on. Used to exercise
// the degradation contract without a container, so it works in short mode too.
func newUnreachableCache() *Cache {
	client := goredis.NewClient(&goredis.Options{
		Addr:            "127.0.0.1:1",
		DialTimeout:     50 * time.Millisecond,
		ReadTimeout:     50 * time.Millisecond,
		WriteTimeout:    50 * time.Millisecond,
		MaxRetries:      -1,
		PoolSize:        1,
		MinIdleConns:    0,
		ConnMaxIdleTime: time.Second,
	})
	guard := resilience.New(resilience.Config{
		Name:             "cache-unreachable",
		Timeout:          200 * time.Millisecond,
		MaxAttempts:      1,
		FailureThreshold: 1000,
		Cooldown:         time.Minute,
	})
	return NewCache(client, guard, testTTLs())
}
