package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/cache"
)

// Lock tests need a real server: REDIS_URL=redis://localhost:6379/15 go test ./...
func redisForTest(t *testing.T) string {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	return url
}

func TestLock_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	client, err := cache.Connect(ctx, redisForTest(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	key := "test-lock:" + t.Name()
	defer client.Del(ctx, key)

	a := cache.NewLock(client, key, time.Second)
	b := cache.NewLock(client, key, time.Second)

	if ok, err := a.TryAcquire(ctx); err != nil || !ok {
		t.Fatalf("expected a to acquire, got %v %v", ok, err)
	}
	if ok, _ := b.TryAcquire(ctx); ok {
		t.Fatal("expected b to be refused while a holds the lock")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := b.TryAcquire(ctx); !ok {
		t.Fatal("expected b to acquire after release")
	}
}

func TestLock_ExpiredHolderKeepsHandsOff(t *testing.T) {
	ctx := context.Background()
	client, err := cache.Connect(ctx, redisForTest(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	key := "test-lock:" + t.Name()
	defer client.Del(ctx, key)

	slow := cache.NewLock(client, key, 50*time.Millisecond)
	next := cache.NewLock(client, key, time.Second)

	if ok, _ := slow.TryAcquire(ctx); !ok {
		t.Fatal("expected first acquire")
	}
	time.Sleep(100 * time.Millisecond)
	if ok, _ := next.TryAcquire(ctx); !ok {
		t.Fatal("expected acquire after expiry")
	}

	// the late release must not free the lock now held by next
	if err := slow.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	third := cache.NewLock(client, key, time.Second)
	if ok, _ := third.TryAcquire(ctx); ok {
		t.Fatal("expected the lock to still belong to next")
	}
}
