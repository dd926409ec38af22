package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/DE-IBH/b3lb/internal/logging"
)

func newTestCache(t *testing.T) (*MeetingListCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewMeetingListCache(client, "", 0, logging.NewLogger()), mr
}

func TestMeetingListCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	doc := "<response><returncode>SUCCESS</returncode></response>"
	if err := cache.Set(ctx, "node-1", doc); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found := cache.Get(ctx, "node-1")
	if !found || got != doc {
		t.Fatalf("Get = (%q, %v), want cached document", got, found)
	}

	if _, found := cache.Get(ctx, "node-2"); found {
		t.Fatalf("unknown node must be a miss")
	}
}

func TestMeetingListCacheTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "node-1", "doc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(DefaultTTL + time.Second)
	if _, found := cache.Get(ctx, "node-1"); found {
		t.Fatalf("entry must expire after the TTL")
	}
}

func TestMeetingListCacheDelete(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "node-1", "doc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	cache.Delete(ctx, "node-1")
	if _, found := cache.Get(ctx, "node-1"); found {
		t.Fatalf("deleted entry must be a miss")
	}
}

func TestMeetingListCacheKeyPattern(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewMeetingListCache(client, "custom#%s", time.Minute, logging.NewLogger())

	if err := cache.Set(context.Background(), "node-1", "doc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("custom#node-1") {
		t.Fatalf("custom key pattern not applied; keys: %v", mr.Keys())
	}
}
