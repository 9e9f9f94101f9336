package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "tm:test", ttl), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	ctx := context.Background()

	if loaded, err := store.Load(ctx); err != nil || loaded != nil {
		t.Fatalf("empty store: session=%+v err=%v", loaded, err)
	}

	if err := store.Save(ctx, testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil || loaded.AccessToken != "access-1" || string(loaded.User) != `{"id":7,"username":"alice"}` {
		t.Fatalf("loaded = %+v", loaded)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if loaded, _ = store.Load(ctx); loaded != nil {
		t.Fatalf("session survived clear")
	}
}

func TestRedisStorePartialTripleClearedOnLoad(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	ctx := context.Background()

	if err := store.Save(ctx, testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Simulate another process wiping one entry.
	mr.Del("tm:test:refresh")

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("partial triple produced a session")
	}
	// The surviving entries were cleaned up too.
	if mr.Exists("tm:test:access") || mr.Exists("tm:test:user") {
		t.Fatalf("partial triple left stale entries")
	}
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("session outlived its ttl")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	mr.Close()

	if _, err := store.Load(context.Background()); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := store.Save(context.Background(), testSession()); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from save, got %v", err)
	}
}
