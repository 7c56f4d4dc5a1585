package blobstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test")
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "chat_messages_mom", []byte(`[{"content":"hi"}]`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	value, ok, err := store.Get(ctx, "chat_messages_mom")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected key to exist")
	}
	if string(value) != `[{"content":"hi"}]` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestRedisStoreMissingKey(t *testing.T) {
	store := newTestRedisStore(t)

	_, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatal("expected missing key")
	}
}

func TestRedisStoreRemove(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "learned_phrases_mom", []byte(`{}`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Remove(ctx, "learned_phrases_mom"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	_, ok, err := store.Get(ctx, "learned_phrases_mom")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatal("expected key to be removed")
	}
}
