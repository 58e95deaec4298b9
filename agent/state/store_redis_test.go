package state

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisStore(RedisConfig{URL: "http://not-redis"}, 10); err == nil {
		t.Fatal("expected an error for a non-redis url")
	}
	if _, err := NewRedisStore(RedisConfig{URL: "redis://localhost:6379/0", TTL: -time.Second}, 10); err == nil {
		t.Fatal("expected an error for a negative ttl")
	}
}

func TestRedisStoreRejectsEmptyIDsWithoutNetwork(t *testing.T) {
	t.Parallel()

	store, err := NewRedisStore(RedisConfig{URL: "redis://127.0.0.1:1/0"}, 10)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Load(context.Background(), "", "s1"); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("Load() error = %v, want ErrInvalidActor", err)
	}
	if err := store.Delete(context.Background(), "u1", " "); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("Delete() error = %v, want ErrInvalidSession", err)
	}
}

// Runs against a real server when REDIS_TEST_URL is set, e.g. redis://localhost:6379/15.
func TestRedisStoreRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	prefix := "test:" + newID() + ":"
	store := NewRedisStoreWithClient(client, prefix, time.Minute, 2)
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	if _, err := store.Load(ctx, "u1", "s1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() on empty store error = %v, want ErrStateNotFound", err)
	}

	now := time.Now()
	st := NewConversationState("u1", "s1", now)
	for _, text := range []string{"one", "two", "three"} {
		msg := UserMessage(text, now)
		if err := st.Append(msg); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		st.MarkPersisted(msg.ID)
	}
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	msgs := got.NonSystem()
	if len(msgs) != 2 || msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Fatalf("Load() kept %+v, want the last two messages", msgs)
	}
	if !got.IsPersisted(msgs[1].ID) {
		t.Fatal("persisted marks must survive the round trip")
	}

	if err := store.Delete(ctx, "u1", "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "u1", "s1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() after Delete error = %v, want ErrStateNotFound", err)
	}
}
