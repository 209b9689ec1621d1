package cache

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(NewRedisStore(rdb), slog.New(slog.DiscardHandler)), mr
}

func TestCache_FillAndLookup(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Fill(ctx, BoardKey("b1"), map[string]any{"id": "b1", "name": "Sprint"})

	var got map[string]any
	if !c.Lookup(ctx, BoardKey("b1"), &got) {
		t.Fatal("expected cache hit")
	}
	if got["name"] != "Sprint" {
		t.Fatalf("cached name = %v, want Sprint", got["name"])
	}

	ttl := mr.TTL(BoardKey("b1"))
	if ttl != DefaultTTL {
		t.Fatalf("ttl = %v, want %v", ttl, DefaultTTL)
	}
}

func TestCache_MissAfterTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Fill(ctx, TasksKey("b1"), []string{"t1"})
	mr.FastForward(DefaultTTL + time.Second)

	var got []string
	if c.Lookup(ctx, TasksKey("b1"), &got) {
		t.Fatal("expected miss after TTL expiry")
	}
}

func TestCache_DropRemovesEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Fill(ctx, BoardKey("b1"), "x")
	c.Fill(ctx, BoardsKey("u1"), "y")
	c.Drop(ctx, BoardKey("b1"), BoardsKey("u1"))

	var got string
	if c.Lookup(ctx, BoardKey("b1"), &got) || c.Lookup(ctx, BoardsKey("u1"), &got) {
		t.Fatal("expected dropped keys to miss")
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}
func (brokenStore) SetWithTTL(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenStore) Delete(context.Context, ...string) error {
	return errors.New("connection refused")
}

func TestCache_BrokenStoreDegradesToMiss(t *testing.T) {
	c := New(brokenStore{}, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	var got string
	if c.Lookup(ctx, "k", &got) {
		t.Fatal("broken store must read as miss")
	}
	// Fill and Drop must not panic or surface errors.
	c.Fill(ctx, "k", "v")
	c.Drop(ctx, "k")
}
