package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewCache(rdb, ttl), mr
}

func TestPutGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	vec := []float64{0.25, -0.5, 1}
	if err := c.Put(ctx, "https://img.example/a.jpg", vec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := c.Get(ctx, "https://img.example/a.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("cache miss after Put")
	}
	if len(got) != len(vec) {
		t.Fatalf("got %d elements, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	got, ok, err := c.Get(context.Background(), "https://img.example/missing.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || got != nil {
		t.Fatalf("expected miss, got %v", got)
	}
}

func TestEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := c.Put(ctx, "https://img.example/a.jpg", []float64{1}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "https://img.example/a.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("entry survived past TTL")
	}
}

func TestKeysAreIsolatedByURL(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	if err := c.Put(ctx, "https://img.example/a.jpg", []float64{1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(ctx, "https://img.example/b.jpg", []float64{2}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	a, _, _ := c.Get(ctx, "https://img.example/a.jpg")
	b, _, _ := c.Get(ctx, "https://img.example/b.jpg")
	if a[0] != 1 || b[0] != 2 {
		t.Fatalf("cache entries collided: a=%v b=%v", a, b)
	}
}

func TestPutSkipsEmptyInput(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	if err := c.Put(ctx, "", []float64{1}); err != nil {
		t.Fatalf("Put empty url: %v", err)
	}
	if err := c.Put(ctx, "https://img.example/a.jpg", nil); err != nil {
		t.Fatalf("Put empty vec: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("empty input wrote keys: %v", mr.Keys())
	}
}
