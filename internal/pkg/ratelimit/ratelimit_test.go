package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLimiter(t *testing.T, rate, burst float64) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, testLogger(), "test:ratelimit", rate, burst)
}

func TestAcquireWithinBurst(t *testing.T) {
	l := newTestLimiter(t, 1, 3)
	ctx := context.Background()

	// 桶满时连续拿 3 个令牌不应阻塞
	for i := 0; i < 3; i++ {
		start := time.Now()
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Fatalf("Acquire %d blocked within burst", i)
		}
	}
}

func TestAcquireAbortsOnContextCancel(t *testing.T) {
	l := newTestLimiter(t, 0.1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	// 桶空，补充速率 0.1/s，等待必然超过 ctx 期限
	if err := l.Acquire(ctx); !errors.Is(err, ErrWaitAborted) {
		t.Fatalf("err = %v, want ErrWaitAborted", err)
	}
}

func TestAcquireDisabledLimiter(t *testing.T) {
	l := newTestLimiter(t, 0, 0)
	for i := 0; i < 100; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("disabled limiter must never block: %v", err)
		}
	}
}

func TestAcquireNilLimiter(t *testing.T) {
	var l *Limiter
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
}
