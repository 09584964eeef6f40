package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolProcessesJobs(t *testing.T) {
	p := NewPool(testLogger(), 2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var done sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 5; i++ {
		done.Add(1)
		ok := p.Enqueue(func(context.Context) error {
			defer done.Done()
			count.Add(1)
			return nil
		})
		if !ok {
			t.Fatalf("Enqueue %d rejected", i)
		}
	}
	done.Wait()

	if count.Load() != 5 {
		t.Fatalf("processed %d jobs, want 5", count.Load())
	}
	if err := p.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	stats := p.Stats()
	if stats.Enqueued != 5 || stats.Processed != 5 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPoolDropsWhenFull(t *testing.T) {
	p := NewPool(testLogger(), 1, 1)
	// 未启动 worker：容量 1，第二个任务必须被丢弃

	if !p.Enqueue(func(context.Context) error { return nil }) {
		t.Fatal("first Enqueue rejected")
	}
	if p.Enqueue(func(context.Context) error { return nil }) {
		t.Fatal("second Enqueue accepted on full queue")
	}
	if p.Stats().Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", p.Stats().Dropped)
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	p := NewPool(testLogger(), 1, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var done sync.WaitGroup
	done.Add(2)
	p.Enqueue(func(context.Context) error {
		defer done.Done()
		panic("boom")
	})
	// panic 之后 worker 仍然存活
	p.Enqueue(func(context.Context) error {
		defer done.Done()
		return nil
	})
	done.Wait()

	// panic 计数异步更新，等 Shutdown 收尾后再断言
	if err := p.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if p.Stats().Panics != 1 {
		t.Fatalf("Panics = %d, want 1", p.Stats().Panics)
	}
}

func TestPoolErrorHandler(t *testing.T) {
	p := NewPool(testLogger(), 1, 10)
	boom := errors.New("job failed")

	var handled atomic.Int32
	var done sync.WaitGroup
	p.SetErrorHandler(func(err error, _ Job) {
		if errors.Is(err, boom) {
			handled.Add(1)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	done.Add(1)
	p.Enqueue(func(context.Context) error {
		defer done.Done()
		return boom
	})
	done.Wait()

	if err := p.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if handled.Load() != 1 {
		t.Fatalf("error handler called %d times, want 1", handled.Load())
	}
	if p.Stats().Failed != 1 {
		t.Fatalf("Failed = %d, want 1", p.Stats().Failed)
	}
}

func TestEnqueueBlockingHonorsContext(t *testing.T) {
	p := NewPool(testLogger(), 1, 1)
	// 未启动 worker，队列填满后 EnqueueBlocking 只能等 ctx

	if err := p.EnqueueBlocking(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first EnqueueBlocking: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.EnqueueBlocking(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestShutdownDrainsPendingJobs(t *testing.T) {
	p := NewPool(testLogger(), 1, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		p.Enqueue(func(context.Context) error {
			count.Add(1)
			return nil
		})
	}

	if err := p.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if count.Load() != 5 {
		t.Fatalf("drained %d jobs, want 5", count.Load())
	}

	if p.Enqueue(func(context.Context) error { return nil }) {
		t.Fatal("Enqueue accepted after Shutdown")
	}
}
