package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type blockingProcessor struct {
	release chan struct{}
	started chan struct{}
	done    atomic.Int32
}

func (b *blockingProcessor) Process(ctx context.Context, _ Event) {
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	b.done.Add(1)
}

func TestPoolBackpressure(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{}), started: make(chan struct{}, 10)}
	pool := NewPool(proc, 1, 1, nil)

	if err := pool.Submit(Event{}); err != nil {
		t.Fatal(err)
	}
	<-proc.started

	if err := pool.Submit(Event{}); err != nil {
		t.Fatalf("queue slot should be free: %v", err)
	}
	if err := pool.Submit(Event{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(proc.release)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if proc.done.Load() != 2 {
		t.Errorf("processed = %d, want 2", proc.done.Load())
	}
	if err := pool.Submit(Event{}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after shutdown = %v", err)
	}
}

func TestPoolShutdownTimeoutCancelsWork(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{}), started: make(chan struct{}, 10)}
	pool := NewPool(proc, 2, 4, nil)

	pool.Submit(Event{})
	<-proc.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown = %v", err)
	}
	if proc.done.Load() != 1 {
		t.Errorf("in-flight event not cancelled")
	}
}

type countingProcessor struct {
	mu sync.Mutex
	n  int
}

func (c *countingProcessor) Process(context.Context, Event) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func TestPoolDrainsQueue(t *testing.T) {
	proc := &countingProcessor{}
	pool := NewPool(proc, 4, 100, nil)
	for i := 0; i < 50; i++ {
		if err := pool.Submit(Event{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if proc.n != 50 {
		t.Errorf("processed %d, want 50", proc.n)
	}
}
