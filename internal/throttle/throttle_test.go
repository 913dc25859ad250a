package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

func TestMemoryAllow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10 * time.Second)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	key := Key("page", "sender")

	steps := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{1 * time.Second, false},
		{9999 * time.Millisecond, false},
		{10 * time.Second, true},
		{15 * time.Second, false},
		{25 * time.Second, true},
	}
	for _, s := range steps {
		got, err := m.Allow(ctx, key, t0.Add(s.offset))
		if err != nil {
			t.Fatal(err)
		}
		if got != s.want {
			t.Errorf("Allow at +%v = %v, want %v", s.offset, got, s.want)
		}
	}
}

func TestMemorySendersIndependent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10 * time.Second)
	now := time.Now()

	if ok, _ := m.Allow(ctx, Key("p", "a"), now); !ok {
		t.Fatal("first sender should pass")
	}
	if ok, _ := m.Allow(ctx, Key("p", "b"), now); !ok {
		t.Error("second sender should not be throttled by the first")
	}
	if ok, _ := m.Allow(ctx, Key("q", "a"), now); !ok {
		t.Error("same sender on another page should pass")
	}
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Second)
	now := time.Now()
	m.Allow(ctx, "a", now)
	m.Allow(ctx, "b", now.Add(900*time.Millisecond))

	if n := m.Sweep(now.Add(1500 * time.Millisecond)); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestMemoryConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Allow(ctx, "k", now); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 1 {
		t.Errorf("allowed = %d, want 1", allowed)
	}
}

type fakeKV struct {
	keys map[string]bool
	err  error
}

func (f *fakeKV) Create(_ context.Context, key string, _ []byte) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.keys[key] {
		return 0, jetstream.ErrKeyExists
	}
	f.keys[key] = true
	return uint64(len(f.keys)), nil
}

func TestKVAllow(t *testing.T) {
	ctx := context.Background()
	l := &KV{kv: &fakeKV{keys: map[string]bool{}}}

	if ok, err := l.Allow(ctx, "p.s", time.Now()); !ok || err != nil {
		t.Fatalf("first Allow = %v, %v", ok, err)
	}
	if ok, err := l.Allow(ctx, "p.s", time.Now()); ok || err != nil {
		t.Fatalf("second Allow = %v, %v", ok, err)
	}

	failing := &KV{kv: &fakeKV{keys: map[string]bool{}, err: errors.New("nats down")}}
	if _, err := failing.Allow(ctx, "p.s", time.Now()); err == nil {
		t.Error("expected error to propagate")
	}
}
