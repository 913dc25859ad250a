package bot

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/speednet-khulna/messenger-bot/pkg/logger"
	"github.com/speednet-khulna/messenger-bot/pkg/metrics"
)

var (
	// ErrQueueFull is returned by Submit when every worker is busy and the
	// queue has no room.
	ErrQueueFull = errors.New("worker queue is full")

	// ErrPoolClosed is returned by Submit after Shutdown.
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// Processor handles one event.
type Processor interface {
	Process(ctx context.Context, ev Event)
}

// Pool runs events on a fixed number of workers fed by a bounded queue.
type Pool struct {
	proc   Processor
	jobs   chan Event
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines reading from a queue of queueSize.
func NewPool(proc Processor, workers, queueSize int, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		proc:   proc,
		jobs:   make(chan Event, queueSize),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Submit queues ev without blocking.
func (p *Pool) Submit(ev Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- ev:
		metrics.WorkerQueueDepth.Inc()
		return nil
	default:
		metrics.WorkerQueueRejected.Inc()
		return ErrQueueFull
	}
}

// Shutdown stops accepting events and waits for queued ones to finish. When
// ctx expires first, in-flight events are cancelled and ctx's error returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for ev := range p.jobs {
		metrics.WorkerQueueDepth.Dec()
		p.run(ev)
	}
}

func (p *Pool) run(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Event processing panicked",
				zap.String("correlation_id", ev.CorrelationID),
				zap.Any("panic", r),
			)
		}
	}()
	p.proc.Process(p.ctx, ev)
}
