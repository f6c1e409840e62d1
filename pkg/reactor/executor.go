package reactor

import (
	"context"
	"sync"
)

// Executor runs tasks off the runtime goroutine. Tasks must not touch the
// runtime directly; they report back through Loop.Post.
type Executor interface {
	Submit(ctx context.Context, task func(context.Context)) error
}

// GoExecutor starts one goroutine per task.
type GoExecutor struct{}

// Submit runs task in a new goroutine.
func (GoExecutor) Submit(ctx context.Context, task func(context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	go task(ctx)
	return nil
}

// Pool is a fixed-size worker pool with a bounded queue.
type Pool struct {
	tasks chan poolTask
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type poolTask struct {
	ctx context.Context
	fn  func(context.Context)
}

// NewPool starts workers goroutines that drain a queue of the given size.
// Non-positive values fall back to one worker and an unbuffered queue.
func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{tasks: make(chan poolTask, queue)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		if t.ctx.Err() != nil {
			continue
		}
		t.fn(t.ctx)
	}
}

// Submit queues task, blocking while the queue is full. It returns
// ErrPoolClosed after Close, or ctx.Err() if ctx ends first.
func (p *Pool) Submit(ctx context.Context, task func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- poolTask{ctx: ctx, fn: task}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
