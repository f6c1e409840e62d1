package reactor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultLoopQueue is the mailbox size used when none is configured.
const DefaultLoopQueue = 256

// Loop owns the goroutine a Runtime lives on. Other goroutines hand work
// to it with Post or Call; each posted function runs inside a batch, so its
// writes flush once it returns.
type Loop struct {
	rt      *Runtime
	mailbox chan func()
	done    chan struct{}
	once    sync.Once
	closed  atomic.Bool
	running atomic.Bool
}

// LoopOption configures a Loop.
type LoopOption func(*loopOptions)

type loopOptions struct {
	queue int
}

// WithQueueSize sets the mailbox capacity.
func WithQueueSize(n int) LoopOption {
	return func(o *loopOptions) {
		o.queue = n
	}
}

// NewLoop creates a loop for rt. Call Run to start processing.
func NewLoop(rt *Runtime, opts ...LoopOption) *Loop {
	o := loopOptions{queue: DefaultLoopQueue}
	for _, opt := range opts {
		opt(&o)
	}
	if o.queue <= 0 {
		o.queue = DefaultLoopQueue
	}
	return &Loop{
		rt:      rt,
		mailbox: make(chan func(), o.queue),
		done:    make(chan struct{}),
	}
}

// Runtime returns the runtime driven by the loop. It must only be used from
// functions running on the loop.
func (l *Loop) Runtime() *Runtime {
	return l.rt
}

// Run processes posted functions until ctx is done or Close is called.
// It returns ctx.Err() when ctx ends and nil after Close. Either way the
// loop is closed when Run returns: later Post, Call and Go calls fail with
// ErrLoopClosed.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("reactor: loop already running")
	}
	defer l.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.mailbox:
			l.exec(fn)
		}
	}
}

// exec runs a mailbox entry. A panic is reported, not propagated, so one
// bad callback cannot stop the loop.
func (l *Loop) exec(fn func()) {
	err := guard(func() error {
		fn()
		return nil
	})
	if err != nil {
		l.rt.report(err)
	}
}

// Post queues fn to run on the loop. It never blocks: it returns
// ErrLoopFull if the mailbox is full and ErrLoopClosed after Close.
func (l *Loop) Post(fn func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	select {
	case l.mailbox <- func() { l.rt.Batch(fn) }:
		return nil
	case <-l.done:
		return ErrLoopClosed
	default:
		return ErrLoopFull
	}
}

// Call runs fn on the loop and waits for its result. Writes made by fn
// have been flushed when Call returns.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	wrapped := func() {
		var err error
		l.rt.Batch(func() {
			err = guard(fn)
		})
		result <- err
	}
	if l.closed.Load() {
		return ErrLoopClosed
	}
	select {
	case l.mailbox <- wrapped:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go hands task to the runtime's executor. When task returns, done runs on
// the loop with its error, typically to write a status observable. The
// engine never waits for task. If the mailbox is full, delivering done
// waits for room; it is dropped only when the loop closes. The executor
// must therefore not run tasks on the loop goroutine.
//
//	loop.Go(ctx, func(ctx context.Context) error {
//	    return api.Save(ctx, payload)
//	}, func(err error) {
//	    saving.Set(false)
//	    lastErr.Set(err)
//	})
func (l *Loop) Go(ctx context.Context, task func(context.Context) error, done func(error)) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	return l.rt.executor.Submit(ctx, func(ctx context.Context) {
		err := guard(func() error { return task(ctx) })
		if done == nil {
			return
		}
		if perr := l.deliver(func() { done(err) }); perr != nil {
			l.rt.logger.Warn("reactor: dropping task completion", "error", perr, "task_error", err)
		}
	})
}

// deliver queues fn like Post but waits for room in the mailbox.
func (l *Loop) deliver(fn func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	select {
	case l.mailbox <- func() { l.rt.Batch(fn) }:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// Close stops the loop. Pending functions are discarded.
func (l *Loop) Close() {
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// Done is closed when the loop is closed.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
