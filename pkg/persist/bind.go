package persist

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vango-dev/reactor/pkg/reactor"
)

// Status is the state of the most recent save.
type Status int

const (
	StatusIdle Status = iota
	StatusSaving
	StatusSaved
	StatusFailed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BindOption configures Bind.
type BindOption func(*bindOptions)

type bindOptions struct {
	ctx         context.Context
	timeout     time.Duration
	skipInitial bool
	logger      *slog.Logger
	name        string
}

// WithContext sets the context passed to the sink. Cancelling it fails
// pending saves.
func WithContext(ctx context.Context) BindOption {
	return func(o *bindOptions) {
		o.ctx = ctx
	}
}

// WithTimeout bounds each save.
func WithTimeout(d time.Duration) BindOption {
	return func(o *bindOptions) {
		o.timeout = d
	}
}

// SkipInitial does not save the snapshot taken when the binding is created,
// typically because it was just loaded from the same sink.
func SkipInitial() BindOption {
	return func(o *bindOptions) {
		o.skipInitial = true
	}
}

// WithLogger sets the logger for save failures.
func WithLogger(logger *slog.Logger) BindOption {
	return func(o *bindOptions) {
		o.logger = logger
	}
}

// WithName sets the prefix of the binding's node names (default: the key).
func WithName(name string) BindOption {
	return func(o *bindOptions) {
		o.name = name
	}
}

// Binding saves a snapshot to a sink whenever the observables the snapshot
// reads change. Saves run on the runtime's executor. Their completion is
// written back to the Status and Err observables on the loop, and only the
// most recently started save may update them.
type Binding struct {
	loop   *reactor.Loop
	sink   Sink
	key    string
	opts   bindOptions
	logger *slog.Logger

	status   *reactor.Observable[Status]
	lastErr  *reactor.Observable[error]
	reaction *reactor.Reaction

	seq      uint64
	saves    int
	first    bool
	disposed bool
}

// Bind creates a persistence reaction. It must be called on the loop
// goroutine, like every other use of the loop's runtime.
//
//	binding := persist.Bind(loop, "todos", store.Snapshot, sink)
//	reactor.Autorun(rt, func() {
//	    fmt.Println("save:", binding.Status().Get())
//	})
func Bind(loop *reactor.Loop, key string, snapshot func() ([]byte, error), sink Sink, opts ...BindOption) *Binding {
	o := bindOptions{ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	rt := loop.Runtime()
	logger := o.logger
	if logger == nil {
		logger = rt.Logger()
	}

	name := o.name
	if name == "" {
		name = key
	}

	b := &Binding{
		loop:    loop,
		sink:    sink,
		key:     key,
		opts:    o,
		logger:  logger.With("component", "persist", "key", key),
		status:  reactor.NewObservable(rt, StatusIdle, reactor.WithName(name+".status")),
		lastErr: reactor.NewObservable[error](rt, nil, reactor.WithName(name+".error")),
		first:   true,
	}
	b.reaction = reactor.NewReaction(rt, func() error {
		data, err := snapshot()
		if err != nil {
			return errors.Join(err, b.publish(StatusFailed, err))
		}
		if b.first {
			b.first = false
			if o.skipInitial {
				return nil
			}
		}
		b.save(data)
		return nil
	}, reactor.WithName(name+".save"))
	return b
}

// save starts an asynchronous Put of data.
func (b *Binding) save(data []byte) {
	b.seq++
	seq := b.seq
	if err := b.status.Set(StatusSaving); err != nil {
		b.logger.Warn("status update failed", "status", StatusSaving, "error", err)
	}

	err := b.loop.Go(b.opts.ctx, func(ctx context.Context) error {
		if b.opts.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.opts.timeout)
			defer cancel()
		}
		return b.sink.Put(ctx, b.key, data)
	}, func(err error) {
		b.complete(seq, err)
	})
	if err != nil {
		b.complete(seq, err)
	}
}

// complete records the outcome of save seq unless a newer save started.
func (b *Binding) complete(seq uint64, err error) {
	if seq != b.seq || b.disposed {
		return
	}
	status := StatusSaved
	if err != nil {
		b.logger.Warn("save failed", "error", err)
		status = StatusFailed
	} else {
		b.saves++
	}
	if perr := b.publish(status, err); perr != nil {
		b.logger.Warn("status update failed", "status", status, "error", perr)
	}
}

// publish writes status and the latest error together.
func (b *Binding) publish(status Status, err error) error {
	return b.loop.Runtime().Tx(func() error {
		return errors.Join(b.status.Set(status), b.lastErr.Set(err))
	})
}

// Status is the observable state of the latest save.
func (b *Binding) Status() *reactor.Observable[Status] {
	return b.status
}

// Err holds the error of the latest save, or nil.
func (b *Binding) Err() *reactor.Observable[error] {
	return b.lastErr
}

// Saves returns the number of saves that completed and were current.
func (b *Binding) Saves() int {
	return b.saves
}

// Flush saves the current snapshot now, regardless of changes.
func (b *Binding) Flush() error {
	return b.reaction.Run()
}

// Dispose stops saving. Pending saves finish but no longer update Status.
func (b *Binding) Dispose() {
	b.disposed = true
	b.reaction.Dispose()
	b.status.Dispose()
	b.lastErr.Dispose()
}

// Load reads the snapshot for key from sink.
func Load(ctx context.Context, sink Sink, key string) ([]byte, error) {
	return sink.Get(ctx, key)
}
