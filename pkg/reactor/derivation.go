package reactor

import "time"

// Derivation is a cached value computed from other observables and
// derivations. It is lazy: it recomputes on the first read after one of
// its dependencies changed, and only if that dependency's value actually
// moved. A derivation is itself observable.
//
// The compute function must not write observables; such writes fail with
// ErrWriteInDerivation.
type Derivation[T any] struct {
	rt   *Runtime
	node *node

	fn    func() (T, error)
	value T
	err   error
	equal func(T, T) bool

	// entry is the value before the first change in the current batch window.
	entry T
}

// NewDerivation creates a derivation. fn runs lazily on the first Get.
func NewDerivation[T any](rt *Runtime, fn func() (T, error), opts ...NodeOption) *Derivation[T] {
	o := applyNodeOptions(opts)
	d := &Derivation[T]{
		rt: rt,
		fn: fn,
	}
	d.node = rt.newNode(KindDerivation, o)
	d.node.stale = true
	d.node.evaluate = d.recompute
	return d
}

// NewComputed creates a derivation from a function that cannot fail.
func NewComputed[T any](rt *Runtime, fn func() T, opts ...NodeOption) *Derivation[T] {
	return NewDerivation(rt, func() (T, error) {
		return fn(), nil
	}, opts...)
}

// WithEquals configures the equality used to decide whether a recomputed
// value is a change worth propagating.
func (d *Derivation[T]) WithEquals(fn func(T, T) bool) *Derivation[T] {
	d.equal = fn
	return d
}

// ID returns the node id.
func (d *Derivation[T]) ID() NodeID {
	return d.node.id
}

// Name returns the diagnostic name, if any.
func (d *Derivation[T]) Name() string {
	return d.node.name
}

// Get returns the current value, recomputing if needed, and records a
// dependency of the evaluation in progress. Errors from the compute
// function are returned as *EvalError.
func (d *Derivation[T]) Get() (T, error) {
	if d.node.disposed {
		var zero T
		return zero, d.wrap(ErrDisposed)
	}
	err := d.rt.refresh(d.node)
	if err == ErrCycle {
		var zero T
		return zero, d.wrap(ErrCycle)
	}
	d.rt.tracker.track(d.node)
	if err != nil {
		var zero T
		return zero, d.err
	}
	return d.value, nil
}

// Value returns the current value, or the zero value if computing failed.
func (d *Derivation[T]) Value() T {
	v, _ := d.Get()
	return v
}

// Peek returns the current value without recording a dependency.
func (d *Derivation[T]) Peek() (T, error) {
	var (
		v   T
		err error
	)
	d.rt.Untracked(func() {
		v, err = d.Get()
	})
	return v, err
}

// Stale reports whether the cached value may be out of date.
func (d *Derivation[T]) Stale() bool {
	return d.node.stale || !d.node.evaluated
}

// Dispose removes the derivation from the graph. Safe to call more than once.
func (d *Derivation[T]) Dispose() {
	d.rt.dispose(d.node)
}

// Disposed reports whether Dispose was called.
func (d *Derivation[T]) Disposed() bool {
	return d.node.disposed
}

// recompute is installed as the node's evaluate hook.
func (d *Derivation[T]) recompute() error {
	n := d.node
	var next T
	started := time.Now()
	err := d.rt.evaluate(n, func() error {
		v, err := d.fn()
		next = v
		return err
	})
	d.rt.stats.Recomputes++

	if err != nil {
		// Stay stale so the next read retries. The version moves so that
		// dependents re-evaluate and observe the failure.
		d.err = d.wrap(err)
		n.failed = true
		n.stale = true
		n.evaluated = true
		n.version = d.rt.tick()
		d.notify(started, d.err)
		return d.err
	}

	changed := !n.evaluated || n.failed || !d.equals(d.value, next)
	if changed && n.evaluated && !n.failed && d.rt.collapsing() {
		if d.rt.touch(n, d.settle) {
			d.entry = d.value
		}
	}
	d.value = next
	d.err = nil
	n.failed = false
	n.stale = false
	n.evaluated = true
	if changed {
		n.version = d.rt.tick()
	}
	d.notify(started, nil)
	return nil
}

// settle is called by the runtime when a batch window closes, after the
// window's observables settled. It brings the value up to date and reports
// whether it is back to the value it had before the window.
func (d *Derivation[T]) settle() bool {
	entry := d.entry
	var zero T
	d.entry = zero
	if err := d.rt.refresh(d.node); err != nil {
		return false
	}
	return d.equals(entry, d.value)
}

func (d *Derivation[T]) notify(started time.Time, err error) {
	if d.rt.observer == nil {
		return
	}
	d.rt.observer.DerivationComputed(RunInfo{
		Node:     d.node.id,
		Name:     d.node.name,
		Kind:     KindDerivation,
		Started:  started,
		Duration: time.Since(started),
		Err:      err,
	})
}

func (d *Derivation[T]) wrap(err error) error {
	if ee, ok := err.(*EvalError); ok && ee.Node == d.node.id {
		return err
	}
	return &EvalError{Node: d.node.id, Name: d.node.name, Kind: KindDerivation, Err: err}
}

func (d *Derivation[T]) equals(a, b T) bool {
	if d.equal != nil {
		return d.equal(a, b)
	}
	return defaultEquals(a, b)
}
