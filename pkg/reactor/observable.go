package reactor

// Observable is a mutable value cell. Reading it during a tracked
// evaluation records a dependency; writing it notifies dependents.
type Observable[T any] struct {
	rt   *Runtime
	node *node

	value T
	equal func(T, T) bool

	// entry is the value at the first write of the current batch window.
	entry T
}

// NewObservable creates an observable holding initial.
func NewObservable[T any](rt *Runtime, initial T, opts ...NodeOption) *Observable[T] {
	o := applyNodeOptions(opts)
	return &Observable[T]{
		rt:    rt,
		node:  rt.newNode(KindObservable, o),
		value: initial,
	}
}

// WithEquals configures the equality used to suppress redundant writes.
// By default basic kinds compare with == and everything else with
// reflect.DeepEqual.
func (o *Observable[T]) WithEquals(fn func(T, T) bool) *Observable[T] {
	o.equal = fn
	return o
}

// ID returns the node id.
func (o *Observable[T]) ID() NodeID {
	return o.node.id
}

// Name returns the diagnostic name, if any.
func (o *Observable[T]) Name() string {
	return o.node.name
}

// Get returns the current value and records a dependency of the evaluation
// in progress, if any.
func (o *Observable[T]) Get() T {
	if !o.node.disposed {
		o.rt.tracker.track(o.node)
	}
	return o.value
}

// Peek returns the current value without recording a dependency.
func (o *Observable[T]) Peek() T {
	return o.value
}

// Set stores value. If it equals the current value nothing happens.
// Otherwise dependent derivations become stale and dependent reactions are
// scheduled; outside a batch they run before Set returns.
func (o *Observable[T]) Set(value T) error {
	if err := o.rt.checkWrite(o.node); err != nil {
		return err
	}
	if o.equals(o.value, value) {
		return nil
	}
	o.rt.Batch(func() {
		if o.rt.touch(o.node, o.settle) {
			o.entry = o.value
		}
		o.value = value
		o.rt.changed(o.node)
	})
	return nil
}

// Update replaces the value with fn(current). fn runs untracked.
func (o *Observable[T]) Update(fn func(T) T) error {
	if err := o.rt.checkWrite(o.node); err != nil {
		return err
	}
	var next T
	o.rt.Untracked(func() {
		next = fn(o.value)
	})
	return o.Set(next)
}

// Dispose removes the observable from the graph. Dependents keep the last
// value they read and recompute on their next evaluation.
func (o *Observable[T]) Dispose() {
	o.rt.dispose(o.node)
}

// Disposed reports whether Dispose was called.
func (o *Observable[T]) Disposed() bool {
	return o.node.disposed
}

// settle is called by the runtime when a batch window closes.
func (o *Observable[T]) settle() bool {
	same := o.equals(o.entry, o.value)
	var zero T
	o.entry = zero
	return same
}

func (o *Observable[T]) equals(a, b T) bool {
	if o.equal != nil {
		return o.equal(a, b)
	}
	return defaultEquals(a, b)
}
