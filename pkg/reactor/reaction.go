package reactor

import "time"

// Reaction is a terminal observer that performs a side effect. It runs once
// when created and again in every flush in which something it read during
// its previous run changed.
//
// Unlike derivations, reactions may write observables. Those writes are
// picked up by the next flush pass.
type Reaction struct {
	rt   *Runtime
	node *node
	fn   func() error
}

// NewReaction creates a reaction and schedules its first run. Outside a
// batch the first run happens before NewReaction returns; inside a batch it
// happens when the batch flushes.
func NewReaction(rt *Runtime, fn func() error, opts ...NodeOption) *Reaction {
	o := applyNodeOptions(opts)
	r := &Reaction{
		rt: rt,
		fn: fn,
	}
	r.node = rt.newNode(KindReaction, o)
	r.node.evaluate = r.run
	rt.Batch(func() {
		rt.enqueue(r.node)
	})
	return r
}

// ID returns the node id.
func (r *Reaction) ID() NodeID {
	return r.node.id
}

// Name returns the diagnostic name, if any.
func (r *Reaction) Name() string {
	return r.node.name
}

// Runs returns how many times the effect executed.
func (r *Reaction) Runs() int {
	return r.node.runs
}

// Dependencies returns the ids read during the last run, in read order.
func (r *Reaction) Dependencies() []NodeID {
	return append([]NodeID(nil), r.node.deps...)
}

// Run forces an immediate tracked run, regardless of whether anything
// changed. Errors are returned instead of being reported.
func (r *Reaction) Run() error {
	if r.node.disposed {
		return nil
	}
	var err error
	r.rt.Batch(func() {
		err = r.run()
	})
	return err
}

// Dispose unregisters the reaction from every dependency. A reaction
// disposed while scheduled does not run. Safe to call more than once.
func (r *Reaction) Dispose() {
	r.rt.dispose(r.node)
}

// Disposed reports whether Dispose was called.
func (r *Reaction) Disposed() bool {
	return r.node.disposed
}

// run is installed as the node's evaluate hook.
func (r *Reaction) run() error {
	n := r.node
	started := time.Now()
	err := r.rt.evaluate(n, r.fn)
	n.runs++
	n.evaluated = true
	n.failed = err != nil
	r.rt.stats.ReactionRuns++
	if err != nil {
		err = &EvalError{Node: n.id, Name: n.name, Kind: KindReaction, Err: err}
	}
	if r.rt.observer != nil {
		r.rt.observer.ReactionRan(RunInfo{
			Node:     n.id,
			Name:     n.name,
			Kind:     KindReaction,
			Started:  started,
			Duration: time.Since(started),
			Err:      err,
		})
	}
	return err
}
