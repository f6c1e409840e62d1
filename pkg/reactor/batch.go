package reactor

import (
	"time"
)

// Batch groups writes into a single notification phase. Writes inside fn
// mark dependents stale and queue reactions; the queue is flushed when the
// outermost batch exits, including when fn panics (the panic is re-raised
// after the flush).
//
// Batches can be nested. Only the outermost batch flushes.
//
//	rt.Batch(func() {
//	    first.Set("Ada")
//	    last.Set("Lovelace")
//	})
//	// reactions reading either name run once here
func (rt *Runtime) Batch(fn func()) {
	rt.depth++
	defer func() {
		rt.depth--
		if rt.depth == 0 && !rt.flushing {
			rt.flush()
		}
	}()
	fn()
}

// Tx runs fn as a batch and returns its error. Writes performed before the
// error are kept and flushed.
func (rt *Runtime) Tx(fn func() error) error {
	var err error
	rt.Batch(func() {
		err = fn()
	})
	return err
}

// InBatch reports whether a batch or flush is in progress.
func (rt *Runtime) InBatch() bool {
	return rt.depth > 0 || rt.flushing
}

// checkWrite validates that an observable may be written now.
func (rt *Runtime) checkWrite(n *node) error {
	if n.disposed {
		return ErrDisposed
	}
	if rt.tracker.inDerivation() {
		return ErrWriteInDerivation
	}
	if rt.strict && !rt.InBatch() {
		return ErrOutsideBatch
	}
	return nil
}

// touch records a write to n within the current batch window. It returns
// true for the first write, when the caller must capture the entry value.
func (rt *Runtime) touch(n *node, settle func() bool) bool {
	if n.settle != nil {
		return false
	}
	n.entryVersion = n.version
	n.settle = settle
	rt.touched = append(rt.touched, n)
	return true
}

// changed stamps n with a new version and notifies everything downstream.
func (rt *Runtime) changed(n *node) {
	n.version = rt.tick()
	rt.propagate(n, make(map[NodeID]bool))
}

// propagate marks derivations below n stale and queues reactions.
func (rt *Runtime) propagate(n *node, visited map[NodeID]bool) {
	for _, o := range rt.graph.observersOf(n) {
		if visited[o.id] {
			continue
		}
		visited[o.id] = true
		switch o.kind {
		case KindDerivation:
			o.stale = true
			rt.propagate(o, visited)
		case KindReaction:
			rt.enqueue(o)
		}
	}
}

// enqueue schedules a reaction for the current flush, at most once.
func (rt *Runtime) enqueue(n *node) {
	if n.queued || n.disposed {
		return
	}
	n.queued = true
	rt.queue = append(rt.queue, n)
}

// settle closes the current batch window. Under CollapseNetChanges, an
// observable whose value is back to its entry value gets its entry version
// back, so dependents see no change. Derivations recomputed inside the
// window settle after the observables, in the order they were recomputed,
// which puts upstream derivations first.
func (rt *Runtime) settle() {
	rt.settling = true
	defer func() { rt.settling = false }()

	touched := rt.touched
	rt.touched = nil
	for _, kind := range []Kind{KindObservable, KindDerivation} {
		for _, n := range touched {
			if n.kind != kind {
				continue
			}
			settle := n.settle
			n.settle = nil
			if settle == nil || n.disposed {
				continue
			}
			same := settle()
			if same && rt.policy == CollapseNetChanges {
				n.version = n.entryVersion
			}
		}
	}
}

// collapsing reports whether derivations recomputed now must be settled
// with the current batch window.
func (rt *Runtime) collapsing() bool {
	return rt.policy == CollapseNetChanges && !rt.settling && rt.InBatch()
}

// flush drains the reaction queue pass by pass. The queue is swapped out
// before each pass, so reactions queued by reactions run in the next pass.
func (rt *Runtime) flush() {
	rt.flushing = true
	rt.budget.reset()
	info := FlushInfo{Queued: len(rt.queue), Started: time.Now()}
	defer func() {
		rt.flushing = false
		rt.last = BudgetStats{Passes: rt.budget.passes, Runs: rt.budget.runs}
	}()

	rt.settle()
	if len(rt.queue) == 0 {
		return
	}

	rt.stats.Flushes++
	if rt.observer != nil {
		rt.observer.FlushStarted(info)
	}

	for len(rt.queue) > 0 {
		if err := rt.budget.checkPass(); err != nil {
			info.Dropped += rt.drop(rt.queue)
			rt.queue = nil
			rt.report(err)
			break
		}
		pass := rt.queue
		rt.queue = nil
		info.Passes++
		rt.stats.Passes++

		for i, n := range pass {
			if n.disposed {
				n.queued = false
				info.Skipped++
				continue
			}
			if !rt.shouldRun(n) {
				n.queued = false
				info.Skipped++
				continue
			}
			if err := rt.budget.checkRun(); err != nil {
				info.Dropped += rt.drop(pass[i:]) + rt.drop(rt.queue)
				rt.queue = nil
				rt.report(err)
				break
			}
			rt.runReaction(n)
			info.Ran++
		}
		rt.settle()
	}

	info.Duration = time.Since(info.Started)
	rt.stats.Skipped += info.Skipped
	if rt.observer != nil {
		rt.observer.FlushFinished(info)
	}
}

// drop unqueues reactions without running them.
func (rt *Runtime) drop(nodes []*node) int {
	for _, n := range nodes {
		n.queued = false
	}
	return len(nodes)
}

// refresh brings a derivation up to date. It recomputes only if a
// dependency's version differs from the one seen at the last evaluation.
func (rt *Runtime) refresh(n *node) error {
	if n.disposed {
		return ErrDisposed
	}
	if n.evaluating {
		return ErrCycle
	}
	if n.evaluated && !n.stale && !n.failed {
		return nil
	}
	if n.evaluated && !n.failed && !rt.depsChanged(n) {
		n.stale = false
		return nil
	}
	return n.evaluate()
}

// depsChanged reports whether any recorded dependency of n moved to a new
// version. Upstream derivations are refreshed first.
func (rt *Runtime) depsChanged(n *node) bool {
	for _, id := range n.deps {
		dep := rt.graph.get(id)
		if dep == nil {
			return true
		}
		if dep.kind == KindDerivation {
			if err := rt.refresh(dep); err != nil {
				return true
			}
		}
		if dep.version != n.depVersions[id] {
			return true
		}
	}
	return false
}

// shouldRun reports whether a queued reaction has a changed dependency.
// Reactions that never ran, or failed last time, always run.
func (rt *Runtime) shouldRun(n *node) bool {
	if n.disposed || n.evaluate == nil {
		return false
	}
	if !n.evaluated || n.failed {
		return true
	}
	return rt.depsChanged(n)
}

// runReaction executes a reaction and reports its error, if any.
func (rt *Runtime) runReaction(n *node) {
	n.queued = false
	if err := n.evaluate(); err != nil {
		rt.report(err)
	}
}

// evaluate runs fn as a tracked evaluation of n, replacing n's edges with
// the reads it made. Tracking state is restored on every exit path.
func (rt *Runtime) evaluate(n *node, fn func() error) (err error) {
	n.evaluating = true
	f := rt.tracker.start(n)
	defer func() {
		rt.tracker.stop(f)
		n.evaluating = false
		rt.graph.relink(n, f.deps, f.versions)
	}()
	return guard(fn)
}
