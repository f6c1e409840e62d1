package reactor

// frame collects the dependencies read by one evaluation.
// A nil node marks an untracked region.
type frame struct {
	node     *node
	deps     []NodeID
	versions map[NodeID]uint64
}

// tracker is the stack of evaluations in progress for one runtime.
// Reentrant evaluations (a reaction reading a stale derivation that reads
// another stale derivation) push one frame each.
type tracker struct {
	stack []*frame
}

// start pushes a frame for n and returns it. The caller must call stop with
// the same frame on every exit path.
func (t *tracker) start(n *node) *frame {
	f := &frame{node: n}
	if n != nil {
		f.versions = make(map[NodeID]uint64)
	}
	t.stack = append(t.stack, f)
	return f
}

// stop pops frames down to and including f.
func (t *tracker) stop(f *frame) {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i] == f {
			t.stack[i] = nil
			t.stack = t.stack[:i]
			return
		}
	}
}

// current returns the innermost frame, or nil outside any evaluation.
func (t *tracker) current() *frame {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

// track records dep as read by the innermost tracked evaluation.
func (t *tracker) track(dep *node) {
	f := t.current()
	if f == nil || f.node == nil || f.node == dep {
		return
	}
	if _, seen := f.versions[dep.id]; seen {
		return
	}
	f.deps = append(f.deps, dep.id)
	f.versions[dep.id] = dep.version
}

// inDerivation reports whether any derivation is evaluating, including
// inside untracked regions it opened.
func (t *tracker) inDerivation() bool {
	for _, f := range t.stack {
		if f.node != nil && f.node.kind == KindDerivation {
			return true
		}
	}
	return false
}

// depth returns the number of frames on the stack.
func (t *tracker) depth() int {
	return len(t.stack)
}
