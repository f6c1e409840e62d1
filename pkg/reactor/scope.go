package reactor

// Scope owns a group of nodes. Disposing a scope disposes its nodes, its
// child scopes and runs its cleanups. Scopes form a tree mirroring the
// lifetime of the code that created them.
type Scope struct {
	rt       *Runtime
	parent   *Scope
	children []*Scope
	nodes    []*node
	cleanups []func()
	disposed bool
}

// NewScope creates a root scope.
func (rt *Runtime) NewScope() *Scope {
	return &Scope{rt: rt}
}

// NewScope creates a child scope, disposed together with s.
func (s *Scope) NewScope() *Scope {
	child := &Scope{rt: s.rt, parent: s}
	if s.disposed {
		child.disposed = true
		return child
	}
	s.children = append(s.children, child)
	return child
}

// Do runs fn with s as the scope for nodes created inside it that were not
// given an explicit InScope option.
//
//	scope.Do(func() {
//	    reactor.Autorun(rt, render) // disposed with scope
//	})
func (s *Scope) Do(fn func()) {
	old := s.rt.scope
	s.rt.scope = s
	defer func() { s.rt.scope = old }()
	fn()
}

// OnCleanup registers fn to run when the scope is disposed. On a disposed
// scope fn runs immediately.
func (s *Scope) OnCleanup(fn func()) {
	if s.disposed {
		fn()
		return
	}
	s.cleanups = append(s.cleanups, fn)
}

// Len returns the number of live nodes owned directly by s.
func (s *Scope) Len() int {
	return len(s.nodes)
}

// Disposed reports whether Dispose was called.
func (s *Scope) Disposed() bool {
	return s.disposed
}

// Dispose disposes child scopes and nodes in reverse creation order, then
// runs cleanups in reverse registration order. Safe to call more than once.
func (s *Scope) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true

	if s.parent != nil {
		s.parent.removeChild(s)
	}

	children := s.children
	s.children = nil
	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}

	nodes := s.nodes
	s.nodes = nil
	for i := len(nodes) - 1; i >= 0; i-- {
		nodes[i].scope = nil
		s.rt.dispose(nodes[i])
	}

	cleanups := s.cleanups
	s.cleanups = nil
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// adopt attaches n to s. Nodes created in a disposed scope stay unowned.
func (s *Scope) adopt(n *node) {
	if s.disposed {
		n.scope = nil
		return
	}
	n.scope = s
	s.nodes = append(s.nodes, n)
}

// release forgets n after it was disposed on its own.
func (s *Scope) release(n *node) {
	for i, c := range s.nodes {
		if c == n {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			return
		}
	}
}

func (s *Scope) removeChild(child *Scope) {
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}
