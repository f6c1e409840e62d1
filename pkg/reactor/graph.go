package reactor

import "sort"

// node is the type-erased graph vertex shared by observables, derivations
// and reactions. Typed wrappers hold the value and install the hooks.
type node struct {
	id   NodeID
	kind Kind
	name string

	// version is a stamp from the runtime clock, refreshed every time the
	// node's value changes. Dependents compare it to the stamp they saw.
	version uint64

	// deps are upstream nodes in first-read order; depVersions holds the
	// version of each as seen during the last evaluation.
	deps        []NodeID
	depVersions map[NodeID]uint64

	// observers are downstream nodes.
	observers map[NodeID]struct{}

	// stale marks a derivation whose dependencies may have changed.
	stale bool
	// evaluated is set once a derivation or reaction completed an evaluation.
	evaluated bool
	// failed marks a node whose last evaluation returned an error.
	failed bool
	// evaluating guards against re-entrant evaluation.
	evaluating bool
	// queued marks a reaction scheduled for the current flush.
	queued   bool
	disposed bool

	// evaluate recomputes a derivation or runs a reaction.
	evaluate func() error

	// settle is installed by observables written, and derivations
	// recomputed to a new value, in the current batch window. It reports
	// whether the value is back to its entry value and clears the snapshot.
	settle func() bool
	// entryVersion is the version at the first write of the current batch.
	entryVersion uint64

	runs  int
	scope *Scope
}

// graph is an arena of nodes indexed by stable ids.
type graph struct {
	next  NodeID
	nodes map[NodeID]*node
}

func newGraph() *graph {
	return &graph{nodes: make(map[NodeID]*node)}
}

// add allocates a node with a fresh id.
func (g *graph) add(kind Kind, name string) *node {
	g.next++
	n := &node{
		id:        g.next,
		kind:      kind,
		name:      name,
		observers: make(map[NodeID]struct{}),
	}
	g.nodes[n.id] = n
	return n
}

// get returns the live node for id, or nil.
func (g *graph) get(id NodeID) *node {
	return g.nodes[id]
}

// relink replaces n's dependency edges with deps.
// Old edges are removed before the new ones are recorded.
func (g *graph) relink(n *node, deps []NodeID, versions map[NodeID]uint64) {
	for _, id := range n.deps {
		if dep := g.nodes[id]; dep != nil {
			delete(dep.observers, n.id)
		}
	}
	n.deps = deps
	n.depVersions = versions
	if n.disposed {
		n.deps = nil
		n.depVersions = nil
		return
	}
	for _, id := range deps {
		if dep := g.nodes[id]; dep != nil {
			dep.observers[n.id] = struct{}{}
		}
	}
}

// remove drops n and every edge touching it.
func (g *graph) remove(n *node) {
	for _, id := range n.deps {
		if dep := g.nodes[id]; dep != nil {
			delete(dep.observers, n.id)
		}
	}
	n.deps = nil
	n.depVersions = nil
	n.observers = make(map[NodeID]struct{})
	n.evaluate = nil
	n.settle = nil
	n.disposed = true
	delete(g.nodes, n.id)
}

// observersOf returns n's observers ordered by id, which is creation order.
func (g *graph) observersOf(n *node) []*node {
	if len(n.observers) == 0 {
		return nil
	}
	ids := make([]NodeID, 0, len(n.observers))
	for id := range n.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*node, 0, len(ids))
	for _, id := range ids {
		if o := g.nodes[id]; o != nil {
			out = append(out, o)
		}
	}
	return out
}

// sorted returns all live nodes ordered by id.
func (g *graph) sorted() []*node {
	out := make([]*node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
