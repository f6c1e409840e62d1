package reactor

// NodeInfo describes one node of a graph snapshot.
type NodeInfo struct {
	ID        NodeID   `json:"id"`
	Kind      string   `json:"kind"`
	Name      string   `json:"name,omitempty"`
	Version   uint64   `json:"version"`
	Stale     bool     `json:"stale,omitempty"`
	Failed    bool     `json:"failed,omitempty"`
	Queued    bool     `json:"queued,omitempty"`
	Runs      int      `json:"runs,omitempty"`
	Deps      []NodeID `json:"deps,omitempty"`
	Observers []NodeID `json:"observers,omitempty"`
}

// GraphSnapshot is a point-in-time copy of a runtime's dependency graph.
type GraphSnapshot struct {
	Runtime string     `json:"runtime"`
	Policy  string     `json:"policy"`
	Nodes   []NodeInfo `json:"nodes"`
	Stats   Stats      `json:"stats"`
}

// Snapshot copies the current graph. Nodes are ordered by id and observer
// lists by id.
func (rt *Runtime) Snapshot() GraphSnapshot {
	snap := GraphSnapshot{
		Runtime: rt.id.String(),
		Policy:  rt.policy.String(),
		Stats:   rt.Stats(),
	}
	for _, n := range rt.graph.sorted() {
		info := NodeInfo{
			ID:      n.id,
			Kind:    n.kind.String(),
			Name:    n.name,
			Version: n.version,
			Stale:   n.kind == KindDerivation && (n.stale || !n.evaluated),
			Failed:  n.failed,
			Queued:  n.queued,
			Runs:    n.runs,
		}
		if len(n.deps) > 0 {
			info.Deps = append([]NodeID(nil), n.deps...)
		}
		for _, o := range rt.graph.observersOf(n) {
			info.Observers = append(info.Observers, o.id)
		}
		snap.Nodes = append(snap.Nodes, info)
	}
	return snap
}

// Dependencies returns the ids node id read during its last evaluation.
func (rt *Runtime) Dependencies(id NodeID) []NodeID {
	n := rt.graph.get(id)
	if n == nil {
		return nil
	}
	return append([]NodeID(nil), n.deps...)
}

// ObserversOf returns the ids of the nodes currently depending on id.
func (rt *Runtime) ObserversOf(id NodeID) []NodeID {
	n := rt.graph.get(id)
	if n == nil {
		return nil
	}
	var out []NodeID
	for _, o := range rt.graph.observersOf(n) {
		out = append(out, o.id)
	}
	return out
}
