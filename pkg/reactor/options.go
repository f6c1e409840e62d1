package reactor

// NodeOption configures an observable, derivation or reaction.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	name            string
	scope           *Scope
	fireImmediately bool
	equals          any
}

// WithName labels a node for diagnostics, metrics and graph snapshots.
func WithName(name string) NodeOption {
	return func(o *nodeOptions) {
		o.name = name
	}
}

// InScope attaches the node to scope so it is disposed with it.
func InScope(scope *Scope) NodeOption {
	return func(o *nodeOptions) {
		o.scope = scope
	}
}

// FireImmediately makes Watch invoke its effect for the initial value too.
func FireImmediately() NodeOption {
	return func(o *nodeOptions) {
		o.fireImmediately = true
	}
}

// WatchEquals sets the equality Watch uses to decide whether expr's value
// changed. It is ignored by other constructors and by a Watch whose value
// type differs from T.
//
//	reactor.Watch(rt, selected, onSelect, reactor.WatchEquals(func(a, b *Item) bool {
//	    return a.ID == b.ID
//	}))
func WatchEquals[T any](fn func(a, b T) bool) NodeOption {
	return func(o *nodeOptions) {
		o.equals = fn
	}
}

func applyNodeOptions(opts []NodeOption) nodeOptions {
	var o nodeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
