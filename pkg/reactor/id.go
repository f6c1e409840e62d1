package reactor

import "strconv"

// NodeID identifies a node in a runtime's graph.
// IDs are monotonically increasing per runtime and never reused.
type NodeID uint64

// String returns the decimal form of the id.
func (id NodeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Kind is the role a node plays in the dependency graph.
type Kind uint8

const (
	KindObservable Kind = iota + 1
	KindDerivation
	KindReaction
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindObservable:
		return "observable"
	case KindDerivation:
		return "derivation"
	case KindReaction:
		return "reaction"
	default:
		return "unknown"
	}
}
