package reactor

import "time"

// FlushInfo describes one flush: the work done between the exit of the
// outermost batch and the moment the reaction queue is empty.
type FlushInfo struct {
	// Queued is the number of reactions waiting when the flush started.
	Queued int
	// Passes is the number of queue swaps executed.
	Passes int
	// Ran counts reactions whose effect executed.
	Ran int
	// Skipped counts scheduled reactions whose dependencies turned out
	// unchanged (or which were disposed while queued).
	Skipped int
	// Dropped counts reactions discarded because a budget was exceeded.
	Dropped int
	Started  time.Time
	Duration time.Duration
}

// RunInfo describes one evaluation of a derivation or reaction.
type RunInfo struct {
	Node     NodeID
	Name     string
	Kind     Kind
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Observer receives engine lifecycle events. All methods are called on the
// runtime's goroutine and must not block.
type Observer interface {
	FlushStarted(info FlushInfo)
	FlushFinished(info FlushInfo)
	ReactionRan(info RunInfo)
	DerivationComputed(info RunInfo)
	ErrorReported(err error)
}

// NopObserver implements Observer with no-ops. Embed it to implement a
// subset of the methods.
type NopObserver struct{}

func (NopObserver) FlushStarted(FlushInfo)     {}
func (NopObserver) FlushFinished(FlushInfo)    {}
func (NopObserver) ReactionRan(RunInfo)        {}
func (NopObserver) DerivationComputed(RunInfo) {}
func (NopObserver) ErrorReported(error)        {}

// multiObserver fans events out to several observers in order.
type multiObserver []Observer

// Observers combines several observers into one. Nil entries are skipped.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o == nil {
			continue
		}
		if m, ok := o.(multiObserver); ok {
			out = append(out, m...)
			continue
		}
		out = append(out, o)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multiObserver) FlushStarted(info FlushInfo) {
	for _, o := range m {
		o.FlushStarted(info)
	}
}

func (m multiObserver) FlushFinished(info FlushInfo) {
	for _, o := range m {
		o.FlushFinished(info)
	}
}

func (m multiObserver) ReactionRan(info RunInfo) {
	for _, o := range m {
		o.ReactionRan(info)
	}
}

func (m multiObserver) DerivationComputed(info RunInfo) {
	for _, o := range m {
		o.DerivationComputed(info)
	}
}

func (m multiObserver) ErrorReported(err error) {
	for _, o := range m {
		o.ErrorReported(err)
	}
}
