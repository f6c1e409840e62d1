package reactor

// Autorun creates a reaction from a function that cannot fail.
//
//	reactor.Autorun(rt, func() {
//	    fmt.Println("remaining:", remaining.Value())
//	})
func Autorun(rt *Runtime, fn func(), opts ...NodeOption) *Reaction {
	return NewReaction(rt, func() error {
		fn()
		return nil
	}, opts...)
}

// Watch tracks only expr and calls effect with the new and previous value
// whenever expr's result changes. effect runs untracked, so reads inside it
// do not become dependencies. The first evaluation only records the value
// unless FireImmediately is given. WatchEquals replaces the default
// equality.
//
//	reactor.Watch(rt, func() bool { return done.Get() }, func(now, was bool) {
//	    log.Printf("done: %v -> %v", was, now)
//	})
func Watch[T any](rt *Runtime, expr func() T, effect func(next, prev T), opts ...NodeOption) *Reaction {
	o := applyNodeOptions(opts)
	equals := defaultEquals[T]
	if fn, ok := o.equals.(func(a, b T) bool); ok && fn != nil {
		equals = fn
	}
	var (
		prev        T
		initialized bool
	)
	return NewReaction(rt, func() error {
		next := expr()
		if !initialized {
			initialized = true
			prev = next
			if o.fireImmediately {
				var zero T
				rt.Untracked(func() { effect(next, zero) })
			}
			return nil
		}
		if equals(prev, next) {
			return nil
		}
		old := prev
		prev = next
		rt.Untracked(func() { effect(next, old) })
		return nil
	}, opts...)
}

// When runs effect once, the first time pred returns true, and then
// disposes itself.
func When(rt *Runtime, pred func() bool, effect func(), opts ...NodeOption) *Reaction {
	var (
		r     *Reaction
		fired bool
	)
	r = NewReaction(rt, func() error {
		if fired || !pred() {
			return nil
		}
		fired = true
		rt.Untracked(effect)
		if r != nil {
			r.Dispose()
		}
		return nil
	}, opts...)
	if fired {
		r.Dispose()
	}
	return r
}
