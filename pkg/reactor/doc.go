// Package reactor provides a transparent reactive state engine.
//
// Reads are tracked automatically at runtime. Reading an Observable or a
// Derivation while a Derivation or Reaction is evaluating records a
// dependency edge; writing an Observable marks dependent derivations stale
// and schedules dependent reactions for the next flush.
//
// # Core Types
//
// Observable[T] is a mutable value cell:
//
//	rt := reactor.New()
//	done := reactor.NewObservable(rt, false)
//	done.Get()        // tracked read
//	done.Set(true)    // write, notifies dependents
//
// Derivation[T] is a cached, lazily recomputed pure function of other nodes:
//
//	label := reactor.NewComputed(rt, func() string {
//	    if done.Get() {
//	        return "done"
//	    }
//	    return "open"
//	})
//	value, err := label.Get()
//
// Reaction runs a side effect whenever anything it read changes:
//
//	r := reactor.NewReaction(rt, func() error {
//	    v, err := label.Get()
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println("status:", v)
//	    return nil
//	})
//	defer r.Dispose()
//
// # Batching
//
// Writes inside Batch produce a single flush when the outermost batch exits:
//
//	rt.Batch(func() {
//	    title.Set("Write docs")
//	    done.Set(true)
//	})
//
// Each affected reaction runs once per flush pass, in the order it was first
// scheduled. Reactions scheduled by other reactions run in the following pass.
//
// # Threading
//
// A Runtime is single-threaded: it must only be used from one goroutine at a
// time. Work that happens elsewhere (network calls, disk writes) reports back
// through a Loop, which owns the runtime goroutine:
//
//	loop := reactor.NewLoop(rt)
//	go loop.Run(ctx)
//	loop.Go(ctx, save, func(err error) { status.Set(statusFor(err)) })
package reactor
