package reactor

import (
	"errors"
	"testing"
)

func TestReactionRunsImmediately(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 1)
	var seen []int
	r := NewReaction(rt, func() error {
		seen = append(seen, a.Get())
		return nil
	})

	if r.Runs() != 1 {
		t.Errorf("expected 1 run, got %d", r.Runs())
	}
	a.Set(2)
	a.Set(3)
	if len(seen) != 3 || seen[2] != 3 {
		t.Errorf("expected [1 2 3], got %v", seen)
	}
}

func TestReactionInsideBatchWaitsForFlush(t *testing.T) {
	rt := New()
	runs := 0
	rt.Batch(func() {
		Autorun(rt, func() { runs++ })
		if runs != 0 {
			t.Errorf("expected reaction to wait for flush, got %d runs", runs)
		}
	})
	if runs != 1 {
		t.Errorf("expected 1 run after batch, got %d", runs)
	}
}

func TestReactionDependencies(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 1)
	b := NewObservable(rt, 2)
	r := Autorun(rt, func() {
		_ = b.Get()
		_ = a.Get()
		_ = b.Get()
	})

	deps := r.Dependencies()
	if len(deps) != 2 || deps[0] != b.ID() || deps[1] != a.ID() {
		t.Errorf("expected deps [b a] in read order, got %v", deps)
	}
}

func TestReactionOrder(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 0)
	var order []string
	Autorun(rt, func() {
		a.Get()
		order = append(order, "first")
	})
	Autorun(rt, func() {
		a.Get()
		order = append(order, "second")
	})
	order = nil

	a.Set(1)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected creation order, got %v", order)
	}
}

func TestReactionWritesRunInNextPass(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 1)
	b := NewObservable(rt, 0)
	Autorun(rt, func() {
		b.Set(a.Get() * 2)
	})
	var seen []int
	Autorun(rt, func() {
		seen = append(seen, b.Get())
	})

	a.Set(5)
	if b.Get() != 10 {
		t.Errorf("expected 10, got %d", b.Get())
	}
	if len(seen) != 2 || seen[1] != 10 {
		t.Errorf("expected [2 10], got %v", seen)
	}
	if rt.Stats().LastFlush.Passes != 2 {
		t.Errorf("expected 2 passes, got %d", rt.Stats().LastFlush.Passes)
	}
}

func TestReactionErrorDoesNotBlockOthers(t *testing.T) {
	var reported []error
	rt := New(WithErrorHandler(func(err error) {
		reported = append(reported, err)
	}))
	a := NewObservable(rt, 0)
	errBad := errors.New("bad value")
	NewReaction(rt, func() error {
		if a.Get() > 0 {
			return errBad
		}
		return nil
	}, WithName("failing"))
	healthy := 0
	Autorun(rt, func() {
		a.Get()
		healthy++
	})

	a.Set(1)
	if healthy != 2 {
		t.Errorf("expected healthy reaction to run, got %d runs", healthy)
	}
	if len(reported) != 1 {
		t.Fatalf("expected 1 reported error, got %d", len(reported))
	}
	if !errors.Is(reported[0], errBad) {
		t.Errorf("expected errBad, got %v", reported[0])
	}
	var ee *EvalError
	if !errors.As(reported[0], &ee) || ee.Name != "failing" || ee.Kind != KindReaction {
		t.Errorf("expected EvalError for failing reaction, got %v", reported[0])
	}
}

func TestReactionPanicIsReported(t *testing.T) {
	var reported []error
	rt := New(WithErrorHandler(func(err error) {
		reported = append(reported, err)
	}))
	a := NewObservable(rt, 0)
	Autorun(rt, func() {
		if a.Get() == 1 {
			panic("bad state")
		}
	})

	a.Set(1)
	if len(reported) != 1 {
		t.Fatalf("expected 1 reported error, got %d", len(reported))
	}
	var pe *PanicError
	if !errors.As(reported[0], &pe) {
		t.Errorf("expected *PanicError, got %v", reported[0])
	}
	if rt.tracker.depth() != 0 {
		t.Errorf("expected tracker stack to be empty, got depth %d", rt.tracker.depth())
	}

	a.Set(2)
	if len(reported) != 1 {
		t.Errorf("expected reaction to keep working after a panic, got %d errors", len(reported))
	}
}

func TestReactionDispose(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 0)
	r := Autorun(rt, func() { a.Get() })
	r.Dispose()
	r.Dispose()

	a.Set(1)
	if r.Runs() != 1 {
		t.Errorf("expected disposed reaction not to run, got %d runs", r.Runs())
	}
	if len(rt.ObserversOf(a.ID())) != 0 {
		t.Error("expected disposed reaction to release its dependencies")
	}
}

func TestReactionDisposeWhileQueued(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 0)
	r := Autorun(rt, func() { a.Get() })

	rt.Batch(func() {
		a.Set(1)
		r.Dispose()
	})
	if r.Runs() != 1 {
		t.Errorf("expected reaction disposed mid-batch not to run, got %d runs", r.Runs())
	}
}

func TestReactionDisposesItself(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 0)
	var r *Reaction
	r = Autorun(rt, func() {
		if a.Get() > 0 && r != nil {
			r.Dispose()
		}
	})

	a.Set(1)
	a.Set(2)
	if r.Runs() != 2 {
		t.Errorf("expected 2 runs, got %d", r.Runs())
	}
	if len(rt.ObserversOf(a.ID())) != 0 {
		t.Error("expected self-disposed reaction to have no edges")
	}
}

func TestReactionForcedRun(t *testing.T) {
	rt := New()
	errNope := errors.New("nope")
	fail := false
	r := NewReaction(rt, func() error {
		if fail {
			return errNope
		}
		return nil
	})

	fail = true
	if err := r.Run(); !errors.Is(err, errNope) {
		t.Errorf("expected errNope from Run, got %v", err)
	}
	if r.Runs() != 2 {
		t.Errorf("expected 2 runs, got %d", r.Runs())
	}
}
