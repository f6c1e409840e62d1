package reactor

import (
	"errors"
	"fmt"
	"testing"
)

func TestDerivationIsLazyAndCached(t *testing.T) {
	rt := New()
	count := NewObservable(rt, 2)
	computes := 0
	doubled := NewComputed(rt, func() int {
		computes++
		return count.Get() * 2
	})

	if computes != 0 {
		t.Errorf("expected no compute before first read, got %d", computes)
	}
	if doubled.Value() != 4 {
		t.Errorf("expected 4, got %d", doubled.Value())
	}
	doubled.Value()
	doubled.Value()
	if computes != 1 {
		t.Errorf("expected 1 compute for repeated reads, got %d", computes)
	}

	count.Set(5)
	if computes != 1 {
		t.Errorf("expected write not to recompute an unobserved derivation, got %d", computes)
	}
	if !doubled.Stale() {
		t.Error("expected derivation to be stale after write")
	}
	if doubled.Value() != 10 {
		t.Errorf("expected 10, got %d", doubled.Value())
	}
	if computes != 2 {
		t.Errorf("expected 2 computes, got %d", computes)
	}
}

func TestDerivationChain(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 1)
	b := NewComputed(rt, func() int { return a.Get() + 1 })
	c := NewComputed(rt, func() int { return b.Value() * 10 })

	if c.Value() != 20 {
		t.Errorf("expected 20, got %d", c.Value())
	}
	a.Set(4)
	if c.Value() != 50 {
		t.Errorf("expected 50, got %d", c.Value())
	}
}

func TestDerivationEqualResultStopsPropagation(t *testing.T) {
	rt := New()
	n := NewObservable(rt, 1)
	parity := NewComputed(rt, func() string {
		if n.Get()%2 == 0 {
			return "even"
		}
		return "odd"
	})
	runs := 0
	Autorun(rt, func() {
		_ = parity.Value()
		runs++
	})

	n.Set(3)
	if runs != 1 {
		t.Errorf("expected reaction to skip when derived value is unchanged, got %d runs", runs)
	}
	n.Set(4)
	if runs != 2 {
		t.Errorf("expected 2 runs after parity changed, got %d", runs)
	}
}

// A change to title must not recompute the done label: the json derivation
// reuses it because its version did not move.
func TestDerivationReusesUnchangedDependencies(t *testing.T) {
	rt := New()
	done := NewObservable(rt, false, WithName("done"))
	title := NewObservable(rt, "Write docs", WithName("title"))

	labelComputes := 0
	label := NewComputed(rt, func() string {
		labelComputes++
		if done.Get() {
			return "done"
		}
		return "open"
	}, WithName("label"))

	jsonComputes := 0
	json := NewComputed(rt, func() string {
		jsonComputes++
		return fmt.Sprintf(`{"title":%q,"status":%q}`, title.Get(), label.Value())
	}, WithName("json"))

	var seen []string
	Autorun(rt, func() {
		seen = append(seen, json.Value())
	})

	if labelComputes != 1 || jsonComputes != 1 {
		t.Fatalf("expected 1 compute each, got label=%d json=%d", labelComputes, jsonComputes)
	}

	title.Set("Ship it")
	if labelComputes != 1 {
		t.Errorf("expected label to be reused, got %d computes", labelComputes)
	}
	if jsonComputes != 2 {
		t.Errorf("expected json to recompute once, got %d", jsonComputes)
	}
	want := `{"title":"Ship it","status":"open"}`
	if len(seen) != 2 || seen[1] != want {
		t.Errorf("expected %s, got %v", want, seen)
	}

	done.Set(true)
	if labelComputes != 2 || jsonComputes != 3 {
		t.Errorf("expected label=2 json=3, got label=%d json=%d", labelComputes, jsonComputes)
	}
}

func TestDerivationDropsDependencyNoLongerRead(t *testing.T) {
	rt := New()
	useX := NewObservable(rt, true)
	x := NewObservable(rt, "x")
	y := NewObservable(rt, "y")
	pick := NewComputed(rt, func() string {
		if useX.Get() {
			return x.Get()
		}
		return y.Get()
	})
	runs := 0
	Autorun(rt, func() {
		_ = pick.Value()
		runs++
	})

	useX.Set(false)
	if pick.Value() != "y" {
		t.Errorf("expected y, got %q", pick.Value())
	}
	if len(rt.ObserversOf(x.ID())) != 0 {
		t.Errorf("expected x to have no observers, got %v", rt.ObserversOf(x.ID()))
	}
	deps := rt.Dependencies(pick.ID())
	if len(deps) != 2 || deps[0] != useX.ID() || deps[1] != y.ID() {
		t.Errorf("expected deps [useX y], got %v", deps)
	}

	before := runs
	x.Set("x2")
	if runs != before {
		t.Errorf("expected write to dropped dependency to be ignored, got %d runs", runs-before)
	}
}

func TestDerivationError(t *testing.T) {
	rt := New()
	input := NewObservable(rt, "")
	errEmpty := errors.New("empty input")
	parsed := NewDerivation(rt, func() (int, error) {
		s := input.Get()
		if s == "" {
			return 0, errEmpty
		}
		return len(s), nil
	}, WithName("parsed"))

	_, err := parsed.Get()
	if !errors.Is(err, errEmpty) {
		t.Fatalf("expected errEmpty, got %v", err)
	}
	var ee *EvalError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EvalError, got %T", err)
	}
	if ee.Name != "parsed" || ee.Kind != KindDerivation {
		t.Errorf("unexpected eval error fields: %+v", ee)
	}

	input.Set("abc")
	v, err := parsed.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 3 {
		t.Errorf("expected 3, got %d", v)
	}
}

func TestDerivationWriteIsRejected(t *testing.T) {
	rt := New()
	target := NewObservable(rt, 0)
	bad := NewDerivation(rt, func() (int, error) {
		return 0, target.Set(1)
	})

	_, err := bad.Get()
	if !errors.Is(err, ErrWriteInDerivation) {
		t.Errorf("expected ErrWriteInDerivation, got %v", err)
	}
	if target.Get() != 0 {
		t.Errorf("expected target unchanged, got %d", target.Get())
	}
}

func TestDerivationCycle(t *testing.T) {
	rt := New()
	var a, b *Derivation[int]
	a = NewDerivation(rt, func() (int, error) {
		v, err := b.Get()
		return v + 1, err
	})
	b = NewDerivation(rt, func() (int, error) {
		v, err := a.Get()
		return v + 1, err
	})

	_, err := a.Get()
	if !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
	if rt.tracker.depth() != 0 {
		t.Errorf("expected tracker stack to be empty, got depth %d", rt.tracker.depth())
	}
}

func TestDerivationPanic(t *testing.T) {
	rt := New()
	boom := NewComputed(rt, func() int {
		panic("boom")
	})

	_, err := boom.Get()
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %v", err)
	}
	if pe.Value != "boom" {
		t.Errorf("expected panic value boom, got %v", pe.Value)
	}
	if rt.tracker.depth() != 0 {
		t.Errorf("expected tracker stack to be empty, got depth %d", rt.tracker.depth())
	}
}

func TestDerivationDisposed(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 1)
	d := NewComputed(rt, func() int { return a.Get() })
	d.Value()
	d.Dispose()

	if _, err := d.Get(); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed, got %v", err)
	}
	if len(rt.ObserversOf(a.ID())) != 0 {
		t.Error("expected disposed derivation to release its dependencies")
	}
}

func TestDerivationPeekDoesNotTrack(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 1)
	d := NewComputed(rt, func() int { return a.Get() })
	runs := 0
	Autorun(rt, func() {
		d.Peek()
		runs++
	})

	a.Set(2)
	if runs != 1 {
		t.Errorf("expected Peek not to create a dependency, got %d runs", runs)
	}
}
