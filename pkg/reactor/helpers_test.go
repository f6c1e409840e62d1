package reactor

import "testing"

func TestWatch(t *testing.T) {
	rt := New()
	count := NewObservable(rt, 1)
	other := NewObservable(rt, "x")
	type change struct{ next, prev int }
	var changes []change

	w := Watch(rt, func() int { return count.Get() * 10 }, func(next, prev int) {
		other.Get()
		changes = append(changes, change{next, prev})
	})

	if len(changes) != 0 {
		t.Errorf("expected no initial call, got %v", changes)
	}
	count.Set(2)
	if len(changes) != 1 || changes[0] != (change{20, 10}) {
		t.Errorf("expected {20 10}, got %v", changes)
	}

	other.Set("y")
	if len(changes) != 1 {
		t.Errorf("expected effect reads to stay untracked, got %v", changes)
	}
	if len(w.Dependencies()) != 1 {
		t.Errorf("expected only count as dependency, got %v", w.Dependencies())
	}
}

func TestWatchFireImmediately(t *testing.T) {
	rt := New()
	name := NewObservable(rt, "ada")
	var calls []string
	Watch(rt, func() string { return name.Get() }, func(next, prev string) {
		calls = append(calls, prev+"->"+next)
	}, FireImmediately())

	name.Set("grace")
	if len(calls) != 2 || calls[0] != "->ada" || calls[1] != "ada->grace" {
		t.Errorf("unexpected calls %v", calls)
	}
}

func TestWatchEffectMayWrite(t *testing.T) {
	rt := New()
	src := NewObservable(rt, 1)
	mirror := NewObservable(rt, 0)
	Watch(rt, func() int { return src.Get() }, func(next, _ int) {
		if err := mirror.Set(next); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	src.Set(3)
	if mirror.Get() != 3 {
		t.Errorf("expected 3, got %d", mirror.Get())
	}
}

func TestWatchCustomEquality(t *testing.T) {
	type item struct {
		ID    int
		Title string
	}
	rt := New()
	selected := NewObservable(rt, item{ID: 1, Title: "docs"})
	var changes []int
	Watch(rt, func() item { return selected.Get() }, func(next, prev item) {
		changes = append(changes, next.ID)
	}, WatchEquals(func(a, b item) bool { return a.ID == b.ID }))

	selected.Set(item{ID: 1, Title: "better docs"})
	if len(changes) != 0 {
		t.Errorf("expected a title change to be ignored, got %v", changes)
	}
	selected.Set(item{ID: 2, Title: "tests"})
	if len(changes) != 1 || changes[0] != 2 {
		t.Errorf("expected one change to id 2, got %v", changes)
	}
}

func TestWatchEqualsOfOtherTypeIsIgnored(t *testing.T) {
	rt := New()
	count := NewObservable(rt, 1)
	calls := 0
	Watch(rt, func() int { return count.Get() }, func(next, prev int) {
		calls++
	}, WatchEquals(func(a, b string) bool { return true }))

	count.Set(2)
	if calls != 1 {
		t.Errorf("expected default equality, got %d calls", calls)
	}
}

func TestWhen(t *testing.T) {
	rt := New()
	count := NewObservable(rt, 0)
	fired := 0
	r := When(rt, func() bool { return count.Get() >= 2 }, func() { fired++ })

	count.Set(1)
	if fired != 0 {
		t.Errorf("expected no fire yet, got %d", fired)
	}
	count.Set(2)
	count.Set(3)
	if fired != 1 {
		t.Errorf("expected exactly one fire, got %d", fired)
	}
	if !r.Disposed() {
		t.Error("expected When reaction to dispose itself")
	}
}

func TestWhenAlreadyTrue(t *testing.T) {
	rt := New()
	ready := NewObservable(rt, true)
	fired := 0
	r := When(rt, func() bool { return ready.Get() }, func() { fired++ })

	if fired != 1 || !r.Disposed() {
		t.Errorf("expected immediate fire and dispose, got fired=%d disposed=%v", fired, r.Disposed())
	}
	if len(rt.ObserversOf(ready.ID())) != 0 {
		t.Error("expected no edges left after firing")
	}
}
