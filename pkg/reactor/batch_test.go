package reactor

import (
	"errors"
	"testing"
)

func TestBatchRunsReactionOnceWithLatestValues(t *testing.T) {
	rt := New()
	first := NewObservable(rt, "Ada")
	last := NewObservable(rt, "Byron")
	var seen []string
	Autorun(rt, func() {
		seen = append(seen, first.Get()+" "+last.Get())
	})

	rt.Batch(func() {
		first.Set("Grace")
		last.Set("Hopper")
		first.Set("Barbara")
		last.Set("Liskov")
	})

	if len(seen) != 2 {
		t.Fatalf("expected 2 runs, got %d: %v", len(seen), seen)
	}
	if seen[1] != "Barbara Liskov" {
		t.Errorf("expected latest values, got %q", seen[1])
	}
}

func TestNestedBatchFlushesOnce(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 0)
	runs := 0
	Autorun(rt, func() {
		a.Get()
		runs++
	})

	rt.Batch(func() {
		a.Set(1)
		rt.Batch(func() {
			a.Set(2)
		})
		if runs != 1 {
			t.Errorf("expected inner batch not to flush, got %d runs", runs)
		}
		if !rt.InBatch() {
			t.Error("expected InBatch to be true")
		}
		a.Set(3)
	})

	if runs != 2 {
		t.Errorf("expected 2 runs, got %d", runs)
	}
	if rt.InBatch() {
		t.Error("expected InBatch to be false after flush")
	}
}

func TestBatchRevertedValueUnderCollapse(t *testing.T) {
	rt := New()
	done := NewObservable(rt, false)
	runs := 0
	Autorun(rt, func() {
		done.Get()
		runs++
	})

	rt.Batch(func() {
		done.Set(true)
		done.Set(false)
	})

	if runs != 1 {
		t.Errorf("expected no run for a net-zero batch, got %d runs", runs)
	}
	if rt.Stats().Skipped != 1 {
		t.Errorf("expected the queued reaction to be skipped, got %d", rt.Stats().Skipped)
	}

	done.Set(true)
	if runs != 2 {
		t.Errorf("expected later real change to run, got %d runs", runs)
	}
}

func TestBatchRevertedValueReadMidBatch(t *testing.T) {
	rt := New()
	done := NewObservable(rt, false)
	label := NewComputed(rt, func() string {
		if done.Get() {
			return "done"
		}
		return "open"
	})
	shout := NewComputed(rt, func() string { return label.Value() + "!" })
	var seen []string
	Autorun(rt, func() { seen = append(seen, shout.Value()) })

	rt.Batch(func() {
		done.Set(true)
		if got := shout.Value(); got != "done!" {
			t.Errorf("expected reads inside the batch to see done!, got %q", got)
		}
		done.Set(false)
	})

	if len(seen) != 1 {
		t.Errorf("expected no run for a net-zero batch read midway, got %v", seen)
	}
	if got := shout.Value(); got != "open!" {
		t.Errorf("expected open!, got %q", got)
	}

	done.Set(true)
	if len(seen) != 2 || seen[1] != "done!" {
		t.Errorf("expected a later real change to run with done!, got %v", seen)
	}
}

func TestBatchReadMidBatchUnderNotifyIntermediate(t *testing.T) {
	rt := New(WithBatchPolicy(NotifyIntermediate))
	done := NewObservable(rt, false)
	label := NewComputed(rt, func() string {
		if done.Get() {
			return "done"
		}
		return "open"
	})
	var seen []string
	Autorun(rt, func() { seen = append(seen, label.Value()) })

	rt.Batch(func() {
		done.Set(true)
		label.Value()
		done.Set(false)
	})

	if len(seen) != 2 || seen[1] != "open" {
		t.Errorf("expected one run with the final value, got %v", seen)
	}
}

func TestBatchRevertedValueUnderNotifyIntermediate(t *testing.T) {
	rt := New(WithBatchPolicy(NotifyIntermediate))
	done := NewObservable(rt, false)
	runs := 0
	Autorun(rt, func() {
		done.Get()
		runs++
	})

	rt.Batch(func() {
		done.Set(true)
		done.Set(false)
	})

	if runs != 2 {
		t.Errorf("expected exactly one run for intermediate change, got %d runs", runs-1)
	}
}

func TestBatchRevertedValueSkipsDerivationRecompute(t *testing.T) {
	rt := New()
	count := NewObservable(rt, 1)
	computes := 0
	doubled := NewComputed(rt, func() int {
		computes++
		return count.Get() * 2
	})
	Autorun(rt, func() { doubled.Value() })

	rt.Batch(func() {
		count.Set(7)
		count.Set(1)
	})

	if computes != 1 {
		t.Errorf("expected no recompute for a net-zero batch, got %d computes", computes)
	}
}

func TestTxReturnsErrorAndKeepsWrites(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 0)
	runs := 0
	Autorun(rt, func() {
		a.Get()
		runs++
	})
	errStop := errors.New("stop")

	err := rt.Tx(func() error {
		a.Set(1)
		return errStop
	})

	if !errors.Is(err, errStop) {
		t.Errorf("expected errStop, got %v", err)
	}
	if a.Get() != 1 || runs != 2 {
		t.Errorf("expected write to be kept and flushed, got value=%d runs=%d", a.Get(), runs)
	}
}

func TestBatchFlushesOnPanic(t *testing.T) {
	rt := New()
	a := NewObservable(rt, 0)
	runs := 0
	Autorun(rt, func() {
		a.Get()
		runs++
	})

	func() {
		defer func() {
			if r := recover(); r != "abort" {
				t.Errorf("expected panic to propagate, got %v", r)
			}
		}()
		rt.Batch(func() {
			a.Set(1)
			panic("abort")
		})
	}()

	if runs != 2 {
		t.Errorf("expected flush before panic propagated, got %d runs", runs)
	}
	if rt.InBatch() {
		t.Error("expected batch depth to be restored")
	}
}

func TestFlushPassLimit(t *testing.T) {
	var reported []error
	rt := New(
		WithMaxFlushPasses(5),
		WithErrorHandler(func(err error) { reported = append(reported, err) }),
	)
	a := NewObservable(rt, 0)
	Autorun(rt, func() {
		if v := a.Get(); v >= 10 {
			a.Set(v + 1)
		}
	})

	a.Set(10)

	if len(reported) != 1 || !errors.Is(reported[0], ErrFlushLimit) {
		t.Fatalf("expected ErrFlushLimit, got %v", reported)
	}
	if got := rt.Stats().LastFlush.Passes; got != 5 {
		t.Errorf("expected 5 passes, got %d", got)
	}
	if rt.InBatch() {
		t.Error("expected runtime to leave the flush")
	}
}

func TestFlushRunLimit(t *testing.T) {
	var reported []error
	rt := New(
		WithMaxRunsPerFlush(1),
		WithErrorHandler(func(err error) { reported = append(reported, err) }),
	)
	a := NewObservable(rt, 0)
	r1 := Autorun(rt, func() { a.Get() })
	r2 := Autorun(rt, func() { a.Get() })

	a.Set(1)

	if len(reported) != 1 || !errors.Is(reported[0], ErrFlushLimit) {
		t.Fatalf("expected ErrFlushLimit, got %v", reported)
	}
	if r1.Runs() != 2 || r2.Runs() != 1 {
		t.Errorf("expected r1=2 r2=1, got r1=%d r2=%d", r1.Runs(), r2.Runs())
	}

	r1.Dispose()
	a.Set(2)
	if r2.Runs() != 2 {
		t.Errorf("expected dropped reaction to be schedulable again, got %d runs", r2.Runs())
	}
}

func TestParseBatchPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want BatchPolicy
		ok   bool
	}{
		{"", CollapseNetChanges, true},
		{"collapse", CollapseNetChanges, true},
		{"intermediate", NotifyIntermediate, true},
		{"eager", CollapseNetChanges, false},
	}
	for _, tt := range tests {
		got, ok := ParseBatchPolicy(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseBatchPolicy(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	if NotifyIntermediate.String() != "intermediate" {
		t.Errorf("unexpected name %q", NotifyIntermediate.String())
	}
}
