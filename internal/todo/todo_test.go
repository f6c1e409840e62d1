package todo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vango-dev/reactor/pkg/persist"
	"github.com/vango-dev/reactor/pkg/reactor"
)

type computeCounter struct {
	reactor.NopObserver
	counts map[string]int
}

func (c *computeCounter) DerivationComputed(info reactor.RunInfo) {
	c.counts[info.Name]++
}

func TestStoreBasics(t *testing.T) {
	rt := reactor.New()
	s := NewStore(rt)

	docs, err := s.Add("Write docs")
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	tests, _ := s.Add("  Write tests  ")
	s.Add("Ship")

	if s.Len() != 3 {
		t.Errorf("expected 3 items, got %d", s.Len())
	}
	if tests.Title.Get() != "Write tests" {
		t.Errorf("expected trimmed title, got %q", tests.Title.Get())
	}
	if s.Remaining.Value() != 3 {
		t.Errorf("expected 3 remaining, got %d", s.Remaining.Value())
	}
	if got := s.Report.Value(); got != "Next: Write docs (0 of 3 done)" {
		t.Errorf("unexpected report %q", got)
	}

	if err := s.Toggle(docs.ID); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if got := s.Report.Value(); got != "Next: Write tests (1 of 3 done)" {
		t.Errorf("unexpected report %q", got)
	}

	if err := s.Rename(tests.ID, "Write more tests"); err != nil {
		t.Fatalf("Rename() error: %v", err)
	}
	if got, _ := s.Find(tests.ID); got.Title.Get() != "Write more tests" {
		t.Errorf("unexpected title %q", got.Title.Get())
	}

	if err := s.Remove(docs.ID); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if s.Len() != 2 || !docs.Title.Disposed() {
		t.Errorf("expected item removed and disposed, got len=%d", s.Len())
	}
}

func TestStoreErrors(t *testing.T) {
	s := NewStore(reactor.New())
	if _, err := s.Add("   "); !errors.Is(err, ErrEmptyTitle) {
		t.Errorf("expected ErrEmptyTitle, got %v", err)
	}
	missing := uuid.New()
	if err := s.Toggle(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Remove(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	item, _ := s.Add("x")
	if err := s.Rename(item.ID, ""); !errors.Is(err, ErrEmptyTitle) {
		t.Errorf("expected ErrEmptyTitle, got %v", err)
	}
	if got := s.Report.Value(); got != "Next: x (0 of 1 done)" {
		t.Errorf("unexpected report %q", got)
	}
	s.SetDone(item.ID, true)
	if got := s.Report.Value(); got != "All 1 done" {
		t.Errorf("unexpected report %q", got)
	}
}

func TestTitleChangeReusesDone(t *testing.T) {
	counter := &computeCounter{counts: map[string]int{}}
	rt := reactor.New(reactor.WithObserver(counter))
	s := NewStore(rt)
	item, _ := s.Add("Write docs")

	var seen []string
	reactor.Autorun(rt, func() {
		js, _ := s.JSON.Get()
		seen = append(seen, js)
	})
	reactor.Autorun(rt, func() { s.Remaining.Value() })

	before := counter.counts["todos.remaining"]
	item.Title.Set("Write better docs")

	if counter.counts["todos.remaining"] != before {
		t.Errorf("expected remaining not to recompute on a title change")
	}
	if len(seen) != 2 || !strings.Contains(seen[1], "Write better docs") {
		t.Errorf("expected json reaction to see new title, got %v", seen)
	}

	rt.Batch(func() {
		item.Done.Set(true)
		item.Done.Set(false)
	})
	if len(seen) != 2 {
		t.Errorf("expected net-zero toggle to be silent, got %d runs", len(seen))
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	rt := reactor.New()
	s := NewStore(rt)
	a, _ := s.Add("a")
	s.Add("b")
	s.Toggle(a.ID)

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	other := NewStore(rt)
	if err := other.Load(data); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if other.Len() != 2 || other.Remaining.Value() != 1 {
		t.Errorf("expected 2 items with 1 remaining, got %d/%d", other.Len(), other.Remaining.Value())
	}
	got, err := other.Find(a.ID)
	if err != nil || !got.Done.Get() {
		t.Errorf("expected loaded item to keep id and done flag, got %v", err)
	}

	if err := other.Load([]byte("not json")); err == nil {
		t.Error("expected decode error")
	}
}

func TestClearDone(t *testing.T) {
	s := NewStore(reactor.New())
	a, _ := s.Add("a")
	s.Add("b")
	s.Toggle(a.ID)

	n, err := s.ClearDone()
	if err != nil || n != 1 {
		t.Fatalf("expected 1 cleared, got %d (%v)", n, err)
	}
	if s.Len() != 1 || s.Remaining.Value() != 1 {
		t.Errorf("unexpected state after clear: len=%d", s.Len())
	}
	if n, _ := s.ClearDone(); n != 0 {
		t.Errorf("expected nothing to clear, got %d", n)
	}
}

func TestStoreStrictRuntime(t *testing.T) {
	s := NewStore(reactor.New(reactor.WithStrict(true)))
	item, err := s.Add("strict")
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := s.Toggle(item.ID); err != nil {
		t.Errorf("expected store writes to be batched, got %v", err)
	}
}

func TestStorePersistence(t *testing.T) {
	rt := reactor.New()
	loop := reactor.NewLoop(rt)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	sink := persist.NewMemorySink()
	saved := make(chan struct{}, 8)

	var s *Store
	err := loop.Call(ctx, func() error {
		s = NewStore(rt)
		binding := persist.Bind(loop, "todos", s.Snapshot, sink)
		reactor.Watch(rt, func() persist.Status { return binding.Status().Get() }, func(now, _ persist.Status) {
			if now == persist.StatusSaved {
				saved <- struct{}{}
			}
		})
		_, err := s.Add("persist me")
		return err
	})
	if err != nil {
		t.Fatalf("setup error: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		data, err := sink.Get(ctx, "todos")
		if err == nil && strings.Contains(string(data), "persist me") {
			break
		}
		select {
		case <-saved:
		case <-deadline:
			t.Fatal("snapshot with the new item was not saved")
		}
	}
}
