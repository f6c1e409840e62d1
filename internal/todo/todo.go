// Package todo is a small reactive store used by the reactor CLI and its
// integration tests. Each item holds observable title and done fields and
// a derived JSON encoding; the store derives counts, a report line and a
// snapshot of the whole list.
package todo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vango-dev/reactor/pkg/reactor"
)

var (
	// ErrNotFound is returned for unknown item ids.
	ErrNotFound = errors.New("todo: item not found")
	// ErrEmptyTitle is returned when a title is blank.
	ErrEmptyTitle = errors.New("todo: title must not be empty")
)

// Item is the serialized form of a Todo.
type Item struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Done  bool      `json:"done"`
}

// Todo is one reactive item.
type Todo struct {
	ID    uuid.UUID
	Title *reactor.Observable[string]
	Done  *reactor.Observable[bool]

	// JSON is the item's encoding. It depends on Title and Done only.
	JSON *reactor.Derivation[string]

	scope *reactor.Scope
}

func newTodo(rt *reactor.Runtime, parent *reactor.Scope, id uuid.UUID, title string, done bool) *Todo {
	t := &Todo{ID: id, scope: parent.NewScope()}
	prefix := "todo." + id.String()[:8]
	t.Scope().Do(func() {
		t.Title = reactor.NewObservable(rt, title, reactor.WithName(prefix+".title"))
		t.Done = reactor.NewObservable(rt, done, reactor.WithName(prefix+".done"))
		t.JSON = reactor.NewDerivation(rt, func() (string, error) {
			data, err := json.Marshal(Item{ID: t.ID, Title: t.Title.Get(), Done: t.Done.Get()})
			return string(data), err
		}, reactor.WithName(prefix+".json"))
	})
	return t
}

// Scope owns the item's nodes.
func (t *Todo) Scope() *reactor.Scope {
	return t.scope
}

// Item returns the current values without tracking.
func (t *Todo) Item() Item {
	return Item{ID: t.ID, Title: t.Title.Peek(), Done: t.Done.Peek()}
}

// Store is an ordered list of todos.
type Store struct {
	rt    *reactor.Runtime
	scope *reactor.Scope

	items *reactor.Observable[[]*Todo]

	// Remaining counts items not done.
	Remaining *reactor.Derivation[int]
	// Report summarizes progress, e.g. "Next: Write docs (1 of 3 done)".
	Report *reactor.Derivation[string]
	// JSON encodes the list in order, reusing each item's JSON derivation.
	JSON *reactor.Derivation[string]
}

// NewStore creates an empty store whose nodes live in a scope of its own.
func NewStore(rt *reactor.Runtime) *Store {
	s := &Store{rt: rt, scope: rt.NewScope()}
	s.scope.Do(func() {
		s.items = reactor.NewObservable(rt, []*Todo(nil), reactor.WithName("todos.items")).
			WithEquals(sameTodos)

		s.Remaining = reactor.NewComputed(rt, func() int {
			n := 0
			for _, t := range s.items.Get() {
				if !t.Done.Get() {
					n++
				}
			}
			return n
		}, reactor.WithName("todos.remaining"))

		s.Report = reactor.NewComputed(rt, func() string {
			items := s.items.Get()
			if len(items) == 0 {
				return "Nothing to do"
			}
			remaining := s.Remaining.Value()
			if remaining == 0 {
				return fmt.Sprintf("All %d done", len(items))
			}
			var next string
			for _, t := range items {
				if !t.Done.Get() {
					next = t.Title.Get()
					break
				}
			}
			return fmt.Sprintf("Next: %s (%d of %d done)", next, len(items)-remaining, len(items))
		}, reactor.WithName("todos.report"))

		s.JSON = reactor.NewDerivation(rt, func() (string, error) {
			items := s.items.Get()
			parts := make([]string, 0, len(items))
			for _, t := range items {
				js, err := t.JSON.Get()
				if err != nil {
					return "", err
				}
				parts = append(parts, js)
			}
			return "[" + strings.Join(parts, ",") + "]", nil
		}, reactor.WithName("todos.json"))
	})
	return s
}

// sameTodos compares lists by item identity.
func sameTodos(a, b []*Todo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Runtime returns the store's runtime.
func (s *Store) Runtime() *reactor.Runtime {
	return s.rt
}

// Items returns the current list. Reading it inside an evaluation tracks
// the list, not the items' fields.
func (s *Store) Items() []*Todo {
	return s.items.Get()
}

// Len returns the number of items without tracking.
func (s *Store) Len() int {
	return len(s.items.Peek())
}

// Find returns the item with id.
func (s *Store) Find(id uuid.UUID) (*Todo, error) {
	for _, t := range s.items.Peek() {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Add appends a new open item.
func (s *Store) Add(title string) (*Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	var t *Todo
	err := s.rt.Tx(func() error {
		t = newTodo(s.rt, s.scope, uuid.New(), title, false)
		return s.setItems(append(s.clone(), t))
	})
	return t, err
}

// Toggle flips an item's done flag.
func (s *Store) Toggle(id uuid.UUID) error {
	t, err := s.Find(id)
	if err != nil {
		return err
	}
	return s.rt.Tx(func() error {
		return t.Done.Update(func(done bool) bool { return !done })
	})
}

// SetDone sets an item's done flag.
func (s *Store) SetDone(id uuid.UUID, done bool) error {
	t, err := s.Find(id)
	if err != nil {
		return err
	}
	return s.rt.Tx(func() error {
		return t.Done.Set(done)
	})
}

// Rename changes an item's title.
func (s *Store) Rename(id uuid.UUID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	t, err := s.Find(id)
	if err != nil {
		return err
	}
	return s.rt.Tx(func() error {
		return t.Title.Set(title)
	})
}

// Remove deletes an item and disposes its nodes.
func (s *Store) Remove(id uuid.UUID) error {
	t, err := s.Find(id)
	if err != nil {
		return err
	}
	items := s.clone()
	for i, c := range items {
		if c == t {
			items = append(items[:i], items[i+1:]...)
			break
		}
	}
	err = s.rt.Tx(func() error {
		return s.setItems(items)
	})
	t.scope.Dispose()
	return err
}

// ClearDone removes every finished item.
func (s *Store) ClearDone() (int, error) {
	var keep, drop []*Todo
	for _, t := range s.items.Peek() {
		if t.Done.Peek() {
			drop = append(drop, t)
		} else {
			keep = append(keep, t)
		}
	}
	if len(drop) == 0 {
		return 0, nil
	}
	err := s.rt.Tx(func() error {
		return s.setItems(keep)
	})
	for _, t := range drop {
		t.scope.Dispose()
	}
	return len(drop), err
}

// Snapshot returns the list encoding as bytes. It is tracked, so it can
// serve as the snapshot function of a persistence binding.
func (s *Store) Snapshot() ([]byte, error) {
	js, err := s.JSON.Get()
	if err != nil {
		return nil, err
	}
	return []byte(js), nil
}

// Load replaces the list with the items encoded in data.
func (s *Store) Load(data []byte) error {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("todo: decode snapshot: %w", err)
	}
	old := s.items.Peek()
	err := s.rt.Tx(func() error {
		next := make([]*Todo, 0, len(items))
		for _, it := range items {
			id := it.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			next = append(next, newTodo(s.rt, s.scope, id, it.Title, it.Done))
		}
		return s.setItems(next)
	})
	for _, t := range old {
		t.scope.Dispose()
	}
	return err
}

// Dispose releases every node owned by the store.
func (s *Store) Dispose() {
	s.scope.Dispose()
}

func (s *Store) clone() []*Todo {
	return append([]*Todo(nil), s.items.Peek()...)
}

func (s *Store) setItems(items []*Todo) error {
	return s.items.Set(items)
}
