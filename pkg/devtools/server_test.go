package devtools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/reactor/pkg/instrument"
	"github.com/vango-dev/reactor/pkg/reactor"
)

type fixture struct {
	rt     *reactor.Runtime
	loop   *reactor.Loop
	hub    *Hub
	server *httptest.Server

	count   *reactor.Observable[int]
	double  *reactor.Derivation[int]
	printer *reactor.Reaction
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{hub: NewHub()}
	f.rt = reactor.New(reactor.WithObserver(f.hub), reactor.WithErrorHandler(func(error) {}))
	f.loop = reactor.NewLoop(f.rt)

	ctx, cancel := context.WithCancel(context.Background())
	go f.loop.Run(ctx)
	t.Cleanup(cancel)

	f.call(t, func() {
		f.count = reactor.NewObservable(f.rt, 1, reactor.WithName("count"))
		f.double = reactor.NewComputed(f.rt, func() int { return f.count.Get() * 2 }, reactor.WithName("double"))
		f.printer = reactor.Autorun(f.rt, func() { f.double.Value() }, reactor.WithName("print"))
	})

	srv := NewServer(f.loop, append([]Option{WithHub(f.hub)}, opts...)...)
	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) call(t *testing.T, fn func()) {
	t.Helper()
	err := f.loop.Call(context.Background(), func() error {
		fn()
		return nil
	})
	if err != nil {
		t.Fatalf("loop.Call() error: %v", err)
	}
}

func (f *fixture) get(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s error: %v", path, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("GET %s decode error: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	var body map[string]string
	if status := f.get(t, "/healthz", &body); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["runtime"] != f.rt.ID().String() {
		t.Errorf("expected runtime id %s, got %q", f.rt.ID(), body["runtime"])
	}

	f.loop.Close()
	if status := f.get(t, "/healthz", &body); status != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after close, got %d", status)
	}
}

func TestGraph(t *testing.T) {
	f := newFixture(t)

	var snap reactor.GraphSnapshot
	if status := f.get(t, "/graph", &snap); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(snap.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(snap.Nodes))
	}
	if snap.Policy != "collapse" {
		t.Errorf("expected collapse policy, got %s", snap.Policy)
	}

	byName := map[string]reactor.NodeInfo{}
	for _, n := range snap.Nodes {
		byName[n.Name] = n
	}
	printer := byName["print"]
	if len(printer.Deps) != 1 || printer.Deps[0] != f.double.ID() {
		t.Errorf("expected print to depend on double, got %v", printer.Deps)
	}
	double := byName["double"]
	if len(double.Observers) != 1 || double.Observers[0] != f.printer.ID() {
		t.Errorf("expected double to be observed by print, got %v", double.Observers)
	}
}

func TestNode(t *testing.T) {
	f := newFixture(t)

	var node reactor.NodeInfo
	path := "/graph/nodes/" + f.count.ID().String()
	if status := f.get(t, path, &node); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if node.Name != "count" || node.Kind != "observable" {
		t.Errorf("unexpected node %+v", node)
	}

	var problem map[string]any
	if status := f.get(t, "/graph/nodes/9999", &problem); status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
	if problem["code"] != "R004" {
		t.Errorf("expected R004, got %v", problem["code"])
	}
	if status := f.get(t, "/graph/nodes/abc", &problem); status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.call(t, func() { f.count.Set(2) })

	var stats reactor.Stats
	if status := f.get(t, "/stats", &stats); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if stats.Observables != 1 || stats.Derivations != 1 || stats.Reactions != 1 {
		t.Errorf("unexpected node counts %+v", stats)
	}
	if stats.ReactionRuns != 2 {
		t.Errorf("expected 2 reaction runs, got %d", stats.ReactionRuns)
	}
}

func TestGraphAfterLoopClosed(t *testing.T) {
	f := newFixture(t)
	f.loop.Close()

	var problem map[string]any
	if status := f.get(t, "/graph", &problem); status != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", status)
	}
	if problem["code"] != "R020" {
		t.Errorf("expected R020, got %v", problem["code"])
	}
}

func TestEventsHistory(t *testing.T) {
	f := newFixture(t)

	var events []Event
	f.get(t, "/events", &events)
	if len(events) == 0 {
		t.Fatal("expected setup events")
	}
	last := events[len(events)-1].Seq

	f.call(t, func() { f.count.Set(5) })

	var newer []Event
	f.get(t, "/events?since="+strconv.FormatUint(last, 10), &newer)
	var sawPrint, sawFlush bool
	for _, ev := range newer {
		if ev.Seq <= last {
			t.Errorf("expected only events after %d, got %d", last, ev.Seq)
		}
		if ev.Type == EventReaction && ev.Name == "print" {
			sawPrint = true
		}
		if ev.Type == EventFlush && ev.Ran == 1 {
			sawFlush = true
		}
	}
	if !sawPrint || !sawFlush {
		t.Errorf("expected print run and flush events, got %+v", newer)
	}

	var problem map[string]any
	if status := f.get(t, "/events?since=x", &problem); status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithGatherer(reg))
	f.call(t, func() {
		f.rt.AddObserver(instrument.NewMetrics(instrument.WithRegistry(reg)))
	})
	f.call(t, func() { f.count.Set(3) })

	resp, err := http.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "reactor_reaction_runs_total") {
		t.Errorf("expected reaction metrics, got:\n%s", body)
	}

	other := newFixture(t)
	if status := other.get(t, "/metrics", nil); status != http.StatusNotFound {
		t.Errorf("expected 404 without a gatherer, got %d", status)
	}
}

func dial(t *testing.T, f *fixture, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/events/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f, "")

	f.call(t, func() { f.count.Set(10) })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() error: %v", err)
		}
		if ev.Type == EventReaction && ev.Name == "print" {
			if ev.Node != f.printer.ID() {
				t.Errorf("expected node %d, got %d", f.printer.ID(), ev.Node)
			}
			return
		}
	}
}

func TestEventStreamReplay(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f, "?replay=1")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if first.Seq != 1 {
		t.Errorf("expected replay to start at seq 1, got %d", first.Seq)
	}
}
