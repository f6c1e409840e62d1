package devtools

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactor"
)

// EventType identifies what an Event describes.
type EventType string

const (
	EventFlush      EventType = "flush"
	EventReaction   EventType = "reaction"
	EventDerivation EventType = "derivation"
	EventError      EventType = "error"
)

// Event is one engine event as sent to devtools clients.
type Event struct {
	Seq        uint64         `json:"seq"`
	Type       EventType      `json:"type"`
	Time       time.Time      `json:"time"`
	Node       reactor.NodeID `json:"node,omitempty"`
	Name       string         `json:"name,omitempty"`
	DurationMS float64        `json:"durationMs,omitempty"`
	Error      string         `json:"error,omitempty"`
	Code       string         `json:"code,omitempty"`
	Passes     int            `json:"passes,omitempty"`
	Ran        int            `json:"ran,omitempty"`
	Skipped    int            `json:"skipped,omitempty"`
	Dropped    int            `json:"dropped,omitempty"`
}

// Hub is a reactor.Observer that keeps a short history of engine events
// and streams new ones to websocket clients.
//
// Observer methods run on the runtime goroutine, so the hub never writes
// to a socket from them: each client has a buffered queue drained by its
// own goroutine, and events for a client whose queue is full are dropped.
type Hub struct {
	reactor.NopObserver

	mu      sync.Mutex
	seq     uint64
	history []Event
	clients map[*client]struct{}
	dropped int

	historySize  int
	clientBuffer int
	derivations  bool
	writeTimeout time.Duration
	logger       *slog.Logger
	upgrader     websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHistory sets how many recent events are kept.
// Default: 256
func WithHistory(n int) HubOption {
	return func(h *Hub) {
		h.historySize = n
	}
}

// WithClientBuffer sets the per-client queue length.
// Default: 64
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		h.clientBuffer = n
	}
}

// WithDerivations controls whether derivation recomputations are
// published. They can be frequent.
// Default: true
func WithDerivations(enabled bool) HubOption {
	return func(h *Hub) {
		h.derivations = enabled
	}
}

// WithHubLogger sets the logger for connection events.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates an empty hub. Register it with reactor.WithObserver or
// Runtime.AddObserver.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:      make(map[*client]struct{}),
		historySize:  256,
		clientBuffer: 64,
		derivations:  true,
		writeTimeout: 5 * time.Second,
		logger:       slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // devtools is meant for local use
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.historySize <= 0 {
		h.historySize = 1
	}
	if h.clientBuffer <= 0 {
		h.clientBuffer = 1
	}
	return h
}

// FlushFinished publishes a flush summary.
func (h *Hub) FlushFinished(info reactor.FlushInfo) {
	h.publish(Event{
		Type:       EventFlush,
		Time:       info.Started,
		DurationMS: millis(info.Duration),
		Passes:     info.Passes,
		Ran:        info.Ran,
		Skipped:    info.Skipped,
		Dropped:    info.Dropped,
	})
}

// ReactionRan publishes a reaction run.
func (h *Hub) ReactionRan(info reactor.RunInfo) {
	h.publish(runEvent(EventReaction, info))
}

// DerivationComputed publishes a recomputation.
func (h *Hub) DerivationComputed(info reactor.RunInfo) {
	if !h.derivations {
		return
	}
	h.publish(runEvent(EventDerivation, info))
}

// ErrorReported publishes an error with its code.
func (h *Hub) ErrorReported(err error) {
	re := errors.FromEngine(err)
	h.publish(Event{
		Type:  EventError,
		Time:  time.Now(),
		Name:  re.Node,
		Error: err.Error(),
		Code:  re.Code,
	})
}

func runEvent(t EventType, info reactor.RunInfo) Event {
	ev := Event{
		Type:       t,
		Time:       info.Started,
		Node:       info.Node,
		Name:       info.Name,
		DurationMS: millis(info.Duration),
	}
	if info.Err != nil {
		ev.Error = info.Err.Error()
		ev.Code = errors.FromEngine(info.Err).Code
	}
	return ev
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	ev.Seq = h.seq
	if len(h.history) == h.historySize {
		copy(h.history, h.history[1:])
		h.history = h.history[:len(h.history)-1]
	}
	h.history = append(h.history, ev)

	if len(h.clients) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped++
		}
	}
}

// History returns the retained events, oldest first.
func (h *Hub) History() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.history...)
}

// Dropped returns how many client deliveries were skipped because a
// client's queue was full.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams events until
// the client disconnects. With ?replay=1 the retained history is sent
// first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("devtools upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.clientBuffer)}

	h.mu.Lock()
	if r.URL.Query().Get("replay") == "1" {
		for _, ev := range h.history {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			select {
			case c.send <- data:
			default:
				h.dropped++
			}
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("devtools client connected", "remote", r.RemoteAddr)

	go h.writeLoop(c)

	// Keep connection alive until client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				h.logger.Debug("devtools client read error", "error", err)
			}
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	conn.Close()
	h.logger.Debug("devtools client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) writeLoop(c *client) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "devtools shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}
