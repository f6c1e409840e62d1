package devtools

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactor"
)

// Server exposes a runtime over HTTP. Every read of the graph is done on
// the runtime's loop, so the server can run on any goroutine.
type Server struct {
	loop        *reactor.Loop
	hub         *Hub
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	callTimeout time.Duration
	router      chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithHub serves h's history at /events and its stream at /events/ws.
func WithHub(h *Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithGatherer serves g at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCallTimeout bounds how long a request waits for the loop.
// Default: 5s
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.callTimeout = d
	}
}

// NewServer creates a devtools server for loop.
func NewServer(loop *reactor.Loop, opts ...Option) *Server {
	s := &Server{
		loop:        loop,
		logger:      slog.Default(),
		callTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/graph", s.handleGraph)
	r.Get("/graph/nodes/{id}", s.handleNode)
	r.Get("/stats", s.handleStats)

	if s.hub != nil {
		r.Get("/events", s.handleEvents)
		r.Get("/events/ws", s.hub.ServeHTTP)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.New("R080").Wrap(err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	s.logger.Info("devtools listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New("R080").Wrap(err)
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.New("R080").Wrap(err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("devtools request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// snapshot reads the graph on the loop.
func (s *Server) snapshot(ctx context.Context) (reactor.GraphSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	var snap reactor.GraphSnapshot
	err := s.loop.Call(ctx, func() error {
		snap = s.loop.Runtime().Snapshot()
		return nil
	})
	return snap, err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.loop.Done():
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"runtime": s.loop.Runtime().ID().String(),
		})
	}
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeRaw(w, http.StatusBadRequest, errors.New("R090").
			WithDetail("node id must be a positive integer").FormatJSON())
		return
	}
	snap, err := s.snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, n := range snap.Nodes {
		if n.ID == reactor.NodeID(id) {
			writeJSON(w, http.StatusOK, n)
			return
		}
	}
	writeRaw(w, http.StatusNotFound, errors.New("R004").
		WithDetail("no live node with id "+strconv.FormatUint(id, 10)).FormatJSON())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Stats)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.hub.History()
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeRaw(w, http.StatusBadRequest, errors.New("R090").
				WithDetail("since must be an event sequence number").FormatJSON())
			return
		}
		filtered := events[:0]
		for _, ev := range events {
			if ev.Seq > since {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, reactor.ErrLoopClosed), stderrors.Is(err, reactor.ErrLoopFull):
		status = http.StatusServiceUnavailable
	case stderrors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.logger.Warn("devtools request failed", "error", err)
	writeRaw(w, status, errors.FromEngine(err).FormatJSON())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, string(data))
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
	w.Write([]byte("\n"))
}
