package reactor

import (
	"log/slog"

	"github.com/google/uuid"
)

// BatchPolicy decides which writes inside a batch count as changes once the
// batch completes.
type BatchPolicy int

const (
	// CollapseNetChanges compares each observable's value at batch exit with
	// its value at batch entry. If they are equal the intermediate writes are
	// forgotten and dependents do not run. This is the default.
	CollapseNetChanges BatchPolicy = iota

	// NotifyIntermediate treats every write that changed the value at the
	// time it happened as a change, even if a later write in the same batch
	// restored the original value.
	NotifyIntermediate
)

// String returns the policy name used in configuration files.
func (p BatchPolicy) String() string {
	switch p {
	case CollapseNetChanges:
		return "collapse"
	case NotifyIntermediate:
		return "intermediate"
	default:
		return "unknown"
	}
}

// ParseBatchPolicy parses the configuration name of a policy.
func ParseBatchPolicy(s string) (BatchPolicy, bool) {
	switch s {
	case "", "collapse":
		return CollapseNetChanges, true
	case "intermediate":
		return NotifyIntermediate, true
	default:
		return CollapseNetChanges, false
	}
}

// Runtime owns one dependency graph together with its tracker and batch
// coordinator. A Runtime is not safe for concurrent use; see Loop.
type Runtime struct {
	id       uuid.UUID
	logger   *slog.Logger
	onError  ErrorHandler
	observer Observer
	policy   BatchPolicy
	strict   bool
	executor Executor

	graph   *graph
	tracker tracker
	clock   uint64

	// depth counts nested batches; flushing is set while the queue drains.
	depth    int
	flushing bool
	settling bool
	queue    []*node
	touched  []*node

	budget flushBudget
	last   BudgetStats
	stats  Stats

	scope *Scope
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the logger used for default error reporting.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithErrorHandler sets the handler for errors that cannot be returned to
// a caller, such as failing reactions. The default logs them.
func WithErrorHandler(fn ErrorHandler) RuntimeOption {
	return func(rt *Runtime) {
		rt.onError = fn
	}
}

// WithObserver adds an observer for engine events.
func WithObserver(o Observer) RuntimeOption {
	return func(rt *Runtime) {
		rt.AddObserver(o)
	}
}

// WithBatchPolicy selects how intermediate writes inside a batch are treated.
func WithBatchPolicy(p BatchPolicy) RuntimeOption {
	return func(rt *Runtime) {
		rt.policy = p
	}
}

// WithMaxFlushPasses bounds the number of passes per flush. Zero disables
// the limit.
func WithMaxFlushPasses(n int) RuntimeOption {
	return func(rt *Runtime) {
		rt.budget.maxPasses = n
	}
}

// WithMaxRunsPerFlush bounds the number of reaction runs per flush. Zero
// disables the limit.
func WithMaxRunsPerFlush(n int) RuntimeOption {
	return func(rt *Runtime) {
		rt.budget.maxRuns = n
	}
}

// WithStrict rejects writes made outside Batch or Tx with ErrOutsideBatch.
// Writes from reactions are always allowed.
func WithStrict(strict bool) RuntimeOption {
	return func(rt *Runtime) {
		rt.strict = strict
	}
}

// WithExecutor sets the executor used by Loop.Go. The default starts one
// goroutine per task.
func WithExecutor(e Executor) RuntimeOption {
	return func(rt *Runtime) {
		if e != nil {
			rt.executor = e
		}
	}
}

// New creates a runtime.
func New(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		id:       uuid.New(),
		logger:   slog.Default(),
		policy:   CollapseNetChanges,
		executor: GoExecutor{},
		graph:    newGraph(),
		budget:   flushBudget{maxPasses: DefaultMaxFlushPasses},
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.logger = rt.logger.With("component", "reactor", "runtime", rt.id.String())
	return rt
}

// ID returns the runtime's instance id.
func (rt *Runtime) ID() uuid.UUID {
	return rt.id
}

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// Policy returns the configured batch policy.
func (rt *Runtime) Policy() BatchPolicy {
	return rt.policy
}

// Executor returns the executor used for off-loop tasks.
func (rt *Runtime) Executor() Executor {
	return rt.executor
}

// AddObserver registers an additional observer.
func (rt *Runtime) AddObserver(o Observer) {
	if o == nil {
		return
	}
	if rt.observer == nil {
		rt.observer = o
		return
	}
	rt.observer = Observers(rt.observer, o)
}

// Untracked runs fn without recording reads as dependencies of the
// evaluation in progress.
func (rt *Runtime) Untracked(fn func()) {
	f := rt.tracker.start(nil)
	defer rt.tracker.stop(f)
	fn()
}

// tick advances the runtime clock. Versions are never reused, so a node
// rolled back to an earlier version can never collide with a later one.
func (rt *Runtime) tick() uint64 {
	rt.clock++
	return rt.clock
}

// report hands err to the error handler and observers.
func (rt *Runtime) report(err error) {
	if err == nil {
		return
	}
	rt.stats.Errors++
	if rt.observer != nil {
		rt.observer.ErrorReported(err)
	}
	if rt.onError != nil {
		rt.onError(err)
		return
	}
	rt.logger.Error("reactor: unhandled error", "error", err)
}

// newNode allocates a node and attaches it to the scope in effect.
func (rt *Runtime) newNode(kind Kind, o nodeOptions) *node {
	n := rt.graph.add(kind, o.name)
	n.version = rt.tick()
	scope := o.scope
	if scope == nil {
		scope = rt.scope
	}
	if scope != nil {
		scope.adopt(n)
	}
	return n
}

// dispose removes n from the graph. Safe to call more than once.
func (rt *Runtime) dispose(n *node) {
	if n == nil || n.disposed {
		return
	}
	rt.graph.remove(n)
	if n.scope != nil {
		n.scope.release(n)
	}
}

// Stats counts engine activity since the runtime was created.
type Stats struct {
	Observables  int
	Derivations  int
	Reactions    int
	Flushes      int
	Passes       int
	ReactionRuns int
	Skipped      int
	Recomputes   int
	Errors       int
	LastFlush    BudgetStats
}

// Stats returns activity counters and current node counts.
func (rt *Runtime) Stats() Stats {
	s := rt.stats
	s.LastFlush = rt.last
	for _, n := range rt.graph.nodes {
		switch n.kind {
		case KindObservable:
			s.Observables++
		case KindDerivation:
			s.Derivations++
		case KindReaction:
			s.Reactions++
		}
	}
	return s
}
