package instrument

import (
	"context"
	"log/slog"

	"github.com/vango-dev/reactor/pkg/reactor"
)

// Logging is a reactor.Observer that writes engine events to a slog
// logger. Flush summaries and runs are logged at debug level, failed runs
// at warn and reported errors at error.
type Logging struct {
	logger *slog.Logger
	slow   float64
}

// LoggingOption configures the logging observer.
type LoggingOption func(*Logging)

// WithSlowThreshold logs runs slower than seconds at info level.
func WithSlowThreshold(seconds float64) LoggingOption {
	return func(l *Logging) {
		l.slow = seconds
	}
}

// NewLogging creates a logging observer. A nil logger uses slog.Default().
func NewLogging(logger *slog.Logger, opts ...LoggingOption) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logging{logger: logger.With("component", "reactor.observer")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FlushStarted implements reactor.Observer.
func (l *Logging) FlushStarted(info reactor.FlushInfo) {
	l.logger.Debug("flush started", "queued", info.Queued)
}

// FlushFinished implements reactor.Observer.
func (l *Logging) FlushFinished(info reactor.FlushInfo) {
	level := slog.LevelDebug
	if info.Dropped > 0 {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, "flush finished",
		"passes", info.Passes,
		"ran", info.Ran,
		"skipped", info.Skipped,
		"dropped", info.Dropped,
		"duration", info.Duration,
	)
}

// ReactionRan implements reactor.Observer.
func (l *Logging) ReactionRan(info reactor.RunInfo) {
	l.run("reaction ran", info)
}

// DerivationComputed implements reactor.Observer.
func (l *Logging) DerivationComputed(info reactor.RunInfo) {
	l.run("derivation computed", info)
}

// ErrorReported implements reactor.Observer.
func (l *Logging) ErrorReported(err error) {
	l.logger.Error("reactor error", "error", err, "type", ErrorType(err))
}

func (l *Logging) run(msg string, info reactor.RunInfo) {
	level := slog.LevelDebug
	switch {
	case info.Err != nil:
		level = slog.LevelWarn
	case l.slow > 0 && info.Duration.Seconds() >= l.slow:
		level = slog.LevelInfo
	}
	args := []any{
		"node", nodeLabel(info),
		"duration", info.Duration,
	}
	if info.Err != nil {
		args = append(args, "error", info.Err)
	}
	l.logger.Log(context.Background(), level, msg, args...)
}
