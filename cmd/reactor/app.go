package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vango-dev/reactor/internal/config"
	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/internal/todo"
	"github.com/vango-dev/reactor/pkg/devtools"
	"github.com/vango-dev/reactor/pkg/instrument"
	"github.com/vango-dev/reactor/pkg/persist"
	"github.com/vango-dev/reactor/pkg/reactor"
)

// app wires a runtime, its loop and the configured observers and sink.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	rt   *reactor.Runtime
	loop *reactor.Loop
	pool *reactor.Pool

	registry *prometheus.Registry
	metrics  *instrument.Metrics
	hub      *devtools.Hub

	sink    persist.Sink
	closers []func() error

	mu     sync.Mutex
	errors []*errors.ReactorError
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadFromWorkingDir()
}

// newApp builds everything described by cfg. withHub forces a devtools hub
// even when devtools are disabled in the config.
func newApp(cfg *config.Config, withHub bool) (*app, error) {
	a := &app{cfg: cfg, logger: cfg.NewLogger(os.Stderr)}

	opts := append(cfg.RuntimeOptions(),
		reactor.WithLogger(a.logger),
		reactor.WithErrorHandler(a.recordError),
		reactor.WithObserver(instrument.NewLogging(a.logger, instrument.WithSlowThreshold(cfg.Log.SlowThreshold))),
	)

	if cfg.Executor.Workers > 0 {
		a.pool = reactor.NewPool(cfg.Executor.Workers, cfg.Executor.Queue)
		opts = append(opts, reactor.WithExecutor(a.pool))
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = instrument.NewMetrics(
			instrument.WithNamespace(cfg.Metrics.Namespace),
			instrument.WithSubsystem(cfg.Metrics.Subsystem),
			instrument.WithRegistry(a.registry),
		)
		opts = append(opts, reactor.WithObserver(a.metrics))
	}

	if cfg.Tracing.Enabled {
		opts = append(opts, reactor.WithObserver(instrument.NewTracing(
			instrument.WithTracerName(cfg.Tracing.TracerName),
		)))
	}

	if withHub || cfg.Devtools.Enabled {
		a.hub = devtools.NewHub(devtools.WithHubLogger(a.logger))
		opts = append(opts, reactor.WithObserver(a.hub))
	}

	sink, closer, err := openSink(cfg)
	if err != nil {
		if a.pool != nil {
			a.pool.Close()
		}
		return nil, err
	}
	a.sink = sink
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.rt = reactor.New(opts...)
	a.loop = reactor.NewLoop(a.rt, cfg.LoopOptions()...)
	return a, nil
}

// recordError keeps reported engine errors for the end-of-run summary.
func (a *app) recordError(err error) {
	re := errors.FromEngine(err)
	a.logger.Warn("reactor error", "code", re.Code, "node", re.Node, "error", err)
	a.mu.Lock()
	a.errors = append(a.errors, re)
	a.mu.Unlock()
}

func (a *app) reportedErrors() []*errors.ReactorError {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*errors.ReactorError(nil), a.errors...)
}

// start runs the loop and, with metrics enabled, samples runtime stats.
func (a *app) start(ctx context.Context) {
	go func() {
		if err := a.loop.Run(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
			a.logger.Error("loop stopped", "error", err)
		}
	}()
	if a.metrics != nil {
		go a.sampleStats(ctx, a.cfg.MetricsInterval())
	}
}

func (a *app) sampleStats(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.loop.Done():
			return
		case <-ticker.C:
			err := a.loop.Post(func() {
				a.metrics.ObserveStats(a.rt.Stats())
			})
			if err != nil {
				a.logger.Debug("skipping stats sample", "error", err)
			}
		}
	}
}

// call runs fn on the loop.
func (a *app) call(ctx context.Context, fn func() error) error {
	return a.loop.Call(ctx, fn)
}

func (a *app) close() {
	a.loop.Close()
	if a.pool != nil {
		a.pool.Close()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// openStore creates the todo store, restores it from the sink and binds it
// for saving. It must be called after start.
func (a *app) openStore(ctx context.Context) (*todo.Store, *persist.Binding, error) {
	key := a.cfg.Persist.Key
	data, err := persist.Load(ctx, a.sink, key)
	restored := err == nil
	if err != nil && !stderrors.Is(err, persist.ErrNotFound) {
		return nil, nil, errors.New("R042").Wrap(err)
	}

	var (
		store   *todo.Store
		binding *persist.Binding
	)
	err = a.call(ctx, func() error {
		store = todo.NewStore(a.rt)
		if restored {
			if err := store.Load(data); err != nil {
				return err
			}
		}
		opts := []persist.BindOption{
			persist.WithContext(ctx),
			persist.WithTimeout(a.cfg.PersistTimeout()),
			persist.WithLogger(a.logger),
			persist.WithName("todos.persist"),
		}
		if restored {
			opts = append(opts, persist.SkipInitial())
		}
		binding = persist.Bind(a.loop, key, store.Snapshot, a.sink, opts...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if restored {
		a.logger.Info("store restored", "key", key, "sink", a.cfg.Persist.Sink)
	}
	return store, binding, nil
}

// openSink opens the sink named by the persist section.
func openSink(cfg *config.Config) (persist.Sink, func() error, error) {
	switch cfg.Persist.Sink {
	case config.SinkFile:
		sink, err := persist.NewFileSink(cfg.PersistPath())
		if err != nil {
			return nil, nil, errors.New("R042").Wrap(err)
		}
		return sink, nil, nil

	case config.SinkSQLite:
		path := cfg.PersistPath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, errors.New("R042").Wrap(err)
		}
		sink, err := persist.OpenSQLite(path)
		if err != nil {
			return nil, nil, errors.New("R042").Wrap(err)
		}
		return sink, sink.Close, nil

	case config.SinkS3:
		client := newS3Client(cfg.Persist)
		return persist.NewS3Sink(client, cfg.Persist.Bucket, cfg.Persist.Prefix), nil, nil

	default:
		return persist.NewMemorySink(), nil, nil
	}
}

// newS3Client builds a client from the persist section. Credentials come
// from the standard AWS environment variables.
func newS3Client(cfg config.PersistConfig) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
		Credentials:  aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func envCredentials(ctx context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errors.New("R042").
			WithDetail("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set for the s3 sink")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "Environment",
	}, nil
}
