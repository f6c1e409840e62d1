package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactor"
)

// ConfigFileNames are the file names searched for, in order.
var ConfigFileNames = []string{"reactor.yaml", "reactor.yml", "reactor.json"}

// DefaultConfigFileName is the name used when writing a new config.
const DefaultConfigFileName = "reactor.yaml"

// Sink kinds.
const (
	SinkMemory = "memory"
	SinkFile   = "file"
	SinkS3     = "s3"
	SinkSQLite = "sqlite"
)

// Config represents the reactor.yaml configuration file.
type Config struct {
	// Runtime configures the reactive engine.
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`

	// Executor configures where background tasks run.
	Executor ExecutorConfig `json:"executor" yaml:"executor"`

	// Loop configures the runtime goroutine.
	Loop LoopConfig `json:"loop" yaml:"loop"`

	// Log configures structured logging.
	Log LogConfig `json:"log" yaml:"log"`

	// Metrics configures the Prometheus observer.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Tracing configures the OpenTelemetry observer.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`

	// Devtools configures the inspection server.
	Devtools DevtoolsConfig `json:"devtools" yaml:"devtools"`

	// Persist configures where snapshots are saved.
	Persist PersistConfig `json:"persist" yaml:"persist"`

	// configPath is the path to the loaded config file.
	configPath string
}

// RuntimeConfig configures the engine.
type RuntimeConfig struct {
	// BatchPolicy is "collapse" (default) or "intermediate".
	BatchPolicy string `json:"batchPolicy,omitempty" yaml:"batchPolicy,omitempty"`

	// MaxFlushPasses bounds the passes of a single flush.
	// Default: 100
	MaxFlushPasses int `json:"maxFlushPasses,omitempty" yaml:"maxFlushPasses,omitempty"`

	// MaxRunsPerFlush bounds the reaction runs of a single flush.
	// 0 means unlimited.
	MaxRunsPerFlush int `json:"maxRunsPerFlush,omitempty" yaml:"maxRunsPerFlush,omitempty"`

	// Strict rejects writes outside a batch.
	Strict bool `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// ExecutorConfig configures background work.
type ExecutorConfig struct {
	// Workers is the size of the worker pool. 0 starts a goroutine per task.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`

	// Queue is the pool's backlog.
	Queue int `json:"queue,omitempty" yaml:"queue,omitempty"`
}

// LoopConfig configures the runtime goroutine.
type LoopConfig struct {
	// Queue is the mailbox capacity.
	// Default: 256
	Queue int `json:"queue,omitempty" yaml:"queue,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: "info"
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" or "json".
	// Default: "text"
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// SlowThreshold logs runs slower than this many seconds at warn level.
	SlowThreshold float64 `json:"slowThreshold,omitempty" yaml:"slowThreshold,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Subsystem string `json:"subsystem,omitempty" yaml:"subsystem,omitempty"`

	// Interval is how often runtime stats are sampled into gauges.
	// Default: "5s"
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// TracingConfig configures OpenTelemetry spans.
type TracingConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	TracerName string `json:"tracerName,omitempty" yaml:"tracerName,omitempty"`
}

// DevtoolsConfig configures the devtools server.
type DevtoolsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the listen address.
	// Default: "127.0.0.1:7070"
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// PersistConfig configures snapshot persistence.
type PersistConfig struct {
	// Sink is memory, file, s3 or sqlite.
	// Default: "memory"
	Sink string `json:"sink,omitempty" yaml:"sink,omitempty"`

	// Key names the snapshot inside the sink.
	// Default: "todos"
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// Path is the directory (file) or database (sqlite), relative to the
	// config file. Defaults to .reactor/state or .reactor/state.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Timeout bounds a single save.
	// Default: "10s"
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// S3 settings.
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty" yaml:"pathStyle,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			BatchPolicy:    reactor.CollapseNetChanges.String(),
			MaxFlushPasses: reactor.DefaultMaxFlushPasses,
		},
		Executor: ExecutorConfig{
			Workers: 4,
			Queue:   64,
		},
		Loop: LoopConfig{
			Queue: reactor.DefaultLoopQueue,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: "reactor",
			Interval:  "5s",
		},
		Tracing: TracingConfig{
			TracerName: "github.com/vango-dev/reactor",
		},
		Devtools: DevtoolsConfig{
			Addr: "127.0.0.1:7070",
		},
		Persist: PersistConfig{
			Sink:    SinkMemory,
			Key:     "todos",
			Timeout: "10s",
		},
	}
}

// Load finds and loads the config file in dir.
func Load(dir string) (*Config, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("R060").
		WithDetail("No reactor.yaml, reactor.yml or reactor.json found in " + dir).
		WithSuggestion("Run 'reactor init' to create one")
}

// LoadFile loads configuration from a specific file. The format follows
// the extension: .json is JSON, anything else is YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R060").
				WithDetail("Configuration file not found: " + path).
				WithSuggestion("Run 'reactor init' to create one")
		}
		return nil, errors.New("R061").Wrap(err)
	}

	cfg := New()
	if isJSON(path) {
		err = decodeJSON(data, cfg)
	} else {
		err = decodeYAML(data, cfg)
	}
	if err != nil {
		re := errors.New("R061").Wrap(err)
		if line := errorLine(data, err); line > 0 {
			re.WithLocation(path, line, 0)
		}
		return nil, re
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeJSON(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// errorLine extracts the 1-based line a decode error points at, or 0.
func errorLine(data []byte, err error) int {
	var syntax *json.SyntaxError
	if stderrors.As(err, &syntax) {
		return 1 + bytes.Count(data[:min(int(syntax.Offset), len(data))], []byte("\n"))
	}
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		return 1 + bytes.Count(data[:min(int(typeErr.Offset), len(data))], []byte("\n"))
	}
	if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path, as JSON or YAML depending on
// the extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.New("R063").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("R063").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path to the config file.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return "."
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in values left empty by the file.
func (c *Config) applyDefaults() {
	d := New()

	if c.Runtime.BatchPolicy == "" {
		c.Runtime.BatchPolicy = d.Runtime.BatchPolicy
	}
	if c.Runtime.MaxFlushPasses == 0 {
		c.Runtime.MaxFlushPasses = d.Runtime.MaxFlushPasses
	}
	if c.Executor.Workers > 0 && c.Executor.Queue == 0 {
		c.Executor.Queue = d.Executor.Queue
	}
	if c.Loop.Queue == 0 {
		c.Loop.Queue = d.Loop.Queue
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.Metrics.Interval == "" {
		c.Metrics.Interval = d.Metrics.Interval
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = d.Tracing.TracerName
	}
	if c.Devtools.Addr == "" {
		c.Devtools.Addr = d.Devtools.Addr
	}
	if c.Persist.Sink == "" {
		c.Persist.Sink = d.Persist.Sink
	}
	if c.Persist.Key == "" {
		c.Persist.Key = d.Persist.Key
	}
	if c.Persist.Timeout == "" {
		c.Persist.Timeout = d.Persist.Timeout
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	invalid := func(field, detail, suggestion string) error {
		return errors.New("R062").
			WithDetail(field + ": " + detail).
			WithSuggestion(suggestion)
	}

	if _, ok := reactor.ParseBatchPolicy(c.Runtime.BatchPolicy); !ok {
		return invalid("runtime.batchPolicy", fmt.Sprintf("unknown policy %q", c.Runtime.BatchPolicy),
			"Use collapse or intermediate")
	}
	if c.Runtime.MaxFlushPasses < 0 {
		return invalid("runtime.maxFlushPasses", "must not be negative", "Remove it to use the default of 100")
	}
	if c.Runtime.MaxRunsPerFlush < 0 {
		return invalid("runtime.maxRunsPerFlush", "must not be negative", "Use 0 for no limit")
	}
	if c.Executor.Workers < 0 || c.Executor.Queue < 0 {
		return invalid("executor", "workers and queue must not be negative", "Use workers: 0 to start a goroutine per task")
	}
	if c.Loop.Queue < 0 {
		return invalid("loop.queue", "must not be negative", "Remove it to use the default of 256")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return invalid("log.level", err.Error(), "Use debug, info, warn or error")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format", fmt.Sprintf("unknown format %q", c.Log.Format), "Use text or json")
	}
	if c.Log.SlowThreshold < 0 {
		return invalid("log.slowThreshold", "must not be negative", "Use 0 to disable slow-run warnings")
	}
	if d, err := time.ParseDuration(c.Metrics.Interval); err != nil || d <= 0 {
		return invalid("metrics.interval", fmt.Sprintf("invalid duration %q", c.Metrics.Interval), "Use a duration such as 5s")
	}
	if d, err := time.ParseDuration(c.Persist.Timeout); err != nil || d <= 0 {
		return invalid("persist.timeout", fmt.Sprintf("invalid duration %q", c.Persist.Timeout), "Use a duration such as 10s")
	}

	switch c.Persist.Sink {
	case SinkMemory, SinkFile, SinkSQLite:
	case SinkS3:
		if c.Persist.Bucket == "" {
			return invalid("persist.bucket", "required for the s3 sink", "Set persist.bucket to an existing bucket")
		}
	default:
		return invalid("persist.sink", fmt.Sprintf("unknown sink %q", c.Persist.Sink), "Use memory, file, s3 or sqlite")
	}
	return nil
}

// RuntimeOptions converts the runtime section into engine options.
func (c *Config) RuntimeOptions() []reactor.RuntimeOption {
	policy, _ := reactor.ParseBatchPolicy(c.Runtime.BatchPolicy)
	opts := []reactor.RuntimeOption{
		reactor.WithBatchPolicy(policy),
		reactor.WithStrict(c.Runtime.Strict),
	}
	if c.Runtime.MaxFlushPasses > 0 {
		opts = append(opts, reactor.WithMaxFlushPasses(c.Runtime.MaxFlushPasses))
	}
	if c.Runtime.MaxRunsPerFlush > 0 {
		opts = append(opts, reactor.WithMaxRunsPerFlush(c.Runtime.MaxRunsPerFlush))
	}
	return opts
}

// LoopOptions converts the loop section into loop options.
func (c *Config) LoopOptions() []reactor.LoopOption {
	return []reactor.LoopOption{reactor.WithQueueSize(c.Loop.Queue)}
}

// NewLogger builds the logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}

// MetricsInterval returns the stats sampling interval.
func (c *Config) MetricsInterval() time.Duration {
	d, err := time.ParseDuration(c.Metrics.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// PersistTimeout returns the timeout for a single save.
func (c *Config) PersistTimeout() time.Duration {
	d, err := time.ParseDuration(c.Persist.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// PersistPath returns the absolute-or-config-relative location of the file
// or sqlite sink.
func (c *Config) PersistPath() string {
	path := c.Persist.Path
	if path == "" {
		if c.Persist.Sink == SinkSQLite {
			path = filepath.Join(".reactor", "state.db")
		} else {
			path = filepath.Join(".reactor", "state")
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// DevtoolsURL returns the base URL of the devtools server.
func (c *Config) DevtoolsURL() string {
	return "http://" + c.Devtools.Addr
}

// Exists checks if a config file exists in dir.
func Exists(dir string) bool {
	for _, name := range ConfigFileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up from startDir looking for a config file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("R060").
				WithDetail("No reactor.yaml found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'reactor init' to create one")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads the config of the project containing the
// working directory. Without one, defaults are returned.
func LoadFromWorkingDir() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(cwd)
	if err != nil {
		return New(), nil
	}

	return Load(root)
}
