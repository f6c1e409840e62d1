package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-dev/reactor/internal/config"
	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/devtools"
	"github.com/vango-dev/reactor/pkg/persist"
	"github.com/vango-dev/reactor/pkg/reactor"
)

func code(err error) string {
	var re *errors.ReactorError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}

func TestRunInit(t *testing.T) {
	dir := t.TempDir()

	path, err := runInit(dir, "yaml", "sqlite", false)
	if err != nil {
		t.Fatalf("runInit() error = %v", err)
	}
	if filepath.Base(path) != "reactor.yaml" {
		t.Errorf("path = %q, want reactor.yaml", path)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Persist.Sink != config.SinkSQLite {
		t.Errorf("Persist.Sink = %q, want sqlite", cfg.Persist.Sink)
	}

	if _, err := runInit(dir, "yaml", "", false); code(err) != "R091" {
		t.Errorf("runInit() without --force error = %v, want R091", err)
	}
	if _, err := runInit(dir, "yaml", "", true); err != nil {
		t.Errorf("runInit() with --force error = %v", err)
	}
	if _, err := runInit(t.TempDir(), "toml", "", false); code(err) != "R090" {
		t.Errorf("runInit() bad format error = %v, want R090", err)
	}
	if _, err := runInit(t.TempDir(), "json", "ftp", false); code(err) != "R062" {
		t.Errorf("runInit() bad sink error = %v, want R062", err)
	}
}

func TestOpenSink(t *testing.T) {
	tests := []struct {
		sink   string
		closer bool
		check  func(persist.Sink) bool
	}{
		{config.SinkMemory, false, func(s persist.Sink) bool { _, ok := s.(*persist.MemorySink); return ok }},
		{config.SinkFile, false, func(s persist.Sink) bool { _, ok := s.(*persist.FileSink); return ok }},
		{config.SinkSQLite, true, func(s persist.Sink) bool { _, ok := s.(*persist.SQLiteSink); return ok }},
		{config.SinkS3, false, func(s persist.Sink) bool { _, ok := s.(*persist.S3Sink); return ok }},
	}

	for _, tt := range tests {
		t.Run(tt.sink, func(t *testing.T) {
			cfg := config.New()
			cfg.Persist.Sink = tt.sink
			cfg.Persist.Path = filepath.Join(t.TempDir(), "state")
			cfg.Persist.Bucket = "bucket"

			sink, closer, err := openSink(cfg)
			if err != nil {
				t.Fatalf("openSink() error = %v", err)
			}
			if !tt.check(sink) {
				t.Errorf("openSink() returned %T", sink)
			}
			if (closer != nil) != tt.closer {
				t.Errorf("closer = %v, want %v", closer != nil, tt.closer)
			}
			if closer != nil {
				closer()
			}
		})
	}
}

func TestRunDemo(t *testing.T) {
	cfg := config.New()
	cfg.Executor.Workers = 2

	var out bytes.Buffer
	if err := runDemo(context.Background(), &out, cfg, true); err != nil {
		t.Fatalf("runDemo() error = %v", err)
	}

	var reports []string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "  report   ") {
			reports = append(reports, strings.TrimPrefix(line, "  report   "))
		}
	}
	want := []string{
		"Nothing to do",
		"Next: Write docs (0 of 3 done)",
		"Next: Write tests (1 of 3 done)",
		"Next: Write tests (0 of 2 done)",
	}
	if strings.Join(reports, "|") != strings.Join(want, "|") {
		t.Errorf("reports = %q, want %q", reports, want)
	}
	if !strings.Contains(out.String(), "Reaction runs:") {
		t.Errorf("expected stats in output:\n%s", out.String())
	}
}

func TestRunDemoRestoresFromFileSink(t *testing.T) {
	cfg := config.New()
	cfg.Persist.Sink = config.SinkFile
	cfg.Persist.Path = t.TempDir()

	var first, second bytes.Buffer
	if err := runDemo(context.Background(), &first, cfg, false); err != nil {
		t.Fatalf("first runDemo() error = %v", err)
	}
	if err := runDemo(context.Background(), &second, cfg, false); err != nil {
		t.Fatalf("second runDemo() error = %v", err)
	}
	if strings.Contains(second.String(), "Nothing to do") {
		t.Errorf("expected the second run to start from the saved store:\n%s", second.String())
	}
}

func TestRunBench(t *testing.T) {
	profile := benchProfile{Name: "test", Observables: 10, Depth: 2, Reactions: 5, Batches: 20, Writes: 3}

	report, err := runBench(config.New(), profile, 7)
	if err != nil {
		t.Fatalf("runBench() error = %v", err)
	}
	if report.Stats.Observables != 10 || report.Stats.Derivations != 20 || report.Stats.Reactions != 5 {
		t.Errorf("unexpected node counts %+v", report.Stats)
	}
	if report.P50 > report.Max {
		t.Errorf("p50 %s > max %s", report.P50, report.Max)
	}

	var out bytes.Buffer
	writeBenchSummary(&out, report)
	if !strings.Contains(out.String(), "profile test") {
		t.Errorf("unexpected summary:\n%s", out.String())
	}

	if _, err := runBench(config.New(), benchProfile{Observables: 1, Depth: 1, Batches: 1}, 1); code(err) != "R090" {
		t.Errorf("runBench() with a tiny profile error = %v, want R090", err)
	}
}

func TestGraphOutput(t *testing.T) {
	snap, err := sampleGraph(reactor.New())
	if err != nil {
		t.Fatalf("sampleGraph() error = %v", err)
	}

	var out bytes.Buffer
	if err := writeDot(&out, snap); err != nil {
		t.Fatalf("writeDot() error = %v", err)
	}
	dot := out.String()
	for _, want := range []string{"digraph reactor {", `label="todos.report"`, "shape=diamond", "->"} {
		if !strings.Contains(dot, want) {
			t.Errorf("dot output missing %q:\n%s", want, dot)
		}
	}
}

func TestFetchGraph(t *testing.T) {
	rt := reactor.New()
	loop := reactor.NewLoop(rt)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	err := loop.Call(ctx, func() error {
		reactor.NewObservable(rt, 1, reactor.WithName("remote"))
		return nil
	})
	if err != nil {
		t.Fatalf("loop.Call() error = %v", err)
	}

	srv := httptest.NewServer(devtools.NewServer(loop).Handler())
	defer srv.Close()

	snap, err := fetchGraph(ctx, srv.URL+"/")
	if err != nil {
		t.Fatalf("fetchGraph() error = %v", err)
	}
	if len(snap.Nodes) != 1 || snap.Nodes[0].Name != "remote" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if _, err := fetchGraph(ctx, srv.URL+"/missing"); code(err) != "R080" {
		t.Errorf("fetchGraph() bad path error = %v, want R080", err)
	}
}
