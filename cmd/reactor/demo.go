package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/internal/config"
	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/internal/todo"
	"github.com/vango-dev/reactor/pkg/persist"
	"github.com/vango-dev/reactor/pkg/reactor"
)

func demoCmd(configPath *string) *cobra.Command {
	var (
		policy string
		sink   string
		stats  bool
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted session against a reactive todo store",
		Long: `Run a scripted session against a reactive todo store.

Each step changes the store inside a transaction. The report line and
the persistence status are printed by reactions, so a line only appears
when its value actually changed.

Examples:
  reactor demo
  reactor demo --policy=intermediate
  reactor demo --sink=sqlite --stats`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if policy != "" {
				cfg.Runtime.BatchPolicy = policy
			}
			if sink != "" {
				cfg.Persist.Sink = sink
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runDemo(ctx, cmd.OutOrStdout(), cfg, stats)
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "Batch policy: collapse or intermediate (default from config)")
	cmd.Flags().StringVar(&sink, "sink", "", "Persistence sink: memory, file, s3 or sqlite (default from config)")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print engine statistics at the end")

	return cmd
}

type demoStep struct {
	label string
	run   func(s *todo.Store) error
}

var demoSteps = []demoStep{
	{"Add three items", func(s *todo.Store) error {
		for _, title := range []string{"Write docs", "Write tests", "Ship"} {
			if _, err := s.Add(title); err != nil {
				return err
			}
		}
		return nil
	}},
	{"Finish the first open item", func(s *todo.Store) error {
		for _, t := range s.Items() {
			if !t.Done.Peek() {
				return s.Toggle(t.ID)
			}
		}
		return nil
	}},
	{"Rename the last item (the report only changes if it is next)", func(s *todo.Store) error {
		items := s.Items()
		if len(items) == 0 {
			return nil
		}
		last := items[len(items)-1]
		return s.Rename(last.ID, last.Title.Peek()+" v1")
	}},
	{"Toggle an item twice in one transaction", func(s *todo.Store) error {
		items := s.Items()
		if len(items) == 0 {
			return nil
		}
		t := items[len(items)-1]
		return s.Runtime().Tx(func() error {
			if err := t.Done.Update(func(d bool) bool { return !d }); err != nil {
				return err
			}
			return t.Done.Update(func(d bool) bool { return !d })
		})
	}},
	{"Clear finished items", func(s *todo.Store) error {
		_, err := s.ClearDone()
		return err
	}},
}

func runDemo(ctx context.Context, out io.Writer, cfg *config.Config, showStats bool) error {
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	a.start(ctx)
	defer a.close()

	store, binding, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "policy %s, sink %s\n", cfg.Runtime.BatchPolicy, cfg.Persist.Sink)
	err = a.call(ctx, func() error {
		reactor.Watch(a.rt, func() string { return store.Report.Value() }, func(next, _ string) {
			fmt.Fprintf(out, "  report   %s\n", next)
		}, reactor.FireImmediately(), reactor.WithName("demo.report"))
		reactor.Watch(a.rt, func() persist.Status { return binding.Status().Get() }, func(next, _ persist.Status) {
			fmt.Fprintf(out, "  persist  %s\n", next)
		}, reactor.WithName("demo.persist"))
		return nil
	})
	if err != nil {
		return err
	}

	for i, step := range demoSteps {
		fmt.Fprintf(out, "\n%d. %s\n", i+1, step.label)
		if err := a.call(ctx, func() error { return step.run(store) }); err != nil {
			return errors.FromEngine(err)
		}
		if err := waitForSave(ctx, a, binding); err != nil {
			return err
		}
	}

	if showStats {
		var stats reactor.Stats
		a.call(ctx, func() error {
			stats = a.rt.Stats()
			return nil
		})
		printStats(out, stats)
	}

	if errs := a.reportedErrors(); len(errs) > 0 {
		fmt.Fprintln(out)
		for _, e := range errs {
			fmt.Fprintf(out, "  error    %s\n", e.FormatCompact())
		}
	}
	return nil
}

// waitForSave polls until the binding has no save in flight.
func waitForSave(ctx context.Context, a *app, binding *persist.Binding) error {
	deadline := time.Now().Add(a.cfg.PersistTimeout())
	for {
		var status persist.Status
		err := a.call(ctx, func() error {
			status = binding.Status().Peek()
			return nil
		})
		if err != nil {
			return err
		}
		if status != persist.StatusSaving {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("R040").WithDetail("save still running after " + a.cfg.PersistTimeout().String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func printStats(out io.Writer, s reactor.Stats) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Nodes:         %d observables, %d derivations, %d reactions\n", s.Observables, s.Derivations, s.Reactions)
	fmt.Fprintf(out, "  Flushes:       %d (%d passes)\n", s.Flushes, s.Passes)
	fmt.Fprintf(out, "  Reaction runs: %d (%d skipped)\n", s.ReactionRuns, s.Skipped)
	fmt.Fprintf(out, "  Recomputes:    %d\n", s.Recomputes)
	fmt.Fprintf(out, "  Errors:        %d\n", s.Errors)
}
