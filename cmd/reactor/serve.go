package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/internal/config"
	"github.com/vango-dev/reactor/internal/todo"
	"github.com/vango-dev/reactor/pkg/devtools"
)

func serveCmd(configPath *string) *cobra.Command {
	var (
		addr  string
		churn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the todo store behind the devtools server",
		Long: `Run the todo store behind the devtools server.

The store is restored from the configured sink and saved on every
change. With --churn, a random item is toggled at that interval so the
event stream has something to show.

Examples:
  reactor serve
  reactor serve --addr=127.0.0.1:9000
  reactor serve --churn=500ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Devtools.Addr = addr
			}
			cfg.Devtools.Enabled = true
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg, churn)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().DurationVar(&churn, "churn", 0, "Toggle a random item at this interval (0 disables)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, churn time.Duration) error {
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	a.start(ctx)
	defer a.close()

	store, _, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	err = a.call(ctx, func() error {
		if store.Len() > 0 {
			return nil
		}
		for _, title := range []string{"Open the devtools", "Watch the event stream", "Toggle something"} {
			if _, err := store.Add(title); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if churn > 0 {
		go churnStore(ctx, a, store, churn)
	}

	opts := []devtools.Option{
		devtools.WithHub(a.hub),
		devtools.WithLogger(a.logger),
	}
	if a.registry != nil {
		opts = append(opts, devtools.WithGatherer(a.registry))
	}
	srv := devtools.NewServer(a.loop, opts...)

	printBanner()
	success("Devtools on %s", cfg.DevtoolsURL())
	info("graph   %s/graph", cfg.DevtoolsURL())
	info("events  %s/events/ws", cfg.DevtoolsURL())
	if a.registry != nil {
		info("metrics %s/metrics", cfg.DevtoolsURL())
	}
	if host, _, err := net.SplitHostPort(cfg.Devtools.Addr); err == nil && !isLoopback(host) {
		warn("Devtools is reachable from other hosts (%s)", cfg.Devtools.Addr)
	}
	fmt.Println()

	return srv.ListenAndServe(ctx, cfg.Devtools.Addr)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// churnStore toggles a random item every interval until ctx is done.
func churnStore(ctx context.Context, a *app, store *todo.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := a.loop.Post(func() {
				items := store.Items()
				if len(items) == 0 {
					return
				}
				t := items[rand.IntN(len(items))]
				if err := store.Toggle(t.ID); err != nil {
					a.logger.Warn("churn toggle failed", "error", err)
				}
			})
			if err != nil {
				return
			}
		}
	}
}
