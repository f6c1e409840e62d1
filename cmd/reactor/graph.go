package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/internal/todo"
	"github.com/vango-dev/reactor/pkg/reactor"
)

func graphCmd(configPath *string) *cobra.Command {
	var (
		url string
		dot bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print a dependency graph",
		Long: `Print a dependency graph as JSON or Graphviz dot.

Without --url, a small todo store is built in-process and its graph is
printed. With --url, the graph of a running 'reactor serve' is fetched.

Examples:
  reactor graph
  reactor graph --dot | dot -Tsvg > graph.svg
  reactor graph --url=http://127.0.0.1:7070`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				snap reactor.GraphSnapshot
				err  error
			)
			if url != "" {
				snap, err = fetchGraph(cmd.Context(), url)
			} else {
				cfg, cerr := loadConfig(*configPath)
				if cerr != nil {
					return cerr
				}
				snap, err = sampleGraph(reactor.New(cfg.RuntimeOptions()...))
			}
			if err != nil {
				return err
			}
			if dot {
				return writeDot(cmd.OutOrStdout(), snap)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Base URL of a running devtools server")
	cmd.Flags().BoolVar(&dot, "dot", false, "Print Graphviz dot instead of JSON")

	return cmd
}

// sampleGraph builds a small store with a reaction on its report.
func sampleGraph(rt *reactor.Runtime) (reactor.GraphSnapshot, error) {
	store := todo.NewStore(rt)
	for _, title := range []string{"Write docs", "Write tests"} {
		if _, err := store.Add(title); err != nil {
			return reactor.GraphSnapshot{}, err
		}
	}
	reactor.Autorun(rt, func() { store.Report.Value() }, reactor.WithName("print.report"))
	reactor.Autorun(rt, func() { store.JSON.Get() }, reactor.WithName("print.json"))
	return rt.Snapshot(), nil
}

func fetchGraph(ctx context.Context, base string) (reactor.GraphSnapshot, error) {
	var snap reactor.GraphSnapshot
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/graph", nil)
	if err != nil {
		return snap, errors.New("R090").Wrap(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snap, errors.New("R080").Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return snap, errors.New("R080").WithDetail(fmt.Sprintf("GET /graph returned %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, errors.New("R080").Wrap(err)
	}
	return snap, nil
}

// writeDot renders snap as a Graphviz digraph. Edges point from a
// dependency to the node that reads it.
func writeDot(w io.Writer, snap reactor.GraphSnapshot) error {
	shapes := map[string]string{
		"observable": "ellipse",
		"derivation": "box",
		"reaction":   "diamond",
	}

	var b strings.Builder
	b.WriteString("digraph reactor {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, n := range snap.Nodes {
		label := n.Name
		if label == "" {
			label = "#" + n.ID.String()
		}
		style := ""
		if n.Failed {
			style = `, color="red"`
		} else if n.Stale {
			style = `, style="dashed"`
		}
		fmt.Fprintf(&b, "  n%d [label=%q, shape=%s%s];\n", n.ID, label, shapes[n.Kind], style)
	}
	for _, n := range snap.Nodes {
		for _, dep := range n.Deps {
			fmt.Fprintf(&b, "  n%d -> n%d;\n", dep, n.ID)
		}
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}
