package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/internal/config"
	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactor"
)

type benchProfile struct {
	Name        string `json:"name"`
	Observables int    `json:"observables"`
	Depth       int    `json:"depth"`
	Reactions   int    `json:"reactions"`
	Batches     int    `json:"batches"`
	Writes      int    `json:"writesPerBatch"`
}

var benchProfiles = map[string]benchProfile{
	"fast": {
		Name:        "fast",
		Observables: 100,
		Depth:       4,
		Reactions:   50,
		Batches:     1000,
		Writes:      4,
	},
	"standard": {
		Name:        "standard",
		Observables: 1000,
		Depth:       8,
		Reactions:   500,
		Batches:     5000,
		Writes:      16,
	},
	"wide": {
		Name:        "wide",
		Observables: 10000,
		Depth:       2,
		Reactions:   5000,
		Batches:     2000,
		Writes:      64,
	},
}

type benchReport struct {
	Profile    benchProfile  `json:"profile"`
	Policy     string        `json:"policy"`
	Seed       uint64        `json:"seed"`
	Build      time.Duration `json:"buildNs"`
	Total      time.Duration `json:"totalNs"`
	P50        time.Duration `json:"p50Ns"`
	P95        time.Duration `json:"p95Ns"`
	P99        time.Duration `json:"p99Ns"`
	Max        time.Duration `json:"maxNs"`
	PerWrite   float64       `json:"nsPerWrite"`
	Stats      reactor.Stats `json:"stats"`
	Checksum   int64         `json:"checksum"`
	NodesTotal int           `json:"nodes"`
}

func benchCmd(configPath *string) *cobra.Command {
	var (
		profileName string
		policy      string
		seed        uint64
		jsonPath    string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure propagation through a synthetic graph",
		Long: `Measure propagation through a synthetic graph.

The graph has a layer of observables, Depth layers of derivations where
each node sums two nodes of the layer below, and reactions reading the
top layer. Each batch writes random observables; the time from the
first write to the end of the flush is recorded.

Profiles: fast, standard, wide.

Examples:
  reactor bench
  reactor bench --profile=standard --policy=intermediate
  reactor bench --json=report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, ok := benchProfiles[profileName]
			if !ok {
				return errors.New("R090").
					WithDetail(fmt.Sprintf("unknown profile %q", profileName)).
					WithSuggestion("Use one of: " + strings.Join(profileNames(), ", "))
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if policy != "" {
				cfg.Runtime.BatchPolicy = policy
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			report, err := runBench(cfg, profile, seed)
			if err != nil {
				return err
			}
			writeBenchSummary(cmd.OutOrStdout(), report)
			if jsonPath != "" {
				return writeBenchJSON(jsonPath, report)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "fast", "Bench profile")
	cmd.Flags().StringVar(&policy, "policy", "", "Batch policy: collapse or intermediate (default from config)")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().StringVar(&jsonPath, "json", "", "Write the report as JSON to this file")

	return cmd
}

func profileNames() []string {
	names := make([]string, 0, len(benchProfiles))
	for name := range benchProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// runBench builds the graph and drives it on the current goroutine.
func runBench(cfg *config.Config, p benchProfile, seed uint64) (benchReport, error) {
	report := benchReport{Profile: p, Policy: cfg.Runtime.BatchPolicy, Seed: seed}
	if p.Observables < 2 || p.Depth < 1 || p.Batches < 1 {
		return report, errors.New("R090").WithDetail("profile needs at least 2 observables, depth 1 and 1 batch")
	}

	var firstErr error
	rt := reactor.New(append(cfg.RuntimeOptions(), reactor.WithErrorHandler(func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}))...)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	start := time.Now()
	sources := make([]*reactor.Observable[int64], p.Observables)
	for i := range sources {
		sources[i] = reactor.NewObservable(rt, int64(i))
	}

	read := make([]func() int64, len(sources))
	for i, o := range sources {
		read[i] = o.Get
	}
	for layer := 0; layer < p.Depth; layer++ {
		next := make([]func() int64, len(read))
		for i := range read {
			left, right := read[i], read[(i+1)%len(read)]
			d := reactor.NewComputed(rt, func() int64 { return left() + right() })
			next[i] = d.Value
		}
		read = next
	}

	var checksum int64
	for i := 0; i < p.Reactions; i++ {
		top := read[i%len(read)]
		reactor.Autorun(rt, func() { checksum += top() })
	}
	report.Build = time.Since(start)

	latencies := make([]time.Duration, p.Batches)
	start = time.Now()
	for b := 0; b < p.Batches; b++ {
		t0 := time.Now()
		rt.Batch(func() {
			for w := 0; w < p.Writes; w++ {
				o := sources[rng.IntN(len(sources))]
				o.Set(o.Peek() + int64(rng.IntN(3)) - 1)
			}
		})
		latencies[b] = time.Since(t0)
	}
	report.Total = time.Since(start)
	if firstErr != nil {
		return report, errors.FromEngine(firstErr)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	report.P50 = percentile(latencies, 0.50)
	report.P95 = percentile(latencies, 0.95)
	report.P99 = percentile(latencies, 0.99)
	report.Max = latencies[len(latencies)-1]
	report.PerWrite = float64(report.Total.Nanoseconds()) / float64(p.Batches*max(p.Writes, 1))
	report.Stats = rt.Stats()
	report.NodesTotal = report.Stats.Observables + report.Stats.Derivations + report.Stats.Reactions
	report.Checksum = checksum
	return report, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func writeBenchSummary(w io.Writer, r benchReport) {
	fmt.Fprintf(w, "\nprofile %s, policy %s, seed %d\n\n", r.Profile.Name, r.Policy, r.Seed)
	fmt.Fprintf(w, "  Nodes:      %d (%d observables, %d derivations, %d reactions)\n",
		r.NodesTotal, r.Stats.Observables, r.Stats.Derivations, r.Stats.Reactions)
	fmt.Fprintf(w, "  Build:      %s\n", r.Build.Round(time.Microsecond))
	fmt.Fprintf(w, "  Batches:    %d x %d writes in %s\n", r.Profile.Batches, r.Profile.Writes, r.Total.Round(time.Microsecond))
	fmt.Fprintf(w, "  Latency:    p50 %s  p95 %s  p99 %s  max %s\n", r.P50, r.P95, r.P99, r.Max)
	fmt.Fprintf(w, "  Per write:  %.0f ns\n", r.PerWrite)
	fmt.Fprintf(w, "  Recomputes: %d\n", r.Stats.Recomputes)
	fmt.Fprintf(w, "  Runs:       %d (%d skipped)\n", r.Stats.ReactionRuns, r.Stats.Skipped)
	fmt.Fprintln(w)
}

func writeBenchJSON(path string, r benchReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	success("Wrote %s", path)
	return nil
}
