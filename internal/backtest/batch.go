package backtest

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"arbcore/pkg/types"
)

// Run is one independent replay's inputs: its own states, signal function,
// resolutions, and seed. RunBatch gives each entry its own Simulator so
// concurrent runs never share mutable state.
type Run struct {
	Label       string
	Config      Config
	Seed        int64
	States      []MarketState
	SignalFunc  SignalFunc
	Resolutions map[string]types.Resolution
}

// BatchResult pairs a Run's label with its outcome.
type BatchResult struct {
	Label   string
	Metrics Metrics
}

// RunBatch executes every Run concurrently, one Simulator per run, and
// returns results in the same order as runs. A seeded *rand.Rand is built
// per run from its own Seed so results are reproducible regardless of
// goroutine scheduling — no shared RNG crosses a goroutine boundary.
func RunBatch(ctx context.Context, runs []Run) ([]BatchResult, error) {
	results := make([]BatchResult, len(runs))

	g, ctx := errgroup.WithContext(ctx)
	for i, r := range runs {
		i, r := i, r
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			sim := New(r.Config, rand.New(rand.NewSource(r.Seed)))
			results[i] = BatchResult{
				Label:   r.Label,
				Metrics: sim.Run(r.States, r.SignalFunc, r.Resolutions),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
