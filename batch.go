package loom

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Batch Invocation Configuration
// ============================================================================

// BatchConfig controls how InvokeBatch spreads independent invocations
type BatchConfig struct {
	// MinCallsForParallel is the minimum batch size to justify goroutines
	MinCallsForParallel int

	// MaxWorkers limits the number of concurrent invocations
	// (0 = the registry's Options.MaxWorkers)
	MaxWorkers int

	// Enabled controls whether parallelism is used at all
	Enabled bool
}

// DefaultBatchConfig returns sensible defaults
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MinCallsForParallel: 2,
		MaxWorkers:          0,
		Enabled:             true,
	}
}

func (cfg BatchConfig) shouldParallelize(calls int) bool {
	return cfg.Enabled && calls >= cfg.MinCallsForParallel
}

// Invocation is one named op call in a batch
type Invocation struct {
	Op   string
	Args map[string]Datum
}

// InvokeBatch runs independent invocations, concurrently when the batch is
// large enough. Results are returned in call order. The first failure
// cancels the remaining calls and is returned annotated with its position.
func (r *Registry) InvokeBatch(ctx context.Context, calls []Invocation, cfgs ...BatchConfig) ([]Datum, error) {
	cfg := DefaultBatchConfig()
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}

	results := make([]Datum, len(calls))

	if !cfg.shouldParallelize(len(calls)) {
		for i, call := range calls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			d, err := r.InvokeContext(ctx, call.Op, call.Args)
			if err != nil {
				return nil, fmt.Errorf("call %d: %w", i, err)
			}
			results[i] = d
		}
		return results, nil
	}

	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = r.opts.numWorkers()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, call := range calls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := r.InvokeContext(gctx, call.Op, call.Args)
			if err != nil {
				return fmt.Errorf("call %d: %w", i, err)
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.opts.Logger.Debug("batch complete", "calls", len(calls), "workers", workers)
	return results, nil
}
