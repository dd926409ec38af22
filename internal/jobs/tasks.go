package jobs

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/DE-IBH/b3lb/internal/aggregation"
	"github.com/DE-IBH/b3lb/internal/config"
	"github.com/DE-IBH/b3lb/internal/logging"
	"github.com/DE-IBH/b3lb/internal/poller"
	"github.com/DE-IBH/b3lb/internal/recording"
	"github.com/DE-IBH/b3lb/internal/store"
)

// Start wires every periodic task onto a fresh runner. The render job
// only runs when rendering is enabled; retention always runs because
// discarded record sets need their blobs removed either way.
func Start(cfg config.Config, st *store.Store, p *poller.Poller, agg *aggregation.Aggregator, pipeline *recording.Pipeline, logger logging.Logger) *Runner {
	runner := NewRunner(logger)

	runner.Every(cfg.PollInterval, "poll", func(ctx context.Context) {
		pollNodes(ctx, st, p, cfg.PollMaxConcurrency, logger)
	})
	runner.Every(cfg.AggregationInterval, "aggregation", func(ctx context.Context) {
		agg.RebuildAllSecretMeetingLists(ctx)
	})
	runner.Every(cfg.StatisticsInterval, "statistics", func(ctx context.Context) {
		agg.RebuildAllTenantStats(ctx)
		agg.RebuildAllMetrics(ctx)
	})
	if cfg.Rendering {
		runner.Every(cfg.RenderInterval, "render", func(ctx context.Context) {
			pipeline.RenderPending(ctx)
		})
	}
	runner.Every(cfg.RetentionInterval, "retention", func(ctx context.Context) {
		pipeline.Sweep(ctx)
	})

	return runner
}

// pollNodes checks every node with bounded concurrency.
func pollNodes(ctx context.Context, st *store.Store, p *poller.Poller, maxConcurrency int, logger logging.Logger) {
	nodes, err := st.ListNodes(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list nodes for polling")
		return
	}

	g := new(errgroup.Group)
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}
	for _, node := range nodes {
		node := node
		g.Go(func() error {
			p.CheckNode(ctx, node)
			return nil
		})
	}
	_ = g.Wait()
}
