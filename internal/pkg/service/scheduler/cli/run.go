package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridrun/gridrun/internal/pkg/encoding/json"
	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/common/servicectx"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/deps"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid/cached"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid/gridhttp"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/orchestrator"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/worker"
	"github.com/gridrun/gridrun/internal/pkg/telemetry"
)

func newRunCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the whole grid group by group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			verbose, _ := cmd.Flags().GetBool("verbose")
			logger := log.NewServiceLogger(root.stderr, verbose)
			defer func() {
				_ = logger.Sync()
			}()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			proc, err := servicectx.New(ctx, cancel, logger)
			if err != nil {
				return err
			}

			nodeID := cfg.NodeID
			if nodeID == "" {
				nodeID = proc.UniqueID()
			}
			d, cleanup, err := newDependencies(logger, nodeID, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			registry := worker.NewRegistry().RegisterFallback(worker.NewEchoWorker())
			o, err := orchestrator.New(d, registry)
			if err != nil {
				return err
			}

			var result orchestrator.RunResult
			proc.Add(func(ctx context.Context, errCh chan<- error) {
				result = o.Run(ctx)
				proc.Shutdown(result.Error)
			})
			proc.WaitForShutdown()

			fmt.Fprintln(root.stdout, json.MustEncodeString(result, true))
			return result.Error
		},
	}
}

// newDependencies wires the grid handle: the HTTP client when a URL is
// configured, otherwise the in-memory grid, plus the read cache on top.
func newDependencies(logger log.Logger, nodeID string, cfg config.Config) (deps.Dependencies, func(), error) {
	var live grid.Grid
	if cfg.Grid.URL != "" {
		live = gridhttp.NewClient(cfg.Grid.URL, cfg.Grid.Token)
	} else {
		logger.Warn("no grid URL configured, using an empty in-memory grid")
		live = grid.NewMemoryGrid()
	}

	cache, err := cached.New(live, cfg.CacheTTL)
	if err != nil {
		return nil, nil, err
	}

	d := deps.New(
		logger,
		live,
		cfg,
		deps.WithCachedGrid(cache),
		deps.WithTelemetry(telemetry.NewForProject()),
		deps.WithNodeID(nodeID),
	)
	return d, cache.Close, nil
}
