// Package deps wires the orchestration context passed to every scheduler
// component: the grid handle, clock, logger, telemetry and the configuration.
// Components declare their own narrow dependencies interface, this package
// satisfies all of them.
package deps

import (
	"github.com/benbjohnson/clock"

	"github.com/gridrun/gridrun/internal/pkg/idgenerator"
	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/telemetry"
)

type Dependencies interface {
	Logger() log.Logger
	Clock() clock.Clock
	Telemetry() telemetry.Telemetry
	// Grid returns the grid used for scanning, it may serve bounded-stale reads.
	Grid() grid.Grid
	// LiveGrid always reads the live store, the claim protocol depends on it.
	LiveGrid() grid.Grid
	Config() config.Config
	// NodeID identifies this scheduler process in claim markers and transition records.
	NodeID() string
}

type container struct {
	logger    log.Logger
	clock     clock.Clock
	telemetry telemetry.Telemetry
	grid      grid.Grid
	liveGrid  grid.Grid
	config    config.Config
	nodeID    string
}

type Option func(*container)

func WithClock(v clock.Clock) Option {
	return func(c *container) {
		c.clock = v
	}
}

func WithTelemetry(v telemetry.Telemetry) Option {
	return func(c *container) {
		c.telemetry = v
	}
}

// WithCachedGrid sets the grid used for scanning, the live grid stays untouched.
func WithCachedGrid(v grid.Grid) Option {
	return func(c *container) {
		c.grid = v
	}
}

func WithNodeID(v string) Option {
	return func(c *container) {
		c.nodeID = v
	}
}

// New creates the orchestration context.
// By default the scan grid equals the live grid, see WithCachedGrid.
func New(logger log.Logger, liveGrid grid.Grid, cfg config.Config, opts ...Option) Dependencies {
	c := &container{
		logger:    logger,
		clock:     clock.New(),
		telemetry: telemetry.NewNop(),
		grid:      liveGrid,
		liveGrid:  liveGrid,
		config:    cfg,
		nodeID:    cfg.NodeID,
	}
	for _, o := range opts {
		o(c)
	}
	if c.nodeID == "" {
		c.nodeID = "node-" + idgenerator.ClaimantID()
	}
	return c
}

func (c *container) Logger() log.Logger {
	return c.logger
}

func (c *container) Clock() clock.Clock {
	return c.clock
}

func (c *container) Telemetry() telemetry.Telemetry {
	return c.telemetry
}

func (c *container) Grid() grid.Grid {
	return c.grid
}

func (c *container) LiveGrid() grid.Grid {
	return c.liveGrid
}

func (c *container) Config() config.Config {
	return c.config
}

func (c *container) NodeID() string {
	return c.nodeID
}
