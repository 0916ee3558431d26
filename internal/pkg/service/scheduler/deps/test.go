package deps

import (
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
)

// NewTestDeps creates the orchestration context for tests:
// debug logger, mocked clock and the in-memory grid.
func NewTestDeps(t *testing.T, liveGrid grid.Grid, cfg config.Config, opts ...Option) (Dependencies, log.DebugLogger, *clock.Mock) {
	t.Helper()

	logger := log.NewDebugLogger()
	mock := clock.NewMock()
	all := append([]Option{WithClock(mock), WithNodeID("test-node")}, opts...)
	d := New(logger, liveGrid, cfg, all...)
	return d, logger, mock
}
