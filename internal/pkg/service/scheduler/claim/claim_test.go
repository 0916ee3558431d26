package claim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/deps"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

func testTask(cell cellref.CellRef) model.Task {
	return model.Task{
		ID:         cell.A1(),
		GroupID:    "group-A",
		Row:        cell.Row,
		AnswerCell: cell,
		WorkerType: "default",
		Payload:    "payload",
	}
}

func TestTryClaimEmptyCell(t *testing.T) {
	t.Parallel()

	memory := grid.NewMemoryGrid()
	d, _, _ := deps.NewTestDeps(t, memory, config.DefaultConfig())
	store := NewStore(d)

	ctx := context.Background()
	task := testTask(cellref.New(3, 5))
	require.NoError(t, store.TryClaim(ctx, task))

	// The marker is in the cell
	value, err := grid.ReadCell(ctx, memory, task.AnswerCell)
	require.NoError(t, err)
	marker, isMarker := model.ParseClaimMarker(value)
	assert.True(t, isMarker)
	assert.Equal(t, "test-node", marker.Claimant)

	// Releasing a failure reverts the cell to empty
	require.NoError(t, store.Release(ctx, task, model.Failed(errors.New("worker failed"))))
	value, err = grid.ReadCell(ctx, memory, task.AnswerCell)
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestTryClaimConcurrentExactlyOneSuccess(t *testing.T) {
	t.Parallel()

	memory := grid.NewMemoryGrid()
	d, _, _ := deps.NewTestDeps(t, memory, config.DefaultConfig())
	store := NewStore(d)

	ctx := context.Background()
	task := testTask(cellref.New(3, 5))

	successes := atomic.NewInt64(0)
	conflicts := atomic.NewInt64(0)
	wg := &sync.WaitGroup{}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.TryClaim(ctx, task)
			switch {
			case err == nil:
				successes.Inc()
			case IsConflict(err):
				conflicts.Inc()
			default:
				assert.Fail(t, "unexpected error", err.Error())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load())
	assert.Equal(t, int64(1), conflicts.Load())
}

func TestTryClaimResultCell(t *testing.T) {
	t.Parallel()

	memory := grid.NewMemoryGrid()
	d, _, _ := deps.NewTestDeps(t, memory, config.DefaultConfig())
	store := NewStore(d)

	ctx := context.Background()
	task := testTask(cellref.New(3, 5))
	require.NoError(t, memory.WriteCell(ctx, task.AnswerCell, "a final result"))

	err := store.TryClaim(ctx, task)
	assert.True(t, IsConflict(err))
}

func TestTryClaimForeignMarker(t *testing.T) {
	t.Parallel()

	memory := grid.NewMemoryGrid()
	d, _, mock := deps.NewTestDeps(t, memory, config.DefaultConfig())
	store := NewStore(d)

	ctx := context.Background()
	task := testTask(cellref.New(3, 5))

	// A fresh claim of another node blocks the cell
	foreign := model.NewClaimMarker("other-node", mock.Now())
	require.NoError(t, memory.WriteCell(ctx, task.AnswerCell, foreign.Encode()))
	err := store.TryClaim(ctx, task)
	assert.True(t, IsConflict(err))

	// After the TTL the marker is stale and reclaimable
	mock.Add(config.DefaultConfig().ClaimTTL + time.Minute)
	require.NoError(t, store.TryClaim(ctx, task))

	value, err := grid.ReadCell(ctx, memory, task.AnswerCell)
	require.NoError(t, err)
	marker, _ := model.ParseClaimMarker(value)
	assert.Equal(t, "test-node", marker.Claimant)
}

func TestTryClaimAmbiguousRead(t *testing.T) {
	t.Parallel()

	memory := grid.NewMemoryGrid()
	memory.ReadHook = func(r cellref.Range) error {
		return errors.New("grid unreachable")
	}

	cfg := config.DefaultConfig()
	cfg.StaleReadRetries = 1
	d, logger, _ := deps.NewTestDeps(t, memory, cfg)
	store := NewStore(d)

	// The ambiguous read is resolved conservatively as a conflict
	err := store.TryClaim(context.Background(), testTask(cellref.New(3, 5)))
	assert.True(t, IsConflict(err))
	assert.Contains(t, logger.WarnMessages(), "ambiguous read")
}

func TestReleaseKeepsForeignValue(t *testing.T) {
	t.Parallel()

	memory := grid.NewMemoryGrid()
	d, _, _ := deps.NewTestDeps(t, memory, config.DefaultConfig())
	store := NewStore(d)

	ctx := context.Background()
	task := testTask(cellref.New(3, 5))
	require.NoError(t, store.TryClaim(ctx, task))

	// Another process overwrote the cell meanwhile
	require.NoError(t, memory.WriteCell(ctx, task.AnswerCell, "foreign result"))
	require.NoError(t, store.Release(ctx, task, model.Failed(errors.New("worker failed"))))

	value, err := grid.ReadCell(ctx, memory, task.AnswerCell)
	require.NoError(t, err)
	assert.Equal(t, "foreign result", value)
}

func TestReleaseAfterSuccessKeepsResult(t *testing.T) {
	t.Parallel()

	memory := grid.NewMemoryGrid()
	d, _, _ := deps.NewTestDeps(t, memory, config.DefaultConfig())
	store := NewStore(d)

	ctx := context.Background()
	task := testTask(cellref.New(3, 5))
	require.NoError(t, store.TryClaim(ctx, task))

	// The executor wrote the result, success release keeps it
	require.NoError(t, memory.WriteCell(ctx, task.AnswerCell, "the answer"))
	require.NoError(t, store.Release(ctx, task, model.Succeeded()))

	value, err := grid.ReadCell(ctx, memory, task.AnswerCell)
	require.NoError(t, err)
	assert.Equal(t, "the answer", value)

	// The cell can be claimed again only because it holds a result now
	err = store.TryClaim(ctx, task)
	assert.True(t, IsConflict(err))
}
