package groupstate_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridrun/gridrun/internal/pkg/encoding/json"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/deps"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/groupstate"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

func TestManagerSetAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	memory := grid.NewMemoryGrid()
	d, _, mock := deps.NewTestDeps(t, memory, config.DefaultConfig())
	manager, err := groupstate.NewManager(d)
	require.NoError(t, err)

	assert.Equal(t, model.GroupState{}, manager.CurrentGroup())

	require.NoError(t, manager.SetCurrentGroup(ctx, "group-A", "sequential"))
	state := manager.CurrentGroup()
	assert.Equal(t, "group-A", state.CurrentGroupID)
	assert.Equal(t, "sequential", state.UpdatedBy)
	assert.Equal(t, mock.Now().UTC(), state.UpdatedAt.Time())

	// The value is durably persisted to the state cell.
	value, err := grid.ReadCell(ctx, memory, cellref.MustParseA1("ZA1"))
	require.NoError(t, err)
	persisted := model.GroupState{}
	require.NoError(t, json.DecodeString(value, &persisted))
	assert.Equal(t, state, persisted)
}

func TestManagerLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	memory := grid.NewMemoryGrid()
	d, _, mock := deps.NewTestDeps(t, memory, config.DefaultConfig())

	persisted := model.NewGroupState("group-C", "transition", mock.Now())
	require.NoError(t, memory.WriteCell(ctx, cellref.MustParseA1("ZA1"), json.MustEncodeString(persisted, false)))

	manager, err := groupstate.NewManager(d)
	require.NoError(t, err)
	require.NoError(t, manager.Load(ctx))
	assert.Equal(t, persisted, manager.CurrentGroup())
}

func TestManagerLoadCorrupted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	memory := grid.NewMemoryGrid()
	d, _, _ := deps.NewTestDeps(t, memory, config.DefaultConfig())
	require.NoError(t, memory.WriteCell(ctx, cellref.MustParseA1("ZA1"), "not-json"))

	manager, err := groupstate.NewManager(d)
	require.NoError(t, err)
	err = manager.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `corrupted group state in cell "ZA1"`)
}

func TestManagerListeners(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d, _, _ := deps.NewTestDeps(t, grid.NewMemoryGrid(), config.DefaultConfig())
	manager, err := groupstate.NewManager(d)
	require.NoError(t, err)

	var events []groupstate.Event
	manager.OnChange(func(e groupstate.Event) {
		events = append(events, e)
	})

	require.NoError(t, manager.SetCurrentGroup(ctx, "group-A", "sequential"))
	require.NoError(t, manager.SetCurrentGroup(ctx, "group-B", "transition"))

	require.Len(t, events, 2)
	assert.Equal(t, "", events[0].Previous.CurrentGroupID)
	assert.Equal(t, "group-A", events[0].Current.CurrentGroupID)
	assert.Equal(t, "sequential", events[0].Source)
	assert.Equal(t, "group-A", events[1].Previous.CurrentGroupID)
	assert.Equal(t, "group-B", events[1].Current.CurrentGroupID)
	assert.Equal(t, "transition", events[1].Source)
}

func TestManagerFailedWriteKeepsState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	memory := grid.NewMemoryGrid()
	d, _, _ := deps.NewTestDeps(t, memory, config.DefaultConfig())
	manager, err := groupstate.NewManager(d)
	require.NoError(t, err)
	require.NoError(t, manager.SetCurrentGroup(ctx, "group-A", "sequential"))

	notified := 0
	manager.OnChange(func(groupstate.Event) {
		notified++
	})

	memory.WriteHook = func(cellref.CellRef, string) error {
		return errors.New("grid is down")
	}
	err = manager.SetCurrentGroup(ctx, "group-B", "sequential")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot persist current group "group-B"`)

	// Previous state intact, no event delivered.
	assert.Equal(t, "group-A", manager.CurrentGroup().CurrentGroupID)
	assert.Equal(t, 0, notified)
}

func TestManagerChangeLogBounded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.GroupStateLogLimit = 3
	d, _, _ := deps.NewTestDeps(t, grid.NewMemoryGrid(), cfg)
	manager, err := groupstate.NewManager(d)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, manager.SetCurrentGroup(ctx, fmt.Sprintf("group-%d", i), "sequential"))
	}

	changeLog := manager.ChangeLog()
	require.Len(t, changeLog, 3)
	assert.Equal(t, "group-3", changeLog[0].Current.CurrentGroupID)
	assert.Equal(t, "group-5", changeLog[2].Current.CurrentGroupID)
}

func TestManagerConcurrentUpdatesSerialized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d, _, _ := deps.NewTestDeps(t, grid.NewMemoryGrid(), config.DefaultConfig())
	manager, err := groupstate.NewManager(d)
	require.NoError(t, err)

	// Every event must chain from the previous one, a torn update would break the chain.
	var chainErr error
	last := ""
	manager.OnChange(func(e groupstate.Event) {
		if e.Previous.CurrentGroupID != last {
			chainErr = errors.Errorf(`expected previous "%s", found "%s"`, last, e.Previous.CurrentGroupID)
		}
		last = e.Current.CurrentGroupID
	})

	wg := sync.WaitGroup{}
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, manager.SetCurrentGroup(ctx, fmt.Sprintf("group-%d", i), "sequential"))
		}()
	}
	wg.Wait()

	assert.NoError(t, chainErr)
	assert.Len(t, manager.ChangeLog(), 10)
}
