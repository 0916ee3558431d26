package transition_test

import (
	"context"
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
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/retrier"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/scan"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/structure"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/transition"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

// fixtureGrid has two groups, group-A (A:C) and group-D (D:F).
func fixtureGrid() *grid.MemoryGrid {
	return grid.NewMemoryGridFromRows([][]string{
		{"log", "prompt", "answer", "log", "prompt", "answer"},
		{},
		{"", "q1", "", "", "p1", ""},
	})
}

type fixture struct {
	memory  *grid.MemoryGrid
	states  *groupstate.Manager
	retries *retrier.Registry
	coord   *transition.Coordinator
}

func newFixture(t *testing.T, memory *grid.MemoryGrid, cfg config.Config) *fixture {
	t.Helper()
	d, _, _ := deps.NewTestDeps(t, memory, cfg)

	s, err := structure.Analyze(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, s.Groups, 2)

	states, err := groupstate.NewManager(d)
	require.NoError(t, err)
	retries := retrier.New(d)

	scannerFor := func(groupID string) (*scan.Scanner, error) {
		group := s.GroupByID(groupID)
		if group == nil {
			return nil, errors.Errorf(`group "%s" not found`, groupID)
		}
		return scan.New(d, group, s.RowFilter), nil
	}

	coord, err := transition.NewCoordinator(d, states, retries, scannerFor)
	require.NoError(t, err)
	return &fixture{memory: memory, states: states, retries: retries, coord: coord}
}

func answerGroupA(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.memory.WriteCell(context.Background(), cellref.MustParseA1("C3"), "done"))
}

func TestTransitionFinalized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, fixtureGrid(), config.DefaultConfig())
	require.NoError(t, f.states.SetCurrentGroup(ctx, "group-A", "test"))
	answerGroupA(t, f)

	record, err := f.coord.Transition(ctx, "group-A", "group-D")
	require.NoError(t, err)
	assert.Equal(t, model.TransitionFinalized, record.Phase)
	assert.Equal(t, "group-A", record.FromGroupID)
	assert.Equal(t, "group-D", record.ToGroupID)
	assert.Equal(t, "test-node", record.Initiator)
	assert.Equal(t, "group-D", f.states.CurrentGroup().CurrentGroupID)

	// The record is retained in memory and persisted to the history cell.
	history := f.coord.History()
	require.Len(t, history, 1)
	assert.Equal(t, record, history[0])

	value, err := grid.ReadCell(ctx, f.memory, cellref.MustParseA1("ZA2"))
	require.NoError(t, err)
	var persisted []model.TransitionRecord
	require.NoError(t, json.DecodeString(value, &persisted))
	assert.Equal(t, history, persisted)
}

func TestTransitionBlockedByExecutableTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, fixtureGrid(), config.DefaultConfig())
	require.NoError(t, f.states.SetCurrentGroup(ctx, "group-A", "test"))

	// C3 is still unanswered.
	_, err := f.coord.Transition(ctx, "group-A", "group-D")
	require.Error(t, err)
	assert.True(t, transition.IsValidationError(err))
	assert.Equal(t, `cannot leave group "group-A": executable tasks remain`, err.Error())
	assert.Equal(t, "group-A", f.states.CurrentGroup().CurrentGroupID)

	// The rolled back attempt is part of the history.
	history := f.coord.History()
	require.Len(t, history, 1)
	assert.Equal(t, model.TransitionRolledBack, history[0].Phase)
	assert.Equal(t, "executable tasks remain", history[0].Outcome)
}

func TestTransitionBlockedByTruncatedScan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Three unanswered rows in group-A, the budget covers only one per pass,
	// completion cannot be proven and the transition must not finalize.
	memory := grid.NewMemoryGridFromRows([][]string{
		{"log", "prompt", "answer", "log", "prompt", "answer"},
		{},
		{"", "q1", "", "", "p1", ""},
		{"", "q2", "", "", "", ""},
		{"", "q3", "", "", "", ""},
	})
	cfg := config.DefaultConfig()
	cfg.ScanBudget = 3

	f := newFixture(t, memory, cfg)
	require.NoError(t, f.states.SetCurrentGroup(ctx, "group-A", "test"))

	_, err := f.coord.Transition(ctx, "group-A", "group-D")
	require.Error(t, err)
	assert.True(t, transition.IsValidationError(err))
	assert.Equal(t, `cannot leave group "group-A": completion not proven, the scan was truncated`, err.Error())
	assert.Equal(t, "group-A", f.states.CurrentGroup().CurrentGroupID)
}

func TestTransitionBlockedByPendingReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, fixtureGrid(), config.DefaultConfig())
	answerGroupA(t, f)
	f.retries.Record(model.Task{ID: "C3", GroupID: "group-A"}, errors.New("boom"))

	_, err := f.coord.Transition(ctx, "group-A", "group-D")
	require.Error(t, err)
	assert.True(t, transition.IsValidationError(err))
	assert.Equal(t, `cannot leave group "group-A": failed tasks await replay`, err.Error())
}

func TestTransitionBlockedByForeignCurrentGroup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, fixtureGrid(), config.DefaultConfig())
	require.NoError(t, f.states.SetCurrentGroup(ctx, "group-D", "test"))

	_, err := f.coord.Transition(ctx, "group-A", "group-D")
	require.Error(t, err)
	assert.True(t, transition.IsValidationError(err))
	assert.Equal(t, `cannot leave group "group-A": current group is "group-D"`, err.Error())
}

func TestTransitionIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, fixtureGrid(), config.DefaultConfig())
	require.NoError(t, f.states.SetCurrentGroup(ctx, "group-A", "test"))
	answerGroupA(t, f)

	first, err := f.coord.Transition(ctx, "group-A", "group-D")
	require.NoError(t, err)

	// The repeated request returns the original record, nothing re-runs.
	second, err := f.coord.Transition(ctx, "group-A", "group-D")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, f.coord.History(), 1)
}

func TestTransitionIdempotentAcrossRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	memory := fixtureGrid()
	f := newFixture(t, memory, config.DefaultConfig())
	require.NoError(t, f.states.SetCurrentGroup(ctx, "group-A", "test"))
	answerGroupA(t, f)
	first, err := f.coord.Transition(ctx, "group-A", "group-D")
	require.NoError(t, err)

	// A new process loads the persisted history.
	restarted := newFixture(t, memory, config.DefaultConfig())
	require.NoError(t, restarted.coord.Load(ctx))
	second, err := restarted.coord.Transition(ctx, "group-A", "group-D")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTransitionLostRaceRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	memory := fixtureGrid()
	f := newFixture(t, memory, config.DefaultConfig())
	require.NoError(t, f.states.SetCurrentGroup(ctx, "group-A", "test"))
	answerGroupA(t, f)

	// A concurrent writer takes the state cell right after the commit write.
	intruded := false
	f.states.OnChange(func(e groupstate.Event) {
		if !intruded && e.Current.CurrentGroupID == "group-D" {
			intruded = true
			foreign := model.NewGroupState("group-X", "other-node", e.Current.UpdatedAt.Time())
			require.NoError(t, memory.WriteCell(ctx, cellref.MustParseA1("ZA1"), json.MustEncodeString(foreign, false)))
		}
	})

	record, err := f.coord.Transition(ctx, "group-A", "group-D")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `lost the transition race, the current group is "group-X"`)
	assert.Equal(t, model.TransitionRolledBack, record.Phase)

	// The previous group is restored.
	assert.Equal(t, "group-A", f.states.CurrentGroup().CurrentGroupID)
}

func TestTransitionCommitFailureRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	memory := fixtureGrid()
	f := newFixture(t, memory, config.DefaultConfig())
	require.NoError(t, f.states.SetCurrentGroup(ctx, "group-A", "test"))
	answerGroupA(t, f)

	// The state cell becomes unwritable.
	stateCell := cellref.MustParseA1("ZA1")
	memory.WriteHook = func(cell cellref.CellRef, _ string) error {
		if cell == stateCell {
			return errors.New("grid is down")
		}
		return nil
	}

	record, err := f.coord.Transition(ctx, "group-A", "group-D")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid is down")
	assert.Equal(t, model.TransitionRolledBack, record.Phase)
	assert.Equal(t, "group-A", f.states.CurrentGroup().CurrentGroupID)
}
