package cached

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
)

func TestCachedReadRange(t *testing.T) {
	t.Parallel()

	reads := 0
	memory := grid.NewMemoryGridFromRows([][]string{{"a", "b"}})
	memory.ReadHook = func(r cellref.Range) error {
		reads++
		return nil
	}

	cached, err := New(memory, time.Minute)
	require.NoError(t, err)
	defer cached.Close()

	ctx := context.Background()
	r := cellref.RowRange(0, 1, 1, 1)

	rows, err := cached.ReadRange(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, rows)
	assert.Equal(t, 1, reads)

	// Second read is served from the cache
	_, err = cached.ReadRange(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 1, reads)

	// The live grid always reads through
	_, err = cached.Live().ReadRange(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 2, reads)
}

func TestCachedWriteInvalidates(t *testing.T) {
	t.Parallel()

	memory := grid.NewMemoryGridFromRows([][]string{{"a"}})
	cached, err := New(memory, time.Minute)
	require.NoError(t, err)
	defer cached.Close()

	ctx := context.Background()
	r := cellref.RowRange(0, 0, 1, 1)

	rows, err := cached.ReadRange(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}}, rows)

	require.NoError(t, cached.WriteCell(ctx, cellref.New(0, 1), "changed"))

	rows, err = cached.ReadRange(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"changed"}}, rows)
}
