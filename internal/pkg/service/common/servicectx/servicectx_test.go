package servicectx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridrun/gridrun/internal/pkg/log"
)

func TestProcessShutdownOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	proc, err := New(ctx, cancel, log.NewNopLogger(), WithUniqueID("test-node"))
	require.NoError(t, err)
	assert.Equal(t, "test-node", proc.UniqueID())

	var order []string
	proc.OnShutdown(func() {
		order = append(order, "first registered")
	})
	proc.OnShutdown(func() {
		order = append(order, "second registered")
	})

	proc.Shutdown(nil)
	proc.WaitForShutdown()

	// LIFO order
	assert.Equal(t, []string{"second registered", "first registered"}, order)
}
