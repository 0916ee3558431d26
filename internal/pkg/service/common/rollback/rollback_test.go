package rollback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

func TestRollbackLIFO(t *testing.T) {
	t.Parallel()

	var order []string
	rb := New(log.NewNopLogger())
	rb.Add(func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	rb.Add(func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	rb.Invoke(context.Background())
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestRollbackInvokeIfErr(t *testing.T) {
	t.Parallel()

	invoked := false
	rb := New(log.NewNopLogger())
	rb.Add(func(ctx context.Context) error {
		invoked = true
		return nil
	})

	var err error
	rb.InvokeIfErr(context.Background(), &err)
	assert.False(t, invoked)

	err = errors.New("commit failed")
	rb.InvokeIfErr(context.Background(), &err)
	assert.True(t, invoked)
}

func TestRollbackErrorLogged(t *testing.T) {
	t.Parallel()

	logger := log.NewDebugLogger()
	rb := New(logger)
	rb.Add(func(ctx context.Context) error {
		return errors.New("cannot revert cell")
	})

	rb.Invoke(context.Background())
	assert.Contains(t, logger.WarnMessages(), "rollback failed: cannot revert cell")
}
