// Package worker defines the task execution contract.
//
// A Worker turns the prompt payload of a task into the answer value.
// The Invoker wraps every execution with the per-worker-type maximum wait
// and panic recovery, a panicking adapter becomes a retryable error,
// never a crashed scheduler.
package worker

import (
	"context"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

// Worker executes one task and returns the value written to the answer cell.
// The returned value must be non-empty, an empty cell means "not processed".
type Worker interface {
	Execute(ctx context.Context, task model.Task) (string, error)
}

// Func adapts a plain function to the Worker interface.
type Func func(ctx context.Context, task model.Task) (string, error)

func (f Func) Execute(ctx context.Context, task model.Task) (string, error) {
	return f(ctx, task)
}

// NewEchoWorker returns the built-in adapter answering with the first
// payload line, it serves wiring tests and dry runs.
func NewEchoWorker() Worker {
	return Func(func(ctx context.Context, task model.Task) (string, error) {
		first, _, _ := strings.Cut(task.Payload, "\n")
		return "echo: " + first, nil
	})
}

// Registry maps worker types to adapters.
// Register all workers before the first Invoke, lookups are not synchronized.
type Registry struct {
	workers  map[string]Worker
	fallback Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

func (r *Registry) Register(workerType string, w Worker) *Registry {
	r.workers[workerType] = w
	return r
}

// RegisterFallback sets the worker used for types without an explicit adapter.
func (r *Registry) RegisterFallback(w Worker) *Registry {
	r.fallback = w
	return r
}

func (r *Registry) For(workerType string) (Worker, error) {
	if w, found := r.workers[workerType]; found {
		return w, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, errors.Errorf(`no worker registered for type "%s"`, workerType)
}

type dependencies interface {
	Logger() log.Logger
	Clock() clock.Clock
	Config() config.Config
}

// Invoker executes tasks through the registry with abandonment and panic safety.
type Invoker struct {
	logger   log.Logger
	clock    clock.Clock
	config   config.Config
	registry *Registry
}

func NewInvoker(d dependencies, registry *Registry) *Invoker {
	return &Invoker{
		logger:   d.Logger().AddPrefix("[worker]"),
		clock:    d.Clock(),
		config:   d.Config(),
		registry: registry,
	}
}

type result struct {
	value string
	err   error
}

// Invoke runs the task on its worker.
// The execution is abandoned after the per-worker-type maximum wait,
// the worker context is then cancelled and the caller releases the claim.
func (i *Invoker) Invoke(ctx context.Context, task model.Task) (string, error) {
	w, err := i.registry.For(task.WorkerType)
	if err != nil {
		return "", err
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The timer must exist before the worker starts,
	// a mocked clock may be advanced as soon as the worker runs.
	maxWait := i.config.MaxWait(task.WorkerType)
	timer := i.clock.Timer(maxWait)
	defer timer.Stop()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: errors.Errorf(`worker "%s" panicked: %v`, task.WorkerType, p)}
			}
		}()
		value, err := w.Execute(execCtx, task)
		done <- result{value: value, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		i.logger.Warnf(`task "%s" abandoned after %s`, task.ID, maxWait)
		return "", errors.Errorf(`task "%s" abandoned after %s`, task.ID, maxWait)
	}
}
