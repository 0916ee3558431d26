// Package executor drives the claim-execute-release cycle of one work group.
//
// Tasks run in batches of the pool width, a batch is fully awaited before the
// next tasks are pulled. A claim conflict is a benign skip, the task belongs
// to someone else. A failure releases the claim and reverts the cell to
// empty, the scanner re-finds the task until the retrier turns it Fatal.
package executor

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/gridrun/gridrun/internal/pkg/idgenerator"
	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/claim"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/retrier"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/scan"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/worker"
	"github.com/gridrun/gridrun/internal/pkg/telemetry"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

type dependencies interface {
	Logger() log.Logger
	Clock() clock.Clock
	Telemetry() telemetry.Telemetry
	Grid() grid.Grid
	Config() config.Config
}

// Executor runs scanned tasks with bounded concurrency.
// One instance is shared by the sequential and the opportunistic scheduler,
// the claim store below it guarantees per-cell exclusivity.
type Executor struct {
	logger    log.Logger
	clock     clock.Clock
	telemetry telemetry.Telemetry
	grid      grid.Grid
	config    config.Config
	claims    *claim.Store
	retries   *retrier.Registry
	invoker   *worker.Invoker
}

func New(d dependencies, claims *claim.Store, retries *retrier.Registry, invoker *worker.Invoker) *Executor {
	return &Executor{
		logger:    d.Logger().AddPrefix("[executor]"),
		clock:     d.Clock(),
		telemetry: d.Telemetry(),
		grid:      d.Grid(),
		config:    d.Config(),
		claims:    claims,
		retries:   retries,
		invoker:   invoker,
	}
}

// Drain processes the group until a complete scan finds no executable task.
// A truncated scan is processed and re-invoked, the unexamined tail may
// still hold work. Tasks backing off between retry attempts are waited for,
// the returned stats count terminal outcomes only, a replayed failure is
// not a failure.
func (e *Executor) Drain(ctx context.Context, scanner *scan.Scanner, groupID string) (model.Stats, error) {
	stats := model.Stats{}
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		tasks, truncated, err := scanner.Scan(ctx)
		if err != nil {
			return stats, errors.PrefixErrorf(err, `cannot scan group "%s"`, groupID)
		}
		if len(tasks) == 0 && !truncated {
			return stats, nil
		}

		eligible := make([]model.Task, 0, len(tasks))
		for _, task := range tasks {
			if e.retries.Eligible(task.ID) {
				eligible = append(eligible, task)
			}
		}

		if len(eligible) == 0 {
			// Everything executable is backing off, wait for the earliest replay.
			if err := e.waitForRetry(ctx, groupID, truncated); err != nil {
				return stats, err
			}
			continue
		}

		batch := e.Process(ctx, eligible)
		stats.Add(batch)
		if batch.Total == 0 && !e.retries.HasRetryable(groupID) {
			// Every claim conflicted, pause before the re-scan.
			if err := e.pause(ctx, e.config.RescanDelay); err != nil {
				return stats, err
			}
		}
	}
}

// Process executes the tasks in batches of the pool width and returns
// the terminal outcome counts. Claim conflicts are dropped silently.
func (e *Executor) Process(ctx context.Context, tasks []model.Task) model.Stats {
	stats := model.Stats{}
	for start := 0; start < len(tasks); start += e.config.PoolWidth {
		end := min(start+e.config.PoolWidth, len(tasks))

		outcomes := make([]model.Outcome, end-start)
		grp, grpCtx := errgroup.WithContext(ctx)
		for i, task := range tasks[start:end] {
			grp.Go(func() error {
				outcomes[i] = e.processTask(grpCtx, task)
				return nil
			})
		}
		_ = grp.Wait() // the workers never return an error, outcomes carry the results

		for _, outcome := range outcomes {
			switch outcome.Kind() {
			case model.OutcomeSucceeded:
				stats.Total++
				stats.Succeeded++
			case model.OutcomeFatal:
				stats.Total++
				stats.Failed++
			}
		}
	}
	return stats
}

// processTask runs one claim-execute-release cycle, it never returns an error,
// every problem is folded into the outcome.
func (e *Executor) processTask(ctx context.Context, task model.Task) (outcome model.Outcome) {
	var err error
	// The run ID distinguishes replays of the same cell in traces and logs.
	runID := idgenerator.TaskRunID()
	ctx, span := e.telemetry.Tracer().Start(ctx, "gridrun.scheduler.executor.task")
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.runId", runID),
		attribute.String("task.group", task.GroupID),
		attribute.String("task.workerType", task.WorkerType),
	)
	defer span.End(&err)

	if err = e.claims.TryClaim(ctx, task); err != nil {
		if claim.IsConflict(err) {
			e.logger.Debugf(`task "%s" skipped: %s`, task.ID, err)
			err = nil
			return model.Pending()
		}
		// A hard claim error backs off like an execution failure,
		// otherwise a grid outage would spin the drain loop hot.
		e.logger.Errorf(`cannot claim task "%s": %s`, task.ID, err)
		return e.retries.Record(task, err)
	}

	value, execErr := e.invoker.Invoke(ctx, task)
	if execErr == nil && value == "" {
		execErr = errors.Errorf(`worker returned an empty answer for task "%s"`, task.ID)
	}

	if execErr != nil {
		outcome = e.retries.Record(task, execErr)
		if releaseErr := e.claims.Release(ctx, task, outcome); releaseErr != nil {
			e.logger.Errorf(`cannot release task "%s": %s`, task.ID, releaseErr)
		}
		err = execErr
		return outcome
	}

	if writeErr := e.writeResult(ctx, task, value); writeErr != nil {
		outcome = e.retries.Record(task, writeErr)
		if releaseErr := e.claims.Release(ctx, task, outcome); releaseErr != nil {
			e.logger.Errorf(`cannot release task "%s": %s`, task.ID, releaseErr)
		}
		err = writeErr
		return outcome
	}

	e.retries.Resolve(task.ID)
	outcome = model.Succeeded()
	if releaseErr := e.claims.Release(ctx, task, outcome); releaseErr != nil {
		e.logger.Errorf(`cannot release task "%s": %s`, task.ID, releaseErr)
	}
	e.logger.Infof(`task "%s" succeeded, run "%s"`, task.ID, runID)
	return outcome
}

// writeResult writes through the scan grid, a cached wrapper drops its
// entries so the next scan sees the answer.
func (e *Executor) writeResult(ctx context.Context, task model.Task, value string) error {
	if err := e.grid.WriteCell(ctx, task.AnswerCell, value); err != nil {
		return errors.Wrapf(err, `cannot write result of task "%s"`, task.ID)
	}
	return nil
}

// waitForRetry sleeps until the earliest pending replay of the group.
// A truncated scan without a pending replay is paced by the re-scan delay,
// its rows are typically held by foreign claims and must be re-checked.
func (e *Executor) waitForRetry(ctx context.Context, groupID string, truncated bool) error {
	wake, found := e.retries.NextWake(groupID)
	if !found {
		if truncated {
			return e.pause(ctx, e.config.RescanDelay)
		}
		// Only Fatal entries remain, yet the scanner keeps returning their
		// tasks. The caller excludes Fatal tasks, this is a wiring bug.
		return errors.Errorf(`group "%s" has executable tasks but no pending replay`, groupID)
	}

	delay := wake.Sub(e.clock.Now())
	if delay > 0 {
		e.logger.Debugf(`waiting %s for the next replay of group "%s"`, delay, groupID)
	}
	return e.pause(ctx, delay)
}

func (e *Executor) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := e.clock.Timer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
