// Package orchestrator is the top-level run loop.
//
// The sequential scheduler owns one group end-to-end: it drains the group,
// transitions to the next one and only then moves on. The opportunistic
// scheduler probes all groups on a cron schedule and executes whatever
// executable tasks it finds, the claim store keeps both sides from double
// executing a cell. Run never lets an error escape unhandled, the result
// always carries the per-group and aggregate counts.
package orchestrator

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/claim"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/deps"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/executor"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/groupstate"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/retrier"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/scan"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/structure"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/transition"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/worker"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

// GroupResult is the completion count of one work group.
type GroupResult struct {
	GroupID string      `json:"groupId"`
	Stats   model.Stats `json:"stats"`
}

// RunResult is the structured outcome of one orchestration run.
// Partial results are kept even when the run ends with an error.
type RunResult struct {
	Groups    []GroupResult `json:"groups"`
	Aggregate model.Stats   `json:"aggregate"`
	Error     error         `json:"-"`
}

type Orchestrator struct {
	d      deps.Dependencies
	logger log.Logger
	config config.Config

	states  *groupstate.Manager
	retries *retrier.Registry
	exec    *executor.Executor
	coord   *transition.Coordinator

	lock            sync.Mutex
	structureGroups []*model.WorkGroup
	scanners        map[string]*scan.Scanner
}

func New(d deps.Dependencies, registry *worker.Registry) (*Orchestrator, error) {
	o := &Orchestrator{
		d:        d,
		logger:   d.Logger().AddPrefix("[orchestrator]"),
		config:   d.Config(),
		scanners: make(map[string]*scan.Scanner),
	}

	states, err := groupstate.NewManager(d)
	if err != nil {
		return nil, err
	}
	o.states = states
	o.retries = retrier.New(d)
	o.exec = executor.New(d, claim.NewStore(d), o.retries, worker.NewInvoker(d, registry))

	coord, err := transition.NewCoordinator(d, states, o.retries, o.scannerFor)
	if err != nil {
		return nil, err
	}
	o.coord = coord
	return o, nil
}

// States returns the group state manager, listeners attach here.
func (o *Orchestrator) States() *groupstate.Manager {
	return o.states
}

// History returns the retained transition records.
func (o *Orchestrator) History() []model.TransitionRecord {
	return o.coord.History()
}

// Run processes the whole grid: group by group in ordinal order,
// with the opportunistic prober running alongside.
func (o *Orchestrator) Run(ctx context.Context) (result RunResult) {
	defer func() {
		if p := recover(); p != nil {
			result.Error = errors.Errorf("orchestration panicked: %v", p)
			o.logger.Errorf("%s", result.Error)
		}
	}()

	s, err := structure.Analyze(ctx, o.d)
	if err != nil {
		result.Error = err
		o.logger.Errorf("cannot analyze the grid: %s", err)
		return result
	}
	o.setStructure(s)

	if err := o.states.Load(ctx); err != nil {
		result.Error = err
		return result
	}
	if err := o.coord.Load(ctx); err != nil {
		result.Error = err
		return result
	}

	stopProber := o.startProber(ctx)
	defer stopProber()

	errs := errors.NewMultiError()
	for i, group := range s.Groups {
		if err := o.enterGroup(ctx, group.ID); err != nil {
			errs.Append(err)
			break
		}

		scanner, err := o.scannerFor(group.ID)
		if err != nil {
			errs.Append(err)
			break
		}

		stats, err := o.exec.Drain(ctx, scanner, group.ID)
		result.Groups = append(result.Groups, GroupResult{GroupID: group.ID, Stats: stats})
		result.Aggregate.Add(stats)
		if err != nil {
			errs.Append(err)
			break
		}
		o.logger.Infof(`group "%s" complete: %d total, %d succeeded, %d failed`, group.ID, stats.Total, stats.Succeeded, stats.Failed)

		if i+1 < len(s.Groups) {
			if _, err := o.coord.Transition(ctx, group.ID, s.Groups[i+1].ID); err != nil {
				errs.Append(err)
				break
			}
		}
	}

	result.Error = errs.ErrorOrNil()
	return result
}

// Probe runs one opportunistic pass: every group is scanned and the found
// tasks are executed. Claim conflicts with the sequential scheduler are benign.
func (o *Orchestrator) Probe(ctx context.Context) model.Stats {
	stats := model.Stats{}
	groups := o.groups()
	for _, group := range groups {
		scanner, err := o.scannerFor(group.ID)
		if err != nil {
			continue
		}
		// A truncated probe is fine, it executes what the window found.
		tasks, _, err := scanner.Scan(ctx)
		if err != nil {
			o.logger.Warnf(`probe of group "%s" failed: %s`, group.ID, err)
			continue
		}

		eligible := make([]model.Task, 0, len(tasks))
		for _, task := range tasks {
			if o.retries.Eligible(task.ID) {
				eligible = append(eligible, task)
			}
		}
		if len(eligible) == 0 {
			continue
		}
		stats.Add(o.exec.Process(ctx, eligible))
	}
	return stats
}

// startProber schedules Probe on the configured cron expression,
// an empty expression disables the prober.
func (o *Orchestrator) startProber(ctx context.Context) (stop func()) {
	if o.config.ProbeSchedule == "" {
		return func() {}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(o.config.ProbeSchedule, func() {
		if ctx.Err() != nil {
			return
		}
		if stats := o.Probe(ctx); stats.Total > 0 {
			o.logger.Infof(`probe finished: %d total, %d succeeded, %d failed`, stats.Total, stats.Succeeded, stats.Failed)
		}
	})
	if err != nil {
		o.logger.Warnf(`invalid probe schedule "%s", prober disabled: %s`, o.config.ProbeSchedule, err)
		return func() {}
	}

	o.logger.Infof(`probing all groups on schedule "%s"`, o.config.ProbeSchedule)
	c.Start()
	return func() {
		<-c.Stop().Done()
	}
}

// enterGroup makes the group current, either initially or by a transition
// from the previous group of a resumed run.
func (o *Orchestrator) enterGroup(ctx context.Context, groupID string) error {
	current := o.states.CurrentGroup().CurrentGroupID
	if current == groupID {
		return nil
	}
	if current == "" {
		return o.states.SetCurrentGroup(ctx, groupID, "sequential")
	}
	_, err := o.coord.Transition(ctx, current, groupID)
	return err
}

func (o *Orchestrator) setStructure(s *structure.Structure) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.scanners = make(map[string]*scan.Scanner)
	o.structureGroups = s.Groups
	for _, group := range s.Groups {
		o.scanners[group.ID] = scan.New(o.d, group, s.RowFilter, scan.WithExcluded(o.retries.IsFatal))
	}
}

func (o *Orchestrator) scannerFor(groupID string) (*scan.Scanner, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	scanner, found := o.scanners[groupID]
	if !found {
		return nil, errors.Errorf(`unknown group "%s"`, groupID)
	}
	return scanner, nil
}

func (o *Orchestrator) groups() []*model.WorkGroup {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.structureGroups
}
