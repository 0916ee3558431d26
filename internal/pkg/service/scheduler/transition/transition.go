// Package transition implements the group transition protocol.
//
// A transition moves the shared current group forward, the protocol phases
// are Validating -> Committing -> Finalized, a failure in an active phase
// ends in RolledBack and the previous group state is restored. A validation
// failure blocks the transition and is never retried automatically, the
// caller decides when to try again.
package transition

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gridrun/gridrun/internal/pkg/encoding/json"
	"github.com/gridrun/gridrun/internal/pkg/idgenerator"
	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/common/rollback"
	"github.com/gridrun/gridrun/internal/pkg/service/common/utctime"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/groupstate"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/retrier"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/scan"
	"github.com/gridrun/gridrun/internal/pkg/telemetry"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

// ValidationError blocks a transition, it is not retried automatically.
type ValidationError struct {
	FromGroupID string
	Reason      string
}

func (e ValidationError) Error() string {
	return "cannot leave group \"" + e.FromGroupID + "\": " + e.Reason
}

// IsValidationError returns true when the transition was blocked by validation.
func IsValidationError(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

type dependencies interface {
	Logger() log.Logger
	Clock() clock.Clock
	Telemetry() telemetry.Telemetry
	LiveGrid() grid.Grid
	Config() config.Config
	NodeID() string
}

// ScannerFor returns the task scanner of the group, see the orchestrator wiring.
type ScannerFor func(groupID string) (*scan.Scanner, error)

// Coordinator runs transitions and keeps the bounded transition history.
// The history is persisted to the grid history cell, finalized transitions
// stay idempotent across restarts.
type Coordinator struct {
	logger      log.Logger
	clock       clock.Clock
	telemetry   telemetry.Telemetry
	grid        grid.Grid
	config      config.Config
	nodeID      string
	states      *groupstate.Manager
	retries     *retrier.Registry
	scannerFor  ScannerFor
	stateCell   cellref.CellRef
	historyCell cellref.CellRef

	lock      sync.Mutex
	history   []model.TransitionRecord
	finalized map[string]model.TransitionRecord
}

func NewCoordinator(d dependencies, states *groupstate.Manager, retries *retrier.Registry, scannerFor ScannerFor) (*Coordinator, error) {
	stateCell, err := cellref.ParseA1(d.Config().Grid.StateCell)
	if err != nil {
		return nil, errors.PrefixError(err, "invalid state cell")
	}
	historyCell, err := cellref.ParseA1(d.Config().Grid.HistoryCell)
	if err != nil {
		return nil, errors.PrefixError(err, "invalid history cell")
	}
	return &Coordinator{
		logger:      d.Logger().AddPrefix("[transition]"),
		clock:       d.Clock(),
		telemetry:   d.Telemetry(),
		grid:        d.LiveGrid(),
		config:      d.Config(),
		nodeID:      d.NodeID(),
		states:      states,
		retries:     retries,
		scannerFor:  scannerFor,
		stateCell:   stateCell,
		historyCell: historyCell,
		finalized:   make(map[string]model.TransitionRecord),
	}, nil
}

// Load reads the persisted history from the grid, an empty cell means no history.
// Finalized records rebuild the idempotence index, call it once on start.
func (c *Coordinator) Load(ctx context.Context) error {
	value, err := grid.ReadCell(ctx, c.grid, c.historyCell)
	if err != nil {
		return errors.PrefixError(err, "cannot load transition history")
	}

	var history []model.TransitionRecord
	if value != "" {
		if err := json.DecodeString(value, &history); err != nil {
			return errors.PrefixErrorf(err, `corrupted transition history in cell "%s"`, c.historyCell.A1())
		}
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	c.history = history
	c.finalized = make(map[string]model.TransitionRecord)
	for _, record := range history {
		if record.Phase == model.TransitionFinalized {
			c.finalized[transitionKey(record.FromGroupID, record.ToGroupID)] = record
		}
	}
	return nil
}

// History returns a copy of the retained transition records, oldest first.
func (c *Coordinator) History() []model.TransitionRecord {
	c.lock.Lock()
	defer c.lock.Unlock()
	out := make([]model.TransitionRecord, len(c.history))
	copy(out, c.history)
	return out
}

// Transition moves the current group from one group to the next.
// A repeated request for an already finalized pair returns the original
// record, nothing is re-run.
func (c *Coordinator) Transition(ctx context.Context, fromID, toID string) (record model.TransitionRecord, err error) {
	if cached, found := c.alreadyFinalized(fromID, toID); found {
		c.logger.Infof(`transition "%s" -> "%s" already finalized, returning record "%s"`, fromID, toID, cached.ID)
		return cached, nil
	}

	ctx, span := c.telemetry.Tracer().Start(ctx, "gridrun.scheduler.transition")
	span.SetAttributes(
		attribute.String("transition.from", fromID),
		attribute.String("transition.to", toID),
	)
	defer span.End(&err)

	record = model.TransitionRecord{
		ID:          idgenerator.TransitionID(),
		FromGroupID: fromID,
		ToGroupID:   toID,
		Initiator:   c.nodeID,
		Phase:       model.TransitionValidating,
		Timestamp:   utctime.From(c.clock.Now()),
	}
	c.logger.Infof(`transition "%s": "%s" -> "%s" validating`, record.ID, fromID, toID)

	if err = c.validate(ctx, fromID); err != nil {
		record.Phase = model.TransitionRolledBack
		record.Outcome = err.Error()
		c.appendHistory(ctx, record)
		return record, err
	}

	record.Phase = model.TransitionCommitting
	if err = c.commit(ctx, record); err != nil {
		record.Phase = model.TransitionRolledBack
		record.Outcome = err.Error()
		c.appendHistory(ctx, record)
		return record, err
	}

	record.Phase = model.TransitionFinalized
	c.appendHistory(ctx, record)
	c.markFinalized(record)
	c.logger.Infof(`transition "%s" finalized, current group is "%s"`, record.ID, toID)
	return record, nil
}

// validate checks the source group is complete: the current group matches,
// the scanner finds no executable task and no replay is pending.
func (c *Coordinator) validate(ctx context.Context, fromID string) error {
	if current := c.states.CurrentGroup().CurrentGroupID; current != "" && current != fromID {
		return ValidationError{FromGroupID: fromID, Reason: `current group is "` + current + `"`}
	}

	scanner, err := c.scannerFor(fromID)
	if err != nil {
		return ValidationError{FromGroupID: fromID, Reason: err.Error()}
	}
	tasks, truncated, err := scanner.Scan(ctx)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot validate group "%s"`, fromID)
	}
	if truncated {
		// The scan budget stopped the pass, the unexamined tail may hold work.
		return ValidationError{FromGroupID: fromID, Reason: "completion not proven, the scan was truncated"}
	}
	if len(tasks) > 0 {
		return ValidationError{FromGroupID: fromID, Reason: "executable tasks remain"}
	}
	if c.retries.HasRetryable(fromID) {
		return ValidationError{FromGroupID: fromID, Reason: "failed tasks await replay"}
	}
	return nil
}

// commit durably switches the current group and re-verifies by reading the
// state cell back, a mismatch means a concurrent writer and triggers rollback.
func (c *Coordinator) commit(ctx context.Context, record model.TransitionRecord) error {
	previous := c.states.CurrentGroup()
	rb := rollback.New(c.logger)
	rb.Add(func(ctx context.Context) error {
		if previous.CurrentGroupID == "" {
			return c.grid.WriteCell(ctx, c.stateCell, "")
		}
		return c.states.SetCurrentGroup(ctx, previous.CurrentGroupID, "rollback:"+record.ID)
	})

	var err error
	defer rb.InvokeIfErr(ctx, &err)

	if err = c.states.SetCurrentGroup(ctx, record.ToGroupID, "transition:"+record.ID); err != nil {
		return err
	}

	// Re-verify, the grid has no compare-and-swap.
	value, readErr := grid.ReadCell(ctx, c.grid, c.stateCell)
	if readErr != nil {
		err = errors.PrefixError(readErr, "cannot re-verify the committed group state")
		return err
	}
	committed := model.GroupState{}
	if decodeErr := json.DecodeString(value, &committed); decodeErr != nil {
		err = errors.PrefixError(decodeErr, "cannot re-verify the committed group state")
		return err
	}
	if committed.CurrentGroupID != record.ToGroupID {
		err = errors.Errorf(`lost the transition race, the current group is "%s"`, committed.CurrentGroupID)
		return err
	}
	return nil
}

// appendHistory persists the bounded history, a persistence failure is logged
// and does not change the transition outcome.
func (c *Coordinator) appendHistory(ctx context.Context, record model.TransitionRecord) {
	c.lock.Lock()
	c.history = append(c.history, record)
	if over := len(c.history) - c.config.TransitionHistoryLimit; over > 0 {
		c.history = c.history[over:]
	}
	encoded := json.MustEncodeString(c.history, false)
	c.lock.Unlock()

	if err := c.grid.WriteCell(ctx, c.historyCell, encoded); err != nil {
		c.logger.Errorf(`cannot persist transition history: %s`, err)
	}
}

func (c *Coordinator) alreadyFinalized(fromID, toID string) (model.TransitionRecord, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	record, found := c.finalized[transitionKey(fromID, toID)]
	return record, found
}

func (c *Coordinator) markFinalized(record model.TransitionRecord) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.finalized[transitionKey(record.FromGroupID, record.ToGroupID)] = record
}

func transitionKey(fromID, toID string) string {
	return fromID + " -> " + toID
}
