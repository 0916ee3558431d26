// Package groupstate owns the shared "current group" value.
//
// All mutations go through the Manager, the internal mutex serializes them and
// guarantees no reader or listener ever observes a partial update. The durable
// write to the grid state cell happens before the in-memory commit, the mutex
// is never held across an I/O suspension point.
package groupstate

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/gridrun/gridrun/internal/pkg/encoding/json"
	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

// Event is delivered synchronously to every listener on each committed change.
type Event struct {
	Previous model.GroupState
	Current  model.GroupState
	// Source names the initiator of the change, e.g. "sequential" or "transition".
	Source string
}

// Listener receives change events, it runs under the manager mutex and must not block.
type Listener func(Event)

type dependencies interface {
	Logger() log.Logger
	Clock() clock.Clock
	LiveGrid() grid.Grid
	Config() config.Config
}

// Manager serializes updates of the shared current group value.
type Manager struct {
	logger    log.Logger
	clock     clock.Clock
	grid      grid.Grid
	stateCell cellref.CellRef
	logLimit  int

	lock      sync.Mutex
	state     model.GroupState
	changeLog []Event
	listeners []Listener
}

func NewManager(d dependencies) (*Manager, error) {
	stateCell, err := cellref.ParseA1(d.Config().Grid.StateCell)
	if err != nil {
		return nil, errors.PrefixError(err, "invalid state cell")
	}
	return &Manager{
		logger:    d.Logger().AddPrefix("[groupstate]"),
		clock:     d.Clock(),
		grid:      d.LiveGrid(),
		stateCell: stateCell,
		logLimit:  d.Config().GroupStateLogLimit,
	}, nil
}

// Load reads the persisted state from the grid, an empty cell means no current group.
// It replaces the in-memory value, call it once on start, before listeners attach.
func (m *Manager) Load(ctx context.Context) error {
	value, err := grid.ReadCell(ctx, m.grid, m.stateCell)
	if err != nil {
		return errors.PrefixError(err, "cannot load group state")
	}

	state := model.GroupState{}
	if value != "" {
		if err := json.DecodeString(value, &state); err != nil {
			return errors.PrefixErrorf(err, `corrupted group state in cell "%s"`, m.stateCell.A1())
		}
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.state = state
	return nil
}

// CurrentGroup returns the last committed state, never a partial update.
func (m *Manager) CurrentGroup() model.GroupState {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

// OnChange registers a listener, it is invoked synchronously on every committed change.
func (m *Manager) OnChange(fn Listener) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.listeners = append(m.listeners, fn)
}

// ChangeLog returns a copy of the bounded change log, oldest first.
func (m *Manager) ChangeLog() []Event {
	m.lock.Lock()
	defer m.lock.Unlock()
	out := make([]Event, len(m.changeLog))
	copy(out, m.changeLog)
	return out
}

// SetCurrentGroup durably writes the new state and then commits it in memory.
// A failed grid write leaves the previous state intact, no listener is notified.
func (m *Manager) SetCurrentGroup(ctx context.Context, groupID, source string) error {
	next := model.NewGroupState(groupID, source, m.clock.Now())
	if err := m.grid.WriteCell(ctx, m.stateCell, json.MustEncodeString(next, false)); err != nil {
		return errors.PrefixErrorf(err, `cannot persist current group "%s"`, groupID)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	event := Event{Previous: m.state, Current: next, Source: source}
	m.state = next

	m.changeLog = append(m.changeLog, event)
	if over := len(m.changeLog) - m.logLimit; over > 0 {
		m.changeLog = m.changeLog[over:]
	}

	m.logger.Infof(`current group changed "%s" -> "%s", source "%s"`, event.Previous.CurrentGroupID, groupID, source)
	for _, fn := range m.listeners {
		fn(event)
	}
	return nil
}
