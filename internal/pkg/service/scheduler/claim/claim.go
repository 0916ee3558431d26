// Package claim implements the coordination protocol over the grid.
//
// The grid offers no atomic compare-and-swap, so the store combines two layers:
//   - a local lock per cell, claims of schedulers inside one process serialize here,
//   - the claim marker protocol against the live grid, a re-read before the write
//     and a re-verify after it guard against other processes.
//
// Any ambiguous non-empty, non-stale cell is treated as owned by someone else.
// That trades occasional false-negative skips for never double-executing.
package claim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

const (
	readBackoffInitial = 100 * time.Millisecond
	readBackoffMax     = 2 * time.Second
)

// ConflictError means the task is owned or already completed by someone else.
// It is benign, the caller silently drops the task.
type ConflictError struct {
	Cell   cellref.CellRef
	Reason string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf(`cell "%s" is not claimable: %s`, e.Cell.A1(), e.Reason)
}

// IsConflict returns true when the error is a benign claim conflict.
func IsConflict(err error) bool {
	var conflict ConflictError
	return errors.As(err, &conflict)
}

type dependencies interface {
	Logger() log.Logger
	Clock() clock.Clock
	Grid() grid.Grid
	LiveGrid() grid.Grid
	Config() config.Config
	NodeID() string
}

// Store serializes claims, one instance is shared by all schedulers of the process.
// Reads always go to the live store. Writes go through the scan grid, a cached
// wrapper drops its entries so the next scan sees the marker change.
type Store struct {
	logger   log.Logger
	clock    clock.Clock
	live     grid.Grid
	grid     grid.Grid
	config   config.Config
	claimant string

	// Local locks, at most one in-process claim per cell.
	locksMutex *sync.Mutex
	locks      map[string]bool
}

func NewStore(d dependencies) *Store {
	return &Store{
		logger:     d.Logger().AddPrefix("[claim]"),
		clock:      d.Clock(),
		live:       d.LiveGrid(),
		grid:       d.Grid(),
		config:     d.Config(),
		claimant:   d.NodeID(),
		locksMutex: &sync.Mutex{},
		locks:      make(map[string]bool),
	}
}

// TryClaim acquires the task cell for execution.
// The live cell is re-read immediately before claiming, any cache is bypassed.
// On success a claim marker is written and verified, the caller must finish
// with Release, otherwise the cell stays locked until the TTL expires.
func (s *Store) TryClaim(ctx context.Context, task model.Task) error {
	cell := task.AnswerCell

	if !s.lockLocally(cell) {
		return ConflictError{Cell: cell, Reason: "already claimed by this process"}
	}

	if err := s.tryClaimRemote(ctx, cell); err != nil {
		s.unlockLocally(cell)
		return err
	}

	s.logger.Debugf(`claimed "%s"`, cell.A1())
	return nil
}

func (s *Store) tryClaimRemote(ctx context.Context, cell cellref.CellRef) error {
	value, err := s.readLive(ctx, cell)
	if err != nil {
		// Ambiguous read after bounded retry, resolved conservatively as a conflict.
		s.logger.Warnf(`ambiguous read of "%s", skipping: %s`, cell.A1(), err)
		return ConflictError{Cell: cell, Reason: "ambiguous read"}
	}

	if value != "" {
		marker, isMarker := model.ParseClaimMarker(value)
		if !isMarker {
			return ConflictError{Cell: cell, Reason: "cell holds a result"}
		}
		if !s.IsStale(marker) {
			return ConflictError{Cell: cell, Reason: fmt.Sprintf(`claimed by "%s"`, marker.Claimant)}
		}
		s.logger.Infof(`reclaiming "%s", stale marker of "%s"`, cell.A1(), marker.Claimant)
	}

	marker := model.NewClaimMarker(s.claimant, s.clock.Now())
	if err := s.grid.WriteCell(ctx, cell, marker.Encode()); err != nil {
		return errors.Wrapf(err, `cannot write claim marker to "%s"`, cell.A1())
	}

	// Re-verify, a concurrent writer may have won the race.
	value, err = s.readLive(ctx, cell)
	if err != nil {
		return ConflictError{Cell: cell, Reason: "ambiguous read after claim"}
	}
	written, isMarker := model.ParseClaimMarker(value)
	if !isMarker || written.Claimant != s.claimant {
		return ConflictError{Cell: cell, Reason: "lost claim race"}
	}

	return nil
}

// Release finishes the claim.
// On success the result written by the executor stands, only the local lock is dropped.
// On failure the marker is removed, the cell reverts to empty and the task
// becomes claimable again.
func (s *Store) Release(ctx context.Context, task model.Task, outcome model.Outcome) error {
	cell := task.AnswerCell
	defer s.unlockLocally(cell)

	if outcome.IsSucceeded() {
		return nil
	}

	value, err := s.readLive(ctx, cell)
	if err != nil {
		return errors.Wrapf(err, `cannot release claim of "%s"`, cell.A1())
	}
	marker, isMarker := model.ParseClaimMarker(value)
	if !isMarker || marker.Claimant != s.claimant {
		// Not ours anymore, nothing to revert.
		return nil
	}
	if err := s.grid.WriteCell(ctx, cell, ""); err != nil {
		return errors.Wrapf(err, `cannot release claim of "%s"`, cell.A1())
	}

	s.logger.Debugf(`released "%s"`, cell.A1())
	return nil
}

// IsStale returns true when the marker lease expired and the cell is reclaimable.
func (s *Store) IsStale(marker model.ClaimMarker) bool {
	return marker.IsStale(s.clock.Now(), s.config.ClaimTTL)
}

func (s *Store) readLive(ctx context.Context, cell cellref.CellRef) (string, error) {
	var value string
	b := backoff.WithContext(backoff.WithMaxRetries(newReadBackoff(), uint64(s.config.StaleReadRetries)), ctx)
	err := backoff.Retry(func() error {
		v, err := grid.ReadCell(ctx, s.live, cell)
		if err != nil {
			return err
		}
		value = v
		return nil
	}, b)
	return value, err
}

func newReadBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = readBackoffInitial
	b.MaxInterval = readBackoffMax
	b.MaxElapsedTime = 0 // bounded by the retries count
	b.Reset()
	return b
}

func (s *Store) lockLocally(cell cellref.CellRef) bool {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()
	if s.locks[cell.A1()] {
		return false
	}
	s.locks[cell.A1()] = true
	return true
}

func (s *Store) unlockLocally(cell cellref.CellRef) {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()
	delete(s.locks, cell.A1())
}
