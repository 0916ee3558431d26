// Package retrier tracks failed tasks and decides replay or abandonment.
//
// An entry is created on the first failure, each further failure increments
// the attempt counter and pushes the next attempt out exponentially. A task
// exceeding the retry ceiling turns Fatal and is excluded from all future
// scans, nothing else in the group is affected.
package retrier

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/common/utctime"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
)

const retryDelayMultiplier = 4

type dependencies interface {
	Logger() log.Logger
	Clock() clock.Clock
	Config() config.Config
}

// Registry is the in-memory retry state of one scheduler process.
type Registry struct {
	logger log.Logger
	clock  clock.Clock
	config config.Config

	lock    sync.Mutex
	entries map[string]*model.RetryEntry
}

func New(d dependencies) *Registry {
	return &Registry{
		logger:  d.Logger().AddPrefix("[retrier]"),
		clock:   d.Clock(),
		config:  d.Config(),
		entries: make(map[string]*model.RetryEntry),
	}
}

// Record registers a task failure and returns the resulting outcome,
// Failed when a replay is still allowed, Fatal when the ceiling is exceeded.
func (r *Registry) Record(task model.Task, taskErr error) model.Outcome {
	r.lock.Lock()
	defer r.lock.Unlock()

	entry, found := r.entries[task.ID]
	if !found {
		entry = &model.RetryEntry{TaskID: task.ID, GroupID: task.GroupID}
		r.entries[task.ID] = entry
		r.logger.Infof(`created retry entry for task "%s"`, task.ID)
	}

	entry.Attempt++
	entry.LastError = taskErr.Error()
	if entry.Attempt > r.config.RetryCeiling {
		entry.Fatal = true
		r.logger.Warnf(`task "%s" exceeded the retry ceiling "%d", marked fatal: %s`, task.ID, r.config.RetryCeiling, taskErr)
		return model.Fatal(taskErr)
	}

	entry.NextAttempt = utctime.From(r.clock.Now().Add(r.delay(entry.Attempt)))
	r.logger.Infof(`task "%s" failed on attempt "%d", next attempt at %s`, task.ID, entry.Attempt, entry.NextAttempt)
	return model.Failed(taskErr)
}

// Resolve removes the entry after a success, a first-attempt success is a no-op.
func (r *Registry) Resolve(taskID string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, found := r.entries[taskID]; found {
		delete(r.entries, taskID)
		r.logger.Infof(`removed retry entry for task "%s"`, taskID)
	}
}

// IsFatal returns true when the task exceeded the ceiling, it feeds the scanner exclusion.
func (r *Registry) IsFatal(taskID string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	entry, found := r.entries[taskID]
	return found && entry.Fatal
}

// Eligible returns false while the task backs off between attempts.
func (r *Registry) Eligible(taskID string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	entry, found := r.entries[taskID]
	if !found {
		return true
	}
	if entry.Fatal {
		return false
	}
	return !r.clock.Now().Before(entry.NextAttempt.Time())
}

// Entries returns a copy of the entries of the group, Fatal ones included.
func (r *Registry) Entries(groupID string) []model.RetryEntry {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []model.RetryEntry
	for _, entry := range r.entries {
		if entry.GroupID == groupID {
			out = append(out, *entry)
		}
	}
	return out
}

// HasRetryable returns true when a non-Fatal entry of the group exists,
// such a group is not complete and must not be transitioned away from.
func (r *Registry) HasRetryable(groupID string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, entry := range r.entries {
		if entry.GroupID == groupID && !entry.Fatal {
			return true
		}
	}
	return false
}

// NextWake returns the earliest replay time among the retryable entries
// of the group, false when no replay is pending.
func (r *Registry) NextWake(groupID string) (time.Time, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var wake time.Time
	found := false
	for _, entry := range r.entries {
		if entry.GroupID != groupID || entry.Fatal {
			continue
		}
		if !found || entry.NextAttempt.Time().Before(wake) {
			wake = entry.NextAttempt.Time()
			found = true
		}
	}
	return wake, found
}

func (r *Registry) delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.RetryDelayInitial
	b.MaxInterval = r.config.RetryDelayMax
	b.Multiplier = retryDelayMultiplier
	b.RandomizationFactor = 0
	b.Reset()
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
