package model

import (
	"time"

	"github.com/gridrun/gridrun/internal/pkg/service/common/utctime"
)

// GroupState is the shared "current group" value.
// It is mutated only through the groupstate.Manager, readers never see a partial update.
type GroupState struct {
	CurrentGroupID string          `json:"currentGroupId"`
	UpdatedAt      utctime.UTCTime `json:"updatedAt"`
	UpdatedBy      string          `json:"updatedBy"`
}

func NewGroupState(groupID, updatedBy string, now time.Time) GroupState {
	return GroupState{CurrentGroupID: groupID, UpdatedAt: utctime.From(now), UpdatedBy: updatedBy}
}

// TransitionPhase is a state of the transition state machine,
// Validating -> Committing -> Finalized, RolledBack is terminal from both active states.
type TransitionPhase string

const (
	TransitionValidating = TransitionPhase("validating")
	TransitionCommitting = TransitionPhase("committing")
	TransitionFinalized  = TransitionPhase("finalized")
	TransitionRolledBack = TransitionPhase("rolledBack")
)

// TransitionRecord is an append-only record of a group transition attempt.
type TransitionRecord struct {
	ID          string          `json:"id" validate:"required"`
	FromGroupID string          `json:"fromGroupId" validate:"required"`
	ToGroupID   string          `json:"toGroupId" validate:"required"`
	Initiator   string          `json:"initiator" validate:"required"`
	Phase       TransitionPhase `json:"phase" validate:"required"`
	Timestamp   utctime.UTCTime `json:"timestamp"`
	Outcome     string          `json:"outcome,omitempty"`
}

// RetryEntry tracks a failed task of a group.
// It is created on failure, removed on success
// or turned Fatal on exceeding the attempt ceiling.
type RetryEntry struct {
	TaskID    string `json:"taskId" validate:"required"`
	GroupID   string `json:"groupId" validate:"required"`
	Attempt   int    `json:"attempt" validate:"gte=1"`
	LastError string `json:"lastError"`
	// NextAttempt is the earliest replay time, attempts back off exponentially.
	NextAttempt utctime.UTCTime `json:"nextAttempt"`
	// Fatal entries exceeded the attempt ceiling, the task is never replayed.
	Fatal bool `json:"fatal"`
}

// Stats are per-group completion statistics consumed by external reporting.
type Stats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (s *Stats) Add(other Stats) {
	s.Total += other.Total
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
}
