package model

import (
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
)

// Task is one unit of work: answer one cell of a work group.
// Identity equals the target cell, at most one task may be
// in flight system-wide per cell.
type Task struct {
	ID         string          `json:"id" validate:"required"`
	GroupID    string          `json:"groupId" validate:"required"`
	Row        int             `json:"row" validate:"gte=1"`
	AnswerCell cellref.CellRef `json:"answerCell"`
	WorkerType string          `json:"workerType" validate:"required"`
	Payload    string          `json:"payload"`
}

func NewTask(group *WorkGroup, row int, answer AnswerColumn, payload string) Task {
	cell := cellref.New(answer.Column, row)
	return Task{
		ID:         cell.A1(),
		GroupID:    group.ID,
		Row:        row,
		AnswerCell: cell,
		WorkerType: answer.WorkerType,
		Payload:    payload,
	}
}

// OutcomeKind is the tag of the Outcome variant.
type OutcomeKind string

const (
	OutcomePending   = OutcomeKind("pending")
	OutcomeSucceeded = OutcomeKind("succeeded")
	OutcomeFailed    = OutcomeKind("failed")
	OutcomeFatal     = OutcomeKind("fatal")
)

// Outcome is the tagged result of a task execution:
// Pending | Succeeded | Failed{error} | Fatal.
type Outcome struct {
	kind OutcomeKind
	err  error
}

func Pending() Outcome {
	return Outcome{kind: OutcomePending}
}

func Succeeded() Outcome {
	return Outcome{kind: OutcomeSucceeded}
}

func Failed(err error) Outcome {
	return Outcome{kind: OutcomeFailed, err: err}
}

// Fatal marks a task as permanently failed after the retry ceiling, see the retrier package.
func Fatal(err error) Outcome {
	return Outcome{kind: OutcomeFatal, err: err}
}

func (o Outcome) Kind() OutcomeKind {
	return o.kind
}

func (o Outcome) Err() error {
	return o.err
}

func (o Outcome) IsSucceeded() bool {
	return o.kind == OutcomeSucceeded
}

func (o Outcome) IsFailed() bool {
	return o.kind == OutcomeFailed
}

func (o Outcome) IsFatal() bool {
	return o.kind == OutcomeFatal
}

// IsTerminal returns true when the task needs no further processing.
func (o Outcome) IsTerminal() bool {
	return o.kind == OutcomeSucceeded || o.kind == OutcomeFatal
}
