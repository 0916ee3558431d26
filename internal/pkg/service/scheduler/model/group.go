// Package model contains the domain model of the scheduler:
// work groups, tasks, claim markers and the shared group state.
package model

import (
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
)

// GroupKind distinguishes processing stages of a work group.
type GroupKind string

const (
	GroupKindStandard = GroupKind("standard")
	GroupKindReport   = GroupKind("report")
	GroupKindDerived  = GroupKind("derived")
)

// AnswerColumn is one output column of a work group,
// fan-out groups have several answer columns with competing worker types.
type AnswerColumn struct {
	Column     int    `json:"column" validate:"gte=0"`
	WorkerType string `json:"workerType" validate:"required"`
}

// RowSpan is an inclusive 1-based row interval, End < Start means an empty span.
type RowSpan struct {
	Start int `json:"start" validate:"gte=1"`
	End   int `json:"end"`
}

func (s RowSpan) IsEmpty() bool {
	return s.End < s.Start
}

// WorkGroup is a contiguous set of prompt and answer columns
// representing one configured processing stage.
// Ordinal strictly increases in header discovery order,
// dependencies reference only lower-ordinal groups.
type WorkGroup struct {
	ID            string         `json:"id" validate:"required"`
	Ordinal       int            `json:"ordinal" validate:"gte=0"`
	Kind          GroupKind      `json:"kind" validate:"required,oneof=standard report derived"`
	StartColumn   int            `json:"startColumn" validate:"gte=0"`
	PromptColumns []int          `json:"promptColumns" validate:"min=1,max=5"`
	AnswerColumns []AnswerColumn `json:"answerColumns" validate:"min=1"`
	Dependencies  []string       `json:"dependencies,omitempty"`
	RowRange      RowSpan        `json:"rowRange"`
}

// MemberColumns returns all columns belonging to the group:
// the group-start column, prompt columns and answer columns.
func (g *WorkGroup) MemberColumns() []int {
	out := make([]int, 0, 1+len(g.PromptColumns)+len(g.AnswerColumns))
	out = append(out, g.StartColumn)
	out = append(out, g.PromptColumns...)
	for _, a := range g.AnswerColumns {
		out = append(out, a.Column)
	}
	return out
}

// FirstColumn returns the lowest member column.
func (g *WorkGroup) FirstColumn() int {
	min := g.StartColumn
	for _, c := range g.MemberColumns() {
		if c < min {
			min = c
		}
	}
	return min
}

// LastColumn returns the highest member column.
func (g *WorkGroup) LastColumn() int {
	max := g.StartColumn
	for _, c := range g.MemberColumns() {
		if c > max {
			max = c
		}
	}
	return max
}

// Range returns the grid range covered by the group rows.
func (g *WorkGroup) Range() cellref.Range {
	return cellref.RowRange(g.FirstColumn(), g.LastColumn(), g.RowRange.Start, g.RowRange.End)
}
