// Package scan enumerates the executable tasks of one work group.
//
// A task is a row whose prompt cells are non-empty and whose answer cell is
// empty or holds a stale claim marker. The scan order is row-major ascending,
// then ascending answer column, it governs fairness across concurrent consumers.
package scan

import (
	"context"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/structure"
)

type dependencies interface {
	Logger() log.Logger
	Clock() clock.Clock
	Grid() grid.Grid
	Config() config.Config
}

// Scanner produces a finite, restartable task sequence for one work group.
// Every Scan invocation examines the same snapshot range from the start,
// an unchanged grid yields an identical task set in identical order.
// Rows proven complete, a prompt answered in every answer column, are
// remembered and skipped without a read, a written result stands forever.
type Scanner struct {
	logger    log.Logger
	clock     clock.Clock
	grid      grid.Grid
	config    config.Config
	group     *model.WorkGroup
	rowFilter *structure.Filter
	excluded  func(taskID string) bool

	lock      sync.Mutex
	completed map[int]bool
}

type Option func(*Scanner)

// WithExcluded skips tasks by ID, it excludes Fatal tasks from future claims.
func WithExcluded(fn func(taskID string) bool) Option {
	return func(s *Scanner) {
		s.excluded = fn
	}
}

func New(d dependencies, group *model.WorkGroup, rowFilter *structure.Filter, opts ...Option) *Scanner {
	s := &Scanner{
		logger:    d.Logger().AddPrefix("[scan]").AddPrefix("[" + group.ID + "]"),
		clock:     d.Clock(),
		grid:      d.Grid(),
		config:    d.Config(),
		group:     group,
		rowFilter: rowFilter,
		excluded:  func(string) bool { return false },
		completed: make(map[int]bool),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan enumerates the executable tasks.
// Rows are read lazily one by one, the examined-cell budget bounds the rows
// with outstanding work evaluated per invocation, answered and promptless
// rows charge nothing. When the budget is reached the tasks found so far are
// returned with truncated set, a truncated scan must never be taken as proof
// of group completion.
func (s *Scanner) Scan(ctx context.Context) (tasks []model.Task, truncated bool, err error) {
	span := s.group.RowRange
	if span.IsEmpty() {
		return nil, false, nil
	}

	firstCol := s.group.FirstColumn()
	lastCol := s.group.LastColumn()
	rowWidth := lastCol - firstCol + 1

	examined := 0
	for row := span.Start; row <= span.End; row++ {
		if !s.rowFilter.Allows(row) || s.isCompleted(row) {
			continue
		}

		cells, err := s.grid.ReadRange(ctx, cellref.RowRange(firstCol, lastCol, row, row))
		if err != nil {
			return nil, false, err
		}
		line := cells[0]

		payload := s.rowPayload(line, firstCol)
		if payload == "" {
			// No non-empty prompt, a prompt may still appear here later.
			continue
		}

		answered := 0
		outstanding := 0
		var rowTasks []model.Task
		for _, answer := range s.group.AnswerColumns {
			value := line[answer.Column-firstCol]
			if s.isFinal(value) {
				answered++
				continue
			}
			task := model.NewTask(s.group, row, answer, payload)
			if s.excluded(task.ID) {
				continue
			}
			outstanding++
			if s.isExecutable(value) {
				rowTasks = append(rowTasks, task)
			}
		}

		if answered == len(s.group.AnswerColumns) {
			s.markCompleted(row)
			continue
		}
		if outstanding == 0 {
			continue
		}

		examined += rowWidth
		if examined > s.config.ScanBudget {
			s.logger.Warnf(`scan budget "%d" reached at row "%d", returning a partial scan`, s.config.ScanBudget, row)
			return tasks, true, nil
		}
		tasks = append(tasks, rowTasks...)
	}
	return tasks, false, nil
}

// rowPayload joins non-empty prompt cells by newline in column order.
func (s *Scanner) rowPayload(line []string, firstCol int) string {
	parts := make([]string, 0, len(s.group.PromptColumns))
	for _, col := range s.group.PromptColumns {
		if value := strings.TrimSpace(line[col-firstCol]); value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, "\n")
}

// isExecutable returns true when the answer cell is empty or holds a stale claim marker.
func (s *Scanner) isExecutable(value string) bool {
	if value == "" {
		return true
	}
	marker, isMarker := model.ParseClaimMarker(value)
	if !isMarker {
		// A result is already in place.
		return false
	}
	return marker.IsStale(s.clock.Now(), s.config.ClaimTTL)
}

// isFinal returns true when the cell holds a result, not a claim marker.
func (s *Scanner) isFinal(value string) bool {
	if value == "" {
		return false
	}
	_, isMarker := model.ParseClaimMarker(value)
	return !isMarker
}

func (s *Scanner) isCompleted(row int) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.completed[row]
}

func (s *Scanner) markCompleted(row int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.completed[row] = true
}
