// Package structure analyzes the grid header into an ordered list of work groups
// and the row/column control directives.
package structure

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/gridrun/gridrun/internal/pkg/log"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/config"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/model"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

// maxHeaderColumns bounds the header scan, groups beyond it are not discovered.
const maxHeaderColumns = 256

const (
	maxPromptColumns = 5
	fanOutSingle     = 1
	fanOutTriple     = 3
)

// ConfigurationError is fatal, it is surfaced immediately and never retried.
type ConfigurationError struct {
	message string
}

func NewConfigurationErrorf(format string, a ...any) ConfigurationError {
	return ConfigurationError{message: fmt.Sprintf(format, a...)}
}

func (e ConfigurationError) Error() string {
	return e.message
}

// IsConfigurationError returns true when the error chain contains a fatal
// grid configuration problem.
func IsConfigurationError(err error) bool {
	var e ConfigurationError
	return errors.As(err, &e)
}

// Structure is the analyzed grid: groups in discovery order with the column
// filter already applied, and the row filter for the scanner.
type Structure struct {
	Groups    []*model.WorkGroup
	RowFilter *Filter
}

// GroupByID returns the group or nil.
func (s *Structure) GroupByID(id string) *model.WorkGroup {
	for _, g := range s.Groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

type dependencies interface {
	Logger() log.Logger
	Grid() grid.Grid
	Config() config.Config
}

type analyzer struct {
	logger log.Logger
	grid   grid.Grid
	config config.Config
}

// Analyze reads the header rows and directives from a grid snapshot.
// A missing header row is a fatal ConfigurationError,
// missing directives are not an error, the full range is processed.
func Analyze(ctx context.Context, d dependencies) (*Structure, error) {
	a := &analyzer{logger: d.Logger().AddPrefix("[structure]"), grid: d.Grid(), config: d.Config()}
	return a.analyze(ctx)
}

func (a *analyzer) analyze(ctx context.Context) (*Structure, error) {
	layout := a.config.Layout

	lastRow, err := a.grid.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	if lastRow < layout.HeaderRow {
		return nil, NewConfigurationErrorf(`missing header row "%d", grid has "%d" rows`, layout.HeaderRow, lastRow)
	}

	header, err := a.readRow(ctx, layout.HeaderRow)
	if err != nil {
		return nil, err
	}
	typeRow := make([]string, maxHeaderColumns)
	if lastRow >= layout.TypeRow {
		if typeRow, err = a.readRow(ctx, layout.TypeRow); err != nil {
			return nil, err
		}
	}

	if isEmptyRow(header) {
		return nil, NewConfigurationErrorf(`header row "%d" is empty`, layout.HeaderRow)
	}

	groups := a.parseGroups(header, typeRow, lastRow)
	if len(groups) == 0 {
		return nil, NewConfigurationErrorf(`no valid work group found in header row "%d"`, layout.HeaderRow)
	}

	colFilter := a.collectColumnDirectives(typeRow)
	rowFilter, err := a.collectRowDirectives(ctx, lastRow)
	if err != nil {
		return nil, err
	}

	// A group survives the column filter if ANY of its member columns passes.
	kept := make([]*model.WorkGroup, 0, len(groups))
	for _, group := range groups {
		if colFilter.AllowsAny(group.MemberColumns()) {
			kept = append(kept, group)
		} else {
			a.logger.Infof(`group "%s" excluded by column directives`, group.ID)
		}
	}

	// Clip row ranges by the from/until directives, "only" is checked per row by the scanner.
	for _, group := range kept {
		if rowFilter.from != nil && *rowFilter.from > group.RowRange.Start {
			group.RowRange.Start = *rowFilter.from
		}
		if rowFilter.until != nil && *rowFilter.until < group.RowRange.End {
			group.RowRange.End = *rowFilter.until
		}
	}

	a.logger.Infof(`discovered "%d" groups, kept "%d"`, len(groups), len(kept))
	return &Structure{Groups: kept, RowFilter: rowFilter}, nil
}

// parseGroups scans the header left-to-right.
// A malformed sequence truncates group growth at the last valid prefix, it is never fatal.
func (a *analyzer) parseGroups(header, typeRow []string, lastRow int) []*model.WorkGroup {
	tokens := a.config.Tokens
	layout := a.config.Layout

	var groups []*model.WorkGroup
	ordinal := 0
	col := 0
	for col < maxHeaderColumns {
		if strings.TrimSpace(header[col]) != tokens.GroupStart {
			col++
			continue
		}
		startCol := col
		col++

		// Collect 1-5 contiguous prompt columns, extra ones are skipped over.
		var prompts []int
		for col < maxHeaderColumns && a.isPromptMarker(header[col]) {
			if len(prompts) < maxPromptColumns {
				prompts = append(prompts, col)
			} else {
				a.logger.Warnf(`too many prompt columns at "%s", keeping first %d`, cellref.ColumnLetter(col), maxPromptColumns)
			}
			col++
		}
		if len(prompts) == 0 {
			a.logger.Warnf(`group start at "%s" has no prompt columns, skipped`, cellref.ColumnLetter(startCol))
			continue
		}

		if col >= maxHeaderColumns || strings.TrimSpace(header[col]) != tokens.Answer {
			a.logger.Warnf(`group start at "%s" has no answer column, skipped`, cellref.ColumnLetter(startCol))
			continue
		}
		answerStart := col

		fanOut, workerTypes := a.parseFanOut(typeRow[answerStart])
		answers := make([]model.AnswerColumn, 0, fanOut)
		for i := 0; i < fanOut; i++ {
			answers = append(answers, model.AnswerColumn{Column: answerStart + i, WorkerType: workerTypes[i]})
		}
		col = answerStart + fanOut

		group := &model.WorkGroup{
			ID:            "group-" + cellref.ColumnLetter(startCol),
			Ordinal:       ordinal,
			Kind:          model.GroupKindStandard,
			StartColumn:   startCol,
			PromptColumns: prompts,
			AnswerColumns: answers,
			RowRange:      model.RowSpan{Start: layout.DataStartRow, End: lastRow},
		}
		groups = append(groups, group)
		ordinal++

		// Optional adjacent derived output marker attaches a sub-stage group.
		if col < maxHeaderColumns && strings.TrimSpace(header[col]) == tokens.Derived {
			kind := model.GroupKindDerived
			if fanOut == fanOutTriple {
				// Three competing answers are aggregated into a report.
				kind = model.GroupKindReport
			}
			promptCols := make([]int, 0, len(answers))
			for _, answer := range answers {
				promptCols = append(promptCols, answer.Column)
			}
			sub := &model.WorkGroup{
				ID:            "group-" + cellref.ColumnLetter(col),
				Ordinal:       ordinal,
				Kind:          kind,
				StartColumn:   startCol,
				PromptColumns: promptCols,
				AnswerColumns: []model.AnswerColumn{{Column: col, WorkerType: a.config.DefaultWorkerType}},
				Dependencies:  []string{group.ID},
				RowRange:      model.RowSpan{Start: layout.DataStartRow, End: lastRow},
			}
			groups = append(groups, sub)
			ordinal++
			col++
		}
	}
	return groups
}

// isPromptMarker matches "prompt" and "prompt2".."prompt5".
func (a *analyzer) isPromptMarker(cell string) bool {
	cell = strings.TrimSpace(cell)
	prefix := a.config.Tokens.PromptPrefix
	if cell == prefix {
		return true
	}
	if !strings.HasPrefix(cell, prefix) {
		return false
	}
	n, err := cast.ToIntE(strings.TrimPrefix(cell, prefix))
	return err == nil && n >= 2 && n <= maxPromptColumns
}

// parseFanOut interprets the type row cell under the first answer column.
// "x3:alpha,beta,gamma" declares 3 answer columns with competing worker types,
// any other non-directive value is a single worker type.
func (a *analyzer) parseFanOut(cell string) (int, []string) {
	tokens := a.config.Tokens
	cell = strings.TrimSpace(cell)

	if cell == "" || a.isColumnDirective(cell) {
		return fanOutSingle, []string{a.config.DefaultWorkerType}
	}

	if strings.HasPrefix(cell, tokens.FanOutPrefix) {
		spec := strings.TrimPrefix(cell, tokens.FanOutPrefix)
		countPart, typesPart, _ := strings.Cut(spec, ":")
		if count, err := cast.ToIntE(countPart); err == nil {
			if count != fanOutSingle && count != fanOutTriple {
				a.logger.Warnf(`unsupported fan-out "%d", using single answer column`, count)
				count = fanOutSingle
			}
			types := make([]string, count)
			declared := strings.Split(typesPart, ",")
			for i := range types {
				types[i] = a.config.DefaultWorkerType
				if i < len(declared) && strings.TrimSpace(declared[i]) != "" {
					types[i] = strings.TrimSpace(declared[i])
				}
			}
			return count, types
		}
	}

	return fanOutSingle, []string{cell}
}

func (a *analyzer) isColumnDirective(cell string) bool {
	tokens := a.config.Tokens
	return cell == tokens.ColOnly || cell == tokens.ColFrom || cell == tokens.ColUntil
}

func (a *analyzer) collectColumnDirectives(typeRow []string) *Filter {
	tokens := a.config.Tokens
	filter := newFilter()
	for col, cell := range typeRow {
		switch strings.TrimSpace(cell) {
		case tokens.ColOnly:
			filter.addOnly(col)
		case tokens.ColFrom:
			filter.addFrom(col)
		case tokens.ColUntil:
			filter.addUntil(col)
		}
	}
	return filter
}

func (a *analyzer) collectRowDirectives(ctx context.Context, lastRow int) (*Filter, error) {
	tokens := a.config.Tokens
	layout := a.config.Layout

	filter := newFilter()
	if lastRow < layout.DataStartRow {
		return filter, nil
	}

	rows, err := a.grid.ReadRange(ctx, cellref.RowRange(layout.DirectiveColumn, layout.DirectiveColumn, layout.DataStartRow, lastRow))
	if err != nil {
		return nil, err
	}
	for i, line := range rows {
		row := layout.DataStartRow + i
		switch strings.TrimSpace(line[0]) {
		case tokens.RowOnly:
			filter.addOnly(row)
		case tokens.RowFrom:
			filter.addFrom(row)
		case tokens.RowUntil:
			filter.addUntil(row)
		}
	}
	return filter, nil
}

func (a *analyzer) readRow(ctx context.Context, row int) ([]string, error) {
	rows, err := a.grid.ReadRange(ctx, cellref.RowRange(0, maxHeaderColumns-1, row, row))
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
