// Package cellref provides grid cell addressing.
// Columns use the base-26 letter encoding (A, B, ..., Z, AA, AB, ...),
// internally they are 0-based indexes. Rows are 1-based, as in the grid.
package cellref

import (
	"fmt"

	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

const lettersCount = 'Z' - 'A' + 1

// CellRef addresses one cell, Column is a 0-based index, Row is 1-based.
type CellRef struct {
	Column int `json:"column" validate:"gte=0"`
	Row    int `json:"row" validate:"gte=1"`
}

// Range addresses a rectangular block of cells, all bounds are inclusive.
type Range struct {
	Start CellRef `json:"start"`
	End   CellRef `json:"end"`
}

func New(column, row int) CellRef {
	return CellRef{Column: column, Row: row}
}

// A1 returns the cell in the "A1" notation.
func (v CellRef) A1() string {
	return ColumnLetter(v.Column) + fmt.Sprintf("%d", v.Row)
}

func (v CellRef) String() string {
	return v.A1()
}

func NewRange(start, end CellRef) Range {
	return Range{Start: start, End: end}
}

// RowRange addresses whole rows from one column to another.
func RowRange(startColumn, endColumn, startRow, endRow int) Range {
	return Range{Start: New(startColumn, startRow), End: New(endColumn, endRow)}
}

func (r Range) String() string {
	return r.Start.A1() + ":" + r.End.A1()
}

func (r Range) Contains(cell CellRef) bool {
	return cell.Column >= r.Start.Column && cell.Column <= r.End.Column &&
		cell.Row >= r.Start.Row && cell.Row <= r.End.Row
}

// Cells returns the number of cells in the range.
func (r Range) Cells() int {
	return (r.End.Column - r.Start.Column + 1) * (r.End.Row - r.Start.Row + 1)
}

// ColumnLetter converts a 0-based column index to the letter encoding, 0 -> "A", 26 -> "AA".
func ColumnLetter(index int) string {
	if index < 0 {
		panic(errors.Errorf(`column index must not be negative, found "%d"`, index))
	}

	out := make([]byte, 0, 3)
	for {
		out = append([]byte{byte('A' + index%lettersCount)}, out...)
		index = index/lettersCount - 1
		if index < 0 {
			break
		}
	}
	return string(out)
}

// ColumnIndex converts the letter encoding to a 0-based column index, "A" -> 0, "AA" -> 26.
func ColumnIndex(letter string) (int, error) {
	if letter == "" {
		return 0, errors.New("column letter must not be empty")
	}

	index := 0
	for _, c := range letter {
		if c < 'A' || c > 'Z' {
			return 0, errors.Errorf(`invalid column letter "%s"`, letter)
		}
		index = index*lettersCount + int(c-'A') + 1
	}
	return index - 1, nil
}

// MustColumnIndex is ColumnIndex for well-known constants.
func MustColumnIndex(letter string) int {
	index, err := ColumnIndex(letter)
	if err != nil {
		panic(err)
	}
	return index
}

// MustParseA1 is ParseA1 for well-known constants.
func MustParseA1(value string) CellRef {
	ref, err := ParseA1(value)
	if err != nil {
		panic(err)
	}
	return ref
}

// ParseA1 parses the "A1" notation back to a CellRef.
func ParseA1(value string) (CellRef, error) {
	split := 0
	for split < len(value) && value[split] >= 'A' && value[split] <= 'Z' {
		split++
	}
	if split == 0 || split == len(value) {
		return CellRef{}, errors.Errorf(`invalid cell reference "%s"`, value)
	}

	column, err := ColumnIndex(value[:split])
	if err != nil {
		return CellRef{}, err
	}

	row := 0
	for _, c := range value[split:] {
		if c < '0' || c > '9' {
			return CellRef{}, errors.Errorf(`invalid cell reference "%s"`, value)
		}
		row = row*10 + int(c-'0')
	}
	if row < 1 {
		return CellRef{}, errors.Errorf(`invalid cell reference "%s", row must be positive`, value)
	}

	return New(column, row), nil
}
