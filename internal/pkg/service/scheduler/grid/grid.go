// Package grid defines the adapter interface of the external tabular store.
// Cells are opaque strings, an empty or absent cell means "empty".
// The store offers no atomic compare-and-swap, all coordination above it
// must be based on the claim/re-verify protocol, see the claim package.
package grid

import (
	"context"

	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
)

type Grid interface {
	// ReadRange returns the cells of the range as rows, outer slice is rows, inner is columns.
	// The result always has the full requested shape, missing cells are empty strings.
	ReadRange(ctx context.Context, r cellref.Range) ([][]string, error)
	// WriteCell stores the value, an empty value clears the cell.
	WriteCell(ctx context.Context, cell cellref.CellRef, value string) error
	// LastRow returns the 1-based index of the last non-empty row, 0 for an empty grid.
	LastRow(ctx context.Context) (int, error)
}

// ReadCell reads a single cell via ReadRange.
func ReadCell(ctx context.Context, g Grid, cell cellref.CellRef) (string, error) {
	rows, err := g.ReadRange(ctx, cellref.NewRange(cell, cell))
	if err != nil {
		return "", err
	}
	return rows[0][0], nil
}
