package grid

import (
	"context"
	"sync"

	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
)

// MemoryGrid is an in-process Grid implementation.
// It backs tests and local runs, writes are last-writer-wins,
// exactly like a real remote grid.
type MemoryGrid struct {
	lock  sync.RWMutex
	cells map[cellref.CellRef]string

	// Optional test hooks, invoked outside the lock with the target cell.
	// A returned error is passed to the caller and the operation is skipped.
	ReadHook  func(r cellref.Range) error
	WriteHook func(cell cellref.CellRef, value string) error
}

func NewMemoryGrid() *MemoryGrid {
	return &MemoryGrid{cells: make(map[cellref.CellRef]string)}
}

// NewMemoryGridFromRows seeds the grid, rows[0] is the grid row 1, columns start at A.
func NewMemoryGridFromRows(rows [][]string) *MemoryGrid {
	g := NewMemoryGrid()
	for rowIndex, row := range rows {
		for colIndex, value := range row {
			if value != "" {
				g.cells[cellref.New(colIndex, rowIndex+1)] = value
			}
		}
	}
	return g
}

func (g *MemoryGrid) ReadRange(ctx context.Context, r cellref.Range) ([][]string, error) {
	if g.ReadHook != nil {
		if err := g.ReadHook(r); err != nil {
			return nil, err
		}
	}

	g.lock.RLock()
	defer g.lock.RUnlock()

	out := make([][]string, 0, r.End.Row-r.Start.Row+1)
	for row := r.Start.Row; row <= r.End.Row; row++ {
		line := make([]string, 0, r.End.Column-r.Start.Column+1)
		for col := r.Start.Column; col <= r.End.Column; col++ {
			line = append(line, g.cells[cellref.New(col, row)])
		}
		out = append(out, line)
	}
	return out, nil
}

func (g *MemoryGrid) WriteCell(ctx context.Context, cell cellref.CellRef, value string) error {
	if g.WriteHook != nil {
		if err := g.WriteHook(cell, value); err != nil {
			return err
		}
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	if value == "" {
		delete(g.cells, cell)
	} else {
		g.cells[cell] = value
	}
	return nil
}

func (g *MemoryGrid) LastRow(ctx context.Context) (int, error) {
	g.lock.RLock()
	defer g.lock.RUnlock()

	last := 0
	for cell := range g.cells {
		if cell.Row > last {
			last = cell.Row
		}
	}
	return last, nil
}
