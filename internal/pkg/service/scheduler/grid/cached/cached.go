// Package cached provides a read-through cache over a grid.Grid.
// Cached reads serve the scanner, which tolerates a bounded staleness window.
// Code that must see the live store (the claim protocol) uses the Live method.
package cached

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/grid"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

const (
	cacheNumCounters = 10_000
	cacheMaxCost     = 1_000_000 // cells
	cacheBufferItems = 64
)

type Grid struct {
	live  grid.Grid
	ttl   time.Duration
	cache *ristretto.Cache[string, [][]string]
}

func New(live grid.Grid, ttl time.Duration) (*Grid, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, [][]string]{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create grid cache")
	}
	return &Grid{live: live, ttl: ttl, cache: cache}, nil
}

// Live returns the uncached grid, reads bypass the staleness window.
func (g *Grid) Live() grid.Grid {
	return g.live
}

func (g *Grid) ReadRange(ctx context.Context, r cellref.Range) ([][]string, error) {
	key := r.String()
	if rows, found := g.cache.Get(key); found {
		return rows, nil
	}

	rows, err := g.live.ReadRange(ctx, r)
	if err != nil {
		return nil, err
	}

	g.cache.SetWithTTL(key, rows, int64(r.Cells()), g.ttl)
	g.cache.Wait()
	return rows, nil
}

// WriteCell writes through and drops all cached ranges,
// range keys cannot be invalidated selectively.
func (g *Grid) WriteCell(ctx context.Context, cell cellref.CellRef, value string) error {
	if err := g.live.WriteCell(ctx, cell, value); err != nil {
		return err
	}
	g.cache.Clear()
	return nil
}

func (g *Grid) LastRow(ctx context.Context) (int, error) {
	return g.live.LastRow(ctx)
}

func (g *Grid) Close() {
	g.cache.Close()
}
