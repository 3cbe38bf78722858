// Package occupancy decides which agent, if any, colours each cell.
package occupancy

import (
	"github.com/hexfleet/server/internal/grid"
	"github.com/hexfleet/server/internal/identity"
	"github.com/hexfleet/server/internal/world"
)

// Entry is the state of one cell: its id and the occupant colour, or
// identity.Transparent when empty.
type Entry struct {
	CellID string `json:"id"`
	Color  string `json:"color"`
}

// Snapshot holds one entry per cell in catalog order.
type Snapshot []Entry

// Equal is an ordered comparison: reordering cells makes snapshots differ.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Occupied returns the number of non-empty cells.
func (s Snapshot) Occupied() int {
	n := 0
	for _, e := range s {
		if e.Color != identity.Transparent {
			n++
		}
	}
	return n
}

// Diff returns the entries of next that differ from prev at the same index.
// Entries past the end of prev are all reported.
func Diff(prev, next Snapshot) []Entry {
	var out []Entry
	for i, e := range next {
		if i < len(prev) && prev[i] == e {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Reconciler builds occupancy snapshots. It holds no state between ticks.
type Reconciler struct {
	hex grid.Hexagon
}

func NewReconciler(hex grid.Hexagon) *Reconciler {
	return &Reconciler{hex: hex}
}

// Reconcile scans every agent for every cell; the first agent in snapshot
// order inside a cell wins it. changed reports whether the result differs
// from previous.
//
// Cost is O(cells × agents) per tick with no spatial index, which is fine for
// the small grids and fleets this serves but will not scale to city-wide ones.
func (r *Reconciler) Reconcile(agents world.AgentSnapshot, cells []grid.Cell, previous Snapshot) (Snapshot, bool) {
	next := make(Snapshot, len(cells))
	for i, cell := range cells {
		next[i] = Entry{CellID: cell.ID, Color: identity.Transparent}
		for _, a := range agents {
			if r.hex.Contains(a.Point(), cell.Center) {
				next[i].Color = a.Color.Hex()
				break
			}
		}
	}
	return next, !next.Equal(previous)
}
