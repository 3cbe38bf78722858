// Package grid holds the static hexagon cell layout and the point-in-cell test.
package grid

// Point is a coordinate pair. X is the first component (latitude in geographic
// space) and Y the second (longitude).
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Cell is one fixed region of the display grid. Center must be expressed in the
// same space as the agent positions it is tested against.
type Cell struct {
	ID     string `json:"id"`
	Center Point  `json:"center"`
}

// Catalog is the append-only list of cells. Insertion order is the canonical
// order of every occupancy snapshot. Accessed from the tick loop only.
type Catalog struct {
	cells []Cell
}

func NewCatalog() *Catalog {
	return &Catalog{cells: make([]Cell, 0, 64)}
}

// AddCell appends a cell. Duplicate ids are not rejected; each call creates an
// independent entry.
func (c *Catalog) AddCell(id string, x, y float64) {
	c.cells = append(c.cells, Cell{ID: id, Center: Point{X: x, Y: y}})
}

// All returns a copy of the cells in insertion order.
func (c *Catalog) All() []Cell {
	out := make([]Cell, len(c.cells))
	copy(out, c.cells)
	return out
}

// Len returns the number of cells.
func (c *Catalog) Len() int {
	return len(c.cells)
}
