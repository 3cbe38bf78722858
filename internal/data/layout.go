package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CellEntry is one hexagon centre from cells.yaml. X and Y are in the same
// frame as converted vehicle positions (latitude, longitude by default).
type CellEntry struct {
	ID   string  `yaml:"id"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	Note string  `yaml:"note"`
}

// CellAdder receives layout entries; the tick driver satisfies it.
type CellAdder interface {
	AddCell(id string, x, y float64)
}

// LayoutTable is the static cell layout, in file order.
type LayoutTable struct {
	entries []CellEntry
}

// LoadLayout loads cells.yaml.
func LoadLayout(path string) (*LayoutTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cell layout: %w", err)
	}
	var entries []CellEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse cell layout: %w", err)
	}
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("cell layout entry %d: missing id", i)
		}
	}
	return &LayoutTable{entries: entries}, nil
}

// Apply adds every entry to dst in file order and returns how many were added.
func (t *LayoutTable) Apply(dst CellAdder) int {
	for _, e := range t.entries {
		dst.AddCell(e.ID, e.X, e.Y)
	}
	return len(t.entries)
}
