package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hexfleet/server/internal/grid"
	"go.uber.org/zap"
)

func scriptDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestAddCellInFileOrder(t *testing.T) {
	dir := scriptDir(t, map[string]string{
		"b.lua":     `add_cell("B1", 3, 4)`,
		"a.lua":     `add_cell("A1", 1, 2) add_cell("A2", 5.5, -1)`,
		"notes.txt": `add_cell("X", 0, 0)`,
	})
	e, err := NewEngine(dir, 0.5, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	cells := e.Cells()
	want := []string{"A1", "A2", "B1"}
	if len(cells) != len(want) {
		t.Fatalf("cells = %v", cells)
	}
	for i, id := range want {
		if cells[i].ID != id {
			t.Fatalf("cell %d = %s, want %s", i, cells[i].ID, id)
		}
	}
	if cells[1].Center != (grid.Point{X: 5.5, Y: -1}) {
		t.Fatalf("A2 centre = %v", cells[1].Center)
	}
}

func TestHexCenterMatchesGrid(t *testing.T) {
	dir := scriptDir(t, map[string]string{
		"ring.lua": `
set_origin(48.85, 2.35)
for q = -1, 1 do
  for r = -1, 1 do
    if math.abs(q + r) <= 1 then
      local x, y = hex_center(q, r)
      add_cell("h_" .. q .. "_" .. r, x, y)
    end
  end
end
assert(GRID_RADIUS == 0.0025)
`,
	})
	e, err := NewEngine(dir, 0, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	cells := e.Cells()
	if len(cells) != 7 {
		t.Fatalf("ring has %d cells, want 7", len(cells))
	}
	origin := grid.Point{X: 48.85, Y: 2.35}
	for _, c := range cells {
		var q, r int
		if _, err := fmt.Sscanf(c.ID, "h_%d_%d", &q, &r); err != nil {
			t.Fatal(err)
		}
		want := grid.AxialCenter(origin, grid.DefaultRadius, q, r)
		if math.Abs(c.Center.X-want.X) > 1e-12 || math.Abs(c.Center.Y-want.Y) > 1e-12 {
			t.Fatalf("%s centre = %v, want %v", c.ID, c.Center, want)
		}
	}
}

func TestScriptErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":   `add_cell(`,
		"bad args": `add_cell("H1", "north", 2)`,
		"empty id": `add_cell("", 1, 2)`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			dir := scriptDir(t, map[string]string{"layout.lua": body})
			if _, err := NewEngine(dir, 1, zap.NewNop()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type adder struct{ n int }

func (a *adder) AddCell(string, float64, float64) { a.n++ }

func TestMissingDirAndApply(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "nope"), 1, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	var a adder
	if n := e.Apply(&a); n != 0 || a.n != 0 {
		t.Fatalf("applied %d", n)
	}
}
