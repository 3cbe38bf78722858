// Package scripting runs Lua layout scripts that build the cell catalog.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hexfleet/server/internal/grid"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM. Scripts run once at startup; the
// engine is not used from the tick loop.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger

	radius float64
	origin grid.Point
	cells  []grid.Cell
}

// NewEngine creates a Lua engine for cells of the given radius and runs every
// .lua file in scriptsDir in name order. A missing directory yields no cells.
//
// Scripts see:
//
//	API_VERSION, GRID_RADIUS
//	add_cell(id, x, y)
//	set_origin(x, y)
//	x, y = hex_center(q, r)
//	log(msg)
func NewEngine(scriptsDir string, radius float64, log *zap.Logger) (*Engine, error) {
	if radius <= 0 {
		radius = grid.DefaultRadius
	}
	vm := lua.NewState()
	e := &Engine{vm: vm, log: log.Named("lua"), radius: radius}

	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("GRID_RADIUS", lua.LNumber(radius))
	vm.SetGlobal("add_cell", vm.NewFunction(e.luaAddCell))
	vm.SetGlobal("set_origin", vm.NewFunction(e.luaSetOrigin))
	vm.SetGlobal("hex_center", vm.NewFunction(e.luaHexCenter))
	vm.SetGlobal("log", vm.NewFunction(e.luaLog))

	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load layout scripts: %w", err)
	}
	return e, nil
}

// loadDir runs all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		before := len(e.cells)
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path), zap.Int("cells", len(e.cells)-before))
	}
	return nil
}

func (e *Engine) luaAddCell(L *lua.LState) int {
	id := L.CheckString(1)
	x := float64(L.CheckNumber(2))
	y := float64(L.CheckNumber(3))
	if id == "" {
		L.ArgError(1, "cell id must not be empty")
		return 0
	}
	e.cells = append(e.cells, grid.Cell{ID: id, Center: grid.Point{X: x, Y: y}})
	return 0
}

func (e *Engine) luaSetOrigin(L *lua.LState) int {
	e.origin = grid.Point{X: float64(L.CheckNumber(1)), Y: float64(L.CheckNumber(2))}
	return 0
}

func (e *Engine) luaHexCenter(L *lua.LState) int {
	q := L.CheckInt(1)
	r := L.CheckInt(2)
	p := grid.AxialCenter(e.origin, e.radius, q, r)
	L.Push(lua.LNumber(p.X))
	L.Push(lua.LNumber(p.Y))
	return 2
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info(L.CheckString(1))
	return 0
}

// Cells returns the cells declared by the scripts, in declaration order.
func (e *Engine) Cells() []grid.Cell {
	out := make([]grid.Cell, len(e.cells))
	copy(out, e.cells)
	return out
}

// CellAdder receives the declared cells; the tick driver satisfies it.
type CellAdder interface {
	AddCell(id string, x, y float64)
}

// Apply adds every declared cell to dst and returns how many were added.
func (e *Engine) Apply(dst CellAdder) int {
	for _, c := range e.cells {
		dst.AddCell(c.ID, c.Center.X, c.Center.Y)
	}
	return len(e.cells)
}

// Close releases the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
