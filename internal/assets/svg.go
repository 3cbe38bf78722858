// Package assets writes per-vehicle recoloured SVG icons for the rendering
// layer.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hexfleet/server/internal/identity"
)

// placeholderFill is the fill attribute in the template that gets recoloured.
const placeholderFill = `fill="#000000"`

// Generator materialises one SVG per (vehicle, colour). Writing the same pair
// twice is a no-op.
type Generator struct {
	template string
	outDir   string

	mu      sync.Mutex
	written map[string]identity.Color
}

// NewGenerator loads the template and creates outDir.
func NewGenerator(templatePath, outDir string) (*Generator, error) {
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("read svg template: %w", err)
	}
	if !strings.Contains(string(raw), placeholderFill) {
		return nil, fmt.Errorf("svg template %s has no %s placeholder", templatePath, placeholderFill)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &Generator{
		template: string(raw),
		outDir:   outDir,
		written:  make(map[string]identity.Color),
	}, nil
}

// FileName returns the asset name for a vehicle id. Bytes outside
// [A-Za-z0-9._-] are written as %XX, so distinct ids never share a file.
func FileName(id string) string {
	var b strings.Builder
	b.WriteString("car_modified_")
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_', ch == '.':
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	b.WriteString(".svg")
	return b.String()
}

// Path returns where the asset of id is written.
func (g *Generator) Path(id string) string {
	return filepath.Join(g.outDir, FileName(id))
}

// Render returns the template recoloured to c.
func (g *Generator) Render(c identity.Color) string {
	return strings.ReplaceAll(g.template, placeholderFill, `fill="`+c.Hex()+`"`)
}

// Pending reports whether (id, c) still needs to be written.
func (g *Generator) Pending(id string, c identity.Color) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev, ok := g.written[id]
	return !ok || prev != c
}

// Generate writes the asset for id in colour c unless that exact pair was
// already written. Returns whether a file was written.
func (g *Generator) Generate(id string, c identity.Color) (bool, error) {
	if !g.Pending(id, c) {
		return false, nil
	}

	path := g.Path(id)
	tmp, err := os.CreateTemp(g.outDir, ".tmp-*.svg")
	if err != nil {
		return false, fmt.Errorf("create temp asset: %w", err)
	}
	if _, err := tmp.WriteString(g.Render(c)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return false, fmt.Errorf("write asset %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return false, fmt.Errorf("close asset %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return false, fmt.Errorf("rename asset %s: %w", id, err)
	}

	g.mu.Lock()
	g.written[id] = c
	g.mu.Unlock()
	return true, nil
}
