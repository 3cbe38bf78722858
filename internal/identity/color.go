package identity

import (
	"fmt"
	"math/rand/v2"
)

// Transparent is the colour name used for a cell with no occupant.
const Transparent = "transparent"

// Color is an opaque 24-bit RGB value.
type Color struct {
	R, G, B uint8
}

// Hex returns the colour as lower-case "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) String() string { return c.Hex() }

// MarshalText encodes the colour as "#rrggbb" in JSON.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// randomColor draws each channel independently from [0,255].
func randomColor(r *rand.Rand) Color {
	return Color{
		R: uint8(r.IntN(256)),
		G: uint8(r.IntN(256)),
		B: uint8(r.IntN(256)),
	}
}
