package grid

import "math"

// DefaultRadius is the circumradius of every cell, in coordinate units.
const DefaultRadius = 0.0025

// Hexagon classifies points against regular hexagons of a single shared radius.
type Hexagon struct {
	Radius float64
}

func NewHexagon(radius float64) Hexagon {
	if radius <= 0 {
		radius = DefaultRadius
	}
	return Hexagon{Radius: radius}
}

// Contains reports whether p lies inside the hexagon centred on center.
func (h Hexagon) Contains(p, center Point) bool {
	return Contains(p, center, h.Radius)
}

// Vertices returns the six corners at angles 60°·i − 30°. The cosine term is
// applied to X and the sine term to Y regardless of what the axes represent.
func Vertices(center Point, radius float64) [6]Point {
	var v [6]Point
	for i := 0; i < 6; i++ {
		angle := float64(60*i-30) * math.Pi / 180
		v[i] = Point{
			X: center.X + radius*math.Cos(angle),
			Y: center.Y + radius*math.Sin(angle),
		}
	}
	return v
}

// Contains is the even-odd ray casting test against the hexagon of the given
// radius around center. An edge whose endpoints share the same Y never counts
// as a crossing.
func Contains(p, center Point, radius float64) bool {
	v := Vertices(center, radius)
	inside := false
	for i, j := 0, len(v)-1; i < len(v); j, i = i, i+1 {
		if (v[i].Y > p.Y) == (v[j].Y > p.Y) {
			continue
		}
		dy := v[j].Y - v[i].Y
		if dy == 0 {
			continue
		}
		if p.X < (v[j].X-v[i].X)*(p.Y-v[i].Y)/dy+v[i].X {
			inside = !inside
		}
	}
	return inside
}

// AxialCenter returns the centre of the hexagon at axial coordinate (q, r) in a
// tiling of hexagons with the given radius around origin. Rows run along Y,
// matching the pointed ends produced by Vertices.
func AxialCenter(origin Point, radius float64, q, r int) Point {
	return Point{
		X: origin.X + radius*math.Sqrt(3)*(float64(q)+float64(r)/2),
		Y: origin.Y + radius*1.5*float64(r),
	}
}
