// Package geo converts simulator-local coordinates to geographic ones.
package geo

import (
	"fmt"
	"math"
)

// LatLon is a WGS84 position in degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Converter maps a simulator-local (x, y) to a geographic position.
type Converter interface {
	ToGeo(x, y float64) LatLon
}

// New builds the converter named by projection. Offsets are the SUMO network
// offset added to projected coordinates when the network was imported.
func New(projection string, offsetX, offsetY float64) (Converter, error) {
	switch projection {
	case "", "lambert93":
		return NewLambert93(offsetX, offsetY), nil
	case "offset":
		return Planar{OffsetX: offsetX, OffsetY: offsetY}, nil
	}
	return nil, fmt.Errorf("unknown projection %q", projection)
}

// Planar only removes the network offset. X becomes Lat and Y becomes Lon,
// for layouts drawn directly in simulator space.
type Planar struct {
	OffsetX, OffsetY float64
}

func (p Planar) ToGeo(x, y float64) LatLon {
	return LatLon{Lat: x - p.OffsetX, Lon: y - p.OffsetY}
}

// GRS80 ellipsoid and EPSG:2154 (RGF93 / Lambert-93) parameters.
const (
	grs80A = 6378137.0
	grs80E = 0.0818191910428158

	l93Lat0 = 46.5
	l93Lat1 = 44.0
	l93Lat2 = 49.0
	l93Lon0 = 3.0
	l93X0   = 700000.0
	l93Y0   = 6600000.0
)

// Lambert93 inverts the Lambert conformal conic projection used by French
// SUMO networks.
type Lambert93 struct {
	OffsetX, OffsetY float64

	n, f, rho0 float64
}

func NewLambert93(offsetX, offsetY float64) *Lambert93 {
	phi1, phi2, phi0 := rad(l93Lat1), rad(l93Lat2), rad(l93Lat0)
	m1, m2 := lccM(phi1), lccM(phi2)
	t1, t2, t0 := lccT(phi1), lccT(phi2), lccT(phi0)

	n := (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	f := m1 / (n * math.Pow(t1, n))
	return &Lambert93{
		OffsetX: offsetX,
		OffsetY: offsetY,
		n:       n,
		f:       f,
		rho0:    grs80A * f * math.Pow(t0, n),
	}
}

// ToGeo converts SUMO (x, y) to WGS84.
func (l *Lambert93) ToGeo(x, y float64) LatLon {
	dx := x - l.OffsetX - l93X0
	dy := l.rho0 - (y - l.OffsetY - l93Y0)

	rho := math.Copysign(math.Hypot(dx, dy), l.n)
	t := math.Pow(rho/(grs80A*l.f), 1/l.n)
	theta := math.Atan2(dx, dy)

	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 15; i++ {
		es := grs80E * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-es)/(1+es), grs80E/2))
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}

	return LatLon{
		Lat: deg(phi),
		Lon: deg(theta/l.n) + l93Lon0,
	}
}

// FromGeo is the forward projection; it returns SUMO (x, y) for a position.
func (l *Lambert93) FromGeo(p LatLon) (x, y float64) {
	phi := rad(p.Lat)
	rho := grs80A * l.f * math.Pow(lccT(phi), l.n)
	theta := l.n * rad(p.Lon-l93Lon0)
	x = l93X0 + rho*math.Sin(theta) + l.OffsetX
	y = l93Y0 + l.rho0 - rho*math.Cos(theta) + l.OffsetY
	return x, y
}

func lccM(phi float64) float64 {
	s := grs80E * math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-s*s)
}

func lccT(phi float64) float64 {
	s := grs80E * math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-s)/(1+s), grs80E/2)
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
