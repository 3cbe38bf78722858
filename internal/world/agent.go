// Package world holds the per-tick records shared by the tick driver and its
// consumers.
package world

import (
	"github.com/hexfleet/server/internal/geo"
	"github.com/hexfleet/server/internal/grid"
	"github.com/hexfleet/server/internal/identity"
)

// Agent is one simulated vehicle as sampled in a single tick. Only Color
// carries over between ticks, through the identity registry.
type Agent struct {
	ID       string         `json:"id"`
	Position geo.LatLon     `json:"position"`
	Heading  float64        `json:"heading"` // degrees, display only
	Speed    float64        `json:"speed"`   // m/s
	Color    identity.Color `json:"color"`
}

// Point returns the position in classifier space (Lat as X, Lon as Y).
func (a Agent) Point() grid.Point {
	return grid.Point{X: a.Position.Lat, Y: a.Position.Lon}
}

// AgentSnapshot is the ordered list of agents of one tick, in adapter order.
// Never mutated once committed.
type AgentSnapshot []Agent

// Equal compares two snapshots position by position, field by field.
func (s AgentSnapshot) Equal(o AgentSnapshot) bool {
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

// IDs returns the agent ids in snapshot order.
func (s AgentSnapshot) IDs() []string {
	out := make([]string, len(s))
	for i := range s {
		out[i] = s[i].ID
	}
	return out
}
