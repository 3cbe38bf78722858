package event

import (
	"github.com/hexfleet/server/internal/occupancy"
	"github.com/hexfleet/server/internal/world"
)

// AgentsChanged fires when a tick commits an agent snapshot that differs from
// the previous one.
type AgentsChanged struct {
	Tick   uint64
	Agents world.AgentSnapshot
}

// OccupancyChanged fires when a tick commits a different occupancy snapshot.
// Changed lists only the cells whose entry moved.
type OccupancyChanged struct {
	Tick    uint64
	Cells   occupancy.Snapshot
	Changed []occupancy.Entry
}

// SpeedCommand asks for a vehicle speed change at the start of the next tick.
// A negative speed hands control back to the simulator.
type SpeedCommand struct {
	VehicleID string
	Speed     float64
}
