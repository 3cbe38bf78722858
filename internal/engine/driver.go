// Package engine runs one tick: sample the simulator, colour the vehicles,
// reconcile cell occupancy and publish what changed.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hexfleet/server/internal/core/event"
	coresys "github.com/hexfleet/server/internal/core/system"
	"github.com/hexfleet/server/internal/geo"
	"github.com/hexfleet/server/internal/grid"
	"github.com/hexfleet/server/internal/identity"
	"github.com/hexfleet/server/internal/occupancy"
	"github.com/hexfleet/server/internal/world"
	"go.uber.org/zap"
)

// Simulator is the traffic simulation as seen by the driver. Every call is a
// synchronous request/response; errors are returned, never retried here.
type Simulator interface {
	Connect(ctx context.Context) error
	Close() error
	Step(ctx context.Context) error
	VehicleIDs(ctx context.Context) ([]string, error)
	Position(ctx context.Context, id string) (float64, float64, error)
	Angle(ctx context.Context, id string) (float64, error)
	Speed(ctx context.Context, id string) (float64, error)
	SetSpeed(ctx context.Context, id string, speed float64) error
}

// Driver owns the committed snapshots. Tick runs on the tick loop only; the
// getters may be called from any goroutine.
type Driver struct {
	sim        Simulator
	conv       geo.Converter
	registry   *identity.Registry
	reconciler *occupancy.Reconciler
	bus        *event.Bus
	log        *zap.Logger

	overCapacity bool // tick loop only

	mu      sync.RWMutex
	catalog *grid.Catalog
	tick    uint64
	agents  world.AgentSnapshot
	cells   occupancy.Snapshot
}

func NewDriver(sim Simulator, conv geo.Converter, registry *identity.Registry, catalog *grid.Catalog,
	reconciler *occupancy.Reconciler, bus *event.Bus, log *zap.Logger) *Driver {
	return &Driver{
		sim:        sim,
		conv:       conv,
		registry:   registry,
		reconciler: reconciler,
		bus:        bus,
		catalog:    catalog,
		log:        log.Named("engine"),
	}
}

func (d *Driver) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (d *Driver) Update(ctx context.Context, _ time.Duration) error {
	return d.Tick(ctx)
}

// sample is the raw per-vehicle data read from the simulator.
type sample struct {
	id           string
	x, y         float64
	angle, speed float64
}

// Tick advances the simulation one step and commits the new snapshots.
// Any simulator error aborts the tick before anything is committed.
func (d *Driver) Tick(ctx context.Context) error {
	if err := d.sim.Step(ctx); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	samples, err := d.fetch(ctx)
	if err != nil {
		return err
	}

	agents := make(world.AgentSnapshot, len(samples))
	live := make([]string, len(samples))
	for i, s := range samples {
		agents[i] = world.Agent{
			ID:       s.id,
			Position: d.conv.ToGeo(s.x, s.y),
			Heading:  s.angle,
			Speed:    s.speed,
			Color:    d.registry.ColorOf(s.id),
		}
		live[i] = s.id
	}
	d.checkCapacity(len(live))
	if dropped := d.registry.Retain(live); dropped > 0 {
		d.log.Debug("forgot departed vehicles", zap.Int("count", dropped))
	}

	d.mu.Lock()
	d.tick++
	tick := d.tick
	agentsChanged := !agents.Equal(d.agents)
	d.agents = agents

	cells, cellsChanged := d.reconciler.Reconcile(agents, d.catalog.All(), d.cells)
	var diff []occupancy.Entry
	if cellsChanged {
		diff = occupancy.Diff(d.cells, cells)
		d.cells = cells
	}
	d.mu.Unlock()

	if agentsChanged {
		event.Emit(d.bus, event.AgentsChanged{Tick: tick, Agents: agents})
	}
	if cellsChanged {
		event.Emit(d.bus, event.OccupancyChanged{Tick: tick, Cells: cells, Changed: diff})
	}
	d.bus.Flush()

	d.log.Debug("tick",
		zap.Uint64("tick", tick),
		zap.Int("vehicles", len(agents)),
		zap.Int("occupied", cells.Occupied()),
		zap.Bool("agents_changed", agentsChanged),
		zap.Bool("cells_changed", cellsChanged),
	)
	return nil
}

// checkCapacity warns once each time the fleet outgrows a bounded registry.
func (d *Driver) checkCapacity(live int) {
	limit := d.registry.Capacity()
	over := limit > 0 && live > limit
	if over && !d.overCapacity {
		d.log.Warn("live vehicles exceed identity registry size, colours will flicker",
			zap.Int("vehicles", live), zap.Int("max_entries", limit))
	}
	d.overCapacity = over
}

func (d *Driver) fetch(ctx context.Context) ([]sample, error) {
	ids, err := d.sim.VehicleIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	out := make([]sample, 0, len(ids))
	for _, id := range ids {
		s := sample{id: id}
		if s.x, s.y, err = d.sim.Position(ctx, id); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", id, err)
		}
		if s.angle, err = d.sim.Angle(ctx, id); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", id, err)
		}
		if s.speed, err = d.sim.Speed(ctx, id); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", id, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// AddCell appends a cell to the catalog. Meant for setup before the first
// tick; cells added later take part from the next tick on.
func (d *Driver) AddCell(id string, x, y float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.catalog.AddCell(id, x, y)
}

// Cells returns the catalog in insertion order.
func (d *Driver) Cells() []grid.Cell {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.catalog.All()
}

// Agents returns the last committed agent snapshot. Callers must not modify it.
func (d *Driver) Agents() world.AgentSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.agents
}

// Occupancy returns the last committed occupancy snapshot. Callers must not
// modify it.
func (d *Driver) Occupancy() occupancy.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cells
}

// TickCount returns the number of committed ticks.
func (d *Driver) TickCount() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tick
}
