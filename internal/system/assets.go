package system

import (
	"context"
	"time"

	"github.com/hexfleet/server/internal/assets"
	"github.com/hexfleet/server/internal/core/event"
	coresys "github.com/hexfleet/server/internal/core/system"
	"github.com/hexfleet/server/internal/identity"
	"go.uber.org/zap"
)

// AssetSystem writes recoloured vehicle icons for vehicles seen in this
// tick's agent snapshot. Phase 2 (Output).
type AssetSystem struct {
	gen     *assets.Generator
	pending []pendingAsset
	queued  map[string]identity.Color
	log     *zap.Logger
}

type pendingAsset struct {
	id    string
	color identity.Color
}

// NewAssetSystem subscribes to agent changes on bus.
func NewAssetSystem(gen *assets.Generator, bus *event.Bus, log *zap.Logger) *AssetSystem {
	s := &AssetSystem{
		gen:    gen,
		queued: make(map[string]identity.Color),
		log:    log.Named("assets"),
	}
	event.Subscribe(bus, s.onAgents)
	return s
}

func (s *AssetSystem) onAgents(e event.AgentsChanged) {
	for _, a := range e.Agents {
		if c, ok := s.queued[a.ID]; ok && c == a.Color {
			continue
		}
		if !s.gen.Pending(a.ID, a.Color) {
			continue
		}
		s.queued[a.ID] = a.Color
		s.pending = append(s.pending, pendingAsset{id: a.ID, color: a.Color})
	}
}

func (s *AssetSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

// Update writes the queued icons. Write failures are logged; they never abort
// the tick.
func (s *AssetSystem) Update(_ context.Context, _ time.Duration) error {
	if len(s.pending) == 0 {
		return nil
	}
	written := 0
	for _, p := range s.pending {
		ok, err := s.gen.Generate(p.id, p.color)
		if err != nil {
			s.log.Warn("vehicle icon not written", zap.String("vehicle", p.id), zap.Error(err))
			continue
		}
		if ok {
			written++
		}
	}
	s.pending = s.pending[:0]
	clear(s.queued)
	s.log.Debug("vehicle icons written", zap.Int("count", written))
	return nil
}
