package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hexfleet/server/internal/core/event"
	coresys "github.com/hexfleet/server/internal/core/system"
	"github.com/hexfleet/server/internal/traci"
	"go.uber.org/zap"
)

// SpeedSetter applies a speed command to the simulator.
type SpeedSetter interface {
	SetSpeed(ctx context.Context, id string, speed float64) error
}

// InputSystem applies queued speed commands before the simulator steps.
// Phase 0 (Input).
type InputSystem struct {
	setter     SpeedSetter
	queue      chan event.SpeedCommand
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(setter SpeedSetter, queueSize, maxPerTick int, log *zap.Logger) *InputSystem {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &InputSystem{
		setter:     setter,
		queue:      make(chan event.SpeedCommand, queueSize),
		maxPerTick: maxPerTick,
		log:        log.Named("input"),
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

// Enqueue queues cmd for the next tick. Safe from any goroutine; returns
// false when the queue is full.
func (s *InputSystem) Enqueue(cmd event.SpeedCommand) bool {
	select {
	case s.queue <- cmd:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued commands.
func (s *InputSystem) Pending() int {
	return len(s.queue)
}

// Update applies up to maxPerTick commands (all queued ones when 0). A
// command the simulator rejects, such as one for a vehicle that already left,
// is logged and skipped; any other error aborts the tick.
func (s *InputSystem) Update(ctx context.Context, _ time.Duration) error {
	for n := 0; s.maxPerTick <= 0 || n < s.maxPerTick; n++ {
		var cmd event.SpeedCommand
		select {
		case cmd = <-s.queue:
		default:
			return nil
		}
		err := s.setter.SetSpeed(ctx, cmd.VehicleID, cmd.Speed)
		switch {
		case err == nil:
			s.log.Debug("speed set", zap.String("vehicle", cmd.VehicleID), zap.Float64("speed", cmd.Speed))
		case errors.Is(err, traci.ErrCommandFailed):
			s.log.Warn("speed command rejected", zap.String("vehicle", cmd.VehicleID), zap.Error(err))
		default:
			return fmt.Errorf("apply speed command: %w", err)
		}
	}
	return nil
}
