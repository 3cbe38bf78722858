package system

import (
	"context"
	"time"
)

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput   Phase = iota // 0: apply queued commands
	PhaseUpdate               // 1: step simulator, reconcile occupancy
	PhaseOutput               // 2: side outputs such as vehicle icons
	PhasePersist              // 3: occupancy history flush
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseUpdate:
		return "update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	}
	return "unknown"
}

// System is one unit of per-tick work.
type System interface {
	Phase() Phase
	Update(ctx context.Context, dt time.Duration) error
}
