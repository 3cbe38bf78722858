package system

import (
	"context"
	"time"

	"github.com/hexfleet/server/internal/core/event"
	coresys "github.com/hexfleet/server/internal/core/system"
	"github.com/hexfleet/server/internal/persist"
	"go.uber.org/zap"
)

// ChangeWriter stores a batch of occupancy changes atomically.
type ChangeWriter interface {
	WriteChanges(ctx context.Context, runID int64, changes []persist.OccupancyChange) error
}

// PersistenceSystem buffers occupancy changes and writes them every interval
// ticks. Phase 3 (Persist).
type PersistenceSystem struct {
	repo        ChangeWriter
	runID       int64
	buf         []persist.OccupancyChange
	tickCount   int
	interval    int // flush every N ticks
	maxBuffered int // oldest rows are dropped beyond this while writes fail
	log         *zap.Logger
}

func NewPersistenceSystem(repo ChangeWriter, runID int64, bus *event.Bus, intervalTicks, maxBuffered int, log *zap.Logger) *PersistenceSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	s := &PersistenceSystem{
		repo:        repo,
		runID:       runID,
		interval:    intervalTicks,
		maxBuffered: maxBuffered,
		log:         log.Named("persist"),
	}
	event.Subscribe(bus, s.onOccupancy)
	return s
}

func (s *PersistenceSystem) onOccupancy(e event.OccupancyChanged) {
	for _, c := range e.Changed {
		s.buf = append(s.buf, persist.OccupancyChange{Tick: e.Tick, CellID: c.CellID, Color: c.Color})
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

// Update flushes once per interval. A failed write keeps the rows for the
// next attempt and does not abort the tick.
func (s *PersistenceSystem) Update(ctx context.Context, _ time.Duration) error {
	s.tickCount++
	if s.tickCount < s.interval {
		return nil
	}
	s.tickCount = 0
	if err := s.Flush(ctx); err != nil {
		s.log.Warn("occupancy log write failed, keeping rows", zap.Int("rows", len(s.buf)), zap.Error(err))
		s.trim()
	}
	return nil
}

// Flush writes every buffered row now. Called on shutdown.
func (s *PersistenceSystem) Flush(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.repo.WriteChanges(ctx, s.runID, s.buf); err != nil {
		return err
	}
	s.log.Debug("occupancy log written", zap.Int("rows", len(s.buf)))
	s.buf = s.buf[:0]
	return nil
}

func (s *PersistenceSystem) trim() {
	if s.maxBuffered <= 0 || len(s.buf) <= s.maxBuffered {
		return
	}
	drop := len(s.buf) - s.maxBuffered
	s.log.Warn("occupancy log buffer full, dropping oldest rows", zap.Int("dropped", drop))
	s.buf = append(s.buf[:0], s.buf[drop:]...)
}

// Buffered returns the number of rows waiting to be written.
func (s *PersistenceSystem) Buffered() int {
	return len(s.buf)
}
