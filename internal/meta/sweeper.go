package meta

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically expires registry entries whose deadline has passed.
type Sweeper struct {
	registry *NodeRegistry
	interval time.Duration
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper over registry. A non-positive interval falls
// back to the registry's default reporting interval.
func NewSweeper(registry *NodeRegistry, interval time.Duration, recorder Recorder, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = registry.Options().DefaultInterval
	}
	if recorder == nil {
		recorder = NopRecorder
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		registry: registry,
		interval: interval,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// SweepOnce runs a single pass and returns the expired peers.
func (s *Sweeper) SweepOnce() []Peer {
	removed := s.registry.Sweep(s.now())
	if len(removed) > 0 {
		s.recorder.NodesSwept(len(removed))
		for _, p := range removed {
			s.logger.Info("node expired", zap.Stringer("peer", p))
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}
