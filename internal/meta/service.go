package meta

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Options configures a Service.
type Options struct {
	ClusterID             uint64
	Self                  Peer
	Registry              RegistryOptions
	RegionShards          int
	OutboxSize            int
	MaxConsecutiveInvalid int
	FlushTimeout          time.Duration
	MaxInstructionsPerAck int
	// Queue backs the dispatcher; nil selects an in-memory queue.
	Queue    InstructionQueue
	Recorder Recorder
	Logger   *zap.Logger
	Tracer   trace.Tracer
}

// Service owns the shared heartbeat state of one control-plane replica and
// creates sessions bound to it.
type Service struct {
	opts       Options
	index      *RegionStatIndex
	registry   *NodeRegistry
	locator    *LeaderLocator
	dispatcher *ResponseDispatcher
	recorder   Recorder
	logger     *zap.Logger
	tracer     trace.Tracer

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewService wires the registry, region index, locator and dispatcher.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("nyxmeta/internal/meta")
	}
	if opts.Queue == nil {
		opts.Queue = NewMemoryQueue()
	}
	index := NewRegionStatIndex(opts.RegionShards)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		opts:       opts,
		index:      index,
		registry:   NewNodeRegistry(opts.Registry, index),
		locator:    NewLeaderLocator(opts.Self),
		dispatcher: NewResponseDispatcher(opts.Queue, opts.MaxInstructionsPerAck, opts.Logger.Named("dispatcher")),
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.locator.OnChange(func(f LeaderFact) {
		fields := []zap.Field{zap.Bool("self", f.SelfIsLeader), zap.Uint64("term", f.Term)}
		if f.Leader != nil {
			fields = append(fields, zap.Stringer("leader", *f.Leader))
		}
		s.logger.Info("leader fact observed", fields...)
	})
	return s
}

func (s *Service) ClusterID() uint64 {
	return s.opts.ClusterID
}

func (s *Service) Registry() *NodeRegistry {
	return s.registry
}

func (s *Service) Regions() *RegionStatIndex {
	return s.index
}

func (s *Service) Locator() *LeaderLocator {
	return s.locator
}

func (s *Service) Dispatcher() *ResponseDispatcher {
	return s.dispatcher
}

// Context is canceled by Close; sessions derive from it so shutdown closes them.
func (s *Service) Context() context.Context {
	return s.ctx
}

// NewSession creates a session bound to the shared state.
func (s *Service) NewSession() *Session {
	cfg := DefaultSessionConfig(s.opts.ClusterID)
	if s.opts.OutboxSize > 0 {
		cfg.OutboxSize = s.opts.OutboxSize
	}
	if s.opts.MaxConsecutiveInvalid > 0 {
		cfg.MaxConsecutiveInvalid = s.opts.MaxConsecutiveInvalid
	}
	if s.opts.FlushTimeout > 0 {
		cfg.FlushTimeout = s.opts.FlushTimeout
	}
	return NewSession(cfg, SessionDeps{
		Registry:   s.registry,
		Locator:    s.locator,
		Dispatcher: s.dispatcher,
		Recorder:   s.recorder,
		Logger:     s.logger.Named("session"),
		Tracer:     s.tracer,
	})
}

// NewSweeper creates a sweeper for the service registry.
func (s *Service) NewSweeper(interval time.Duration) *Sweeper {
	return NewSweeper(s.registry, interval, s.recorder, s.logger.Named("sweeper"))
}

// CheckCluster returns ErrClusterMismatch unless clusterID is served here.
func (s *Service) CheckCluster(clusterID uint64) error {
	if clusterID != s.opts.ClusterID {
		return clusterMismatch(clusterID, s.opts.ClusterID)
	}
	return nil
}

// Sample is a point-in-time view used by metric collectors.
type Sample struct {
	Nodes        int
	Leaders      int
	Regions      RegionStats
	SelfIsLeader bool
	LeaderKnown  bool
}

// Sample gathers the current sizes of the live view.
func (s *Service) Sample() Sample {
	snaps := s.registry.Snapshots()
	out := Sample{
		Nodes:        len(snaps),
		Regions:      s.index.Stats(),
		SelfIsLeader: s.locator.IsSelfLeader(),
	}
	for _, snap := range snaps {
		if snap.IsLeader {
			out.Leaders++
		}
	}
	_, out.LeaderKnown = s.locator.CurrentLeader()
	return out
}

// Close cancels the service context. Running sessions close cleanly.
func (s *Service) Close() {
	s.closeOnce.Do(s.cancel)
}
