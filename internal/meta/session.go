package meta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SessionState is the lifecycle state of a heartbeat session.
type SessionState int

const (
	StateAwaitingFirst SessionState = iota
	StateActive
	StateClosedClean
	StateClosedError
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingFirst:
		return "awaiting_first"
	case StateActive:
		return "active"
	case StateClosedClean:
		return "closed_clean"
	case StateClosedError:
		return "closed_error"
	default:
		return "unknown"
	}
}

// Closed reports whether the state is terminal.
func (s SessionState) Closed() bool {
	return s == StateClosedClean || s == StateClosedError
}

// CloseReason explains why a session reached a terminal state.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	ReasonEOF
	ReasonShutdown
	ReasonClusterMismatch
	ReasonTooManyInvalid
	ReasonTransport
)

func (r CloseReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonEOF:
		return "eof"
	case ReasonShutdown:
		return "shutdown"
	case ReasonClusterMismatch:
		return "cluster_mismatch"
	case ReasonTooManyInvalid:
		return "too_many_invalid"
	case ReasonTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// ReportStream is one node's ordered inbound reports and outbound acks.
// Recv returns io.EOF when the node closes the stream normally.
type ReportStream interface {
	Recv() (*Report, error)
	Send(*Ack) error
}

// SessionConfig tunes a single session.
type SessionConfig struct {
	ClusterID             uint64
	OutboxSize            int
	MaxConsecutiveInvalid int
	FlushTimeout          time.Duration
}

// DefaultSessionConfig returns the defaults for clusterID.
func DefaultSessionConfig(clusterID uint64) SessionConfig {
	return SessionConfig{
		ClusterID:             clusterID,
		OutboxSize:            16,
		MaxConsecutiveInvalid: 8,
		FlushTimeout:          time.Second,
	}
}

// SessionDeps are the shared objects a session reads and writes.
type SessionDeps struct {
	Registry   *NodeRegistry
	Locator    *LeaderLocator
	Dispatcher *ResponseDispatcher
	Recorder   Recorder
	Logger     *zap.Logger
	Tracer     trace.Tracer
	Now        func() time.Time
}

// Session ingests one node's heartbeat stream:
// AwaitingFirst -> Active -> Closed{Clean|Error}.
type Session struct {
	id   string
	cfg  SessionConfig
	deps SessionDeps

	mu         sync.Mutex
	state      SessionState
	reason     CloseReason
	peer       *Peer
	invalidRun int

	outbox  chan *Ack
	dropped atomic.Uint64
}

// NewSession creates a session in StateAwaitingFirst.
func NewSession(cfg SessionConfig, deps SessionDeps) *Session {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 1
	}
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("nyxmeta/internal/meta")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	id := uuid.NewString()
	deps.Logger = deps.Logger.With(zap.String("session", id))
	return &Session{
		id:     id,
		cfg:    cfg,
		deps:   deps,
		outbox: make(chan *Ack, cfg.OutboxSize),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Peer returns the peer bound to the session by its first valid report.
func (s *Session) Peer() (Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return Peer{}, false
	}
	return *s.peer, true
}

// Dropped returns how many acknowledgements were discarded on a full outbox.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Handle processes one report and returns its acknowledgement.
func (s *Session) Handle(ctx context.Context, r *Report) *Ack {
	return s.handle(ctx, r, true)
}

// handle runs the state machine for one report. When deliverable is false the
// ack will not reach the node, so pending instructions are left queued.
func (s *Session) handle(ctx context.Context, r *Report, deliverable bool) *Ack {
	start := s.deps.Now()
	_, span := s.deps.Tracer.Start(ctx, "meta.Session.Handle",
		trace.WithAttributes(attribute.String("nyxmeta.session", s.id)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	ack := &Ack{ClusterID: s.cfg.ClusterID}
	if r != nil {
		ack.TraceID = r.Header.TraceID
	}
	result := ResultRejected
	defer func() {
		s.deps.Recorder.ReportHandled(result, s.deps.Now().Sub(start))
		if ack.Err != nil && result != ResultStandby {
			span.RecordError(ack.Err)
			span.SetStatus(otelcodes.Error, ack.Err.Error())
		}
	}()

	if s.state.Closed() {
		ack.Err = ErrSessionClosed
		return ack
	}
	if r == nil {
		ack.Err = violationf("empty report")
		s.rejectLocked()
		return ack
	}
	if r.Header.ClusterID != s.cfg.ClusterID {
		result = ResultClusterMismatch
		ack.Err = clusterMismatch(r.Header.ClusterID, s.cfg.ClusterID)
		s.closeLocked(StateClosedError, ReasonClusterMismatch)
		return ack
	}
	if s.state == StateAwaitingFirst {
		s.state = StateActive
	}
	if err := ValidateReport(r, s.peer); err != nil {
		ack.Err = err
		s.deps.Logger.Debug("report rejected", zap.Error(err))
		s.rejectLocked()
		return ack
	}
	s.invalidRun = 0
	if s.peer == nil {
		peer := r.Peer
		s.peer = &peer
		s.deps.Logger.Info("heartbeat session bound", zap.Stringer("peer", peer), zap.Duration("interval", r.Interval))
	}
	span.SetAttributes(
		attribute.Int64("nyxmeta.peer.id", int64(r.Peer.ID)),
		attribute.Int("nyxmeta.regions", len(r.Regions)),
	)

	authoritative := s.deps.Locator.IsSelfLeader()
	snap := SnapshotFromReport(r)
	snap.Authoritative = authoritative
	s.deps.Registry.Upsert(r.Peer, snap, start)

	ack.Authoritative = authoritative
	if !authoritative {
		result = ResultStandby
		ack.Err = ErrNotLeader
		if leader, ok := s.deps.Locator.CurrentLeader(); ok {
			ack.LeaderHint = &leader
		}
		return ack
	}
	result = ResultAccepted
	if deliverable {
		ack.Instructions = s.deps.Dispatcher.Drain(r.Peer)
		if n := len(ack.Instructions); n > 0 {
			s.deps.Recorder.InstructionsDispatched(n)
		}
	}
	return ack
}

func (s *Session) rejectLocked() {
	s.invalidRun++
	if limit := s.cfg.MaxConsecutiveInvalid; limit > 0 && s.invalidRun >= limit {
		s.deps.Logger.Warn("closing session after repeated invalid reports", zap.Int("count", s.invalidRun))
		s.closeLocked(StateClosedError, ReasonTooManyInvalid)
	}
}

func (s *Session) closeLocked(state SessionState, reason CloseReason) {
	if s.state.Closed() {
		return
	}
	s.state = state
	s.reason = reason
}

type recvResult struct {
	report *Report
	err    error
}

// Run consumes stream until it ends, the session closes, or ctx is canceled.
// Registry entries are never removed here; they expire through the sweep.
// A clean close returns nil.
func (s *Session) Run(ctx context.Context, stream ReportStream) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.deps.Recorder.SessionOpened()
	s.deps.Logger.Debug("heartbeat session opened")

	inbound := make(chan recvResult)
	go func() {
		for {
			report, err := stream.Recv()
			select {
			case inbound <- recvResult{report: report, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	sendFailed := make(chan error, 1)
	sendDone := make(chan struct{})
	go s.sendLoop(stream, sendFailed, sendDone)

	runErr := s.consume(ctx, inbound, sendFailed)

	close(s.outbox)
	s.flush(sendDone)

	reason := s.Reason()
	s.deps.Recorder.SessionClosed(reason)
	fields := []zap.Field{zap.Stringer("state", s.State()), zap.Stringer("reason", reason)}
	if peer, ok := s.Peer(); ok {
		fields = append(fields, zap.Stringer("peer", peer))
	}
	if n := s.Dropped(); n > 0 {
		fields = append(fields, zap.Uint64("dropped_acks", n))
	}
	if runErr != nil {
		s.deps.Logger.Info("heartbeat session closed", append(fields, zap.Error(runErr))...)
	} else {
		s.deps.Logger.Info("heartbeat session closed", fields...)
	}
	return runErr
}

func (s *Session) consume(ctx context.Context, inbound <-chan recvResult, sendFailed <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			s.close(StateClosedClean, ReasonShutdown)
			return nil
		case err := <-sendFailed:
			s.close(StateClosedError, ReasonTransport)
			return fmt.Errorf("%w: send: %v", ErrStreamFailure, err)
		case in := <-inbound:
			if errors.Is(in.err, io.EOF) {
				s.close(StateClosedClean, ReasonEOF)
				return nil
			}
			if in.err != nil {
				s.close(StateClosedError, ReasonTransport)
				return fmt.Errorf("%w: recv: %v", ErrStreamFailure, in.err)
			}
			// Only this goroutine fills the outbox, so free space observed
			// here is still free when the ack is queued.
			deliverable := len(s.outbox) < cap(s.outbox)
			ack := s.handle(ctx, in.report, deliverable)
			if deliverable {
				s.outbox <- ack
			} else {
				s.dropped.Add(1)
				s.deps.Recorder.AckDropped()
				s.deps.Logger.Warn("outbox full, dropping acknowledgement")
			}
			switch s.Reason() {
			case ReasonClusterMismatch:
				return ack.Err
			case ReasonTooManyInvalid:
				return ack.Err
			}
		}
	}
}

func (s *Session) close(state SessionState, reason CloseReason) {
	s.mu.Lock()
	s.closeLocked(state, reason)
	s.mu.Unlock()
}

func (s *Session) sendLoop(stream ReportStream, failed chan<- error, done chan<- struct{}) {
	defer close(done)
	for ack := range s.outbox {
		if err := stream.Send(ack); err != nil {
			failed <- err
			for range s.outbox {
			}
			return
		}
	}
}

func (s *Session) flush(done <-chan struct{}) {
	timeout := s.cfg.FlushTimeout
	if timeout <= 0 {
		<-done
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.deps.Logger.Warn("outbox flush timed out", zap.Duration("timeout", timeout))
	}
}
