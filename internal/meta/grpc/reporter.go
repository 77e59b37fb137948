package metagrpc

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"nyxmeta/internal/meta"
)

// ReporterConfig describes a node's heartbeat loop.
type ReporterConfig struct {
	ClusterID uint64
	Peer      meta.Peer
	// Targets are the meta replicas tried in turn until one leads.
	Targets    []string
	Interval   time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// Source builds the next report. Header, Peer and Interval are filled in
	// by the reporter.
	Source func() *meta.Report
	// OnInstructions receives instructions from authoritative acknowledgements.
	OnInstructions func([]meta.Instruction)
	DialOptions    []grpc.DialOption
	Logger         *zap.Logger
}

// Reporter keeps one heartbeat stream open to the meta leader.
type Reporter struct {
	cfg    ReporterConfig
	logger *zap.Logger

	sent  atomic.Uint64
	acked atomic.Uint64
	// leader is the target of the last authoritative acknowledgement.
	leader atomic.Pointer[string]
}

func NewReporter(cfg ReporterConfig) (*Reporter, error) {
	if len(cfg.Targets) == 0 {
		return nil, errors.New("metagrpc: reporter needs at least one target")
	}
	if cfg.Source == nil {
		return nil, errors.New("metagrpc: reporter needs a report source")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 10 * cfg.MinBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{cfg: cfg, logger: logger.With(zap.Stringer("peer", cfg.Peer))}, nil
}

// Sent returns the number of reports written to a stream.
func (r *Reporter) Sent() uint64 { return r.sent.Load() }

// Acked returns the number of authoritative acknowledgements received.
func (r *Reporter) Acked() uint64 { return r.acked.Load() }

// Leader returns the replica that last answered authoritatively.
func (r *Reporter) Leader() (string, bool) {
	p := r.leader.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// Run reports until ctx is done. Stream failures rotate through the targets
// with exponential backoff; a leader hint is followed immediately.
func (r *Reporter) Run(ctx context.Context) error {
	backoff := r.cfg.MinBackoff
	next := 0
	target := r.cfg.Targets[next]
	for {
		redirect, err := r.stream(ctx, target)
		if ctx.Err() != nil {
			return nil
		}
		if redirect != "" {
			r.logger.Info("following leader hint", zap.String("from", target), zap.String("to", redirect))
			target = redirect
			backoff = r.cfg.MinBackoff
			continue
		}
		r.logger.Warn("heartbeat stream failed", zap.String("target", target), zap.Duration("backoff", backoff), zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if backoff *= 2; backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
		next = (next + 1) % len(r.cfg.Targets)
		target = r.cfg.Targets[next]
	}
}

// stream runs one heartbeat stream against target. It returns a non-empty
// redirect when the replica named another leader.
func (r *Reporter) stream(ctx context.Context, target string) (string, error) {
	client, err := NewClient(target, r.cfg.ClusterID, r.cfg.DialOptions...)
	if err != nil {
		return "", err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := client.Heartbeat(ctx)
	if err != nil {
		return "", err
	}

	redirects := make(chan string, 1)
	recvErr := make(chan error, 1)
	go func() {
		for {
			resp, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			r.handleAck(meta.AckFromProto(resp), target, redirects)
		}
	}()

	send := func() error {
		rep := r.cfg.Source()
		if rep == nil {
			rep = &meta.Report{}
		}
		rep.Header.ClusterID = r.cfg.ClusterID
		rep.Peer = r.cfg.Peer
		rep.Interval = r.cfg.Interval
		if err := stream.Send(meta.ReportToProto(rep)); err != nil {
			return err
		}
		r.sent.Add(1)
		return nil
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	if err := send(); err != nil {
		return "", err
	}
	for {
		select {
		case <-ctx.Done():
			_ = stream.CloseSend()
			return "", nil
		case addr := <-redirects:
			_ = stream.CloseSend()
			return addr, nil
		case err := <-recvErr:
			return "", err
		case <-ticker.C:
			if err := send(); err != nil {
				// The stream's real status surfaces on Recv.
				select {
				case rerr := <-recvErr:
					return "", rerr
				case <-time.After(r.cfg.Interval):
					return "", err
				}
			}
		}
	}
}

func (r *Reporter) handleAck(ack *meta.Ack, target string, redirects chan<- string) {
	if ack == nil {
		return
	}
	if ack.Err != nil {
		if meta.IsNotLeaderError(ack.Err) && ack.LeaderHint != nil && ack.LeaderHint.Addr != "" && ack.LeaderHint.Addr != target {
			select {
			case redirects <- ack.LeaderHint.Addr:
			default:
			}
			return
		}
		if !meta.IsNotLeaderError(ack.Err) {
			r.logger.Warn("report rejected", zap.String("target", target), zap.Error(ack.Err))
		}
		return
	}
	r.leader.Store(&target)
	if len(ack.Instructions) > 0 && r.cfg.OnInstructions != nil {
		r.cfg.OnInstructions(ack.Instructions)
	}
	// Counted last so Acked covers instructions already handed over.
	r.acked.Add(1)
}
