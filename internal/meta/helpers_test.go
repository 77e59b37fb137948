package meta_test

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"nyxmeta/internal/meta"
	regionpkg "nyxmeta/internal/region"
)

const testCluster = 7001

func peer(id uint64) meta.Peer {
	return meta.Peer{ID: id, Addr: fmt.Sprintf("10.0.0.%d:20160", id)}
}

func report(id uint64, leader bool, regions ...uint64) *meta.Report {
	r := &meta.Report{
		Header:   meta.RequestHeader{ClusterID: testCluster},
		Peer:     peer(id),
		IsLeader: leader,
		Interval: time.Second,
		Node:     meta.NodeStat{RegionCount: int64(len(regions))},
	}
	for _, region := range regions {
		r.Regions = append(r.Regions, meta.RegionStat{RegionID: regionpkg.ID(region), TableName: "orders"})
	}
	return r
}

func snapshot(r *meta.Report) meta.NodeSnapshot {
	return meta.SnapshotFromReport(r)
}

// chanStream feeds reports from a channel; closing in yields io.EOF.
type chanStream struct {
	in      chan *meta.Report
	recvErr error

	mu      sync.Mutex
	sent    []*meta.Ack
	sendErr error
}

func newChanStream() *chanStream {
	return &chanStream{in: make(chan *meta.Report)}
}

func (s *chanStream) Recv() (*meta.Report, error) {
	r, ok := <-s.in
	if !ok {
		if s.recvErr != nil {
			return nil, s.recvErr
		}
		return nil, io.EOF
	}
	return r, nil
}

func (s *chanStream) Send(a *meta.Ack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, a)
	return nil
}

func (s *chanStream) acks() []*meta.Ack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*meta.Ack(nil), s.sent...)
}

type countingRecorder struct {
	opened  atomic.Int64
	closed  atomic.Int64
	handled atomic.Int64
	dropped atomic.Int64
	sent    atomic.Int64
	swept   atomic.Int64

	mu      sync.Mutex
	results map[string]int
	reasons map[meta.CloseReason]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{results: make(map[string]int), reasons: make(map[meta.CloseReason]int)}
}

func (r *countingRecorder) SessionOpened() { r.opened.Add(1) }

func (r *countingRecorder) SessionClosed(reason meta.CloseReason) {
	r.mu.Lock()
	r.reasons[reason]++
	r.mu.Unlock()
	r.closed.Add(1)
}

func (r *countingRecorder) ReportHandled(result string, _ time.Duration) {
	r.mu.Lock()
	r.results[result]++
	r.mu.Unlock()
	r.handled.Add(1)
}

func (r *countingRecorder) AckDropped() { r.dropped.Add(1) }

func (r *countingRecorder) InstructionsDispatched(n int) { r.sent.Add(int64(n)) }

func (r *countingRecorder) NodesSwept(n int) { r.swept.Add(int64(n)) }

func (r *countingRecorder) result(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[name]
}
