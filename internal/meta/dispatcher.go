package meta

import (
	"sync"

	"go.uber.org/zap"
)

// InstructionQueue is the scheduler-side mailbox the dispatcher drains.
type InstructionQueue interface {
	// Enqueue appends payloads for the peer.
	Enqueue(peerID uint64, payloads ...Instruction) error
	// Drain removes and returns at most max payloads for the peer in
	// enqueue order. max <= 0 means no limit.
	Drain(peerID uint64, max int) ([]Instruction, error)
	// Pending returns the number of payloads waiting for the peer.
	Pending(peerID uint64) (int, error)
}

// ResponseDispatcher pulls pending instructions for acknowledgements.
// Delivery is best-effort: a drained payload is sent on exactly one
// acknowledgement and never re-queued.
type ResponseDispatcher struct {
	queue     InstructionQueue
	maxPerAck int
	logger    *zap.Logger
}

// NewResponseDispatcher creates a dispatcher over queue. A nil queue yields
// a dispatcher that never has anything to send.
func NewResponseDispatcher(queue InstructionQueue, maxPerAck int, logger *zap.Logger) *ResponseDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseDispatcher{queue: queue, maxPerAck: maxPerAck, logger: logger}
}

// Drain returns the instructions to attach for peer. Queue failures are
// logged and yield no instructions.
func (d *ResponseDispatcher) Drain(peer Peer) []Instruction {
	if d == nil || d.queue == nil {
		return nil
	}
	out, err := d.queue.Drain(peer.ID, d.maxPerAck)
	if err != nil {
		d.logger.Warn("drain instructions failed", zap.Stringer("peer", peer), zap.Error(err))
		return nil
	}
	return out
}

// Queue exposes the underlying queue so the scheduler can enqueue.
func (d *ResponseDispatcher) Queue() InstructionQueue {
	if d == nil {
		return nil
	}
	return d.queue
}

const memoryQueueShards = 32

// MemoryQueue is an in-process InstructionQueue partitioned by peer.
type MemoryQueue struct {
	shards [memoryQueueShards]memoryQueueShard
}

type memoryQueueShard struct {
	mu      sync.Mutex
	pending map[uint64][]Instruction
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{}
	for i := range q.shards {
		q.shards[i].pending = make(map[uint64][]Instruction)
	}
	return q
}

func (q *MemoryQueue) shard(peerID uint64) *memoryQueueShard {
	return &q.shards[peerID%memoryQueueShards]
}

func (q *MemoryQueue) Enqueue(peerID uint64, payloads ...Instruction) error {
	if len(payloads) == 0 {
		return nil
	}
	sh := q.shard(peerID)
	sh.mu.Lock()
	for _, p := range payloads {
		sh.pending[peerID] = append(sh.pending[peerID], append(Instruction(nil), p...))
	}
	sh.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Drain(peerID uint64, max int) ([]Instruction, error) {
	sh := q.shard(peerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	pending := sh.pending[peerID]
	if len(pending) == 0 {
		return nil, nil
	}
	n := len(pending)
	if max > 0 && max < n {
		n = max
	}
	out := pending[:n:n]
	if n == len(pending) {
		delete(sh.pending, peerID)
	} else {
		sh.pending[peerID] = append([]Instruction(nil), pending[n:]...)
	}
	return out, nil
}

func (q *MemoryQueue) Pending(peerID uint64) (int, error) {
	sh := q.shard(peerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.pending[peerID]), nil
}
