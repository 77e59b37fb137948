package meta

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huandu/skiplist"
)

// RegistryListener observes registry mutations. Callbacks run while the
// peer's shard lock is held, so implementations must not call back into the
// registry.
type RegistryListener interface {
	NodeUpserted(prev, next *NodeSnapshot)
	NodeRemoved(snap *NodeSnapshot)
}

// RegistryOptions tunes a NodeRegistry.
type RegistryOptions struct {
	// Shards partitions peers so writers for different peers rarely contend.
	Shards int
	// TTLMultiplier is k in TTL = k * declared interval.
	TTLMultiplier int
	// DefaultInterval replaces a missing or zero declared interval.
	DefaultInterval time.Duration
	// MaxInterval clamps declared intervals.
	MaxInterval time.Duration
}

// DefaultRegistryOptions returns the options used when none are configured.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		Shards:          64,
		TTLMultiplier:   3,
		DefaultInterval: 2 * time.Second,
		MaxInterval:     5 * time.Minute,
	}
}

func (o RegistryOptions) withDefaults() RegistryOptions {
	def := DefaultRegistryOptions()
	if o.Shards <= 0 {
		o.Shards = def.Shards
	}
	if o.TTLMultiplier < 2 {
		o.TTLMultiplier = def.TTLMultiplier
	}
	if o.DefaultInterval <= 0 {
		o.DefaultInterval = def.DefaultInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = def.MaxInterval
	}
	if o.MaxInterval < o.DefaultInterval {
		o.MaxInterval = o.DefaultInterval
	}
	return o
}

// NodeRegistry is the live map from peer id to the latest accepted snapshot.
// Entries expire TTLMultiplier declared intervals after their last update.
type NodeRegistry struct {
	opts     RegistryOptions
	shards   []*registryShard
	seq      atomic.Uint64
	listener RegistryListener
}

type registryShard struct {
	mu      sync.RWMutex
	entries map[uint64]*NodeSnapshot
	// deadlines orders entries by expiry so a sweep stops at the first live one.
	deadlines *skiplist.SkipList
}

type deadlineKey struct {
	at int64
	id uint64
}

var deadlineOrder = skiplist.GreaterThanFunc(func(lhs, rhs interface{}) int {
	a, b := lhs.(deadlineKey), rhs.(deadlineKey)
	switch {
	case a.at < b.at:
		return -1
	case a.at > b.at:
		return 1
	case a.id < b.id:
		return -1
	case a.id > b.id:
		return 1
	}
	return 0
})

// NewNodeRegistry creates a registry. listener may be nil.
func NewNodeRegistry(opts RegistryOptions, listener RegistryListener) *NodeRegistry {
	opts = opts.withDefaults()
	r := &NodeRegistry{
		opts:     opts,
		shards:   make([]*registryShard, opts.Shards),
		listener: listener,
	}
	for i := range r.shards {
		r.shards[i] = &registryShard{
			entries:   make(map[uint64]*NodeSnapshot),
			deadlines: skiplist.New(deadlineOrder),
		}
	}
	return r
}

// Options returns the effective options after defaults were applied.
func (r *NodeRegistry) Options() RegistryOptions {
	return r.opts
}

func (r *NodeRegistry) shard(id uint64) *registryShard {
	return r.shards[id%uint64(len(r.shards))]
}

// EffectiveInterval resolves the interval the registry uses for a declared one.
func (r *NodeRegistry) EffectiveInterval(declared time.Duration) time.Duration {
	if declared <= 0 {
		return r.opts.DefaultInterval
	}
	if declared > r.opts.MaxInterval {
		return r.opts.MaxInterval
	}
	return declared
}

// TTL returns how long an entry with the declared interval survives without a report.
func (r *NodeRegistry) TTL(declared time.Duration) time.Duration {
	return time.Duration(r.opts.TTLMultiplier) * r.EffectiveInterval(declared)
}

// Upsert replaces the snapshot stored for peer wholesale and returns the
// stored copy, stamped with its update time, deadline and sequence number.
func (r *NodeRegistry) Upsert(peer Peer, snap NodeSnapshot, ts time.Time) NodeSnapshot {
	stored := snap.Clone()
	stored.Peer = peer
	stored.Interval = r.EffectiveInterval(snap.Interval)
	stored.UpdatedAt = ts
	stored.Deadline = ts.Add(time.Duration(r.opts.TTLMultiplier) * stored.Interval)

	sh := r.shard(peer.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stored.Seq = r.seq.Add(1)
	prev := sh.entries[peer.ID]
	if prev != nil {
		sh.deadlines.Remove(deadlineKey{at: prev.Deadline.UnixNano(), id: peer.ID})
	}
	sh.entries[peer.ID] = &stored
	sh.deadlines.Set(deadlineKey{at: stored.Deadline.UnixNano(), id: peer.ID}, peer.ID)
	if r.listener != nil {
		r.listener.NodeUpserted(prev, &stored)
	}
	return stored.Clone()
}

// Get returns the latest snapshot for the peer id.
func (r *NodeRegistry) Get(id uint64) (NodeSnapshot, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	snap, ok := sh.entries[id]
	if !ok {
		return NodeSnapshot{}, false
	}
	return snap.Clone(), true
}

// Remove evicts a peer immediately.
func (r *NodeRegistry) Remove(id uint64) (NodeSnapshot, bool) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	snap, ok := sh.entries[id]
	if !ok {
		return NodeSnapshot{}, false
	}
	r.removeLocked(sh, snap)
	return snap.Clone(), true
}

func (r *NodeRegistry) removeLocked(sh *registryShard, snap *NodeSnapshot) {
	delete(sh.entries, snap.Peer.ID)
	sh.deadlines.Remove(deadlineKey{at: snap.Deadline.UnixNano(), id: snap.Peer.ID})
	if r.listener != nil {
		r.listener.NodeRemoved(snap)
	}
}

// Sweep removes every entry whose deadline is strictly before now and returns
// the removed peers. Each shard is checked under its own lock, so an entry
// refreshed concurrently either keeps its new deadline or is seen before the
// refresh; it is never removed after being refreshed.
func (r *NodeRegistry) Sweep(now time.Time) []Peer {
	cutoff := now.UnixNano()
	var removed []Peer
	for _, sh := range r.shards {
		sh.mu.Lock()
		var expired []*NodeSnapshot
		for elem := sh.deadlines.Front(); elem != nil; elem = elem.Next() {
			key := elem.Key().(deadlineKey)
			if key.at >= cutoff {
				break
			}
			if snap, ok := sh.entries[key.id]; ok {
				expired = append(expired, snap)
			}
		}
		for _, snap := range expired {
			r.removeLocked(sh, snap)
			removed = append(removed, snap.Peer)
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of live entries.
func (r *NodeRegistry) Len() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		total += len(sh.entries)
		sh.mu.RUnlock()
	}
	return total
}

// Snapshots returns a copy of every entry ordered by peer id.
func (r *NodeRegistry) Snapshots() []NodeSnapshot {
	out := make([]NodeSnapshot, 0)
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, snap := range sh.entries {
			out = append(out, snap.Clone())
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer.ID < out[j].Peer.ID })
	return out
}
