package meta

import (
	"sort"
	"sync"
	"time"

	"github.com/google/btree"

	regionpkg "nyxmeta/internal/region"
)

const regionTreeDegree = 16

// RegionReplica is one peer's claim about a region.
type RegionReplica struct {
	Peer       Peer
	Role       regionpkg.Role
	Stat       RegionStat
	ReportedAt time.Time

	seq       uint64
	followers []ReplicaStat
}

// RegionView is the derived state of a single region.
type RegionView struct {
	ID        regionpkg.ID
	TableName string
	// Leader is the most recent leadership claimant, nil when leaderless.
	Leader *Peer
	// Followers comes from the replica stats of Leader's report.
	Followers []ReplicaStat
	// Reporters lists every peer currently reporting the region, by peer id.
	Reporters []RegionReplica
	// Conflict is set when more than one peer claims leadership.
	Conflict bool
	// Claimants lists the leadership claimants, most recent first.
	Claimants []Peer
}

// RegionStats aggregates the index the way PD summarizes region distribution.
type RegionStats struct {
	Count            int
	LeaderlessCount  int
	ConflictCount    int
	StorageSize      int64
	StorageRows      int64
	PeerLeaderCount  map[uint64]int
	PeerReplicaCount map[uint64]int
}

type regionEntry struct {
	id        regionpkg.ID
	reporters map[uint64]*RegionReplica
}

func regionLess(a, b *regionEntry) bool {
	return a.id < b.id
}

type regionShard struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[*regionEntry]
}

// RegionStatIndex maps region ids to the peers reporting them. It is kept in
// step with a NodeRegistry by acting as its RegistryListener.
type RegionStatIndex struct {
	shards []*regionShard
}

// NewRegionStatIndex creates an index partitioned into the given number of shards.
func NewRegionStatIndex(shards int) *RegionStatIndex {
	if shards <= 0 {
		shards = DefaultRegistryOptions().Shards
	}
	idx := &RegionStatIndex{shards: make([]*regionShard, shards)}
	for i := range idx.shards {
		idx.shards[i] = &regionShard{tree: btree.NewG[*regionEntry](regionTreeDegree, regionLess)}
	}
	return idx
}

func (x *RegionStatIndex) shard(id regionpkg.ID) *regionShard {
	return x.shards[uint64(id)%uint64(len(x.shards))]
}

// NodeUpserted drops the peer's previous associations that are no longer
// reported and re-inserts its current region list with its declared role.
func (x *RegionStatIndex) NodeUpserted(prev, next *NodeSnapshot) {
	if next == nil {
		return
	}
	current := make(map[regionpkg.ID]struct{}, len(next.Regions))
	for _, r := range next.Regions {
		current[r.RegionID] = struct{}{}
	}
	if prev != nil {
		for _, r := range prev.Regions {
			if _, ok := current[r.RegionID]; ok {
				continue
			}
			x.dropReporter(r.RegionID, prev.Peer.ID)
		}
	}

	role := regionpkg.Follower
	var followers []ReplicaStat
	if next.IsLeader {
		role = regionpkg.Leader
		followers = next.Replicas
	}
	for _, r := range next.Regions {
		replica := &RegionReplica{
			Peer:       next.Peer,
			Role:       role,
			Stat:       r.clone(),
			ReportedAt: next.UpdatedAt,
			seq:        next.Seq,
			followers:  followers,
		}
		sh := x.shard(r.RegionID)
		sh.mu.Lock()
		entry, ok := sh.tree.Get(&regionEntry{id: r.RegionID})
		if !ok {
			entry = &regionEntry{id: r.RegionID, reporters: make(map[uint64]*RegionReplica)}
			sh.tree.ReplaceOrInsert(entry)
		}
		entry.reporters[next.Peer.ID] = replica
		sh.mu.Unlock()
	}
}

// NodeRemoved drops every association of the removed peer.
func (x *RegionStatIndex) NodeRemoved(snap *NodeSnapshot) {
	if snap == nil {
		return
	}
	for _, r := range snap.Regions {
		x.dropReporter(r.RegionID, snap.Peer.ID)
	}
}

func (x *RegionStatIndex) dropReporter(id regionpkg.ID, peerID uint64) {
	sh := x.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	entry, ok := sh.tree.Get(&regionEntry{id: id})
	if !ok {
		return
	}
	delete(entry.reporters, peerID)
	if len(entry.reporters) == 0 {
		sh.tree.Delete(entry)
	}
}

// LeaderOf returns the most recent leadership claimant for the region and
// whether other peers claim leadership too. ok is false when no peer claims it.
func (x *RegionStatIndex) LeaderOf(id regionpkg.ID) (leader Peer, conflict bool, ok bool) {
	view, found := x.Get(id)
	if !found || view.Leader == nil {
		return Peer{}, false, false
	}
	return *view.Leader, view.Conflict, true
}

// Get returns the view of a single region.
func (x *RegionStatIndex) Get(id regionpkg.ID) (RegionView, bool) {
	sh := x.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	entry, ok := sh.tree.Get(&regionEntry{id: id})
	if !ok {
		return RegionView{}, false
	}
	return entry.view(), true
}

// List returns up to limit regions with id >= from, ordered by id. A
// non-positive limit returns everything.
func (x *RegionStatIndex) List(from regionpkg.ID, limit int) []RegionView {
	var out []RegionView
	for _, sh := range x.shards {
		sh.mu.RLock()
		taken := 0
		sh.tree.AscendGreaterOrEqual(&regionEntry{id: from}, func(entry *regionEntry) bool {
			out = append(out, entry.view())
			taken++
			return limit <= 0 || taken < limit
		})
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of regions with at least one reporter.
func (x *RegionStatIndex) Len() int {
	total := 0
	for _, sh := range x.shards {
		sh.mu.RLock()
		total += sh.tree.Len()
		sh.mu.RUnlock()
	}
	return total
}

// Stats aggregates the whole index.
func (x *RegionStatIndex) Stats() RegionStats {
	stats := RegionStats{
		PeerLeaderCount:  make(map[uint64]int),
		PeerReplicaCount: make(map[uint64]int),
	}
	for _, sh := range x.shards {
		sh.mu.RLock()
		sh.tree.Ascend(func(entry *regionEntry) bool {
			view := entry.view()
			stats.Count++
			if view.Leader == nil {
				stats.LeaderlessCount++
			} else {
				stats.PeerLeaderCount[view.Leader.ID]++
			}
			if view.Conflict {
				stats.ConflictCount++
			}
			size, rows := view.approxSize()
			stats.StorageSize += size
			stats.StorageRows += rows
			for _, rep := range view.Reporters {
				stats.PeerReplicaCount[rep.Peer.ID]++
			}
			return true
		})
		sh.mu.RUnlock()
	}
	return stats
}

func (e *regionEntry) view() RegionView {
	view := RegionView{
		ID:        e.id,
		Reporters: make([]RegionReplica, 0, len(e.reporters)),
	}
	var claimants []*RegionReplica
	var newest *RegionReplica
	for _, rep := range e.reporters {
		cp := *rep
		cp.Stat = rep.Stat.clone()
		view.Reporters = append(view.Reporters, cp)
		if rep.Role == regionpkg.Leader {
			claimants = append(claimants, rep)
		}
		if newest == nil || rep.seq > newest.seq {
			newest = rep
		}
	}
	sort.Slice(view.Reporters, func(i, j int) bool { return view.Reporters[i].Peer.ID < view.Reporters[j].Peer.ID })
	sort.Slice(claimants, func(i, j int) bool { return claimants[i].seq > claimants[j].seq })

	if len(claimants) > 0 {
		leader := claimants[0]
		peer := leader.Peer
		view.Leader = &peer
		view.TableName = leader.Stat.TableName
		if leader.followers != nil {
			view.Followers = append([]ReplicaStat(nil), leader.followers...)
		}
		view.Conflict = len(claimants) > 1
		view.Claimants = make([]Peer, 0, len(claimants))
		for _, c := range claimants {
			view.Claimants = append(view.Claimants, c.Peer)
		}
	} else if newest != nil {
		view.TableName = newest.Stat.TableName
	}
	return view
}

// approxSize prefers the leader's estimate and falls back to the largest report.
func (v RegionView) approxSize() (int64, int64) {
	if v.Leader != nil {
		for _, rep := range v.Reporters {
			if rep.Peer.ID == v.Leader.ID {
				return rep.Stat.ApproxSize, rep.Stat.ApproxRows
			}
		}
	}
	var size, rows int64
	for _, rep := range v.Reporters {
		if rep.Stat.ApproxSize > size {
			size = rep.Stat.ApproxSize
		}
		if rep.Stat.ApproxRows > rows {
			rows = rep.Stat.ApproxRows
		}
	}
	return size, rows
}
