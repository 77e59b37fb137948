package meta_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nyxmeta/internal/meta"
	regionpkg "nyxmeta/internal/region"
)

func newIndexedRegistry() (*meta.NodeRegistry, *meta.RegionStatIndex) {
	index := meta.NewRegionStatIndex(4)
	return meta.NewNodeRegistry(meta.RegistryOptions{Shards: 4}, index), index
}

func TestRegionLeaderWithInSyncFollower(t *testing.T) {
	reg, index := newIndexedRegistry()
	now := time.Now()

	a := report(1, true, 7)
	a.Regions[0].ApproxRows = 100
	a.Replicas = []meta.ReplicaStat{{Peer: peer(2), InSync: true}}
	reg.Upsert(a.Peer, snapshot(a), now)

	stored, ok := reg.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 100, stored.Regions[0].ApproxRows)

	view, ok := index.Get(7)
	require.True(t, ok)
	require.NotNil(t, view.Leader)
	require.Equal(t, peer(1), *view.Leader)
	require.False(t, view.Conflict)
	require.Equal(t, []meta.ReplicaStat{{Peer: peer(2), InSync: true}}, view.Followers)
	require.Equal(t, "orders", view.TableName)
}

func TestRegionConflictSurfaced(t *testing.T) {
	reg, index := newIndexedRegistry()
	now := time.Now()

	reg.Upsert(peer(1), snapshot(report(1, true, 7)), now)
	reg.Upsert(peer(2), snapshot(report(2, true, 7)), now)

	leader, conflict, ok := index.LeaderOf(7)
	require.True(t, ok)
	require.True(t, conflict)
	require.Equal(t, peer(2), leader)

	view, _ := index.Get(7)
	require.Equal(t, []meta.Peer{peer(2), peer(1)}, view.Claimants)
	require.Len(t, view.Reporters, 2)

	// The most recent claim wins even when it comes from the older claimant.
	reg.Upsert(peer(1), snapshot(report(1, true, 7)), now)
	leader, conflict, _ = index.LeaderOf(7)
	require.Equal(t, peer(1), leader)
	require.True(t, conflict)

	reg.Remove(1)
	leader, conflict, ok = index.LeaderOf(7)
	require.True(t, ok)
	require.False(t, conflict)
	require.Equal(t, peer(2), leader)
}

func TestRegionBecomesLeaderlessOnRemoval(t *testing.T) {
	reg, index := newIndexedRegistry()
	now := time.Now()

	reg.Upsert(peer(1), snapshot(report(1, true, 7)), now)
	reg.Upsert(peer(2), snapshot(report(2, false, 7)), now)

	reg.Remove(1)
	_, _, ok := index.LeaderOf(7)
	require.False(t, ok)
	view, ok := index.Get(7)
	require.True(t, ok)
	require.Nil(t, view.Leader)
	require.Len(t, view.Reporters, 1)
	require.Equal(t, regionpkg.Follower, view.Reporters[0].Role)

	reg.Remove(2)
	_, ok = index.Get(7)
	require.False(t, ok)
	require.Zero(t, index.Len())
}

func TestRegionReinsertDropsStaleAssociations(t *testing.T) {
	reg, index := newIndexedRegistry()
	now := time.Now()

	reg.Upsert(peer(1), snapshot(report(1, true, 7, 8)), now)
	reg.Upsert(peer(1), snapshot(report(1, false, 8)), now)

	_, ok := index.Get(7)
	require.False(t, ok)
	view, ok := index.Get(8)
	require.True(t, ok)
	require.Nil(t, view.Leader)
	require.Equal(t, regionpkg.Follower, view.Reporters[0].Role)
}

func TestRegionSweepPrunesIndex(t *testing.T) {
	reg, index := newIndexedRegistry()
	now := time.Unix(1_700_000_000, 0)

	reg.Upsert(peer(1), snapshot(report(1, true, 7)), now)
	reg.Upsert(peer(2), snapshot(report(2, false, 7)), now.Add(2*time.Second))

	reg.Sweep(now.Add(4 * time.Second))
	_, _, ok := index.LeaderOf(7)
	require.False(t, ok)
	view, ok := index.Get(7)
	require.True(t, ok)
	require.Equal(t, peer(2), view.Reporters[0].Peer)
}

func TestRegionListPagesInOrder(t *testing.T) {
	reg, index := newIndexedRegistry()
	now := time.Now()

	reg.Upsert(peer(1), snapshot(report(1, true, 9, 3, 11)), now)
	reg.Upsert(peer(2), snapshot(report(2, false, 5, 3)), now)

	all := index.List(0, 0)
	ids := make([]regionpkg.ID, 0, len(all))
	for _, v := range all {
		ids = append(ids, v.ID)
	}
	require.Equal(t, []regionpkg.ID{3, 5, 9, 11}, ids)

	page := index.List(5, 2)
	require.Len(t, page, 2)
	require.EqualValues(t, 5, page[0].ID)
	require.EqualValues(t, 9, page[1].ID)
}

func TestRegionStats(t *testing.T) {
	reg, index := newIndexedRegistry()
	now := time.Now()

	a := report(1, true, 1, 2)
	a.Regions[0].ApproxSize = 10
	a.Regions[1].ApproxSize = 20
	reg.Upsert(a.Peer, snapshot(a), now)
	b := report(2, true, 2, 3)
	b.Regions[0].ApproxSize = 25
	b.Regions[1].ApproxSize = 5
	reg.Upsert(b.Peer, snapshot(b), now)
	reg.Upsert(peer(3), snapshot(report(3, false, 4)), now)

	stats := index.Stats()
	require.Equal(t, 4, stats.Count)
	require.Equal(t, 1, stats.LeaderlessCount)
	require.Equal(t, 1, stats.ConflictCount)
	// Region 2 counts the most recent leader's estimate.
	require.EqualValues(t, 10+25+5, stats.StorageSize)
	require.Equal(t, 1, stats.PeerLeaderCount[1])
	require.Equal(t, 2, stats.PeerLeaderCount[2])
	require.Equal(t, 2, stats.PeerReplicaCount[1])
	require.Equal(t, 1, stats.PeerReplicaCount[3])
}
