package meta_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	etcdraft "go.etcd.io/etcd/raft/v3"

	"nyxmeta/internal/meta"
)

func TestLeaderLocatorNoFact(t *testing.T) {
	loc := meta.NewLeaderLocator(peer(100))

	_, ok := loc.CurrentLeader()
	require.False(t, ok)
	require.False(t, loc.IsSelfLeader())

	_, err := loc.AnswerLeaderQuery()
	require.ErrorIs(t, err, meta.ErrNoLeaderKnown)
	require.True(t, meta.IsNoLeaderKnownError(err))
}

func TestLeaderLocatorFreshness(t *testing.T) {
	loc := meta.NewLeaderLocator(peer(100))

	require.True(t, loc.ObserveLeader(peer(101), 1))
	got, err := loc.AnswerLeaderQuery()
	require.NoError(t, err)
	require.Equal(t, peer(101), got)
	require.False(t, loc.IsSelfLeader())

	require.True(t, loc.ObserveLeader(peer(100), 2))
	got, err = loc.AnswerLeaderQuery()
	require.NoError(t, err)
	require.Equal(t, peer(100), got)
	require.True(t, loc.IsSelfLeader())

	// A stale term never replaces the newer fact.
	require.False(t, loc.ObserveLeader(peer(101), 1))
	got, _ = loc.AnswerLeaderQuery()
	require.Equal(t, peer(100), got)

	require.True(t, loc.ClearLeader(3))
	_, err = loc.AnswerLeaderQuery()
	require.ErrorIs(t, err, meta.ErrNoLeaderKnown)
	require.False(t, loc.IsSelfLeader())
}

func TestLeaderLocatorUntermedFactsAlwaysApply(t *testing.T) {
	loc := meta.NewLeaderLocator(peer(100))
	require.True(t, loc.ObserveLeader(peer(101), 5))
	require.True(t, loc.ObserveLeader(peer(102), 0))
	got, _ := loc.CurrentLeader()
	require.Equal(t, peer(102), got)
}

func TestLeaderLocatorListeners(t *testing.T) {
	loc := meta.NewLeaderLocator(peer(100))
	var seen []meta.LeaderFact
	loc.OnChange(func(f meta.LeaderFact) { seen = append(seen, f) })

	loc.ObserveLeader(peer(100), 4)
	loc.ObserveLeader(peer(101), 3)

	require.Len(t, seen, 1)
	require.True(t, seen[0].SelfIsLeader)
	require.EqualValues(t, 4, seen[0].Term)
}

func TestLeaderLocatorCopiesFact(t *testing.T) {
	loc := meta.NewLeaderLocator(peer(100))
	leader := peer(101)
	loc.Observe(meta.LeaderFact{Leader: &leader})
	leader.Addr = "elsewhere"

	got, _ := loc.CurrentLeader()
	require.Equal(t, peer(101).Addr, got.Addr)
}

func TestFactFromRaftStatus(t *testing.T) {
	members := map[uint64]meta.Peer{1: peer(100), 2: peer(101)}
	resolve := func(id uint64) (meta.Peer, bool) {
		p, ok := members[id]
		return p, ok
	}

	var st etcdraft.BasicStatus
	st.ID = 1
	st.Lead = 1
	st.RaftState = etcdraft.StateLeader
	st.Term = 6
	fact := meta.FactFromRaftStatus(st, resolve)
	require.True(t, fact.SelfIsLeader)
	require.NotNil(t, fact.Leader)
	require.Equal(t, peer(100), *fact.Leader)
	require.EqualValues(t, 6, fact.Term)

	st.Lead = 2
	st.RaftState = etcdraft.StateFollower
	fact = meta.FactFromRaftStatus(st, resolve)
	require.False(t, fact.SelfIsLeader)
	require.Equal(t, peer(101), *fact.Leader)

	st.Lead = 9
	fact = meta.FactFromRaftStatus(st, resolve)
	require.Nil(t, fact.Leader)

	st.Lead = etcdraft.None
	st.RaftState = etcdraft.StateCandidate
	st.Term = 7
	loc := meta.NewLeaderLocator(peer(100))
	require.True(t, loc.ObserveRaft(st, resolve))
	_, err := loc.AnswerLeaderQuery()
	require.ErrorIs(t, err, meta.ErrNoLeaderKnown)
}
