package meta

import (
	"sync"
	"sync/atomic"
	"time"
)

// LeaderFact is what the consensus collaborator knows about control-plane
// leadership at one point in time.
type LeaderFact struct {
	// Leader is nil while no leader is known (e.g. during an election).
	Leader *Peer
	// SelfIsLeader reports whether this replica holds leadership.
	SelfIsLeader bool
	// Term orders facts. Zero means the source does not track terms.
	Term uint64
}

type leaderState struct {
	fact       LeaderFact
	observedAt time.Time
}

// LeaderLocator caches the latest leader fact. Reads are lock free; updates
// are serialized so term ordering is enforced.
type LeaderLocator struct {
	self  Peer
	state atomic.Pointer[leaderState]

	mu        sync.Mutex
	listeners []func(LeaderFact)
	now       func() time.Time
}

// NewLeaderLocator creates a locator for the replica identified by self.
// Until a fact is observed no leader is known and this replica is not leader.
func NewLeaderLocator(self Peer) *LeaderLocator {
	l := &LeaderLocator{self: self, now: time.Now}
	l.state.Store(&leaderState{})
	return l
}

// Self returns this replica's identity.
func (l *LeaderLocator) Self() Peer {
	return l.self
}

// Observe records a new fact and reports whether it was accepted. A fact
// with a non-zero term lower than the current term is stale and ignored.
func (l *LeaderLocator) Observe(fact LeaderFact) bool {
	if fact.Leader != nil {
		leader := *fact.Leader
		fact.Leader = &leader
	}
	l.mu.Lock()
	cur := l.state.Load()
	if fact.Term != 0 && fact.Term < cur.fact.Term {
		l.mu.Unlock()
		return false
	}
	l.state.Store(&leaderState{fact: fact, observedAt: l.now()})
	listeners := append([]func(LeaderFact){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(fact)
	}
	return true
}

// ObserveLeader records leader as current; self leadership is derived from ids.
func (l *LeaderLocator) ObserveLeader(leader Peer, term uint64) bool {
	return l.Observe(LeaderFact{Leader: &leader, SelfIsLeader: leader.ID == l.self.ID, Term: term})
}

// ClearLeader records that no leader is currently known.
func (l *LeaderLocator) ClearLeader(term uint64) bool {
	return l.Observe(LeaderFact{Term: term})
}

// OnChange registers fn to be called after every accepted fact.
func (l *LeaderLocator) OnChange(fn func(LeaderFact)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// CurrentLeader returns the leader of the latest fact, if any.
func (l *LeaderLocator) CurrentLeader() (Peer, bool) {
	st := l.state.Load()
	if st.fact.Leader == nil {
		return Peer{}, false
	}
	return *st.fact.Leader, true
}

// IsSelfLeader reports whether this replica's view is authoritative right now.
func (l *LeaderLocator) IsSelfLeader() bool {
	return l.state.Load().fact.SelfIsLeader
}

// Fact returns the latest fact and when it was observed.
func (l *LeaderLocator) Fact() (LeaderFact, time.Time) {
	st := l.state.Load()
	return st.fact, st.observedAt
}

// AnswerLeaderQuery returns the current leader or ErrNoLeaderKnown. It never
// guesses: only the latest accepted fact is consulted.
func (l *LeaderLocator) AnswerLeaderQuery() (Peer, error) {
	leader, ok := l.CurrentLeader()
	if !ok {
		return Peer{}, ErrNoLeaderKnown
	}
	return leader, nil
}
