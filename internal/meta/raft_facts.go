package meta

import (
	etcdraft "go.etcd.io/etcd/raft/v3"
)

// MemberResolver maps a raft member id onto its control-plane address.
type MemberResolver func(id uint64) (Peer, bool)

// FactFromRaftStatus converts an etcd raft status into a LeaderFact. A leader
// id the resolver cannot map is treated as unknown rather than guessed.
func FactFromRaftStatus(status etcdraft.BasicStatus, resolve MemberResolver) LeaderFact {
	fact := LeaderFact{
		Term:         status.Term,
		SelfIsLeader: status.RaftState == etcdraft.StateLeader,
	}
	if status.Lead == etcdraft.None {
		fact.SelfIsLeader = false
		return fact
	}
	if resolve != nil {
		if peer, ok := resolve(status.Lead); ok {
			fact.Leader = &peer
		}
	}
	return fact
}

// ObserveRaft feeds a raft status into the locator.
func (l *LeaderLocator) ObserveRaft(status etcdraft.BasicStatus, resolve MemberResolver) bool {
	return l.Observe(FactFromRaftStatus(status, resolve))
}
