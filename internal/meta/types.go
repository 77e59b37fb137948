package meta

import (
	"fmt"
	"time"

	regionpkg "nyxmeta/internal/region"
)

// Peer identifies a data node: an opaque id plus its network address.
type Peer struct {
	ID   uint64
	Addr string
}

func (p Peer) String() string {
	return fmt.Sprintf("%d@%s", p.ID, p.Addr)
}

// IsZero reports whether the peer carries no identity.
func (p Peer) IsZero() bool {
	return p.ID == 0 && p.Addr == ""
}

// Attributes is an open string map. Unknown keys are kept verbatim.
type Attributes map[string]string

// Clone returns an independent copy; nil stays nil.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	cp := make(Attributes, len(a))
	for k, v := range a {
		cp[k] = v
	}
	return cp
}

// NodeStat holds node-level counters and gauges for one reporting interval.
type NodeStat struct {
	RCUs        int64
	WCUs        int64
	TableCount  int64
	RegionCount int64
	CPUUsage    float64
	Load        float64
	ReadIORate  float64
	WriteIORate float64
	Attrs       Attributes
}

func (s NodeStat) clone() NodeStat {
	s.Attrs = s.Attrs.Clone()
	return s
}

// RegionStat holds the statistics a node reports for one hosted region.
type RegionStat struct {
	RegionID   regionpkg.ID
	TableName  string
	RCUs       int64
	WCUs       int64
	ApproxSize int64
	ApproxRows int64
	Attrs      Attributes
}

func (s RegionStat) clone() RegionStat {
	s.Attrs = s.Attrs.Clone()
	return s
}

// ReplicaStat describes a follower of the regions led by the reporting node.
type ReplicaStat struct {
	Peer      Peer
	InSync    bool
	IsLearner bool
}

// RequestHeader is the header attached to inbound reports and queries.
type RequestHeader struct {
	ClusterID uint64
	MemberID  uint64
	TraceID   string
}

// Report is one heartbeat message; it is consumed once and never persisted.
type Report struct {
	Header   RequestHeader
	Peer     Peer
	IsLeader bool
	Interval time.Duration
	Node     NodeStat
	Regions  []RegionStat
	Replicas []ReplicaStat
}

// Instruction is an opaque payload queued by the external scheduler.
type Instruction []byte

// Ack is the acknowledgement emitted for one Report.
type Ack struct {
	ClusterID uint64
	TraceID   string
	// Err is nil for an accepted authoritative report. It wraps one of the
	// sentinel errors of this package otherwise.
	Err           error
	Authoritative bool
	LeaderHint    *Peer
	Instructions  []Instruction
}

// NodeSnapshot is the latest accepted report of a peer as held by the registry.
type NodeSnapshot struct {
	Peer          Peer
	IsLeader      bool
	Interval      time.Duration
	Node          NodeStat
	Regions       []RegionStat
	Replicas      []ReplicaStat
	Authoritative bool
	UpdatedAt     time.Time
	Deadline      time.Time
	// Seq orders upserts across the whole registry.
	Seq uint64
}

// Clone returns a deep copy so callers never share slices or maps with the registry.
func (s *NodeSnapshot) Clone() NodeSnapshot {
	if s == nil {
		return NodeSnapshot{}
	}
	cp := *s
	cp.Node = s.Node.clone()
	if s.Regions != nil {
		cp.Regions = make([]RegionStat, len(s.Regions))
		for i, r := range s.Regions {
			cp.Regions[i] = r.clone()
		}
	}
	if s.Replicas != nil {
		cp.Replicas = append([]ReplicaStat(nil), s.Replicas...)
	}
	return cp
}

// SnapshotFromReport builds the registry snapshot for an accepted report. The
// result shares slices with r; NodeRegistry.Upsert copies before storing.
func SnapshotFromReport(r *Report) NodeSnapshot {
	return NodeSnapshot{
		Peer:     r.Peer,
		IsLeader: r.IsLeader,
		Interval: r.Interval,
		Node:     r.Node,
		Regions:  r.Regions,
		Replicas: r.Replicas,
	}
}
