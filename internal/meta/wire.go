package meta

import (
	"math"
	"time"

	regionpkg "nyxmeta/internal/region"
	api "nyxmeta/pkg/api"
)

// PeerToProto converts a peer; the zero peer maps to nil.
func PeerToProto(p Peer) *api.Peer {
	if p.IsZero() {
		return nil
	}
	return &api.Peer{Id: p.ID, Addr: p.Addr}
}

func PeerFromProto(p *api.Peer) Peer {
	if p == nil {
		return Peer{}
	}
	return Peer{ID: p.Id, Addr: p.Addr}
}

func nodeStatToProto(s NodeStat) *api.NodeStat {
	return &api.NodeStat{
		Rcus:        s.RCUs,
		Wcus:        s.WCUs,
		TableCount:  s.TableCount,
		RegionCount: s.RegionCount,
		CpuUsage:    s.CPUUsage,
		Load:        s.Load,
		ReadIoRate:  s.ReadIORate,
		WriteIoRate: s.WriteIORate,
		Attrs:       s.Attrs.Clone(),
	}
}

func nodeStatFromProto(s *api.NodeStat) NodeStat {
	if s == nil {
		return NodeStat{}
	}
	return NodeStat{
		RCUs:        s.Rcus,
		WCUs:        s.Wcus,
		TableCount:  s.TableCount,
		RegionCount: s.RegionCount,
		CPUUsage:    s.CpuUsage,
		Load:        s.Load,
		ReadIORate:  s.ReadIoRate,
		WriteIORate: s.WriteIoRate,
		Attrs:       Attributes(s.Attrs).Clone(),
	}
}

func regionStatToProto(s RegionStat) *api.RegionStat {
	return &api.RegionStat{
		RegionId:   uint64(s.RegionID),
		TableName:  s.TableName,
		Rcus:       s.RCUs,
		Wcus:       s.WCUs,
		ApproxSize: s.ApproxSize,
		ApproxRows: s.ApproxRows,
		Attrs:      s.Attrs.Clone(),
	}
}

func regionStatFromProto(s *api.RegionStat) RegionStat {
	return RegionStat{
		RegionID:   regionpkg.ID(s.RegionId),
		TableName:  s.TableName,
		RCUs:       s.Rcus,
		WCUs:       s.Wcus,
		ApproxSize: s.ApproxSize,
		ApproxRows: s.ApproxRows,
		Attrs:      Attributes(s.Attrs).Clone(),
	}
}

func replicaStatsToProto(stats []ReplicaStat) []*api.ReplicaStat {
	if len(stats) == 0 {
		return nil
	}
	out := make([]*api.ReplicaStat, len(stats))
	for i, s := range stats {
		out[i] = &api.ReplicaStat{Peer: &api.Peer{Id: s.Peer.ID, Addr: s.Peer.Addr}, InSync: s.InSync, IsLearner: s.IsLearner}
	}
	return out
}

func replicaStatsFromProto(stats []*api.ReplicaStat) []ReplicaStat {
	if len(stats) == 0 {
		return nil
	}
	out := make([]ReplicaStat, 0, len(stats))
	for _, s := range stats {
		if s == nil {
			out = append(out, ReplicaStat{})
			continue
		}
		out = append(out, ReplicaStat{Peer: PeerFromProto(s.Peer), InSync: s.InSync, IsLearner: s.IsLearner})
	}
	return out
}

// ReportFromProto decodes a heartbeat request. Nil region entries are dropped;
// a nil replica entry decodes to a peer-less stat that validation rejects.
func ReportFromProto(req *api.HeartbeatRequest) *Report {
	if req == nil {
		return nil
	}
	r := &Report{
		Peer:     PeerFromProto(req.Peer),
		IsLeader: req.IsLeader,
		Interval: intervalFromMillis(req.ReportIntvMs),
		Node:     nodeStatFromProto(req.NodeStat),
		Replicas: replicaStatsFromProto(req.ReplicaStats),
	}
	if h := req.Header; h != nil {
		r.Header = RequestHeader{ClusterID: h.ClusterId, MemberID: h.MemberId, TraceID: h.TraceId}
	}
	if len(req.RegionStats) > 0 {
		r.Regions = make([]RegionStat, 0, len(req.RegionStats))
		for _, s := range req.RegionStats {
			if s != nil {
				r.Regions = append(r.Regions, regionStatFromProto(s))
			}
		}
	}
	return r
}

const maxIntervalMillis = math.MaxInt64 / int64(time.Millisecond)

// intervalFromMillis saturates instead of wrapping; the registry clamps the
// result to its configured maximum.
func intervalFromMillis(ms int64) time.Duration {
	switch {
	case ms > maxIntervalMillis:
		return time.Duration(math.MaxInt64)
	case ms < -maxIntervalMillis:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// ReportToProto encodes a report for the node-side client.
func ReportToProto(r *Report) *api.HeartbeatRequest {
	req := &api.HeartbeatRequest{
		Header: &api.RequestHeader{
			ProtocolVersion: api.ProtocolVersion,
			ClusterId:       r.Header.ClusterID,
			MemberId:        r.Header.MemberID,
			TraceId:         r.Header.TraceID,
		},
		Peer:         &api.Peer{Id: r.Peer.ID, Addr: r.Peer.Addr},
		IsLeader:     r.IsLeader,
		ReportIntvMs: r.Interval.Milliseconds(),
		NodeStat:     nodeStatToProto(r.Node),
		ReplicaStats: replicaStatsToProto(r.Replicas),
	}
	for _, s := range r.Regions {
		req.RegionStats = append(req.RegionStats, regionStatToProto(s))
	}
	return req
}

// ResponseHeader builds a header for err.
func ResponseHeader(clusterID uint64, traceID string, err error) *api.ResponseHeader {
	h := &api.ResponseHeader{ProtocolVersion: api.ProtocolVersion, ClusterId: clusterID, TraceId: traceID}
	if err != nil {
		h.Error = &api.Error{Code: ErrorCode(err), Message: err.Error()}
	}
	return h
}

func AckToProto(a *Ack) *api.HeartbeatResponse {
	resp := &api.HeartbeatResponse{
		Header:        ResponseHeader(a.ClusterID, a.TraceID, a.Err),
		Authoritative: a.Authoritative,
	}
	if a.LeaderHint != nil {
		resp.LeaderHint = PeerToProto(*a.LeaderHint)
	}
	for _, ins := range a.Instructions {
		resp.Instructions = append(resp.Instructions, []byte(ins))
	}
	return resp
}

// AckFromProto decodes an acknowledgement on the node side.
func AckFromProto(resp *api.HeartbeatResponse) *Ack {
	if resp == nil {
		return nil
	}
	a := &Ack{
		ClusterID:     resp.Header.GetClusterId(),
		Err:           ErrorFromHeader(resp.Header),
		Authoritative: resp.Authoritative,
	}
	if resp.Header != nil {
		a.TraceID = resp.Header.TraceId
	}
	if resp.LeaderHint != nil {
		hint := PeerFromProto(resp.LeaderHint)
		a.LeaderHint = &hint
	}
	for _, ins := range resp.Instructions {
		a.Instructions = append(a.Instructions, Instruction(ins))
	}
	return a
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// NodeInfoToProto converts a registry snapshot for ListNodes.
func NodeInfoToProto(s NodeSnapshot) *api.NodeInfo {
	info := &api.NodeInfo{
		Peer:          PeerToProto(s.Peer),
		IsLeader:      s.IsLeader,
		ReportIntvMs:  s.Interval.Milliseconds(),
		NodeStat:      nodeStatToProto(s.Node),
		ReplicaStats:  replicaStatsToProto(s.Replicas),
		UpdatedAtMs:   toMillis(s.UpdatedAt),
		DeadlineMs:    toMillis(s.Deadline),
		Authoritative: s.Authoritative,
	}
	for _, r := range s.Regions {
		info.RegionStats = append(info.RegionStats, regionStatToProto(r))
	}
	return info
}

// RegionInfoToProto converts a region view for GetRegion and ListRegions.
func RegionInfoToProto(v RegionView) *api.RegionInfo {
	info := &api.RegionInfo{
		RegionId:  uint64(v.ID),
		TableName: v.TableName,
		Followers: replicaStatsToProto(v.Followers),
		Conflict:  v.Conflict,
	}
	if v.Leader != nil {
		info.Leader = PeerToProto(*v.Leader)
	}
	for _, r := range v.Reporters {
		info.Reporters = append(info.Reporters, &api.RegionReporter{
			Peer:         PeerToProto(r.Peer),
			Role:         r.Role.String(),
			Stat:         regionStatToProto(r.Stat),
			ReportedAtMs: toMillis(r.ReportedAt),
		})
	}
	for _, c := range v.Claimants {
		info.Claimants = append(info.Claimants, PeerToProto(c))
	}
	return info
}
