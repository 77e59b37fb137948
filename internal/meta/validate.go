package meta

import (
	"math"

	regionpkg "nyxmeta/internal/region"
)

// ValidateReport checks the invariants a report must satisfy before it may
// touch shared state. bound is the peer already assigned to the session, or
// nil before the first accepted identity.
func ValidateReport(r *Report, bound *Peer) error {
	if r == nil {
		return violationf("empty report")
	}
	if r.Peer.ID == 0 || r.Peer.Addr == "" {
		return violationf("sender peer %s is incomplete", r.Peer)
	}
	if bound != nil && r.Peer != *bound {
		return violationf("sender %s differs from session peer %s", r.Peer, *bound)
	}
	if r.Interval < 0 {
		return violationf("negative reporting interval %s", r.Interval)
	}
	if !r.IsLeader && len(r.Replicas) > 0 {
		return violationf("non-leader %s reported %d replica stats", r.Peer, len(r.Replicas))
	}
	if err := validateNodeStat(&r.Node); err != nil {
		return err
	}
	if err := validateRegionStats(r.Regions); err != nil {
		return err
	}
	return validateReplicaStats(r.Peer, r.Replicas)
}

func validateNodeStat(s *NodeStat) error {
	counters := []struct {
		name  string
		value int64
	}{
		{"rcus", s.RCUs},
		{"wcus", s.WCUs},
		{"tableCount", s.TableCount},
		{"regionCount", s.RegionCount},
	}
	for _, c := range counters {
		if c.value < 0 {
			return violationf("node %s is negative (%d)", c.name, c.value)
		}
	}
	gauges := []struct {
		name  string
		value float64
	}{
		{"cpuUsage", s.CPUUsage},
		{"load", s.Load},
		{"readIoRate", s.ReadIORate},
		{"writeIoRate", s.WriteIORate},
	}
	for _, g := range gauges {
		if math.IsNaN(g.value) || math.IsInf(g.value, 0) {
			return violationf("node %s overflowed (%v)", g.name, g.value)
		}
		if g.value < 0 {
			return violationf("node %s is negative (%v)", g.name, g.value)
		}
	}
	return nil
}

func validateRegionStats(stats []RegionStat) error {
	seen := make(map[regionpkg.ID]struct{}, len(stats))
	var totals [4]int64
	for _, s := range stats {
		if s.RegionID == 0 {
			return violationf("region stat without region id")
		}
		if _, dup := seen[s.RegionID]; dup {
			return violationf("region %d reported twice", s.RegionID)
		}
		seen[s.RegionID] = struct{}{}
		values := [4]int64{s.RCUs, s.WCUs, s.ApproxSize, s.ApproxRows}
		for i, v := range values {
			if v < 0 {
				return violationf("region %d has negative %s (%d)", s.RegionID, regionCounterNames[i], v)
			}
			if totals[i] > math.MaxInt64-v {
				return violationf("region %s total overflows int64", regionCounterNames[i])
			}
			totals[i] += v
		}
	}
	return nil
}

var regionCounterNames = [4]string{"rcus", "wcus", "approxSize", "approxRows"}

func validateReplicaStats(sender Peer, stats []ReplicaStat) error {
	seen := make(map[uint64]struct{}, len(stats))
	for _, s := range stats {
		if s.Peer.ID == 0 {
			return violationf("replica stat without peer id")
		}
		if s.Peer.ID == sender.ID {
			return violationf("replica stat names the sender %s", sender)
		}
		if _, dup := seen[s.Peer.ID]; dup {
			return violationf("replica %d reported twice", s.Peer.ID)
		}
		seen[s.Peer.ID] = struct{}{}
	}
	return nil
}
