package meta_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"nyxmeta/internal/meta"
	regionpkg "nyxmeta/internal/region"
)

func propertyParameters() *gopter.TestParameters {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	return params
}

// After any sequence of reports from one peer the registry holds exactly the
// last one, never a merge.
func TestPropertyLatestWins(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("registry reflects the last report", prop.ForAll(
		func(rcus []int64, regionCounts []int) bool {
			n := len(rcus)
			if len(regionCounts) < n {
				n = len(regionCounts)
			}
			if n == 0 {
				return true
			}
			reg := meta.NewNodeRegistry(meta.DefaultRegistryOptions(), meta.NewRegionStatIndex(4))
			now := time.Unix(1_700_000_000, 0)
			var last *meta.Report
			for i := 0; i < n; i++ {
				r := report(1, false)
				r.Node.RCUs = rcus[i]
				for j := 0; j < regionCounts[i]; j++ {
					r.Regions = append(r.Regions, meta.RegionStat{RegionID: regionpkg.ID(i*10 + j + 1)})
				}
				reg.Upsert(r.Peer, snapshot(r), now.Add(time.Duration(i)*time.Millisecond))
				last = r
			}
			got, ok := reg.Get(1)
			if !ok || got.Node.RCUs != last.Node.RCUs || len(got.Regions) != len(last.Regions) {
				return false
			}
			for i := range got.Regions {
				if got.Regions[i].RegionID != last.Regions[i].RegionID {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 1<<40)),
		gen.SliceOf(gen.IntRange(0, 4)),
	))

	properties.TestingRun(t)
}

// A non-leader report carrying replica stats never mutates shared state.
func TestPropertyLeadershipInvariant(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("non-leader replica stats are rejected", prop.ForAll(
		func(id uint64, replicas []uint64) bool {
			if len(replicas) == 0 {
				return true
			}
			svc := meta.NewService(meta.Options{ClusterID: testCluster, Self: self})
			defer svc.Close()
			svc.Locator().ObserveLeader(self, 1)
			sess := svc.NewSession()

			r := report(id, false, 7)
			for _, rid := range replicas {
				r.Replicas = append(r.Replicas, meta.ReplicaStat{Peer: peer(rid), InSync: true})
			}
			ack := sess.Handle(context.Background(), r)
			return errors.Is(ack.Err, meta.ErrInvariantViolation) &&
				svc.Registry().Len() == 0 &&
				svc.Regions().Len() == 0 &&
				sess.State() == meta.StateActive
		},
		gen.UInt64Range(1, 1000),
		gen.SliceOf(gen.UInt64Range(1001, 2000)),
	))

	properties.TestingRun(t)
}

// The authoritative leader of a region is always the most recent claimant
// among peers whose latest report claims it; conflict means several do.
func TestPropertyRegionLeaderIsMostRecentClaim(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("leaderOf follows the latest claim", prop.ForAll(
		func(steps []int) bool {
			reg, index := newIndexedRegistry()
			now := time.Now()
			claiming := make(map[uint64]int)
			for i, step := range steps {
				id := uint64(step/2 + 1)
				leader := step%2 == 1
				reg.Upsert(peer(id), snapshot(report(id, leader, 7)), now)
				if leader {
					claiming[id] = i
				} else {
					delete(claiming, id)
				}
			}

			var want uint64
			newest := -1
			for id, at := range claiming {
				if at > newest {
					want, newest = id, at
				}
			}
			got, conflict, ok := index.LeaderOf(7)
			if len(claiming) == 0 {
				return !ok
			}
			return ok && got.ID == want && conflict == (len(claiming) > 1)
		},
		gen.SliceOf(gen.IntRange(0, 9)),
	))

	properties.TestingRun(t)
}
