package meta_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"nyxmeta/internal/meta"
)

func TestValidateReport(t *testing.T) {
	require.NoError(t, meta.ValidateReport(report(1, false, 1, 2), nil))

	leader := report(1, true, 1)
	leader.Replicas = []meta.ReplicaStat{{Peer: peer(2), InSync: true}, {Peer: peer(3), IsLearner: true}}
	require.NoError(t, meta.ValidateReport(leader, nil))

	bound := peer(1)
	require.NoError(t, meta.ValidateReport(report(1, false), &bound))

	cases := []struct {
		name   string
		mutate func(r *meta.Report)
	}{
		{"nan cpu", func(r *meta.Report) { r.Node.CPUUsage = math.NaN() }},
		{"inf load", func(r *meta.Report) { r.Node.Load = math.Inf(1) }},
		{"negative io", func(r *meta.Report) { r.Node.WriteIORate = -0.5 }},
		{"zero peer id", func(r *meta.Report) { r.Peer.ID = 0 }},
		{"zero region id", func(r *meta.Report) { r.Regions[1].RegionID = 0 }},
		{"rcu overflow", func(r *meta.Report) {
			r.Regions[0].RCUs = math.MaxInt64
			r.Regions[1].RCUs = 1
		}},
		{"duplicate replica", func(r *meta.Report) {
			r.IsLeader = true
			r.Replicas = []meta.ReplicaStat{{Peer: peer(2)}, {Peer: peer(2)}}
		}},
		{"replica without id", func(r *meta.Report) {
			r.IsLeader = true
			r.Replicas = []meta.ReplicaStat{{}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := report(1, false, 1, 2)
			tc.mutate(r)
			require.ErrorIs(t, meta.ValidateReport(r, nil), meta.ErrInvariantViolation)
		})
	}

	require.ErrorIs(t, meta.ValidateReport(report(2, false), &bound), meta.ErrInvariantViolation)
	require.ErrorIs(t, meta.ValidateReport(nil, nil), meta.ErrInvariantViolation)
}
