package meta_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nyxmeta/internal/meta"
	api "nyxmeta/pkg/api"
)

func TestReportProtoConversion(t *testing.T) {
	r := report(1, true, 7)
	r.Header.TraceID = "t-1"
	r.Interval = 1500 * time.Millisecond
	r.Node.CPUUsage = 0.75
	r.Node.Attrs = meta.Attributes{"future-key": "kept"}
	r.Regions[0].ApproxRows = 100
	r.Replicas = []meta.ReplicaStat{{Peer: peer(2), InSync: true}}

	req := meta.ReportToProto(r)
	require.EqualValues(t, testCluster, req.Header.ClusterId)
	require.EqualValues(t, 1500, req.ReportIntvMs)

	back := meta.ReportFromProto(req)
	require.Equal(t, r, back)
}

func TestReportFromProtoToleratesMissingFields(t *testing.T) {
	r := meta.ReportFromProto(&api.HeartbeatRequest{
		RegionStats:  []*api.RegionStat{nil, {RegionId: 3}},
		ReplicaStats: []*api.ReplicaStat{nil},
	})
	require.Zero(t, r.Header.ClusterID)
	require.Len(t, r.Regions, 1)
	require.Len(t, r.Replicas, 1)
	require.ErrorIs(t, meta.ValidateReport(r, nil), meta.ErrInvariantViolation)
	require.Nil(t, meta.ReportFromProto(nil))
}

func TestReportFromProtoSaturatesInterval(t *testing.T) {
	req := meta.ReportToProto(report(1, false))
	req.ReportIntvMs = math.MaxInt64
	r := meta.ReportFromProto(req)
	require.Positive(t, r.Interval)
	require.NoError(t, meta.ValidateReport(r, nil))

	reg := meta.NewNodeRegistry(meta.DefaultRegistryOptions(), nil)
	stored := reg.Upsert(r.Peer, meta.SnapshotFromReport(r), time.Now())
	require.Equal(t, meta.DefaultRegistryOptions().MaxInterval, stored.Interval)

	req.ReportIntvMs = math.MinInt64
	require.ErrorIs(t, meta.ValidateReport(meta.ReportFromProto(req), nil), meta.ErrInvariantViolation)
}

func TestAckProtoConversion(t *testing.T) {
	hint := peer(101)
	ack := &meta.Ack{ClusterID: testCluster, TraceID: "t-2", Err: meta.ErrNotLeader, LeaderHint: &hint}
	resp := meta.AckToProto(ack)
	require.Equal(t, api.ErrorCode_NOT_LEADER, resp.Header.GetCode())

	back := meta.AckFromProto(resp)
	require.ErrorIs(t, back.Err, meta.ErrNotLeader)
	require.Equal(t, hint, *back.LeaderHint)
	require.Equal(t, "t-2", back.TraceID)

	ok := meta.AckFromProto(meta.AckToProto(&meta.Ack{ClusterID: testCluster, Authoritative: true, Instructions: []meta.Instruction{[]byte("x")}}))
	require.NoError(t, ok.Err)
	require.Equal(t, []meta.Instruction{meta.Instruction("x")}, ok.Instructions)
}

func TestErrorHeaderRoundTrip(t *testing.T) {
	for _, sentinel := range []error{meta.ErrClusterMismatch, meta.ErrNotLeader, meta.ErrInvariantViolation, meta.ErrNoLeaderKnown} {
		h := meta.ResponseHeader(testCluster, "", sentinel)
		require.ErrorIs(t, meta.ErrorFromHeader(h), sentinel)
	}
	require.NoError(t, meta.ErrorFromHeader(meta.ResponseHeader(testCluster, "", nil)))

	internal := meta.ErrorFromHeader(meta.ResponseHeader(testCluster, "", errors.New("boom")))
	require.Error(t, internal)
	require.Contains(t, internal.Error(), "INTERNAL")
}
