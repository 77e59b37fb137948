package meta_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nyxmeta/internal/meta"
)

func TestSweeperExpiresSilentNodes(t *testing.T) {
	rec := newCountingRecorder()
	svc := newTestService(t, meta.Options{
		Recorder: rec,
		Registry: meta.RegistryOptions{TTLMultiplier: 2, DefaultInterval: 10 * time.Millisecond},
	})

	r := report(1, false, 7)
	r.Interval = 10 * time.Millisecond
	svc.Registry().Upsert(r.Peer, snapshot(r), time.Now())

	sweeper := svc.NewSweeper(5 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.Registry().Len() == 0 }, 5*time.Second, 5*time.Millisecond)
	require.Zero(t, svc.Regions().Len())
	require.Eventually(t, func() bool { return rec.swept.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSweepOnceKeepsLiveNodes(t *testing.T) {
	reg := meta.NewNodeRegistry(meta.DefaultRegistryOptions(), nil)
	reg.Upsert(peer(1), snapshot(report(1, false)), time.Now())

	sweeper := meta.NewSweeper(reg, 0, nil, zaptest.NewLogger(t))
	require.Empty(t, sweeper.SweepOnce())
	require.Equal(t, 1, reg.Len())
}
