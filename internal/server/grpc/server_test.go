package grpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"nyxmeta/internal/meta"
	metagrpc "nyxmeta/internal/meta/grpc"
)

func TestServerHealthService(t *testing.T) {
	srv := New(Config{Address: "127.0.0.1:0"}, nil, nil, zaptest.NewLogger(t), grpc.WaitForHandlers(true))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	addr := srv.Addr().String()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	hc := grpc_health_v1.NewHealthClient(conn)
	resp, err := hc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	cancel()
	require.Eventually(t, func() bool {
		_, err := hc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
		st, ok := status.FromError(err)
		return err != nil && ok && st.Code() == codes.Unavailable
	}, 3*time.Second, 20*time.Millisecond)
}

func TestServerEmptyAddress(t *testing.T) {
	srv := New(Config{}, nil, nil, nil)
	require.Error(t, srv.Start(context.Background()))
}

func TestDefaultBinderServesMeta(t *testing.T) {
	self := meta.Peer{ID: 1, Addr: "127.0.0.1:2379"}
	svc := meta.NewService(meta.Options{ClusterID: 3, Self: self})
	defer svc.Close()
	svc.Locator().ObserveLeader(self, 1)

	logger := zaptest.NewLogger(t)
	srv := NewDefault(Config{Address: "127.0.0.1:0"}, svc, logger, grpc.WaitForHandlers(true))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	defer srv.Stop()

	client, err := metagrpc.NewClient(srv.Addr().String(), 3)
	require.NoError(t, err)
	defer client.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer callCancel()
	leader, err := client.AskLeader(callCtx)
	require.NoError(t, err)
	require.Equal(t, self, leader)
}

func TestStopEndsOpenHeartbeatStreams(t *testing.T) {
	self := meta.Peer{ID: 1, Addr: "127.0.0.1:2379"}
	svc := meta.NewService(meta.Options{ClusterID: 3, Self: self})
	svc.Locator().ObserveLeader(self, 1)

	logger := zaptest.NewLogger(t)
	srv := NewDefault(Config{Address: "127.0.0.1:0", ShutdownTimeout: 2 * time.Second}, svc, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))

	client, err := metagrpc.NewClient(srv.Addr().String(), 3)
	require.NoError(t, err)
	defer client.Close()

	stream, err := client.Heartbeat(context.Background())
	require.NoError(t, err)
	report := &meta.Report{
		Header: meta.RequestHeader{ClusterID: 3},
		Peer:   meta.Peer{ID: 9, Addr: "10.0.0.9:20160"},
	}
	require.NoError(t, stream.Send(meta.ReportToProto(report)))
	_, err = stream.Recv()
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		cancel()
		srv.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop waited on an open heartbeat stream")
	}
	_, err = stream.Recv()
	require.Error(t, err)
	// Registry cleanup is still left to the sweep.
	_, ok := svc.Registry().Get(9)
	require.True(t, ok)
}
