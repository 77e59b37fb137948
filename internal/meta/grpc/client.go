package metagrpc

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"nyxmeta/internal/meta"
	api "nyxmeta/pkg/api"
)

// Client talks to one meta replica.
type Client struct {
	target    string
	clusterID uint64
	conn      *grpc.ClientConn
	client    api.MetaClient
}

// NewClient connects lazily to target. Without options the connection is
// plaintext and traced.
func NewClient(target string, clusterID uint64, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		)
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{target: target, clusterID: clusterID, conn: conn, client: api.NewMetaClient(conn)}, nil
}

func (c *Client) Target() string {
	return c.target
}

func (c *Client) requestHeader() *api.RequestHeader {
	return &api.RequestHeader{ProtocolVersion: api.ProtocolVersion, ClusterId: c.clusterID}
}

// AskLeader returns the leader known to the replica. An unresolved leader
// yields meta.ErrNoLeaderKnown.
func (c *Client) AskLeader(ctx context.Context) (meta.Peer, error) {
	resp, err := c.client.AskLeader(ctx, &api.AskLeaderRequest{Header: c.requestHeader()})
	if err != nil {
		return meta.Peer{}, err
	}
	if err := meta.ErrorFromHeader(resp.Header); err != nil {
		return meta.Peer{}, err
	}
	if resp.Leader == nil {
		return meta.Peer{}, meta.ErrNoLeaderKnown
	}
	return meta.PeerFromProto(resp.Leader), nil
}

// ListNodes returns the live registry and whether the answering replica was
// leader when it answered.
func (c *Client) ListNodes(ctx context.Context) ([]*api.NodeInfo, bool, error) {
	resp, err := c.client.ListNodes(ctx, &api.ListNodesRequest{Header: c.requestHeader()})
	if err != nil {
		return nil, false, err
	}
	authoritative, err := readHeader(resp.Header)
	return resp.Nodes, authoritative, err
}

func (c *Client) GetRegion(ctx context.Context, id uint64) (*api.RegionInfo, bool, error) {
	resp, err := c.client.GetRegion(ctx, &api.GetRegionRequest{Header: c.requestHeader(), RegionId: id})
	if err != nil {
		return nil, false, err
	}
	authoritative, err := readHeader(resp.Header)
	return resp.Region, authoritative, err
}

func (c *Client) ListRegions(ctx context.Context, after uint64, limit int32) ([]*api.RegionInfo, bool, error) {
	resp, err := c.client.ListRegions(ctx, &api.ListRegionsRequest{Header: c.requestHeader(), After: after, Limit: limit})
	if err != nil {
		return nil, false, err
	}
	authoritative, err := readHeader(resp.Header)
	return resp.Regions, authoritative, err
}

// readHeader splits a read answer's header into authority and hard errors.
// NotLeader is reported as a non-authoritative answer, not a failure.
func readHeader(h *api.ResponseHeader) (bool, error) {
	err := meta.ErrorFromHeader(h)
	if err == nil {
		return true, nil
	}
	if meta.IsNotLeaderError(err) {
		return false, nil
	}
	return false, err
}

// Heartbeat opens a heartbeat stream.
func (c *Client) Heartbeat(ctx context.Context) (api.Meta_HeartbeatClient, error) {
	return c.client.Heartbeat(ctx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
