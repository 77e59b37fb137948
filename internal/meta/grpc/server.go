package metagrpc

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"nyxmeta/internal/meta"
	regionpkg "nyxmeta/internal/region"
	api "nyxmeta/pkg/api"
)

// Server adapts meta.Service to the Meta gRPC API.
type Server struct {
	api.UnimplementedMetaServer
	service *meta.Service
	logger  *zap.Logger
}

func NewServer(service *meta.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{service: service, logger: logger}
}

// Register exposes service on server.
func Register(server grpc.ServiceRegistrar, service *meta.Service, logger *zap.Logger) {
	api.RegisterMetaServer(server, NewServer(service, logger))
}

// Heartbeat runs one session per stream. The session stops when either the
// stream or the service shuts down.
func (s *Server) Heartbeat(stream api.Meta_HeartbeatServer) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	stop := context.AfterFunc(s.service.Context(), cancel)
	defer stop()

	sess := s.service.NewSession()
	err := sess.Run(ctx, reportStream{stream})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, meta.ErrClusterMismatch), errors.Is(err, meta.ErrInvariantViolation):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		s.logger.Debug("heartbeat stream ended", zap.String("session", sess.ID()), zap.Error(err))
		return status.Error(codes.Unavailable, err.Error())
	}
}

type reportStream struct {
	stream api.Meta_HeartbeatServer
}

func (r reportStream) Recv() (*meta.Report, error) {
	req, err := r.stream.Recv()
	if err != nil {
		return nil, err
	}
	return meta.ReportFromProto(req), nil
}

func (r reportStream) Send(ack *meta.Ack) error {
	return r.stream.Send(meta.AckToProto(ack))
}

func (s *Server) header(req *api.RequestHeader, err error) *api.ResponseHeader {
	return meta.ResponseHeader(s.service.ClusterID(), req.GetTraceId(), err)
}

func (s *Server) AskLeader(ctx context.Context, req *api.AskLeaderRequest) (*api.AskLeaderResponse, error) {
	if err := s.service.CheckCluster(req.Header.GetClusterId()); err != nil {
		return &api.AskLeaderResponse{Header: s.header(req.Header, err)}, nil
	}
	leader, err := s.service.Locator().AnswerLeaderQuery()
	resp := &api.AskLeaderResponse{Header: s.header(req.Header, err)}
	if err == nil {
		resp.Leader = meta.PeerToProto(leader)
	}
	return resp, nil
}

func (s *Server) ListNodes(ctx context.Context, req *api.ListNodesRequest) (*api.ListNodesResponse, error) {
	if err := s.service.CheckCluster(req.Header.GetClusterId()); err != nil {
		return &api.ListNodesResponse{Header: s.header(req.Header, err)}, nil
	}
	snaps := s.service.Registry().Snapshots()
	resp := &api.ListNodesResponse{
		Header: s.header(req.Header, s.standby()),
		Nodes:  make([]*api.NodeInfo, 0, len(snaps)),
	}
	for _, snap := range snaps {
		resp.Nodes = append(resp.Nodes, meta.NodeInfoToProto(snap))
	}
	return resp, nil
}

func (s *Server) GetRegion(ctx context.Context, req *api.GetRegionRequest) (*api.GetRegionResponse, error) {
	if err := s.service.CheckCluster(req.Header.GetClusterId()); err != nil {
		return &api.GetRegionResponse{Header: s.header(req.Header, err)}, nil
	}
	view, ok := s.service.Regions().Get(regionpkg.ID(req.RegionId))
	if !ok {
		return nil, status.Error(codes.NotFound, "region not found")
	}
	return &api.GetRegionResponse{
		Header: s.header(req.Header, s.standby()),
		Region: meta.RegionInfoToProto(view),
	}, nil
}

// ListRegions pages regions in id order; After is exclusive and zero starts
// from the beginning.
func (s *Server) ListRegions(ctx context.Context, req *api.ListRegionsRequest) (*api.ListRegionsResponse, error) {
	if err := s.service.CheckCluster(req.Header.GetClusterId()); err != nil {
		return &api.ListRegionsResponse{Header: s.header(req.Header, err)}, nil
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}
	var views []meta.RegionView
	switch {
	case req.After == math.MaxUint64:
		// Nothing sorts after the largest id.
	case req.After > 0:
		views = s.service.Regions().List(regionpkg.ID(req.After+1), int(req.Limit))
	default:
		views = s.service.Regions().List(0, int(req.Limit))
	}
	resp := &api.ListRegionsResponse{
		Header:  s.header(req.Header, s.standby()),
		Regions: make([]*api.RegionInfo, 0, len(views)),
	}
	for _, v := range views {
		resp.Regions = append(resp.Regions, meta.RegionInfoToProto(v))
	}
	return resp, nil
}

// standby marks read answers from a non-leader replica as non-authoritative.
func (s *Server) standby() error {
	if s.service.Locator().IsSelfLeader() {
		return nil
	}
	return meta.ErrNotLeader
}
