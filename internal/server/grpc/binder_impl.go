package grpcserver

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"nyxmeta/internal/meta"
	metagrpc "nyxmeta/internal/meta/grpc"
)

// DefaultBinder registers the meta heartbeat and query service.
type DefaultBinder struct {
	Logger *zap.Logger
}

func (b DefaultBinder) Register(s grpc.ServiceRegistrar, svc *meta.Service) {
	if svc == nil {
		return
	}
	metagrpc.Register(s, svc, b.Logger)
}
