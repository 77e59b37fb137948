package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"nyxmeta/internal/meta"
)

const defaultShutdownTimeout = 5 * time.Second

// Config holds gRPC server configuration.
type Config struct {
	Address string
	// ShutdownTimeout bounds the graceful stop; open streams are then cut.
	ShutdownTimeout time.Duration
}

// Server hosts the meta service next to the standard health service.
type Server struct {
	cfg    Config
	srv    *grpc.Server
	svc    *meta.Service
	health *health.Server
	logger *zap.Logger
	addr   net.Addr

	stopOnce sync.Once
}

// New constructs a Server. A nil binder registers nothing beyond health.
func New(cfg Config, svc *meta.Service, binder ServiceBinder, logger *zap.Logger, opts ...grpc.ServerOption) *Server {
	if binder == nil {
		binder = noopBinder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := &Server{
		cfg:    cfg,
		srv:    grpc.NewServer(opts...),
		svc:    svc,
		health: health.NewServer(),
		logger: logger,
	}
	binder.Register(s.srv, svc)
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// NewDefault creates a server using the default binder.
func NewDefault(cfg Config, svc *meta.Service, logger *zap.Logger, opts ...grpc.ServerOption) *Server {
	return New(cfg, svc, DefaultBinder{Logger: logger}, logger, opts...)
}

// Start listens on the configured address and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Address == "" {
		return fmt.Errorf("grpc address is empty")
	}
	lis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	s.addr = lis.Addr()
	s.setServing(true)
	go func() {
		<-ctx.Done()
		s.Stop()
		_ = lis.Close()
	}()
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("grpc serve failed", zap.Error(err))
		}
	}()
	s.logger.Info("grpc server listening", zap.Stringer("addr", s.addr))
	return nil
}

// Addr is the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Stop closes the meta service first so heartbeat sessions end, then stops
// the server gracefully. Streams still open after ShutdownTimeout are cut.
// Concurrent callers block until the first stop completes.
func (s *Server) Stop() {
	s.stopOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.setServing(false)
	if s.svc != nil {
		s.svc.Close()
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	stopped := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(stopped)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		s.logger.Warn("graceful stop timed out, closing remaining streams", zap.Duration("timeout", timeout))
		s.srv.Stop()
		<-stopped
	}
}

func (s *Server) setServing(serving bool) {
	if s.health == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// ServiceBinder attaches services to the server before it starts.
type ServiceBinder interface {
	Register(grpc.ServiceRegistrar, *meta.Service)
}

type noopBinder struct{}

func (noopBinder) Register(grpc.ServiceRegistrar, *meta.Service) {}
