package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nyxmeta/internal/config"
	"nyxmeta/internal/mailbox"
	"nyxmeta/internal/meta"
	"nyxmeta/internal/observability/logging"
	"nyxmeta/internal/observability/metrics"
	"nyxmeta/internal/observability/tracing"
	grpcserver "nyxmeta/internal/server/grpc"
)

func main() {
	configPath := flag.String("config", "configs/server.example.yaml", "path to server config")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Encoding:    cfg.Log.Encoding,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer); err != nil {
		logger.Error("meta server exited", zap.Error(err))
		os.Exit(1)
	}
}

// run wires the meta service and blocks until ctx is canceled or a
// component fails.
func run(ctx context.Context, cfg *config.ServerConfig, logger *zap.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) error {
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	collector := metrics.NewHeartbeatCollector(reg, cfg.Metrics.Namespace)
	opts := cfg.ServiceOptions()
	opts.Recorder = collector
	opts.Logger = logger.Named("meta")
	opts.Tracer = tracing.Tracer("nyxmeta/internal/meta")

	if cfg.Mailbox.Dir != "" {
		mb, err := mailbox.Open(cfg.Mailbox.Dir)
		if err != nil {
			return fmt.Errorf("open mailbox: %w", err)
		}
		defer func() { _ = mb.Close() }()
		opts.Queue = mb
		logger.Info("durable mailbox enabled", zap.String("dir", mb.Dir()))
	}

	svc := meta.NewService(opts)
	defer svc.Close()
	if fact, ok := cfg.LeaderFact(); ok {
		svc.Locator().Observe(fact)
	}

	g, gctx := errgroup.WithContext(ctx)

	srv := grpcserver.NewDefault(cfg.GRPCConfig(), svc, logger.Named("grpc"))
	if err := srv.Start(gctx); err != nil {
		return fmt.Errorf("start grpc server: %w", err)
	}
	defer srv.Stop()

	if cfg.Metrics.Address != "" {
		if err := metrics.StartServer(gctx, cfg.Metrics.Address, gatherer, logger.Named("metrics")); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	sweeper := svc.NewSweeper(cfg.Heartbeat.SweepInterval)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return collector.RunSampler(gctx, svc, cfg.Metrics.SampleInterval) })

	logger.Info("meta server started",
		zap.Uint64("cluster", cfg.ClusterID),
		zap.Stringer("self", cfg.Self()),
		zap.String("leader_mode", cfg.Leader.Mode),
	)
	err = g.Wait()
	logger.Info("meta server stopping")
	return err
}
