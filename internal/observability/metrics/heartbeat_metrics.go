package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nyxmeta/internal/meta"
)

// HeartbeatCollector exposes heartbeat traffic and the live cluster view as
// Prometheus metrics. It doubles as the meta.Recorder for sessions.
type HeartbeatCollector struct {
	sessionsOpen   prometheus.Gauge
	sessionsClosed *prometheus.CounterVec
	reports        *prometheus.CounterVec
	reportLatency  prometheus.Histogram
	acksDropped    prometheus.Counter
	instructions   prometheus.Counter
	nodesSwept     prometheus.Counter
	nodes          prometheus.Gauge
	leaderNodes    prometheus.Gauge
	regions        prometheus.Gauge
	leaderless     prometheus.Gauge
	conflicts      prometheus.Gauge
	storageBytes   prometheus.Gauge
	storageRows    prometheus.Gauge
	selfLeader     prometheus.Gauge
	leaderKnown    prometheus.Gauge
}

var _ meta.Recorder = (*HeartbeatCollector)(nil)

// NewHeartbeatCollector creates a collector registered on the provided registry (default if nil).
func NewHeartbeatCollector(reg prometheus.Registerer, namespace string) *HeartbeatCollector {
	if namespace == "" {
		namespace = "nyxmeta"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	builder := promauto.With(reg)
	gauge := func(name, help string) prometheus.Gauge {
		return builder.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	return &HeartbeatCollector{
		sessionsOpen: gauge("heartbeat_sessions_open", "Heartbeat streams currently attached."),
		sessionsClosed: builder.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_sessions_closed_total",
			Help:      "Heartbeat streams closed, by reason.",
		}, []string{"reason"}),
		reports: builder.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_reports_total",
			Help:      "Heartbeat reports handled, by outcome.",
		}, []string{"result"}),
		reportLatency: builder.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "heartbeat_report_seconds",
			Help:      "Time spent handling one heartbeat report.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		acksDropped: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_acks_dropped_total",
			Help:      "Acknowledgements dropped because the session outbox was full.",
		}),
		instructions: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_instructions_dispatched_total",
			Help:      "Scheduler instructions delivered on acknowledgements.",
		}),
		nodesSwept: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_nodes_expired_total",
			Help:      "Node entries removed after missing their heartbeat deadline.",
		}),
		nodes:        gauge("registry_nodes", "Nodes with a live registry entry."),
		leaderNodes:  gauge("registry_leader_nodes", "Live nodes that report themselves as table leaders."),
		regions:      gauge("regions", "Regions known from live reports."),
		leaderless:   gauge("regions_leaderless", "Regions with no live leader replica."),
		conflicts:    gauge("regions_leader_conflicts", "Regions claimed as leader by more than one node."),
		storageBytes: gauge("regions_storage_bytes", "Approximate storage size summed over region leaders."),
		storageRows:  gauge("regions_storage_rows", "Approximate row count summed over region leaders."),
		selfLeader:   gauge("self_is_leader", "Whether this replica is the meta leader (1=yes, 0=no)."),
		leaderKnown:  gauge("leader_known", "Whether a meta leader is currently known (1=yes, 0=no)."),
	}
}

func (c *HeartbeatCollector) SessionOpened() {
	c.sessionsOpen.Inc()
}

func (c *HeartbeatCollector) SessionClosed(reason meta.CloseReason) {
	c.sessionsOpen.Dec()
	c.sessionsClosed.WithLabelValues(reason.String()).Inc()
}

func (c *HeartbeatCollector) ReportHandled(result string, elapsed time.Duration) {
	c.reports.WithLabelValues(result).Inc()
	c.reportLatency.Observe(elapsed.Seconds())
}

func (c *HeartbeatCollector) AckDropped() {
	c.acksDropped.Inc()
}

func (c *HeartbeatCollector) InstructionsDispatched(n int) {
	c.instructions.Add(float64(n))
}

func (c *HeartbeatCollector) NodesSwept(n int) {
	c.nodesSwept.Add(float64(n))
}

// Observe updates the view gauges from the supplied sample.
func (c *HeartbeatCollector) Observe(s meta.Sample) {
	c.nodes.Set(float64(s.Nodes))
	c.leaderNodes.Set(float64(s.Leaders))
	c.regions.Set(float64(s.Regions.Count))
	c.leaderless.Set(float64(s.Regions.LeaderlessCount))
	c.conflicts.Set(float64(s.Regions.ConflictCount))
	c.storageBytes.Set(float64(s.Regions.StorageSize))
	c.storageRows.Set(float64(s.Regions.StorageRows))
	c.selfLeader.Set(boolGauge(s.SelfIsLeader))
	c.leaderKnown.Set(boolGauge(s.LeaderKnown))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// RunSampler observes svc every interval until ctx is canceled.
func (c *HeartbeatCollector) RunSampler(ctx context.Context, svc *meta.Service, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.Observe(svc.Sample())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Observe(svc.Sample())
		}
	}
}

// StartServer serves Prometheus metrics on the provided address until the context is canceled.
func StartServer(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return nil
}
