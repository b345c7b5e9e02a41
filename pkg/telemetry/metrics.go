package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for frame execution.
type Metrics struct {
	config MetricsConfig

	// Frame metrics
	framesStarted   *prometheus.CounterVec
	framesCompleted *prometheus.CounterVec
	frameDuration   *prometheus.HistogramVec
	frameTasks      *prometheus.GaugeVec

	// Phase metrics
	phaseDuration *prometheus.HistogramVec

	// Commit metrics
	commits       *prometheus.CounterVec
	commitBuffers *prometheus.CounterVec
	commitBytes   prometheus.Counter
	collected     prometheus.Counter

	// Error metrics
	usageErrors      *prometheus.CounterVec
	policyViolations *prometheus.CounterVec

	// System metrics
	activeFrames prometheus.Gauge

	registry *prometheus.Registry

	mu     sync.Mutex
	server *http.Server
}

// phaseBuckets are latency buckets in seconds, from 100µs to 1s.
var phaseBuckets = []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1.0}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	const namespace = "hydra"

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		framesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_started_total",
				Help:      "Total number of frames started",
			},
			[]string{"pipeline"},
		),
		framesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_completed_total",
				Help:      "Total number of frames that reached the execute phase",
			},
			[]string{"pipeline"},
		),
		frameDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "frame_duration_seconds",
				Help:      "Wall time of a frame in seconds",
				Buckets:   phaseBuckets,
			},
			[]string{"pipeline"},
		),
		frameTasks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "frame_tasks",
				Help:      "Number of tasks in the most recent frame",
			},
			[]string{"pipeline"},
		),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Time spent in each frame phase in seconds",
				Buckets:   phaseBuckets,
			},
			[]string{"pipeline", "phase"},
		),

		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commits_total",
				Help:      "Total number of resource commits",
			},
			[]string{"status"},
		),
		commitBuffers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commit_buffers_total",
				Help:      "Buffers resolved by resource commits",
			},
			[]string{"result"},
		),
		commitBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commit_bytes_total",
				Help:      "Bytes of buffer data committed",
			},
		),
		collected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buffers_collected_total",
				Help:      "Buffers dropped by garbage collection",
			},
		),

		usageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_errors_total",
				Help:      "Total number of usage errors reported by the engine",
			},
			[]string{"code"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of pipeline policy violations",
			},
			[]string{"policy", "severity"},
		),

		activeFrames: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_frames",
				Help:      "Frames currently between seed and execute",
			},
		),
	}

	registry.MustRegister(
		m.framesStarted,
		m.framesCompleted,
		m.frameDuration,
		m.frameTasks,
		m.phaseDuration,
		m.commits,
		m.commitBuffers,
		m.commitBytes,
		m.collected,
		m.usageErrors,
		m.policyViolations,
		m.activeFrames,
	)

	return m, nil
}

// Frame Metrics

// RecordFrameStarted increments the counter for started frames.
func (m *Metrics) RecordFrameStarted(pipeline string, taskCount int) {
	if m.framesStarted == nil {
		return
	}
	m.framesStarted.WithLabelValues(pipeline).Inc()
	m.frameTasks.WithLabelValues(pipeline).Set(float64(taskCount))
	m.activeFrames.Inc()
}

// RecordFrameCompleted records a completed frame and its duration.
func (m *Metrics) RecordFrameCompleted(pipeline string, duration time.Duration) {
	if m.framesCompleted == nil {
		return
	}
	m.framesCompleted.WithLabelValues(pipeline).Inc()
	m.frameDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
	m.activeFrames.Dec()
}

// RecordPhase records the time spent in one phase.
func (m *Metrics) RecordPhase(pipeline, phase string, duration time.Duration) {
	if m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(pipeline, phase).Observe(duration.Seconds())
}

// Commit Metrics

// RecordCommit records one resource commit.
func (m *Metrics) RecordCommit(committed, failed, bytes, collected int) {
	if m.commits == nil {
		return
	}
	status := "ok"
	if failed > 0 {
		status = "failed"
	}
	m.commits.WithLabelValues(status).Inc()
	m.commitBuffers.WithLabelValues("committed").Add(float64(committed))
	m.commitBuffers.WithLabelValues("failed").Add(float64(failed))
	m.commitBytes.Add(float64(bytes))
	m.collected.Add(float64(collected))
}

// Error Metrics

// RecordUsageError records a usage error by code.
func (m *Metrics) RecordUsageError(code string) {
	if m.usageErrors == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.usageErrors.WithLabelValues(code).Inc()
}

// RecordPolicyViolation records a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on observer.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. The listen
// address is bound before returning so bind errors surface to the caller.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	ln, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			FromContext(context.Background()).WithError(err).Error("metrics server stopped")
		}
	}()

	return nil
}

// Shutdown stops the metrics server, if one was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	server := m.server
	m.server = nil
	m.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
