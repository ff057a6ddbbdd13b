package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultPrometheusNamespace = "db_failover"

// PrometheusPublisher publishes metrics to Prometheus via /metrics endpoint.
// All Publisher interface methods are documented on the Publisher interface.
type PrometheusPublisher struct {
	registry *prometheus.Registry

	probeFailures           *prometheus.CounterVec
	regionHealth            *prometheus.GaugeVec
	replicationLag          *prometheus.GaugeVec
	failoverOutcome         *prometheus.CounterVec
	failoverDuration        prometheus.Histogram
	generation              prometheus.Gauge
	leadership              prometheus.Gauge
	circuitBreakerTriggered prometheus.Counter
	markersPruned           prometheus.Counter
	auditRecordsArchived    prometheus.Counter
}

// Ensure PrometheusPublisher implements Publisher.
var _ Publisher = (*PrometheusPublisher)(nil)

// PrometheusConfig holds configuration for the Prometheus publisher.
type PrometheusConfig struct {
	Namespace string
}

// NewPrometheusPublisher creates a Prometheus metrics publisher.
func NewPrometheusPublisher(cfg PrometheusConfig) *PrometheusPublisher {
	if cfg.Namespace == "" {
		cfg.Namespace = defaultPrometheusNamespace
	}

	registry := prometheus.NewRegistry()

	p := &PrometheusPublisher{
		registry: registry,

		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "probe_failures_total",
			Help:      "Total number of failed primary health probes",
		}, []string{"region"}),
		regionHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "region_healthy",
			Help:      "Region health from the last probe (1 healthy, 0 unhealthy)",
		}, []string{"region"}),
		replicationLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "replication_lag_seconds",
			Help:      "Replication lag per secondary region in seconds",
		}, []string{"region"}),
		failoverOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "failover_attempts_total",
			Help:      "Total number of finished failover attempts by outcome",
		}, []string{"outcome"}),
		failoverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "failover_duration_seconds",
			Help:      "End-to-end duration of failover attempts in seconds",
			Buckets:   []float64{5, 10, 20, 30, 60, 120, 300, 600},
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "cluster_generation",
			Help:      "Current cluster state generation",
		}),
		leadership: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "controller_leader",
			Help:      "Whether this instance holds the controller lease (1 or 0)",
		}),
		circuitBreakerTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "circuit_breaker_triggered_total",
			Help:      "Total number of failover attempts suppressed by the circuit breaker",
		}),
		markersPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "validation_markers_pruned_total",
			Help:      "Total number of validation marker rows pruned",
		}),
		auditRecordsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "audit_records_archived_total",
			Help:      "Total number of audit records archived to S3",
		}),
	}

	registry.MustRegister(
		p.probeFailures,
		p.regionHealth,
		p.replicationLag,
		p.failoverOutcome,
		p.failoverDuration,
		p.generation,
		p.leadership,
		p.circuitBreakerTriggered,
		p.markersPruned,
		p.auditRecordsArchived,
	)

	return p
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (p *PrometheusPublisher) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry for custom integrations.
func (p *PrometheusPublisher) Registry() *prometheus.Registry {
	return p.registry
}

// Close implements Publisher.Close. Prometheus registry doesn't require cleanup.
func (p *PrometheusPublisher) Close() error {
	return nil
}

// Publisher interface implementation below.
// All methods are documented on the Publisher interface.

func (p *PrometheusPublisher) PublishProbeFailure(_ context.Context, regionID string) error { //nolint:revive
	p.probeFailures.WithLabelValues(regionID).Inc()
	return nil
}

func (p *PrometheusPublisher) PublishRegionHealth(_ context.Context, regionID string, healthy bool) error { //nolint:revive
	value := 0.0
	if healthy {
		value = 1.0
	}
	p.regionHealth.WithLabelValues(regionID).Set(value)
	return nil
}

func (p *PrometheusPublisher) PublishReplicationLag(_ context.Context, regionID string, lagSeconds float64) error { //nolint:revive
	p.replicationLag.WithLabelValues(regionID).Set(lagSeconds)
	return nil
}

func (p *PrometheusPublisher) PublishFailoverOutcome(_ context.Context, outcome string) error { //nolint:revive
	p.failoverOutcome.WithLabelValues(outcome).Inc()
	return nil
}

func (p *PrometheusPublisher) PublishFailoverDuration(_ context.Context, seconds float64) error { //nolint:revive
	p.failoverDuration.Observe(seconds)
	return nil
}

func (p *PrometheusPublisher) PublishGeneration(_ context.Context, generation int64) error { //nolint:revive
	p.generation.Set(float64(generation))
	return nil
}

func (p *PrometheusPublisher) PublishLeadership(_ context.Context, leading bool) error { //nolint:revive
	value := 0.0
	if leading {
		value = 1.0
	}
	p.leadership.Set(value)
	return nil
}

func (p *PrometheusPublisher) PublishCircuitBreakerTriggered(_ context.Context) error { //nolint:revive
	p.circuitBreakerTriggered.Inc()
	return nil
}

func (p *PrometheusPublisher) PublishMarkersPruned(_ context.Context, count int64) error { //nolint:revive
	p.markersPruned.Add(float64(count))
	return nil
}

func (p *PrometheusPublisher) PublishAuditRecordsArchived(_ context.Context, count int) error { //nolint:revive
	p.auditRecordsArchived.Add(float64(count))
	return nil
}

// PublishServiceCheck is a no-op for Prometheus (Datadog-specific feature).
func (p *PrometheusPublisher) PublishServiceCheck(_ context.Context, _ string, _ int, _ string) error { //nolint:revive
	return nil
}

// PublishEvent is a no-op for Prometheus (Datadog-specific feature).
func (p *PrometheusPublisher) PublishEvent(_ context.Context, _, _, _ string, _ []string) error { //nolint:revive
	return nil
}
