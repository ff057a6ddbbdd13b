package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

const defaultDatadogNamespace = "db_failover"

// ServiceCheckStatus represents Datadog service check status values.
const (
	ServiceCheckOK       = 0
	ServiceCheckWarning  = 1
	ServiceCheckCritical = 2
	ServiceCheckUnknown  = 3
)

// DatadogPublisher publishes metrics to Datadog via DogStatsD.
// All Publisher interface methods are documented on the Publisher interface.
type DatadogPublisher struct {
	client    *statsd.Client
	namespace string
	tags      []string
}

// Ensure DatadogPublisher implements Publisher.
var _ Publisher = (*DatadogPublisher)(nil)

// DatadogConfig holds configuration for the Datadog publisher.
type DatadogConfig struct {
	// Address is the DogStatsD address (default: "127.0.0.1:8125")
	Address string
	// Namespace is the metric namespace prefix (default: "db_failover")
	Namespace string
	// Tags are global tags applied to all metrics
	Tags []string

	// Client tuning options (0 = use library default)
	BufferPoolSize      int
	BufferFlushInterval time.Duration
	WorkersCount        int
}

// NewDatadogPublisher creates a Datadog metrics publisher using DogStatsD.
func NewDatadogPublisher(cfg DatadogConfig) (*DatadogPublisher, error) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:8125"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = defaultDatadogNamespace
	}

	opts := []statsd.Option{
		statsd.WithNamespace(cfg.Namespace + "."),
		statsd.WithTags(cfg.Tags),
	}

	if cfg.BufferPoolSize > 0 {
		opts = append(opts, statsd.WithBufferPoolSize(cfg.BufferPoolSize))
	}
	if cfg.BufferFlushInterval > 0 {
		opts = append(opts, statsd.WithBufferFlushInterval(cfg.BufferFlushInterval))
	}
	if cfg.WorkersCount > 0 {
		opts = append(opts, statsd.WithWorkersCount(cfg.WorkersCount))
	}

	client, err := statsd.New(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create DogStatsD client: %w", err)
	}

	return &DatadogPublisher{
		client:    client,
		namespace: cfg.Namespace,
		tags:      cfg.Tags,
	}, nil
}

// Close closes the DogStatsD client connection.
func (p *DatadogPublisher) Close() error {
	return p.client.Close()
}

// Publisher interface implementation below.
// All methods are documented on the Publisher interface.

func (p *DatadogPublisher) PublishProbeFailure(_ context.Context, regionID string) error { //nolint:revive
	return p.client.Incr("probe_failures", []string{"region:" + regionID}, 1)
}

func (p *DatadogPublisher) PublishRegionHealth(_ context.Context, regionID string, healthy bool) error { //nolint:revive
	value := 0.0
	if healthy {
		value = 1.0
	}
	return p.client.Gauge("region_healthy", value, []string{"region:" + regionID}, 1)
}

func (p *DatadogPublisher) PublishReplicationLag(_ context.Context, regionID string, lagSeconds float64) error { //nolint:revive
	return p.client.Gauge("replication_lag_seconds", lagSeconds, []string{"region:" + regionID}, 1)
}

func (p *DatadogPublisher) PublishFailoverOutcome(_ context.Context, outcome string) error { //nolint:revive
	return p.client.Incr("failover_attempts", []string{"outcome:" + outcome}, 1)
}

func (p *DatadogPublisher) PublishFailoverDuration(_ context.Context, seconds float64) error { //nolint:revive
	// Use Distribution for global percentile aggregation across all hosts
	return p.client.Distribution("failover_duration_seconds", seconds, nil, 1)
}

func (p *DatadogPublisher) PublishGeneration(_ context.Context, generation int64) error { //nolint:revive
	return p.client.Gauge("cluster_generation", float64(generation), nil, 1)
}

func (p *DatadogPublisher) PublishLeadership(_ context.Context, leading bool) error { //nolint:revive
	value := 0.0
	if leading {
		value = 1.0
	}
	return p.client.Gauge("controller_leader", value, nil, 1)
}

func (p *DatadogPublisher) PublishCircuitBreakerTriggered(_ context.Context) error { //nolint:revive
	return p.client.Incr("circuit_breaker_triggered", nil, 1)
}

func (p *DatadogPublisher) PublishMarkersPruned(_ context.Context, count int64) error { //nolint:revive
	return p.client.Count("validation_markers_pruned", count, nil, 1)
}

func (p *DatadogPublisher) PublishAuditRecordsArchived(_ context.Context, count int) error { //nolint:revive
	return p.client.Count("audit_records_archived", int64(count), nil, 1)
}

// PublishServiceCheck publishes a Datadog service check.
func (p *DatadogPublisher) PublishServiceCheck(_ context.Context, name string, status int, message string) error { //nolint:revive
	var ddStatus statsd.ServiceCheckStatus
	switch status {
	case ServiceCheckOK:
		ddStatus = statsd.Ok
	case ServiceCheckWarning:
		ddStatus = statsd.Warn
	case ServiceCheckCritical:
		ddStatus = statsd.Critical
	default:
		ddStatus = statsd.Unknown
	}

	return p.client.ServiceCheck(&statsd.ServiceCheck{
		Name:    p.namespace + "." + name,
		Status:  ddStatus,
		Message: message,
		Tags:    p.tags,
	})
}

// PublishEvent publishes a Datadog event.
func (p *DatadogPublisher) PublishEvent(_ context.Context, title, text, alertType string, tags []string) error { //nolint:revive
	var ddAlertType statsd.EventAlertType
	switch alertType {
	case "warning":
		ddAlertType = statsd.Warning
	case "error":
		ddAlertType = statsd.Error
	case "success":
		ddAlertType = statsd.Success
	default:
		ddAlertType = statsd.Info
	}

	allTags := make([]string, 0, len(p.tags)+len(tags))
	allTags = append(allTags, p.tags...)
	allTags = append(allTags, tags...)

	return p.client.Event(&statsd.Event{
		Title:     title,
		Text:      text,
		AlertType: ddAlertType,
		Tags:      allTags,
	})
}
