// Package metrics provides metrics publishing abstractions and implementations.
package metrics

import "context"

// Publisher defines the interface for publishing metrics to various backends.
type Publisher interface {
	// Close releases any resources held by the publisher.
	// Implementations that don't need cleanup should return nil.
	Close() error

	// PublishProbeFailure publishes a failed primary probe with region dimension.
	PublishProbeFailure(ctx context.Context, regionID string) error

	// PublishRegionHealth publishes a region's health as a 0/1 gauge.
	PublishRegionHealth(ctx context.Context, regionID string, healthy bool) error

	// PublishReplicationLag publishes a secondary's replication lag in seconds.
	PublishReplicationLag(ctx context.Context, regionID string, lagSeconds float64) error

	// PublishFailoverOutcome publishes a finished failover attempt with outcome dimension.
	PublishFailoverOutcome(ctx context.Context, outcome string) error

	// PublishFailoverDuration publishes end-to-end failover duration in seconds.
	PublishFailoverDuration(ctx context.Context, seconds float64) error

	// PublishGeneration publishes the current cluster generation as a gauge.
	PublishGeneration(ctx context.Context, generation int64) error

	// PublishLeadership publishes whether this instance holds the controller lease.
	PublishLeadership(ctx context.Context, leading bool) error

	// PublishCircuitBreakerTriggered publishes a suppressed failover attempt.
	PublishCircuitBreakerTriggered(ctx context.Context) error

	// PublishMarkersPruned publishes count of validation markers pruned.
	PublishMarkersPruned(ctx context.Context, count int64) error

	// PublishAuditRecordsArchived publishes count of audit records archived to S3.
	PublishAuditRecordsArchived(ctx context.Context, count int) error

	// PublishServiceCheck publishes a service health check.
	// status: 0=OK, 1=Warning, 2=Critical, 3=Unknown
	PublishServiceCheck(ctx context.Context, name string, status int, message string) error

	// PublishEvent publishes a notable event (e.g., promotion, circuit breaker triggered).
	// alertType: "info", "warning", "error", "success"
	PublishEvent(ctx context.Context, title, text, alertType string, tags []string) error
}

// NoopPublisher is a no-op implementation of Publisher for testing or disabled metrics.
// All methods are documented on the Publisher interface.
type NoopPublisher struct{}

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) Close() error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishProbeFailure(context.Context, string) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishRegionHealth(context.Context, string, bool) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishReplicationLag(context.Context, string, float64) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishFailoverOutcome(context.Context, string) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishFailoverDuration(context.Context, float64) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishGeneration(context.Context, int64) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishLeadership(context.Context, bool) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishCircuitBreakerTriggered(context.Context) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishMarkersPruned(context.Context, int64) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishAuditRecordsArchived(context.Context, int) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishServiceCheck(context.Context, string, int, string) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishEvent(context.Context, string, string, string, []string) error {
	return nil
}

// Ensure NoopPublisher implements Publisher.
var _ Publisher = NoopPublisher{}
