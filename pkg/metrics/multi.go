package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Shavakan/db-failover/pkg/logging"
)

const publishTimeout = 5 * time.Second

var metricsLog = logging.WithComponent(logging.LogTypeMetrics, "multi")

// MultiPublisher publishes metrics to multiple backends simultaneously.
// All Publisher interface methods are documented on the Publisher interface.
type MultiPublisher struct {
	publishers []Publisher
}

// Ensure MultiPublisher implements Publisher.
var _ Publisher = (*MultiPublisher)(nil)

// NewMultiPublisher creates a publisher that fans out to multiple backends.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// Add adds a publisher to the fan-out list.
func (m *MultiPublisher) Add(p Publisher) {
	m.publishers = append(m.publishers, p)
}

// Publishers returns the list of configured publishers.
func (m *MultiPublisher) Publishers() []Publisher {
	return m.publishers
}

// Close closes all child publishers.
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) publishAll(fn func(p Publisher) error) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, p := range m.publishers {
		wg.Add(1)
		go func(pub Publisher) {
			defer wg.Done()
			done := make(chan error, 1)
			go func() {
				done <- fn(pub)
			}()
			select {
			case err := <-done:
				if err != nil {
					metricsLog.Warn("metrics publish error", slog.String(logging.KeyError, err.Error()))
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			case <-time.After(publishTimeout):
				metricsLog.Warn("metrics publish timeout", slog.Duration("timeout", publishTimeout))
				mu.Lock()
				errs = append(errs, fmt.Errorf("publish timeout after %v", publishTimeout))
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Publisher interface implementation below.
// All methods are documented on the Publisher interface.

func (m *MultiPublisher) PublishProbeFailure(ctx context.Context, regionID string) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishProbeFailure(ctx, regionID)
	})
}

func (m *MultiPublisher) PublishRegionHealth(ctx context.Context, regionID string, healthy bool) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishRegionHealth(ctx, regionID, healthy)
	})
}

func (m *MultiPublisher) PublishReplicationLag(ctx context.Context, regionID string, lagSeconds float64) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishReplicationLag(ctx, regionID, lagSeconds)
	})
}

func (m *MultiPublisher) PublishFailoverOutcome(ctx context.Context, outcome string) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishFailoverOutcome(ctx, outcome)
	})
}

func (m *MultiPublisher) PublishFailoverDuration(ctx context.Context, seconds float64) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishFailoverDuration(ctx, seconds)
	})
}

func (m *MultiPublisher) PublishGeneration(ctx context.Context, generation int64) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishGeneration(ctx, generation)
	})
}

func (m *MultiPublisher) PublishLeadership(ctx context.Context, leading bool) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishLeadership(ctx, leading)
	})
}

func (m *MultiPublisher) PublishCircuitBreakerTriggered(ctx context.Context) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishCircuitBreakerTriggered(ctx)
	})
}

func (m *MultiPublisher) PublishMarkersPruned(ctx context.Context, count int64) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishMarkersPruned(ctx, count)
	})
}

func (m *MultiPublisher) PublishAuditRecordsArchived(ctx context.Context, count int) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishAuditRecordsArchived(ctx, count)
	})
}

func (m *MultiPublisher) PublishServiceCheck(ctx context.Context, name string, status int, message string) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishServiceCheck(ctx, name, status, message)
	})
}

func (m *MultiPublisher) PublishEvent(ctx context.Context, title, text, alertType string, tags []string) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishEvent(ctx, title, text, alertType, tags)
	})
}
