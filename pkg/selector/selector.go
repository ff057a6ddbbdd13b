// Package selector picks the promotion target among eligible secondaries.
package selector

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/logging"
)

var selectorLog = logging.WithComponent(logging.LogTypeSelector, "lag")

// ErrNoEligibleCandidate means no secondary is both healthy and fresh
// enough to promote. The controller treats this as a hard stop: it aborts
// the attempt and pages rather than promote a stale region.
var ErrNoEligibleCandidate = errors.New("no eligible promotion candidate")

// Selector ranks secondaries and picks the promotion target.
type Selector interface {
	Select(secondaries []cluster.Region) (cluster.Region, error)
}

// LagSelector implements the deterministic selection rule: among healthy
// secondaries whose replication lag does not exceed the staleness
// threshold, pick the one with the lowest lag, breaking ties by region ID
// in ascending order. Given the same observations it always returns the
// same region, so independent runs over identical inputs agree.
type LagSelector struct {
	staleness time.Duration
}

// NewLagSelector creates a selector with the given staleness threshold.
func NewLagSelector(staleness time.Duration) *LagSelector {
	if staleness <= 0 {
		staleness = 300 * time.Second
	}
	return &LagSelector{staleness: staleness}
}

// Select returns the promotion target, or ErrNoEligibleCandidate when the
// eligible set is empty.
func (s *LagSelector) Select(secondaries []cluster.Region) (cluster.Region, error) {
	var best cluster.Region
	found := false

	for _, r := range secondaries {
		if r.Health != cluster.HealthHealthy {
			selectorLog.Debug("candidate skipped",
				slog.String(logging.KeyRegion, r.ID),
				slog.String(logging.KeyReason, "unhealthy"))
			continue
		}
		if r.Lag > s.staleness {
			selectorLog.Debug("candidate skipped",
				slog.String(logging.KeyRegion, r.ID),
				slog.String(logging.KeyReason, "stale"),
				slog.Float64(logging.KeyLag, r.Lag.Seconds()))
			continue
		}
		if !found || less(r, best) {
			best = r
			found = true
		}
	}

	if !found {
		return cluster.Region{}, ErrNoEligibleCandidate
	}

	selectorLog.Info("candidate selected",
		slog.String(logging.KeyCandidate, best.ID),
		slog.Float64(logging.KeyLag, best.Lag.Seconds()))
	return best, nil
}

// less orders candidates by lag ascending, then region ID ascending.
func less(a, b cluster.Region) bool {
	if a.Lag != b.Lag {
		return a.Lag < b.Lag
	}
	return a.ID < b.ID
}

// Ensure LagSelector implements Selector.
var _ Selector = (*LagSelector)(nil)
