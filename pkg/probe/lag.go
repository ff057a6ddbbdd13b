package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/dbadmin"
	"github.com/Shavakan/db-failover/pkg/logging"
)

var lagLog = logging.WithComponent(logging.LogTypeProber, "lag")

// Evaluator measures a healthy secondary's replication delay.
type Evaluator interface {
	Lag(ctx context.Context, region cluster.Region) time.Duration
}

// LagEvaluator queries the replication-delay metric over the admin
// channel. When the metric is unavailable or the query fails it returns
// cluster.InfiniteLag rather than an error, so the candidate selector can
// always rank every secondary without special-casing evaluator failures.
type LagEvaluator struct {
	pool    dbadmin.Pool
	timeout time.Duration
}

// NewLagEvaluator creates an evaluator with the given per-query timeout.
func NewLagEvaluator(pool dbadmin.Pool, timeout time.Duration) *LagEvaluator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LagEvaluator{pool: pool, timeout: timeout}
}

// Lag returns the region's replication delay, or InfiniteLag when unmeasurable.
func (e *LagEvaluator) Lag(ctx context.Context, region cluster.Region) time.Duration {
	lagCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	client, err := e.pool.Client(lagCtx, region)
	if err != nil {
		lagLog.Warn("lag evaluation could not reach admin channel",
			slog.String(logging.KeyRegion, region.ID),
			slog.String(logging.KeyError, err.Error()))
		return cluster.InfiniteLag
	}

	seconds, err := client.ReplicationLagSeconds(lagCtx)
	if err != nil {
		lagLog.Warn("lag metric unavailable",
			slog.String(logging.KeyRegion, region.ID),
			slog.String(logging.KeyError, err.Error()))
		return cluster.InfiniteLag
	}

	return time.Duration(seconds * float64(time.Second))
}

// Ensure LagEvaluator implements Evaluator.
var _ Evaluator = (*LagEvaluator)(nil)
