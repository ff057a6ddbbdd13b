// Package probe classifies region liveness and measures replication lag.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/dbadmin"
	"github.com/Shavakan/db-failover/pkg/logging"
)

var probeLog = logging.WithComponent(logging.LogTypeProber, "postgres")

// Prober classifies one region as healthy or unhealthy.
type Prober interface {
	Probe(ctx context.Context, region cluster.Region) cluster.Health
}

// HealthProber runs a bounded-time liveness check against a region's
// admin channel. Its job is classification, not error surfacing: any
// failure of the check itself (timeout, refused connection, auth error)
// classifies the region as unhealthy.
type HealthProber struct {
	pool    dbadmin.Pool
	timeout time.Duration
}

// NewHealthProber creates a prober with the given per-check timeout.
func NewHealthProber(pool dbadmin.Pool, timeout time.Duration) *HealthProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthProber{pool: pool, timeout: timeout}
}

// Probe classifies a region. Never blocks longer than the configured timeout.
func (p *HealthProber) Probe(ctx context.Context, region cluster.Region) cluster.Health {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := p.pool.Client(probeCtx, region)
	if err != nil {
		probeLog.Warn("probe could not reach admin channel",
			slog.String(logging.KeyRegion, region.ID),
			slog.String(logging.KeyError, err.Error()))
		return cluster.HealthUnhealthy
	}

	if err := client.Ping(probeCtx); err != nil {
		probeLog.Warn("probe failed",
			slog.String(logging.KeyRegion, region.ID),
			slog.String(logging.KeyEndpoint, region.Endpoint),
			slog.String(logging.KeyError, err.Error()))
		return cluster.HealthUnhealthy
	}

	return cluster.HealthHealthy
}

// Ensure HealthProber implements Prober.
var _ Prober = (*HealthProber)(nil)
