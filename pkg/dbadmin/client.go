// Package dbadmin provides the per-region database administrative channel:
// liveness queries, replication lag, detach/promote operations, and
// validation marker writes. The orchestrator treats these as abstract
// capabilities; the Postgres implementation lives in postgres.go.
package dbadmin

import (
	"context"
	"time"

	"github.com/Shavakan/db-failover/pkg/cluster"
)

// Client is one region's administrative query/command channel.
type Client interface {
	// Ping runs a trivial read to confirm the region answers queries.
	Ping(ctx context.Context) error

	// ReplicationLagSeconds returns the region's replay delay behind the
	// primary's write stream. Only meaningful on secondaries.
	ReplicationLagSeconds(ctx context.Context) (float64, error)

	// Detach removes the region from its secondary replication role.
	Detach(ctx context.Context) error

	// Detached reports whether the region has stopped consuming the
	// primary's write stream.
	Detached(ctx context.Context) (bool, error)

	// Promote converts the detached region into the writable primary
	// using the engine's atomic promote primitive.
	Promote(ctx context.Context) error

	// WriteMarker inserts a timestamped validation marker row.
	WriteMarker(ctx context.Context, markerID string) error

	// PruneMarkers deletes validation markers older than cutoff and
	// returns the number removed.
	PruneMarkers(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the underlying connections.
	Close() error
}

// Pool hands out admin clients per region, resolving credentials and
// reusing connections across controller cycles.
type Pool interface {
	Client(ctx context.Context, region cluster.Region) (Client, error)
}
