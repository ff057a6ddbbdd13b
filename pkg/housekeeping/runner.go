// Package housekeeping runs scheduled retention tasks: pruning validation
// marker rows on the primary and archiving old audit events to S3.
package housekeeping

import (
	"context"
	"log/slog"
	"time"

	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/dbadmin"
	"github.com/Shavakan/db-failover/pkg/logging"
	"github.com/Shavakan/db-failover/pkg/metrics"
)

var housekeepLog = logging.WithComponent(logging.LogTypeHousekeep, "runner")

// ClusterView exposes the current snapshot. The controller satisfies it.
type ClusterView interface {
	State() cluster.State
}

// Archiver moves finished audit events older than a cutoff to cold
// storage. *audit.Archiver satisfies it.
type Archiver interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Config holds retention tuning for the housekeeping runner.
type Config struct {
	// MarkerInterval is how often validation markers are pruned.
	MarkerInterval time.Duration

	// MarkerRetention is how long validation markers are kept.
	MarkerRetention time.Duration

	// ArchiveInterval is how often audit archival runs.
	ArchiveInterval time.Duration

	// ArchiveRetention is how long finished audit events stay in the
	// table before moving to S3.
	ArchiveRetention time.Duration
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() Config {
	return Config{
		MarkerInterval:   1 * time.Hour,
		MarkerRetention:  24 * time.Hour,
		ArchiveInterval:  24 * time.Hour,
		ArchiveRetention: 30 * 24 * time.Hour,
	}
}

// Runner executes retention tasks on their intervals. Tasks run only on
// the leader so a standby never prunes behind the active controller's
// back.
type Runner struct {
	cfg      Config
	view     ClusterView
	pool     dbadmin.Pool
	archiver Archiver
	metrics  metrics.Publisher
	leader   interface{ IsLeader() bool }
}

// NewRunner creates a housekeeping runner. Archiver may be nil when S3
// archival is not configured; leader may be nil for single-instance
// deployments.
func NewRunner(cfg Config, view ClusterView, pool dbadmin.Pool, archiver Archiver, publisher metrics.Publisher, leader interface{ IsLeader() bool }) *Runner {
	if cfg.MarkerInterval <= 0 {
		cfg.MarkerInterval = 1 * time.Hour
	}
	if cfg.MarkerRetention <= 0 {
		cfg.MarkerRetention = 24 * time.Hour
	}
	if cfg.ArchiveInterval <= 0 {
		cfg.ArchiveInterval = 24 * time.Hour
	}
	if cfg.ArchiveRetention <= 0 {
		cfg.ArchiveRetention = 30 * 24 * time.Hour
	}
	if publisher == nil {
		publisher = metrics.NoopPublisher{}
	}
	return &Runner{
		cfg:      cfg,
		view:     view,
		pool:     pool,
		archiver: archiver,
		metrics:  publisher,
		leader:   leader,
	}
}

// Run executes retention tasks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	housekeepLog.Info("housekeeping runner started")

	markerTicker := time.NewTicker(r.cfg.MarkerInterval)
	defer markerTicker.Stop()
	archiveTicker := time.NewTicker(r.cfg.ArchiveInterval)
	defer archiveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			housekeepLog.Info("housekeeping runner stopped")
			return
		case <-markerTicker.C:
			if r.isLeader() {
				r.pruneMarkers(ctx)
			}
		case <-archiveTicker.C:
			if r.isLeader() {
				r.archiveAudit(ctx)
			}
		}
	}
}

func (r *Runner) isLeader() bool {
	return r.leader == nil || r.leader.IsLeader()
}

// pruneMarkers deletes validation marker rows older than the retention
// window from the current primary.
func (r *Runner) pruneMarkers(ctx context.Context) {
	primary, ok := r.view.State().Primary()
	if !ok {
		housekeepLog.Error("cluster state has no primary")
		return
	}

	client, err := r.pool.Client(ctx, primary)
	if err != nil {
		housekeepLog.Warn("marker prune could not reach primary",
			slog.String(logging.KeyRegion, primary.ID),
			slog.String(logging.KeyError, err.Error()))
		return
	}

	cutoff := time.Now().Add(-r.cfg.MarkerRetention)
	pruned, err := client.PruneMarkers(ctx, cutoff)
	if err != nil {
		housekeepLog.Warn("marker prune failed",
			slog.String(logging.KeyRegion, primary.ID),
			slog.String(logging.KeyError, err.Error()))
		return
	}

	if pruned > 0 {
		housekeepLog.Info("validation markers pruned",
			slog.String(logging.KeyRegion, primary.ID),
			slog.Int64(logging.KeyCount, pruned))
	}
	if err := r.metrics.PublishMarkersPruned(ctx, pruned); err != nil {
		housekeepLog.Warn("metrics publish failed",
			slog.String(logging.KeyError, err.Error()))
	}
}

// archiveAudit moves finished audit events past the retention window to S3.
func (r *Runner) archiveAudit(ctx context.Context) {
	if r.archiver == nil {
		return
	}

	cutoff := time.Now().Add(-r.cfg.ArchiveRetention)
	archived, err := r.archiver.ArchiveBefore(ctx, cutoff)
	if err != nil {
		housekeepLog.Warn("audit archive failed",
			slog.String(logging.KeyError, err.Error()))
		return
	}

	if archived > 0 {
		housekeepLog.Info("audit events archived",
			slog.Int(logging.KeyCount, archived))
	}
	if err := r.metrics.PublishAuditRecordsArchived(ctx, archived); err != nil {
		housekeepLog.Warn("metrics publish failed",
			slog.String(logging.KeyError, err.Error()))
	}
}
