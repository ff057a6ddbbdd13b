// Package controller drives the failover state machine: it probes the
// primary, detects sustained failure, and runs the promotion sequence
// end to end.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Shavakan/db-failover/pkg/circuit"
	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/logging"
	"github.com/Shavakan/db-failover/pkg/metrics"
	"github.com/Shavakan/db-failover/pkg/notify"
	"github.com/Shavakan/db-failover/pkg/probe"
	"github.com/Shavakan/db-failover/pkg/promote"
	"github.com/Shavakan/db-failover/pkg/propagate"
	"github.com/Shavakan/db-failover/pkg/selector"
	"github.com/Shavakan/db-failover/pkg/tracing"
	"github.com/Shavakan/db-failover/pkg/validate"
)

var ctrlLog = logging.WithComponent(logging.LogTypeController, "loop")

// Phase is the controller's position in the failover state machine.
type Phase string

const (
	PhaseMonitoring         Phase = "monitoring"
	PhaseDetecting          Phase = "detecting"
	PhaseSelectingCandidate Phase = "selecting_candidate"
	PhasePromoting          Phase = "promoting"
	PhasePropagating        Phase = "propagating"
	PhaseValidating         Phase = "validating"
	PhaseStable             Phase = "stable"
	PhaseFailed             Phase = "failed"
)

// Failover trigger labels recorded on audit events.
const (
	TriggerProbeFailure = "primary_unhealthy"
	TriggerManual       = "manual"
)

// Announcer publishes a new primary to every configured channel.
// *propagate.Fanout satisfies it.
type Announcer interface {
	Announce(ctx context.Context, a propagate.Announcement) error
}

// AuditRecorder persists finalized failover events. *audit.Store satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, event *cluster.FailoverEvent) error
}

// CircuitBreaker suppresses automatic failovers when the cluster keeps
// flapping. *circuit.Breaker satisfies it.
type CircuitBreaker interface {
	Check(ctx context.Context) (circuit.State, error)
	RecordAttempt(ctx context.Context) error
}

// LeaderCheck reports whether this instance holds the controller lease.
// coordinator implementations satisfy it.
type LeaderCheck interface {
	IsLeader() bool
}

// Config holds controller loop tuning.
type Config struct {
	// PollInterval is the pause between monitoring cycles.
	PollInterval time.Duration

	// FailureThreshold is the number of consecutive failed primary probes
	// before a failover attempt starts.
	FailureThreshold int
}

// DefaultConfig returns recommended controller settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:     30 * time.Second,
		FailureThreshold: 3,
	}
}

// Deps wires the controller to its collaborators. Prober, Lag, Selector,
// Promoter, Announcer and Validator are required; the rest degrade to
// no-ops when nil.
type Deps struct {
	Prober    probe.Prober
	Lag       probe.Evaluator
	Selector  selector.Selector
	Promoter  promote.Promoter
	Announcer Announcer
	Validator validate.Validator
	Notifier  notify.Notifier
	Audit     AuditRecorder
	Breaker   CircuitBreaker
	Metrics   metrics.Publisher
	Leader    LeaderCheck

	// Directory, when set, is re-read at the top of every cycle so
	// endpoint and credential changes take effect without a restart.
	Directory cluster.Directory
}

// Controller owns the cluster-state snapshot and runs the poll loop.
// Exactly one failover attempt is in flight at a time; an attempt that
// has started always runs to completion, shutdown only lands between
// cycles.
type Controller struct {
	cfg    Config
	deps   Deps
	tracer *tracing.FailoverTracer

	mu                  sync.RWMutex
	state               cluster.State
	phase               Phase
	consecutiveFailures int
	degraded            map[string]struct{}
	lastEventID         string
	lastOutcome         cluster.Outcome

	attemptMu sync.Mutex
}

// New creates a controller around the initial cluster snapshot.
func New(cfg Config, initial cluster.State, deps Deps) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 3
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewMulti()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopPublisher{}
	}
	return &Controller{
		cfg:      cfg,
		deps:     deps,
		tracer:   tracing.NewFailoverTracer(),
		state:    initial,
		phase:    PhaseMonitoring,
		degraded: make(map[string]struct{}),
	}
}

// Run executes monitoring cycles until the context is cancelled.
// Cancellation is honored between cycles only.
func (c *Controller) Run(ctx context.Context) error {
	ctrlLog.Info("controller started",
		slog.String(logging.KeyPrimary, c.State().PrimaryID()),
		slog.Int64(logging.KeyGeneration, c.State().Generation()))

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ctrlLog.Info("controller stopped")
			return nil
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

// State returns the current cluster snapshot.
func (c *Controller) State() cluster.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Phase returns the controller's current state-machine phase.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// MarkDegraded flags a region as degraded ahead of probe detection, for
// example on a scheduled-maintenance notification. A degraded region is
// treated as unhealthy regardless of probe results.
func (c *Controller) MarkDegraded(regionID string) {
	c.mu.Lock()
	c.degraded[regionID] = struct{}{}
	c.mu.Unlock()
	ctrlLog.Warn("region marked degraded",
		slog.String(logging.KeyRegion, regionID))
}

// ClearDegraded removes a degraded mark.
func (c *Controller) ClearDegraded(regionID string) {
	c.mu.Lock()
	delete(c.degraded, regionID)
	c.mu.Unlock()
	ctrlLog.Info("region degraded mark cleared",
		slog.String(logging.KeyRegion, regionID))
}

func (c *Controller) isDegraded(regionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.degraded[regionID]
	return ok
}

// RegionStatus is one region's view in a status snapshot.
type RegionStatus struct {
	ID         string  `json:"id"`
	Endpoint   string  `json:"endpoint"`
	Role       string  `json:"role"`
	Health     string  `json:"health"`
	LagSeconds float64 `json:"lag_seconds"`
	Degraded   bool    `json:"degraded,omitempty"`
}

// Status is the controller snapshot served by the admin API.
type Status struct {
	Phase               Phase           `json:"phase"`
	Primary             string          `json:"primary"`
	Generation          int64           `json:"generation"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	Regions             []RegionStatus  `json:"regions"`
	LastEventID         string          `json:"last_event_id,omitempty"`
	LastOutcome         cluster.Outcome `json:"last_outcome,omitempty"`
}

// Status returns a point-in-time view of the controller and cluster.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	regions := c.state.Regions()
	out := make([]RegionStatus, 0, len(regions))
	for _, r := range regions {
		lag := r.Lag.Seconds()
		if r.Lag == cluster.InfiniteLag {
			lag = -1
		}
		_, degraded := c.degraded[r.ID]
		out = append(out, RegionStatus{
			ID:         r.ID,
			Endpoint:   r.Endpoint,
			Role:       string(r.Role),
			Health:     string(r.Health),
			LagSeconds: lag,
			Degraded:   degraded,
		})
	}

	return Status{
		Phase:               c.phase,
		Primary:             c.state.PrimaryID(),
		Generation:          c.state.Generation(),
		ConsecutiveFailures: c.consecutiveFailures,
		Regions:             out,
		LastEventID:         c.lastEventID,
		LastOutcome:         c.lastOutcome,
	}
}

// runCycle executes one monitoring cycle: probe the primary, count
// consecutive failures, start a failover once the threshold is crossed.
func (c *Controller) runCycle(ctx context.Context) {
	if c.deps.Leader != nil && !c.deps.Leader.IsLeader() {
		ctrlLog.Debug("not leader, skipping cycle")
		return
	}

	c.refreshTopology(ctx)

	snapshot := c.State()
	primary, ok := snapshot.Primary()
	if !ok {
		ctrlLog.Error("cluster state has no primary")
		return
	}

	health := c.deps.Prober.Probe(ctx, primary)
	if health == cluster.HealthHealthy && c.isDegraded(primary.ID) {
		ctrlLog.Warn("primary probe healthy but region is marked degraded",
			slog.String(logging.KeyRegion, primary.ID))
		health = cluster.HealthUnhealthy
	}
	c.publishHealth(ctx, primary.ID, health)

	c.mu.Lock()
	c.state = c.state.WithObservations(primary.ID, health, primary.Lag)
	if health == cluster.HealthHealthy {
		c.consecutiveFailures = 0
		c.setPhaseLocked(PhaseMonitoring)
		c.mu.Unlock()
		return
	}
	c.consecutiveFailures++
	failures := c.consecutiveFailures
	c.setPhaseLocked(PhaseDetecting)
	c.mu.Unlock()

	if err := c.deps.Metrics.PublishProbeFailure(ctx, primary.ID); err != nil {
		ctrlLog.Warn("metrics publish failed",
			slog.String(logging.KeyError, err.Error()))
	}
	ctrlLog.Warn("primary probe failed",
		slog.String(logging.KeyPrimary, primary.ID),
		slog.Int(logging.KeyFailures, failures))

	if failures < c.cfg.FailureThreshold {
		return
	}

	// An attempt that has started runs to completion even if shutdown
	// begins mid-sequence.
	c.failover(context.WithoutCancel(ctx), TriggerProbeFailure)
}

// refreshTopology reconciles the snapshot against the directory. A load
// failure keeps the cached topology for this cycle.
func (c *Controller) refreshTopology(ctx context.Context) {
	if c.deps.Directory == nil {
		return
	}
	regions, err := c.deps.Directory.Load(ctx)
	if err != nil {
		ctrlLog.Warn("topology refresh failed, keeping cached topology",
			slog.String(logging.KeyError, err.Error()))
		return
	}
	c.mu.Lock()
	c.state = c.state.WithTopology(regions)
	c.mu.Unlock()
}

// setPhaseLocked records a state transition. Callers hold c.mu.
func (c *Controller) setPhaseLocked(next Phase) {
	if c.phase == next {
		return
	}
	ctrlLog.Info("state transition",
		slog.String(logging.KeyState, string(next)),
		slog.String("previous", string(c.phase)),
		slog.String(logging.KeyPrimary, c.state.PrimaryID()))
	c.phase = next
}

func (c *Controller) setPhase(next Phase) {
	c.mu.Lock()
	c.setPhaseLocked(next)
	c.mu.Unlock()
}

func (c *Controller) publishHealth(ctx context.Context, regionID string, health cluster.Health) {
	if err := c.deps.Metrics.PublishRegionHealth(ctx, regionID, health == cluster.HealthHealthy); err != nil {
		ctrlLog.Warn("metrics publish failed",
			slog.String(logging.KeyRegion, regionID),
			slog.String(logging.KeyError, err.Error()))
	}
}
