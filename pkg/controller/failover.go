package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Shavakan/db-failover/pkg/circuit"
	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/logging"
	"github.com/Shavakan/db-failover/pkg/notify"
	"github.com/Shavakan/db-failover/pkg/propagate"
	"github.com/Shavakan/db-failover/pkg/tracing"
)

// ErrAttemptInFlight is returned by TriggerFailover while another attempt
// is already running.
var ErrAttemptInFlight = errors.New("failover attempt already in flight")

// ErrNotLeader is returned by TriggerFailover on a standby instance.
var ErrNotLeader = errors.New("instance does not hold the controller lease")

// TriggerFailover starts a manual failover attempt immediately, without
// waiting for the probe failure threshold. Manual attempts bypass the
// circuit breaker: an open circuit suppresses automatic failovers only.
func (c *Controller) TriggerFailover(ctx context.Context) (*cluster.FailoverEvent, error) {
	if c.deps.Leader != nil && !c.deps.Leader.IsLeader() {
		return nil, ErrNotLeader
	}

	event := c.failover(ctx, TriggerManual)
	if event == nil {
		return nil, ErrAttemptInFlight
	}
	return event, nil
}

// failover runs one complete attempt: candidate selection, promotion,
// propagation, validation. It returns the finalized audit event, or nil
// when the attempt was suppressed before it started.
func (c *Controller) failover(ctx context.Context, trigger string) *cluster.FailoverEvent {
	if !c.attemptMu.TryLock() {
		return nil
	}
	defer c.attemptMu.Unlock()

	// Each attempt consumes the accumulated failure count; a retry needs
	// a fresh threshold crossing.
	defer func() {
		c.mu.Lock()
		c.consecutiveFailures = 0
		c.mu.Unlock()
	}()

	snapshot := c.State()

	if trigger != TriggerManual && c.suppressed(ctx, snapshot) {
		return nil
	}
	if c.deps.Breaker != nil {
		if err := c.deps.Breaker.RecordAttempt(ctx); err != nil {
			ctrlLog.Warn("circuit breaker record failed",
				slog.String(logging.KeyError, err.Error()))
		}
	}

	event := cluster.NewFailoverEvent(trigger, snapshot.PrimaryID(), snapshot.Generation())
	started := time.Now()
	ctx, attemptSpan := c.tracer.StartAttempt(ctx, event.ID, snapshot.PrimaryID(), trigger)
	defer attemptSpan.End()
	ctrlLog.Info("failover attempt started",
		slog.String(logging.KeyEventID, event.ID),
		slog.String(logging.KeyPrimary, snapshot.PrimaryID()),
		slog.String(logging.KeyReason, trigger))

	c.setPhase(PhaseSelectingCandidate)
	selectCtx, selectSpan := c.tracer.StartPhase(ctx, string(PhaseSelectingCandidate))
	candidates := c.observeSecondaries(selectCtx, snapshot)
	event.Candidates = toObservations(candidates)

	target, err := c.deps.Selector.Select(candidates)
	selectSpan.End()
	if err != nil {
		tracing.RecordError(ctx, err)
		c.finish(ctx, event, cluster.OutcomeAbortedNoCandidate, err.Error(), started)
		return event
	}
	event.Target = target.ID

	c.setPhase(PhasePromoting)
	promoteCtx, promoteSpan := c.tracer.StartPhase(ctx, string(PhasePromoting))
	err = c.deps.Promoter.Promote(promoteCtx, target)
	promoteSpan.End()
	if err != nil {
		tracing.RecordError(ctx, err)
		c.finish(ctx, event, cluster.OutcomePromotionFailed, err.Error(), started)
		return event
	}

	// Promotion took effect on the database; from here the snapshot
	// advances no matter how propagation or validation end.
	next, err := snapshot.WithPrimary(target.ID)
	if err != nil {
		c.finish(ctx, event, cluster.OutcomePromotionFailed,
			fmt.Sprintf("promoted %s but state update failed: %v", target.ID, err), started)
		return event
	}
	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
	if err := c.deps.Metrics.PublishGeneration(ctx, next.Generation()); err != nil {
		ctrlLog.Warn("metrics publish failed",
			slog.String(logging.KeyError, err.Error()))
	}

	c.setPhase(PhasePropagating)
	propagateCtx, propagateSpan := c.tracer.StartPhase(ctx, string(PhasePropagating))
	err = c.propagateNewPrimary(propagateCtx, next)
	propagateSpan.End()
	if err != nil {
		tracing.RecordError(ctx, err)
		c.finish(ctx, event, cluster.OutcomePropagationFailed, err.Error(), started)
		return event
	}

	c.setPhase(PhaseValidating)
	newPrimary, _ := next.Primary()
	validateCtx, validateSpan := c.tracer.StartPhase(ctx, string(PhaseValidating))
	err = c.deps.Validator.Validate(validateCtx, newPrimary)
	validateSpan.End()
	if err != nil {
		tracing.RecordError(ctx, err)
		c.finish(ctx, event, cluster.OutcomeValidationFailed,
			fmt.Sprintf("%v; promoted primary left in place, manual review required", err), started)
		return event
	}

	c.finish(ctx, event, cluster.OutcomeSucceeded,
		fmt.Sprintf("promoted %s at generation %d", target.ID, next.Generation()), started)
	return event
}

// suppressed checks the circuit breaker and reports whether the attempt
// must not start.
func (c *Controller) suppressed(ctx context.Context, snapshot cluster.State) bool {
	if c.deps.Breaker == nil {
		return false
	}
	state, err := c.deps.Breaker.Check(ctx)
	if err != nil {
		ctrlLog.Warn("circuit breaker check failed",
			slog.String(logging.KeyError, err.Error()))
		return false
	}
	if state != circuit.StateOpen {
		return false
	}

	ctrlLog.Error("failover suppressed, circuit breaker open",
		slog.String(logging.KeyPrimary, snapshot.PrimaryID()))
	if err := c.deps.Metrics.PublishCircuitBreakerTriggered(ctx); err != nil {
		ctrlLog.Warn("metrics publish failed",
			slog.String(logging.KeyError, err.Error()))
	}
	_ = c.deps.Notifier.Notify(ctx, notify.Notification{
		Severity:   notify.SeverityWarning,
		Title:      "Automatic failover suppressed",
		Detail:     "circuit breaker is open; reset it via the admin API to re-enable automatic failover",
		Region:     snapshot.PrimaryID(),
		Generation: snapshot.Generation(),
	})
	return true
}

// observeSecondaries probes every secondary in parallel and measures lag
// for the healthy ones. Results are folded back into the status snapshot.
func (c *Controller) observeSecondaries(ctx context.Context, snapshot cluster.State) []cluster.Region {
	secondaries := snapshot.Secondaries()
	results := make([]cluster.Region, len(secondaries))

	var wg sync.WaitGroup
	for i, region := range secondaries {
		wg.Add(1)
		go func(i int, region cluster.Region) {
			defer wg.Done()

			health := c.deps.Prober.Probe(ctx, region)
			if health == cluster.HealthHealthy && c.isDegraded(region.ID) {
				health = cluster.HealthUnhealthy
			}
			lag := cluster.InfiniteLag
			if health == cluster.HealthHealthy {
				lag = c.deps.Lag.Lag(ctx, region)
			}

			region.Health = health
			region.Lag = lag
			results[i] = region

			c.publishHealth(ctx, region.ID, health)
			if lag != cluster.InfiniteLag {
				if err := c.deps.Metrics.PublishReplicationLag(ctx, region.ID, lag.Seconds()); err != nil {
					ctrlLog.Warn("metrics publish failed",
						slog.String(logging.KeyRegion, region.ID),
						slog.String(logging.KeyError, err.Error()))
				}
			}
		}(i, region)
	}
	wg.Wait()

	c.mu.Lock()
	for _, r := range results {
		c.state = c.state.WithObservations(r.ID, r.Health, r.Lag)
	}
	c.mu.Unlock()

	return results
}

func (c *Controller) propagateNewPrimary(ctx context.Context, next cluster.State) error {
	announcement, err := propagate.NewAnnouncement(next)
	if err != nil {
		return err
	}
	return c.deps.Announcer.Announce(ctx, announcement)
}

// finish finalizes the attempt: audit record, metrics, notification and
// the terminal phase transition.
func (c *Controller) finish(ctx context.Context, event *cluster.FailoverEvent, outcome cluster.Outcome, detail string, started time.Time) {
	event.Finalize(outcome, detail)
	duration := time.Since(started)

	if outcome == cluster.OutcomeSucceeded {
		c.setPhase(PhaseStable)
	} else {
		c.setPhase(PhaseFailed)
	}
	c.mu.Lock()
	c.lastEventID = event.ID
	c.lastOutcome = outcome
	c.mu.Unlock()

	if err := c.deps.Metrics.PublishFailoverOutcome(ctx, string(outcome)); err != nil {
		ctrlLog.Warn("metrics publish failed",
			slog.String(logging.KeyError, err.Error()))
	}
	if err := c.deps.Metrics.PublishFailoverDuration(ctx, duration.Seconds()); err != nil {
		ctrlLog.Warn("metrics publish failed",
			slog.String(logging.KeyError, err.Error()))
	}
	alertType := "error"
	if outcome == cluster.OutcomeSucceeded {
		alertType = "success"
	}
	if err := c.deps.Metrics.PublishEvent(ctx, "Database failover "+string(outcome), detail, alertType,
		[]string{"target:" + event.Target, "trigger:" + event.Trigger}); err != nil {
		ctrlLog.Warn("metrics publish failed",
			slog.String(logging.KeyError, err.Error()))
	}

	if c.deps.Audit != nil {
		if err := c.deps.Audit.Record(ctx, event); err != nil {
			ctrlLog.Warn("audit record failed",
				slog.String(logging.KeyEventID, event.ID),
				slog.String(logging.KeyError, err.Error()))
		}
	}

	severity := notify.SeverityCritical
	title := "Database failover failed"
	if outcome == cluster.OutcomeSucceeded {
		severity = notify.SeverityInfo
		title = "Database failover completed"
	}
	_ = c.deps.Notifier.Notify(ctx, notify.Notification{
		Severity:   severity,
		Title:      title,
		Detail:     detail,
		Region:     event.Target,
		EventID:    event.ID,
		Generation: c.State().Generation(),
	})

	logFn := ctrlLog.Error
	if outcome == cluster.OutcomeSucceeded {
		logFn = ctrlLog.Info
	}
	logFn("failover attempt finished",
		slog.String(logging.KeyEventID, event.ID),
		slog.String(logging.KeyOutcome, string(outcome)),
		slog.String(logging.KeyTarget, event.Target),
		slog.Int64(logging.KeyDuration, duration.Milliseconds()))
}

func toObservations(regions []cluster.Region) []cluster.CandidateObservation {
	out := make([]cluster.CandidateObservation, 0, len(regions))
	for _, r := range regions {
		out = append(out, cluster.CandidateObservation{
			RegionID: r.ID,
			Health:   r.Health,
			Lag:      r.Lag,
		})
	}
	return out
}
