package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Shavakan/db-failover/pkg/circuit"
	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/metrics"
	"github.com/Shavakan/db-failover/pkg/notify"
	"github.com/Shavakan/db-failover/pkg/propagate"
	"github.com/Shavakan/db-failover/pkg/selector"
)

type fakeProber struct {
	mu        sync.Mutex
	unhealthy map[string]bool
}

func (p *fakeProber) Probe(_ context.Context, region cluster.Region) cluster.Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unhealthy[region.ID] {
		return cluster.HealthUnhealthy
	}
	return cluster.HealthHealthy
}

func (p *fakeProber) setUnhealthy(regionID string, down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unhealthy[regionID] = down
}

type fakeLag struct {
	mu   sync.Mutex
	lags map[string]time.Duration
}

func (l *fakeLag) Lag(_ context.Context, region cluster.Region) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lag, ok := l.lags[region.ID]; ok {
		return lag
	}
	return cluster.InfiniteLag
}

type fakePromoter struct {
	mu     sync.Mutex
	calls  int
	target string
	err    error
}

func (p *fakePromoter) Promote(_ context.Context, target cluster.Region) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.target = target.ID
	return p.err
}

type fakeAnnouncer struct {
	mu    sync.Mutex
	calls int
	last  propagate.Announcement
	err   error
}

func (a *fakeAnnouncer) Announce(_ context.Context, ann propagate.Announcement) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.last = ann
	return a.err
}

type fakeValidator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (v *fakeValidator) Validate(_ context.Context, _ cluster.Region) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.err
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingNotifier) Name() string { return "record" }

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingNotifier) bySeverity(s notify.Severity) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.got {
		if n.Severity == s {
			out = append(out, n)
		}
	}
	return out
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*cluster.FailoverEvent
}

func (r *recordingAudit) Record(_ context.Context, event *cluster.FailoverEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type fakeBreaker struct {
	mu       sync.Mutex
	state    circuit.State
	attempts int
}

func (b *fakeBreaker) Check(_ context.Context) (circuit.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, nil
}

func (b *fakeBreaker) RecordAttempt(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	return nil
}

type staticLeader struct{ leading bool }

func (l *staticLeader) IsLeader() bool { return l.leading }

type harness struct {
	prober    *fakeProber
	lag       *fakeLag
	promoter  *fakePromoter
	announcer *fakeAnnouncer
	validator *fakeValidator
	notifier  *recordingNotifier
	audit     *recordingAudit
	breaker   *fakeBreaker
	leader    *staticLeader
	ctrl      *Controller
}

// newHarness builds a three-region cluster with us-east-1 as primary and
// two eligible secondaries, us-west-2 trailing by the smaller lag.
func newHarness(t *testing.T) *harness {
	t.Helper()

	regions := []cluster.Region{
		{ID: "us-east-1", Endpoint: "db-use1.internal:5432", Role: cluster.RolePrimary},
		{ID: "us-west-2", Endpoint: "db-usw2.internal:5432", Role: cluster.RoleSecondary},
		{ID: "ap-northeast-1", Endpoint: "db-apne1.internal:5432", Role: cluster.RoleSecondary},
	}
	state, err := cluster.NewState(regions, 1)
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}

	h := &harness{
		prober: &fakeProber{unhealthy: make(map[string]bool)},
		lag: &fakeLag{lags: map[string]time.Duration{
			"us-west-2":      10 * time.Second,
			"ap-northeast-1": 30 * time.Second,
		}},
		promoter:  &fakePromoter{},
		announcer: &fakeAnnouncer{},
		validator: &fakeValidator{},
		notifier:  &recordingNotifier{},
		audit:     &recordingAudit{},
		breaker:   &fakeBreaker{state: circuit.StateClosed},
		leader:    &staticLeader{leading: true},
	}
	h.ctrl = New(
		Config{PollInterval: time.Second, FailureThreshold: 3},
		state,
		Deps{
			Prober:    h.prober,
			Lag:       h.lag,
			Selector:  selector.NewLagSelector(300 * time.Second),
			Promoter:  h.promoter,
			Announcer: h.announcer,
			Validator: h.validator,
			Notifier:  h.notifier,
			Audit:     h.audit,
			Breaker:   h.breaker,
			Metrics:   metrics.NoopPublisher{},
			Leader:    h.leader,
		},
	)
	return h
}

func (h *harness) cycles(n int) {
	for i := 0; i < n; i++ {
		h.ctrl.runCycle(context.Background())
	}
}

func (h *harness) lastEvent(t *testing.T) *cluster.FailoverEvent {
	t.Helper()
	h.audit.mu.Lock()
	defer h.audit.mu.Unlock()
	if len(h.audit.events) == 0 {
		t.Fatal("no audit events recorded")
	}
	return h.audit.events[len(h.audit.events)-1]
}

type fakeDirectory struct {
	mu      sync.Mutex
	regions []cluster.Region
	err     error
	loads   int
}

func (d *fakeDirectory) Load(_ context.Context) ([]cluster.Region, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loads++
	return d.regions, d.err
}

func TestController_TopologyRefreshedEveryCycle(t *testing.T) {
	h := newHarness(t)
	dir := &fakeDirectory{regions: []cluster.Region{
		{ID: "us-east-1", Endpoint: "db-use1.internal:5432", Role: cluster.RolePrimary},
		{ID: "us-west-2", Endpoint: "db-usw2-moved.internal:5432", Role: cluster.RoleSecondary},
		{ID: "ap-northeast-1", Endpoint: "db-apne1.internal:5432", Role: cluster.RoleSecondary},
	}}
	h.ctrl.deps.Directory = dir

	h.cycles(2)

	if dir.loads != 2 {
		t.Errorf("directory loaded %d times, want 2", dir.loads)
	}
	moved, _ := h.ctrl.State().Region("us-west-2")
	if moved.Endpoint != "db-usw2-moved.internal:5432" {
		t.Errorf("endpoint not refreshed: %s", moved.Endpoint)
	}
}

func TestController_TopologyRefreshFailureKeepsCache(t *testing.T) {
	h := newHarness(t)
	h.ctrl.deps.Directory = &fakeDirectory{err: fmt.Errorf("ssm unavailable")}

	h.cycles(1)

	cached, ok := h.ctrl.State().Region("us-west-2")
	if !ok || cached.Endpoint != "db-usw2.internal:5432" {
		t.Errorf("cached topology lost on refresh failure: %+v", cached)
	}
}

func TestController_HealthyPrimaryHoldsSteady(t *testing.T) {
	h := newHarness(t)

	h.cycles(3)

	if h.promoter.calls != 0 {
		t.Errorf("promoter called %d times, want 0", h.promoter.calls)
	}
	if got := h.ctrl.Phase(); got != PhaseMonitoring {
		t.Errorf("phase = %s, want monitoring", got)
	}
	if got := h.ctrl.State().Generation(); got != 1 {
		t.Errorf("generation = %d, want 1", got)
	}
}

func TestController_FailoverAfterConsecutiveFailures(t *testing.T) {
	h := newHarness(t)
	h.prober.setUnhealthy("us-east-1", true)

	h.cycles(2)
	if h.promoter.calls != 0 {
		t.Fatalf("failover started after %d cycles, want threshold 3", 2)
	}
	if got := h.ctrl.Phase(); got != PhaseDetecting {
		t.Errorf("phase = %s, want detecting", got)
	}

	h.cycles(1)

	if h.promoter.calls != 1 {
		t.Fatalf("promoter called %d times, want 1", h.promoter.calls)
	}
	if h.promoter.target != "us-west-2" {
		t.Errorf("promoted %s, want us-west-2 (lowest lag)", h.promoter.target)
	}

	state := h.ctrl.State()
	if state.PrimaryID() != "us-west-2" {
		t.Errorf("primary = %s, want us-west-2", state.PrimaryID())
	}
	if state.Generation() != 2 {
		t.Errorf("generation = %d, want 2", state.Generation())
	}
	if got := h.ctrl.Phase(); got != PhaseStable {
		t.Errorf("phase = %s, want stable", got)
	}

	event := h.lastEvent(t)
	if event.Outcome != cluster.OutcomeSucceeded {
		t.Errorf("outcome = %s, want succeeded", event.Outcome)
	}
	if event.Trigger != TriggerProbeFailure {
		t.Errorf("trigger = %s, want %s", event.Trigger, TriggerProbeFailure)
	}
	if len(event.Candidates) != 2 {
		t.Errorf("candidates = %d, want 2", len(event.Candidates))
	}

	if h.announcer.calls != 1 {
		t.Errorf("announcer called %d times, want 1", h.announcer.calls)
	}
	if h.announcer.last.Generation != 2 || h.announcer.last.RegionID != "us-west-2" {
		t.Errorf("announcement = %+v, want us-west-2 generation 2", h.announcer.last)
	}
	if h.validator.calls != 1 {
		t.Errorf("validator called %d times, want 1", h.validator.calls)
	}
	if h.breaker.attempts != 1 {
		t.Errorf("breaker attempts = %d, want 1", h.breaker.attempts)
	}
	if infos := h.notifier.bySeverity(notify.SeverityInfo); len(infos) != 1 {
		t.Errorf("info notifications = %d, want 1", len(infos))
	}
}

func TestController_RecoveryResetsFailureCount(t *testing.T) {
	h := newHarness(t)

	h.prober.setUnhealthy("us-east-1", true)
	h.cycles(2)
	h.prober.setUnhealthy("us-east-1", false)
	h.cycles(1)
	h.prober.setUnhealthy("us-east-1", true)
	h.cycles(2)

	if h.promoter.calls != 0 {
		t.Errorf("promoter called %d times, want 0 after recovery reset", h.promoter.calls)
	}
	if got := h.ctrl.Status().ConsecutiveFailures; got != 2 {
		t.Errorf("consecutive failures = %d, want 2", got)
	}
}

func TestController_NoEligibleCandidateAborts(t *testing.T) {
	h := newHarness(t)
	h.prober.setUnhealthy("us-east-1", true)
	h.prober.setUnhealthy("us-west-2", true)
	h.prober.setUnhealthy("ap-northeast-1", true)

	h.cycles(3)

	if h.promoter.calls != 0 {
		t.Errorf("promoter called %d times, want 0", h.promoter.calls)
	}
	event := h.lastEvent(t)
	if event.Outcome != cluster.OutcomeAbortedNoCandidate {
		t.Errorf("outcome = %s, want aborted_no_candidate", event.Outcome)
	}

	// No eligible candidate leaves the cluster state untouched.
	state := h.ctrl.State()
	if state.PrimaryID() != "us-east-1" || state.Generation() != 1 {
		t.Errorf("state changed: primary=%s generation=%d", state.PrimaryID(), state.Generation())
	}
	if got := h.ctrl.Phase(); got != PhaseFailed {
		t.Errorf("phase = %s, want failed", got)
	}
	if criticals := h.notifier.bySeverity(notify.SeverityCritical); len(criticals) != 1 {
		t.Errorf("critical notifications = %d, want 1", len(criticals))
	}
}

func TestController_PromotionFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.promoter.err = fmt.Errorf("pg_promote timed out")
	h.prober.setUnhealthy("us-east-1", true)

	h.cycles(3)

	event := h.lastEvent(t)
	if event.Outcome != cluster.OutcomePromotionFailed {
		t.Errorf("outcome = %s, want promotion_failed", event.Outcome)
	}
	state := h.ctrl.State()
	if state.PrimaryID() != "us-east-1" || state.Generation() != 1 {
		t.Errorf("state changed: primary=%s generation=%d", state.PrimaryID(), state.Generation())
	}
	if h.announcer.calls != 0 {
		t.Errorf("announcer called %d times, want 0", h.announcer.calls)
	}
}

func TestController_PropagationFailureAdvancesState(t *testing.T) {
	h := newHarness(t)
	h.announcer.err = fmt.Errorf("route53 change rejected")
	h.prober.setUnhealthy("us-east-1", true)

	h.cycles(3)

	event := h.lastEvent(t)
	if event.Outcome != cluster.OutcomePropagationFailed {
		t.Errorf("outcome = %s, want propagation_failed", event.Outcome)
	}

	// Promotion already took effect on the database, so the snapshot advances.
	state := h.ctrl.State()
	if state.PrimaryID() != "us-west-2" || state.Generation() != 2 {
		t.Errorf("state = primary=%s generation=%d, want us-west-2/2", state.PrimaryID(), state.Generation())
	}
	if h.validator.calls != 0 {
		t.Errorf("validator called %d times, want 0", h.validator.calls)
	}
}

func TestController_ValidationFailureAdvancesStateWithoutRollback(t *testing.T) {
	h := newHarness(t)
	h.validator.err = fmt.Errorf("marker write timed out")
	h.prober.setUnhealthy("us-east-1", true)

	h.cycles(3)

	event := h.lastEvent(t)
	if event.Outcome != cluster.OutcomeValidationFailed {
		t.Errorf("outcome = %s, want validation_failed", event.Outcome)
	}
	state := h.ctrl.State()
	if state.PrimaryID() != "us-west-2" || state.Generation() != 2 {
		t.Errorf("state = primary=%s generation=%d, want us-west-2/2", state.PrimaryID(), state.Generation())
	}
	if h.promoter.calls != 1 {
		t.Errorf("promoter called %d times, want exactly 1 (no rollback)", h.promoter.calls)
	}
	if criticals := h.notifier.bySeverity(notify.SeverityCritical); len(criticals) != 1 {
		t.Errorf("critical notifications = %d, want 1", len(criticals))
	}
}

func TestController_CircuitOpenSuppressesAutomaticFailover(t *testing.T) {
	h := newHarness(t)
	h.breaker.state = circuit.StateOpen
	h.prober.setUnhealthy("us-east-1", true)

	h.cycles(3)

	if h.promoter.calls != 0 {
		t.Errorf("promoter called %d times, want 0 while circuit open", h.promoter.calls)
	}
	if h.breaker.attempts != 0 {
		t.Errorf("breaker attempts = %d, want 0", h.breaker.attempts)
	}
	if len(h.audit.events) != 0 {
		t.Errorf("audit events = %d, want 0", len(h.audit.events))
	}
	if warnings := h.notifier.bySeverity(notify.SeverityWarning); len(warnings) == 0 {
		t.Error("expected a warning notification for the suppressed attempt")
	}
}

func TestController_ManualTriggerBypassesCircuit(t *testing.T) {
	h := newHarness(t)
	h.breaker.state = circuit.StateOpen

	event, err := h.ctrl.TriggerFailover(context.Background())
	if err != nil {
		t.Fatalf("TriggerFailover failed: %v", err)
	}
	if event.Trigger != TriggerManual {
		t.Errorf("trigger = %s, want manual", event.Trigger)
	}
	if event.Outcome != cluster.OutcomeSucceeded {
		t.Errorf("outcome = %s, want succeeded", event.Outcome)
	}
	if got := h.ctrl.State().Generation(); got != 2 {
		t.Errorf("generation = %d, want 2", got)
	}
}

func TestController_ManualTriggerOnStandby(t *testing.T) {
	h := newHarness(t)
	h.leader.leading = false

	if _, err := h.ctrl.TriggerFailover(context.Background()); err != ErrNotLeader {
		t.Errorf("err = %v, want ErrNotLeader", err)
	}
}

func TestController_StandbySkipsCycles(t *testing.T) {
	h := newHarness(t)
	h.leader.leading = false
	h.prober.setUnhealthy("us-east-1", true)

	h.cycles(5)

	if h.promoter.calls != 0 {
		t.Errorf("promoter called %d times, want 0 on standby", h.promoter.calls)
	}
	if got := h.ctrl.Status().ConsecutiveFailures; got != 0 {
		t.Errorf("consecutive failures = %d, want 0 on standby", got)
	}
}

func TestController_DegradedPrimaryTreatedAsUnhealthy(t *testing.T) {
	h := newHarness(t)
	h.ctrl.MarkDegraded("us-east-1")

	h.cycles(3)

	if h.promoter.calls != 1 {
		t.Fatalf("promoter called %d times, want 1", h.promoter.calls)
	}
	if h.promoter.target != "us-west-2" {
		t.Errorf("promoted %s, want us-west-2", h.promoter.target)
	}
}

func TestController_DegradedSecondaryNotEligible(t *testing.T) {
	h := newHarness(t)
	h.prober.setUnhealthy("us-east-1", true)
	h.ctrl.MarkDegraded("us-west-2")

	h.cycles(3)

	if h.promoter.target != "ap-northeast-1" {
		t.Errorf("promoted %s, want ap-northeast-1 with us-west-2 degraded", h.promoter.target)
	}
}

func TestController_ClearDegradedRestoresEligibility(t *testing.T) {
	h := newHarness(t)
	h.ctrl.MarkDegraded("us-east-1")
	h.ctrl.ClearDegraded("us-east-1")

	h.cycles(3)

	if h.promoter.calls != 0 {
		t.Errorf("promoter called %d times, want 0 after degraded mark cleared", h.promoter.calls)
	}
}

func TestController_StatusSnapshot(t *testing.T) {
	h := newHarness(t)
	h.prober.setUnhealthy("us-east-1", true)
	h.cycles(3)

	status := h.ctrl.Status()
	if status.Phase != PhaseStable {
		t.Errorf("phase = %s, want stable", status.Phase)
	}
	if status.Primary != "us-west-2" {
		t.Errorf("primary = %s, want us-west-2", status.Primary)
	}
	if status.Generation != 2 {
		t.Errorf("generation = %d, want 2", status.Generation)
	}
	if status.LastOutcome != cluster.OutcomeSucceeded {
		t.Errorf("last outcome = %s, want succeeded", status.LastOutcome)
	}
	if status.LastEventID == "" {
		t.Error("last event id not set")
	}
	if len(status.Regions) != 3 {
		t.Errorf("regions = %d, want 3", len(status.Regions))
	}
}

func TestController_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
