package cluster

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a failover attempt ended.
type Outcome string

const (
	OutcomeSucceeded         Outcome = "succeeded"
	OutcomeAbortedNoCandidate Outcome = "aborted_no_candidate"
	OutcomePromotionFailed   Outcome = "promotion_failed"
	OutcomePropagationFailed Outcome = "propagation_failed"
	OutcomeValidationFailed  Outcome = "validation_failed"
)

// CandidateObservation records the health and lag seen for one secondary
// during candidate selection, kept on the audit event for postmortems.
type CandidateObservation struct {
	RegionID string        `json:"region_id"`
	Health   Health        `json:"health"`
	Lag      time.Duration `json:"lag"`
}

// FailoverEvent is the audit record of one failover attempt. It is created
// when the controller leaves Monitoring and finalized exactly once when the
// attempt reaches a terminal outcome; afterwards it is immutable.
type FailoverEvent struct {
	ID          string                 `json:"id"`
	Trigger     string                 `json:"trigger"`
	FromPrimary string                 `json:"from_primary"`
	Candidates  []CandidateObservation `json:"candidates,omitempty"`
	Target      string                 `json:"target,omitempty"`
	Outcome     Outcome                `json:"outcome,omitempty"`
	Detail      string                 `json:"detail,omitempty"`
	Generation  int64                  `json:"generation"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at,omitempty"`

	finalized bool
}

// NewFailoverEvent opens an audit record for a failover attempt against
// the named primary.
func NewFailoverEvent(trigger, fromPrimary string, generation int64) *FailoverEvent {
	return &FailoverEvent{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		FromPrimary: fromPrimary,
		Generation:  generation,
		StartedAt:   time.Now().UTC(),
	}
}

// Finalize stamps the terminal outcome. Later calls are ignored so a
// finalized event stays immutable.
func (e *FailoverEvent) Finalize(outcome Outcome, detail string) {
	if e.finalized {
		return
	}
	e.Outcome = outcome
	e.Detail = detail
	e.FinishedAt = time.Now().UTC()
	e.finalized = true
}

// Finalized reports whether the event has reached its terminal outcome.
func (e *FailoverEvent) Finalized() bool { return e.finalized }
