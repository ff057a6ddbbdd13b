// Package promote executes the promotion sequence against the chosen
// candidate: detach from the old primary, confirm the detach took effect,
// then promote.
package promote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/dbadmin"
	"github.com/Shavakan/db-failover/pkg/logging"
)

var promoteLog = logging.WithComponent(logging.LogTypePromoter, "postgres")

// Step names the phase of the sequence where a promotion failed.
type Step string

const (
	StepDetach  Step = "detach"
	StepAwait   Step = "await_detach"
	StepPromote Step = "promote"
)

// Error reports which step of the promotion sequence failed for which
// region. The controller maps any promotion error to a failed attempt; the
// step matters for the audit trail and the page.
type Error struct {
	Region string
	Step   Step
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("promotion of %s failed at %s: %v", e.Region, e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Promoter turns one secondary into a standalone primary.
type Promoter interface {
	Promote(ctx context.Context, target cluster.Region) error
}

// SequencePromoter runs the three-step sequence over the admin channel.
// Detach is confirmed with bounded polling before promote is issued, so a
// region still streaming from the failed primary is never promoted.
type SequencePromoter struct {
	pool        dbadmin.Pool
	ackAttempts int
	ackWait     time.Duration
}

// NewSequencePromoter creates a promoter that confirms detach with up to
// ackAttempts checks spaced ackWait apart.
func NewSequencePromoter(pool dbadmin.Pool, ackAttempts int, ackWait time.Duration) *SequencePromoter {
	if ackAttempts <= 0 {
		ackAttempts = 5
	}
	if ackWait <= 0 {
		ackWait = 3 * time.Second
	}
	return &SequencePromoter{pool: pool, ackAttempts: ackAttempts, ackWait: ackWait}
}

// Promote executes detach, detach confirmation, and the engine promote
// call against the target region.
func (p *SequencePromoter) Promote(ctx context.Context, target cluster.Region) error {
	client, err := p.pool.Client(ctx, target)
	if err != nil {
		return &Error{Region: target.ID, Step: StepDetach, Err: err}
	}

	promoteLog.Info("detaching candidate from replication source",
		slog.String(logging.KeyTarget, target.ID))
	if err := client.Detach(ctx); err != nil {
		return &Error{Region: target.ID, Step: StepDetach, Err: err}
	}

	if err := p.awaitDetach(ctx, client, target.ID); err != nil {
		return &Error{Region: target.ID, Step: StepAwait, Err: err}
	}

	promoteLog.Info("promoting candidate",
		slog.String(logging.KeyTarget, target.ID))
	if err := client.Promote(ctx); err != nil {
		return &Error{Region: target.ID, Step: StepPromote, Err: err}
	}

	promoteLog.Info("promotion complete",
		slog.String(logging.KeyTarget, target.ID))
	return nil
}

// awaitDetach polls until the target reports no inbound replication, or
// the attempt budget is spent.
func (p *SequencePromoter) awaitDetach(ctx context.Context, client dbadmin.Client, regionID string) error {
	var lastErr error
	for attempt := 1; attempt <= p.ackAttempts; attempt++ {
		detached, err := client.Detached(ctx)
		if err != nil {
			lastErr = err
		} else if detached {
			return nil
		} else {
			lastErr = fmt.Errorf("replication stream still attached")
		}

		promoteLog.Warn("detach not confirmed",
			slog.String(logging.KeyRegion, regionID),
			slog.Int(logging.KeyAttempt, attempt),
			slog.String(logging.KeyError, lastErr.Error()))

		if attempt == p.ackAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.ackWait):
		}
	}
	return fmt.Errorf("detach unconfirmed after %d attempts: %w", p.ackAttempts, lastErr)
}

// Ensure SequencePromoter implements Promoter.
var _ Promoter = (*SequencePromoter)(nil)
