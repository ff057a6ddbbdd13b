// Package validate confirms that a freshly promoted primary accepts writes.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/dbadmin"
	"github.com/Shavakan/db-failover/pkg/logging"
)

var validateLog = logging.WithComponent(logging.LogTypeValidate, "marker")

// Error reports a write-validation failure against the new primary. The
// cluster state has already advanced when validation runs, so the caller
// alerts instead of reverting.
type Error struct {
	Region   string
	MarkerID string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("write validation against %s failed: %v", e.Region, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Validator confirms write availability on a primary.
type Validator interface {
	Validate(ctx context.Context, primary cluster.Region) error
}

// MarkerValidator inserts a uniquely identified marker row into the new
// primary within a bounded window. A committed insert proves the region
// accepts writes end to end, credentials and routing included.
type MarkerValidator struct {
	pool    dbadmin.Pool
	timeout time.Duration
}

// NewMarkerValidator creates a validator with the given write window.
func NewMarkerValidator(pool dbadmin.Pool, timeout time.Duration) *MarkerValidator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MarkerValidator{pool: pool, timeout: timeout}
}

// Validate writes one marker row to the primary.
func (v *MarkerValidator) Validate(ctx context.Context, primary cluster.Region) error {
	markerID := uuid.NewString()

	writeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	client, err := v.pool.Client(writeCtx, primary)
	if err != nil {
		return &Error{Region: primary.ID, MarkerID: markerID, Err: err}
	}

	if err := client.WriteMarker(writeCtx, markerID); err != nil {
		return &Error{Region: primary.ID, MarkerID: markerID, Err: err}
	}

	validateLog.Info("write validation succeeded",
		slog.String(logging.KeyRegion, primary.ID),
		slog.String(logging.KeyEventID, markerID))
	return nil
}

// Ensure MarkerValidator implements Validator.
var _ Validator = (*MarkerValidator)(nil)
