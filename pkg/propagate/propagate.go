// Package propagate announces a new primary to every consumer-facing
// channel: the application config store and DNS.
package propagate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/logging"
)

var propagateLog = logging.WithComponent(logging.LogTypePropagate, "fanout")

// Announcement carries everything a channel needs to point applications at
// the new primary.
type Announcement struct {
	RegionID   string    `json:"region_id"`
	Endpoint   string    `json:"endpoint"`
	Generation int64     `json:"generation"`
	PromotedAt time.Time `json:"promoted_at"`
}

// NewAnnouncement builds the announcement for a freshly promoted state.
func NewAnnouncement(state cluster.State) (Announcement, error) {
	primary, ok := state.Primary()
	if !ok {
		return Announcement{}, fmt.Errorf("state has no primary region")
	}
	return Announcement{
		RegionID:   primary.ID,
		Endpoint:   primary.Endpoint,
		Generation: state.Generation(),
		PromotedAt: time.Now().UTC(),
	}, nil
}

// Announcer pushes an announcement to one channel.
type Announcer interface {
	Name() string
	Announce(ctx context.Context, a Announcement) error
}

// Error aggregates the channels that failed during a fan-out. Propagation
// is complete only when every channel acknowledges, so one failed channel
// fails the whole phase.
type Error struct {
	Failures map[string]error
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	return fmt.Sprintf("propagation failed on %s", strings.Join(names, ", "))
}

// Fanout announces to all channels concurrently and waits for every one.
type Fanout struct {
	announcers []Announcer
}

// NewFanout creates a fan-out over the given channels.
func NewFanout(announcers ...Announcer) *Fanout {
	return &Fanout{announcers: announcers}
}

// Announce pushes to every channel in parallel. It returns nil only when
// all channels acknowledge; otherwise a *Error naming each failed channel.
func (f *Fanout) Announce(ctx context.Context, a Announcement) error {
	if len(f.announcers) == 0 {
		return fmt.Errorf("no propagation channels configured")
	}

	var mu sync.Mutex
	failures := make(map[string]error)

	var wg sync.WaitGroup
	for _, announcer := range f.announcers {
		wg.Add(1)
		go func(ann Announcer) {
			defer wg.Done()
			if err := ann.Announce(ctx, a); err != nil {
				propagateLog.Error("channel announcement failed",
					slog.String(logging.KeyChannel, ann.Name()),
					slog.String(logging.KeyPrimary, a.RegionID),
					slog.String(logging.KeyError, err.Error()))
				mu.Lock()
				failures[ann.Name()] = err
				mu.Unlock()
				return
			}
			propagateLog.Info("channel acknowledged new primary",
				slog.String(logging.KeyChannel, ann.Name()),
				slog.String(logging.KeyPrimary, a.RegionID),
				slog.Int64(logging.KeyGeneration, a.Generation))
		}(announcer)
	}
	wg.Wait()

	if len(failures) > 0 {
		return &Error{Failures: failures}
	}
	return nil
}
