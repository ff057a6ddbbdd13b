// Package cluster defines the data model for multi-region database topology:
// regions, immutable cluster-state snapshots, and failover audit events.
package cluster

import (
	"fmt"
	"slices"
	"time"
)

// Role identifies whether a region accepts writes.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Health is the last observed liveness classification for a region.
type Health string

const (
	HealthUnknown   Health = "unknown"
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
)

// InfiniteLag is the sentinel replication lag reported when the lag metric
// is unavailable. It compares greater than any configurable staleness
// threshold so unmeasurable secondaries are never eligible for promotion.
const InfiniteLag = time.Duration(1<<63 - 1)

// Region is one database region as observed by the controller.
// Endpoint is host:port of the administrative/query interface.
// CredentialsRef names the secret holding the DSN credentials for the
// region; resolution happens in pkg/secrets.
type Region struct {
	ID             string
	Endpoint       string
	CredentialsRef string
	Role           Role
	Health         Health
	Lag            time.Duration
}

// State is an immutable snapshot of the cluster. The controller owns the
// current snapshot and replaces it wholesale on every successful
// promotion; all other components only ever read a snapshot.
type State struct {
	primaryID  string
	regions    []Region
	generation int64
}

// NewState builds the initial snapshot from directory regions. Exactly one
// region must carry the primary role.
func NewState(regions []Region, generation int64) (State, error) {
	primaryID := ""
	for _, r := range regions {
		if r.Role != RolePrimary {
			continue
		}
		if primaryID != "" {
			return State{}, fmt.Errorf("regions %s and %s both declare role primary", primaryID, r.ID)
		}
		primaryID = r.ID
	}
	if primaryID == "" {
		return State{}, fmt.Errorf("no region declares role primary")
	}

	sorted := slices.Clone(regions)
	slices.SortFunc(sorted, func(a, b Region) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	return State{primaryID: primaryID, regions: sorted, generation: generation}, nil
}

// PrimaryID returns the region currently holding the primary role.
func (s State) PrimaryID() string { return s.primaryID }

// Generation returns the monotonically increasing promotion counter.
func (s State) Generation() int64 { return s.generation }

// Regions returns a copy of the ordered region set.
func (s State) Regions() []Region {
	return slices.Clone(s.regions)
}

// Region looks up a region by ID.
func (s State) Region(id string) (Region, bool) {
	for _, r := range s.regions {
		if r.ID == id {
			return r, true
		}
	}
	return Region{}, false
}

// Primary returns the current primary region.
func (s State) Primary() (Region, bool) {
	return s.Region(s.primaryID)
}

// Secondaries returns the regions currently acting as secondaries.
func (s State) Secondaries() []Region {
	out := make([]Region, 0, len(s.regions))
	for _, r := range s.regions {
		if r.Role == RoleSecondary {
			out = append(out, r)
		}
	}
	return out
}

// WithObservations returns a new snapshot carrying fresh health and lag
// observations for the named region. Unknown IDs are ignored.
func (s State) WithObservations(id string, health Health, lag time.Duration) State {
	next := s.clone()
	for i := range next.regions {
		if next.regions[i].ID == id {
			next.regions[i].Health = health
			next.regions[i].Lag = lag
			break
		}
	}
	return next
}

// WithTopology reconciles the snapshot against a freshly loaded directory
// document. Endpoints and credential references follow the directory; new
// regions join as secondaries with unknown health; regions missing from
// the document are dropped unless they hold the primary role. Roles,
// observations and the generation counter are controller-owned and are
// not touched by a topology refresh.
func (s State) WithTopology(regions []Region) State {
	byID := make(map[string]Region, len(regions))
	for _, r := range regions {
		byID[r.ID] = r
	}

	next := State{primaryID: s.primaryID, generation: s.generation}
	for _, existing := range s.regions {
		loaded, ok := byID[existing.ID]
		if !ok {
			if existing.ID == s.primaryID {
				next.regions = append(next.regions, existing)
			}
			continue
		}
		existing.Endpoint = loaded.Endpoint
		existing.CredentialsRef = loaded.CredentialsRef
		next.regions = append(next.regions, existing)
		delete(byID, existing.ID)
	}
	for _, loaded := range byID {
		loaded.Role = RoleSecondary
		loaded.Health = HealthUnknown
		next.regions = append(next.regions, loaded)
	}

	slices.SortFunc(next.regions, func(a, b Region) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return next
}

// WithPrimary returns a new snapshot where target is the primary, the old
// primary is demoted to secondary, and the generation counter advances by
// exactly one. This is the functional update applied after a successful
// promotion; the previous snapshot is never mutated.
func (s State) WithPrimary(target string) (State, error) {
	if _, ok := s.Region(target); !ok {
		return State{}, fmt.Errorf("region %s not in cluster state", target)
	}

	next := s.clone()
	for i := range next.regions {
		switch next.regions[i].ID {
		case target:
			next.regions[i].Role = RolePrimary
		case s.primaryID:
			next.regions[i].Role = RoleSecondary
		}
	}
	next.primaryID = target
	next.generation = s.generation + 1
	return next, nil
}

func (s State) clone() State {
	return State{
		primaryID:  s.primaryID,
		regions:    slices.Clone(s.regions),
		generation: s.generation,
	}
}
