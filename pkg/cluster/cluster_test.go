package cluster

import (
	"testing"
	"time"
)

func threeRegions() []Region {
	return []Region{
		{ID: "us-east-1", Endpoint: "db-use1.internal:5432", Role: RoleSecondary, Health: HealthUnknown},
		{ID: "ap-northeast-1", Endpoint: "db-apne1.internal:5432", Role: RolePrimary, Health: HealthUnknown},
		{ID: "eu-west-1", Endpoint: "db-euw1.internal:5432", Role: RoleSecondary, Health: HealthUnknown},
	}
}

func TestNewState(t *testing.T) {
	state, err := NewState(threeRegions(), 0)
	if err != nil {
		t.Fatalf("NewState() failed: %v", err)
	}

	if state.PrimaryID() != "ap-northeast-1" {
		t.Errorf("PrimaryID = %s, want ap-northeast-1", state.PrimaryID())
	}
	if state.Generation() != 0 {
		t.Errorf("Generation = %d, want 0", state.Generation())
	}

	regions := state.Regions()
	if len(regions) != 3 {
		t.Fatalf("Regions() len = %d, want 3", len(regions))
	}
	// Regions are held sorted by ID for deterministic iteration.
	if regions[0].ID != "ap-northeast-1" || regions[1].ID != "eu-west-1" || regions[2].ID != "us-east-1" {
		t.Errorf("unexpected region ordering: %v, %v, %v", regions[0].ID, regions[1].ID, regions[2].ID)
	}

	if got := state.Secondaries(); len(got) != 2 {
		t.Errorf("Secondaries() len = %d, want 2", len(got))
	}
}

func TestNewState_RejectsDualPrimary(t *testing.T) {
	regions := threeRegions()
	regions[0].Role = RolePrimary

	if _, err := NewState(regions, 0); err == nil {
		t.Fatal("expected error for two primaries")
	}
}

func TestNewState_RejectsNoPrimary(t *testing.T) {
	regions := threeRegions()
	regions[1].Role = RoleSecondary

	if _, err := NewState(regions, 0); err == nil {
		t.Fatal("expected error for zero primaries")
	}
}

func TestWithPrimary(t *testing.T) {
	state, err := NewState(threeRegions(), 4)
	if err != nil {
		t.Fatalf("NewState() failed: %v", err)
	}

	next, err := state.WithPrimary("us-east-1")
	if err != nil {
		t.Fatalf("WithPrimary() failed: %v", err)
	}

	if next.PrimaryID() != "us-east-1" {
		t.Errorf("new PrimaryID = %s, want us-east-1", next.PrimaryID())
	}
	if next.Generation() != 5 {
		t.Errorf("new Generation = %d, want 5", next.Generation())
	}

	promoted, _ := next.Region("us-east-1")
	if promoted.Role != RolePrimary {
		t.Errorf("promoted region role = %s, want primary", promoted.Role)
	}
	demoted, _ := next.Region("ap-northeast-1")
	if demoted.Role != RoleSecondary {
		t.Errorf("demoted region role = %s, want secondary", demoted.Role)
	}

	// Original snapshot is untouched.
	if state.PrimaryID() != "ap-northeast-1" {
		t.Errorf("original snapshot mutated: primary = %s", state.PrimaryID())
	}
	if state.Generation() != 4 {
		t.Errorf("original snapshot mutated: generation = %d", state.Generation())
	}
}

func TestWithPrimary_UnknownRegion(t *testing.T) {
	state, _ := NewState(threeRegions(), 0)
	if _, err := state.WithPrimary("sa-east-1"); err == nil {
		t.Fatal("expected error for unknown region")
	}
}

func TestWithObservations(t *testing.T) {
	state, _ := NewState(threeRegions(), 0)

	next := state.WithObservations("eu-west-1", HealthHealthy, 12*time.Second)

	observed, _ := next.Region("eu-west-1")
	if observed.Health != HealthHealthy || observed.Lag != 12*time.Second {
		t.Errorf("observation not applied: health=%s lag=%v", observed.Health, observed.Lag)
	}

	before, _ := state.Region("eu-west-1")
	if before.Health != HealthUnknown {
		t.Error("original snapshot mutated by WithObservations")
	}
}

func TestWithTopology(t *testing.T) {
	state, _ := NewState(threeRegions(), 0)
	state = state.WithObservations("eu-west-1", HealthHealthy, 12*time.Second)

	// Refresh document: us-east-1 gone, sa-east-1 new, eu-west-1 moved.
	next := state.WithTopology([]Region{
		{ID: "ap-northeast-1", Endpoint: "db-apne1.internal:5432", Role: RolePrimary},
		{ID: "eu-west-1", Endpoint: "db-euw1-new.internal:5432", Role: RoleSecondary},
		{ID: "sa-east-1", Endpoint: "db-sae1.internal:5432", Role: RoleSecondary},
	})

	if next.PrimaryID() != "ap-northeast-1" || next.Generation() != 0 {
		t.Errorf("primary/generation changed by refresh: %s gen %d", next.PrimaryID(), next.Generation())
	}
	if _, ok := next.Region("us-east-1"); ok {
		t.Error("removed region still present after refresh")
	}

	moved, _ := next.Region("eu-west-1")
	if moved.Endpoint != "db-euw1-new.internal:5432" {
		t.Errorf("endpoint not updated: %s", moved.Endpoint)
	}
	if moved.Health != HealthHealthy || moved.Lag != 12*time.Second {
		t.Errorf("observations lost on refresh: health=%s lag=%v", moved.Health, moved.Lag)
	}

	added, ok := next.Region("sa-east-1")
	if !ok {
		t.Fatal("new region missing after refresh")
	}
	if added.Role != RoleSecondary || added.Health != HealthUnknown {
		t.Errorf("new region joins as %s/%s, want secondary/unknown", added.Role, added.Health)
	}
}

func TestWithTopology_KeepsPrimaryWhenMissing(t *testing.T) {
	state, _ := NewState(threeRegions(), 2)

	next := state.WithTopology([]Region{
		{ID: "us-east-1", Endpoint: "db-use1.internal:5432", Role: RoleSecondary},
	})

	if _, ok := next.Primary(); !ok {
		t.Fatal("primary dropped by topology refresh")
	}
	if next.PrimaryID() != "ap-northeast-1" {
		t.Errorf("PrimaryID = %s, want ap-northeast-1", next.PrimaryID())
	}
}

func TestFailoverEvent_FinalizeOnce(t *testing.T) {
	event := NewFailoverEvent("primary probe failures", "ap-northeast-1", 4)

	if event.ID == "" {
		t.Error("expected event ID to be assigned")
	}
	if event.Finalized() {
		t.Error("new event should not be finalized")
	}

	event.Finalize(OutcomeSucceeded, "promoted us-east-1")
	if !event.Finalized() {
		t.Fatal("event should be finalized")
	}
	first := event.FinishedAt

	event.Finalize(OutcomePromotionFailed, "overwrite attempt")
	if event.Outcome != OutcomeSucceeded {
		t.Errorf("finalized event mutated: outcome = %s", event.Outcome)
	}
	if !event.FinishedAt.Equal(first) {
		t.Error("finalized event timestamp mutated")
	}
}

func TestInfiniteLag_ExceedsAnyThreshold(t *testing.T) {
	if InfiniteLag <= 300*time.Second {
		t.Error("InfiniteLag must exceed any staleness threshold")
	}
}
