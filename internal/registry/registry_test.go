package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haventree/shepherd/internal/models"
	"github.com/haventree/shepherd/internal/policy"
	"github.com/haventree/shepherd/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	return New(st, policy.New()), st
}

func saveLeader(t *testing.T, st *store.InMemoryStore, l models.LeaderProfile) {
	t.Helper()
	if err := st.SaveLeader(l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Get(context.Background(), "leader_missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindAvailableFiltersAndOrders(t *testing.T) {
	reg, st := newTestRegistry(t)
	base := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	grief := []models.HelpCategory{models.CategoryGrief}

	saveLeader(t, st, models.LeaderProfile{ID: "busy", ExpertiseAreas: grief, IsActive: true, IsAvailable: true, OpenConversations: 3, LastAssignedAt: base})
	saveLeader(t, st, models.LeaderProfile{ID: "idle", ExpertiseAreas: grief, IsActive: true, IsAvailable: true, OpenConversations: 1, LastAssignedAt: base.Add(time.Hour)})
	saveLeader(t, st, models.LeaderProfile{ID: "idle-longer", ExpertiseAreas: grief, IsActive: true, IsAvailable: true, OpenConversations: 1, LastAssignedAt: base})
	saveLeader(t, st, models.LeaderProfile{ID: "never-assigned", ExpertiseAreas: grief, IsActive: true, IsAvailable: true, OpenConversations: 1})
	saveLeader(t, st, models.LeaderProfile{ID: "inactive", ExpertiseAreas: grief, IsActive: false, IsAvailable: true})
	saveLeader(t, st, models.LeaderProfile{ID: "unavailable", ExpertiseAreas: grief, IsActive: true, IsAvailable: false})
	saveLeader(t, st, models.LeaderProfile{ID: "unqualified", ExpertiseAreas: []models.HelpCategory{models.CategoryFinancial}, IsActive: true, IsAvailable: true})

	got, err := reg.FindAvailable(context.Background(), models.CategoryGrief)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"never-assigned", "idle-longer", "idle", "busy"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("candidate %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestSetAvailability(t *testing.T) {
	reg, st := newTestRegistry(t)
	saveLeader(t, st, models.LeaderProfile{ID: "leader_1", IsActive: true, IsAvailable: true})

	if err := reg.SetAvailability(context.Background(), "leader_1", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l, _ := st.GetLeader("leader_1")
	if l.IsAvailable {
		t.Error("leader should be unavailable after toggle off")
	}

	err := reg.SetAvailability(context.Background(), "leader_missing", true)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown leader, got %v", err)
	}
}

func TestSetAvailabilityInactiveLeader(t *testing.T) {
	reg, st := newTestRegistry(t)
	saveLeader(t, st, models.LeaderProfile{ID: "leader_1", IsActive: false})

	err := reg.SetAvailability(context.Background(), "leader_1", true)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for inactive leader, got %v", err)
	}
}

func TestAvailabilityListenerFiresOnFlip(t *testing.T) {
	reg, st := newTestRegistry(t)
	saveLeader(t, st, models.LeaderProfile{ID: "leader_1", IsActive: true, IsAvailable: false})

	var fired []string
	reg.OnAvailable(func(leaderID string) { fired = append(fired, leaderID) })

	if err := reg.SetAvailability(context.Background(), "leader_1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fired) != 1 || fired[0] != "leader_1" {
		t.Errorf("expected one event for leader_1, got %v", fired)
	}

	// Re-asserting availability is not a flip; no event.
	if err := reg.SetAvailability(context.Background(), "leader_1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fired) != 1 {
		t.Errorf("expected no event on redundant toggle, got %v", fired)
	}
}

func TestActivateFiresListener(t *testing.T) {
	reg, _ := newTestRegistry(t)

	var fired []string
	reg.OnAvailable(func(leaderID string) { fired = append(fired, leaderID) })

	profile := models.LeaderProfile{ID: "leader_1", IsActive: true, IsAvailable: true}
	if err := reg.Activate(context.Background(), profile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fired) != 1 || fired[0] != "leader_1" {
		t.Errorf("activation should fire the availability event, got %v", fired)
	}
}

func TestTryAssignClaimsSlot(t *testing.T) {
	reg, st := newTestRegistry(t)
	saveLeader(t, st, models.LeaderProfile{
		ID:             "leader_1",
		ExpertiseAreas: []models.HelpCategory{models.CategoryGrief},
		IsActive:       true,
		IsAvailable:    true,
	})

	claimed, err := reg.TryAssign(context.Background(), "leader_1", models.CategoryGrief)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !claimed {
		t.Fatal("expected claim to succeed")
	}
	l, _ := st.GetLeader("leader_1")
	if l.OpenConversations != 1 {
		t.Errorf("expected open conversation count 1, got %d", l.OpenConversations)
	}
	if l.LastAssignedAt.IsZero() {
		t.Error("claim should stamp LastAssignedAt")
	}
}

func TestTryAssignRefusesIneligible(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()

	claimed, err := reg.TryAssign(ctx, "leader_missing", models.CategoryGrief)
	if err != nil || claimed {
		t.Errorf("missing leader should not be claimable: %v, %v", claimed, err)
	}

	saveLeader(t, st, models.LeaderProfile{ID: "off", ExpertiseAreas: []models.HelpCategory{models.CategoryGrief}, IsActive: true, IsAvailable: false})
	claimed, err = reg.TryAssign(ctx, "off", models.CategoryGrief)
	if err != nil || claimed {
		t.Errorf("unavailable leader should not be claimable: %v, %v", claimed, err)
	}

	saveLeader(t, st, models.LeaderProfile{ID: "wrong-area", ExpertiseAreas: []models.HelpCategory{models.CategoryFinancial}, IsActive: true, IsAvailable: true})
	claimed, err = reg.TryAssign(ctx, "wrong-area", models.CategoryGrief)
	if err != nil || claimed {
		t.Errorf("unqualified leader should not be claimable: %v, %v", claimed, err)
	}
}

func TestRelease(t *testing.T) {
	reg, st := newTestRegistry(t)
	saveLeader(t, st, models.LeaderProfile{ID: "leader_1", IsActive: true, OpenConversations: 2})

	if err := reg.Release(context.Background(), "leader_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l, _ := st.GetLeader("leader_1")
	if l.OpenConversations != 1 {
		t.Errorf("expected count 1 after release, got %d", l.OpenConversations)
	}

	// Release never goes negative.
	reg.Release(context.Background(), "leader_1")
	reg.Release(context.Background(), "leader_1")
	l, _ = st.GetLeader("leader_1")
	if l.OpenConversations != 0 {
		t.Errorf("expected count to floor at 0, got %d", l.OpenConversations)
	}
}

func TestDeactivateAndReactivate(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()
	saveLeader(t, st, models.LeaderProfile{ID: "leader_1", IsActive: true, IsAvailable: true})

	if err := reg.Deactivate(ctx, "leader_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, err := reg.ListActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("deactivated leader should not be listed, got %d", len(active))
	}

	var fired []string
	reg.OnAvailable(func(leaderID string) { fired = append(fired, leaderID) })
	if err := reg.Reactivate(ctx, "leader_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, _ = reg.ListActive(ctx)
	if len(active) != 1 {
		t.Errorf("reactivated leader should be listed, got %d", len(active))
	}
	if len(fired) != 1 {
		t.Errorf("reactivating an available leader should fire the event, got %v", fired)
	}
}
