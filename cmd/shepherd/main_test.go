package main

import (
	"context"
	"testing"

	"github.com/haventree/shepherd/internal/models"
	"github.com/haventree/shepherd/internal/policy"
	"github.com/haventree/shepherd/internal/registry"
	"github.com/haventree/shepherd/internal/store"
)

func newResolverRegistry(t *testing.T, leaders ...models.LeaderProfile) *registry.Registry {
	t.Helper()
	st := store.NewInMemoryStore()
	for _, l := range leaders {
		if err := st.SaveLeader(l); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return registry.New(st, policy.New())
}

func TestLeaderPhoneResolverCrisisFanOut(t *testing.T) {
	reg := newResolverRegistry(t,
		models.LeaderProfile{ID: "leader_1", Phone: "+15550001111", IsActive: true, IsAvailable: true},
		models.LeaderProfile{ID: "leader_2", Phone: "+15550002222", IsActive: true, IsAvailable: false},
		models.LeaderProfile{ID: "leader_3", Phone: "+15550003333", IsActive: false, IsAvailable: true},
		models.LeaderProfile{ID: "leader_4", IsActive: true, IsAvailable: true},
	)

	resolve := leaderPhoneResolver(reg)
	phones, err := resolve(context.Background(), models.Notification{Type: models.NotificationCrisisAlert})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := make(map[string]bool, len(phones))
	for _, p := range phones {
		got[p] = true
	}
	// Every active leader with a phone is alerted, even when unavailable.
	if len(phones) != 2 || !got["+15550001111"] || !got["+15550002222"] {
		t.Errorf("crisis fan-out wrong: %v", phones)
	}
}

func TestLeaderPhoneResolverTargeted(t *testing.T) {
	reg := newResolverRegistry(t,
		models.LeaderProfile{ID: "leader_1", Phone: "+15550001111", IsActive: true, IsAvailable: true},
	)

	resolve := leaderPhoneResolver(reg)
	phones, err := resolve(context.Background(), models.Notification{
		Type:     models.NotificationLeaderAssigned,
		LeaderID: "leader_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(phones) != 1 || phones[0] != "+15550001111" {
		t.Errorf("targeted event should reach the named leader only: %v", phones)
	}

	phones, err = resolve(context.Background(), models.Notification{Type: models.NotificationEscalation})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(phones) != 0 {
		t.Errorf("an untargeted event resolves to nobody: %v", phones)
	}
}
