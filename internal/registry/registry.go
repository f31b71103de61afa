// Package registry owns the pool of active pastoral leaders.
//
// It is the single writer for leader profiles: availability toggles, the
// activation write path from the application pipeline, and the load counters
// the assignment tie-break reads. Mutations to a leader serialize on a
// per-leader lock so concurrent assignment attempts never split the same
// availability slot.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/haventree/shepherd/internal/models"
	"github.com/haventree/shepherd/internal/policy"
	"github.com/haventree/shepherd/internal/store"
)

// AvailabilityListener is invoked when a leader becomes assignable: either an
// availability toggle to true or a new activation.
type AvailabilityListener func(leaderID string)

// Registry provides lookup and mutation operations over leader profiles.
type Registry struct {
	st  store.Store
	pol *policy.Policy

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	listeners []AvailabilityListener

	now func() time.Time
}

// New creates a leader registry over the given store and category policy.
func New(st store.Store, pol *policy.Policy) *Registry {
	return &Registry{
		st:    st,
		pol:   pol,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

// leaderLock returns the per-leader mutex, creating it on first use.
func (r *Registry) leaderLock(leaderID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[leaderID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[leaderID] = l
	}
	return l
}

// OnAvailable registers a listener fired whenever a leader becomes assignable.
func (r *Registry) OnAvailable(fn AvailabilityListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) fireAvailable(leaderID string) {
	r.mu.Lock()
	listeners := make([]AvailabilityListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(leaderID)
	}
}

// Get returns the leader profile, or models.ErrNotFound.
func (r *Registry) Get(ctx context.Context, leaderID string) (*models.LeaderProfile, error) {
	l, err := r.st.GetLeader(leaderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load leader %s: %w", leaderID, err)
	}
	if l == nil {
		return nil, fmt.Errorf("leader %s: %w", leaderID, models.ErrNotFound)
	}
	return l, nil
}

// ListActive returns every active leader.
func (r *Registry) ListActive(ctx context.Context) ([]models.LeaderProfile, error) {
	leaders, err := r.st.ListLeaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list leaders: %w", err)
	}
	var out []models.LeaderProfile
	for _, l := range leaders {
		if l.IsActive {
			out = append(out, l)
		}
	}
	return out, nil
}

// FindAvailable returns leaders that are active, available, and qualified for
// the category, ordered for load balancing: fewest open conversations first,
// then longest idle (oldest last assignment, never-assigned leaders first).
func (r *Registry) FindAvailable(ctx context.Context, category models.HelpCategory) ([]models.LeaderProfile, error) {
	leaders, err := r.st.ListLeaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list leaders: %w", err)
	}

	var candidates []models.LeaderProfile
	for _, l := range leaders {
		if !l.IsActive || !l.IsAvailable {
			continue
		}
		if !r.pol.IsQualified(&l, category) {
			continue
		}
		candidates = append(candidates, l)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].OpenConversations != candidates[j].OpenConversations {
			return candidates[i].OpenConversations < candidates[j].OpenConversations
		}
		return candidates[i].LastAssignedAt.Before(candidates[j].LastAssignedAt)
	})

	slog.Debug("Registry.FindAvailable", "category", category, "candidates", len(candidates))
	return candidates, nil
}

// SetAvailability toggles a leader's live availability. Takes effect for
// subsequent assignment calls; never revokes an already-open conversation.
// Returns models.ErrNotFound if the id does not resolve to an active leader.
func (r *Registry) SetAvailability(ctx context.Context, leaderID string, available bool) error {
	lock := r.leaderLock(leaderID)
	lock.Lock()
	defer lock.Unlock()

	l, err := r.st.GetLeader(leaderID)
	if err != nil {
		return fmt.Errorf("failed to load leader %s: %w", leaderID, err)
	}
	if l == nil || !l.IsActive {
		slog.Warn("Registry.SetAvailability: no active leader", "leaderID", leaderID)
		return fmt.Errorf("leader %s: %w", leaderID, models.ErrNotFound)
	}

	becameAvailable := available && !l.IsAvailable
	l.IsAvailable = available
	l.UpdatedAt = r.now()
	if err := r.st.SaveLeader(*l); err != nil {
		return fmt.Errorf("failed to save leader %s: %w", leaderID, err)
	}
	slog.Info("Registry.SetAvailability: updated", "leaderID", leaderID, "available", available)

	if becameAvailable {
		r.fireAvailable(leaderID)
	}
	return nil
}

// Activate writes a leader profile into the pool. This is the only path by
// which a new leader becomes visible to assignment; the application pipeline
// calls it when an application reaches active.
func (r *Registry) Activate(ctx context.Context, profile models.LeaderProfile) error {
	lock := r.leaderLock(profile.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := r.st.SaveLeader(profile); err != nil {
		return fmt.Errorf("failed to activate leader %s: %w", profile.ID, err)
	}
	slog.Info("Registry.Activate: leader added to pool", "leaderID", profile.ID, "expertise", profile.ExpertiseAreas)

	if profile.IsActive && profile.IsAvailable {
		r.fireAvailable(profile.ID)
	}
	return nil
}

// Deactivate removes a leader from matching entirely (hard gate). Used when an
// active application is suspended.
func (r *Registry) Deactivate(ctx context.Context, leaderID string) error {
	lock := r.leaderLock(leaderID)
	lock.Lock()
	defer lock.Unlock()

	l, err := r.st.GetLeader(leaderID)
	if err != nil {
		return fmt.Errorf("failed to load leader %s: %w", leaderID, err)
	}
	if l == nil {
		return fmt.Errorf("leader %s: %w", leaderID, models.ErrNotFound)
	}
	l.IsActive = false
	l.UpdatedAt = r.now()
	if err := r.st.SaveLeader(*l); err != nil {
		return fmt.Errorf("failed to save leader %s: %w", leaderID, err)
	}
	slog.Info("Registry.Deactivate: leader removed from matching", "leaderID", leaderID)
	return nil
}

// Reactivate restores a previously suspended leader to the pool.
func (r *Registry) Reactivate(ctx context.Context, leaderID string) error {
	lock := r.leaderLock(leaderID)
	lock.Lock()
	defer lock.Unlock()

	l, err := r.st.GetLeader(leaderID)
	if err != nil {
		return fmt.Errorf("failed to load leader %s: %w", leaderID, err)
	}
	if l == nil {
		return fmt.Errorf("leader %s: %w", leaderID, models.ErrNotFound)
	}
	l.IsActive = true
	l.UpdatedAt = r.now()
	if err := r.st.SaveLeader(*l); err != nil {
		return fmt.Errorf("failed to save leader %s: %w", leaderID, err)
	}
	slog.Info("Registry.Reactivate: leader restored", "leaderID", leaderID)

	if l.IsAvailable {
		r.fireAvailable(leaderID)
	}
	return nil
}

// TryAssign atomically claims the leader for a new conversation. Under the
// leader's lock it re-reads the profile, verifies the leader is still active,
// available, and qualified, then bumps the open-conversation count and the
// last-assigned timestamp. Returns false if the leader no longer qualifies,
// since another request may have won the slot in the meantime.
func (r *Registry) TryAssign(ctx context.Context, leaderID string, category models.HelpCategory) (bool, error) {
	lock := r.leaderLock(leaderID)
	lock.Lock()
	defer lock.Unlock()

	l, err := r.st.GetLeader(leaderID)
	if err != nil {
		return false, fmt.Errorf("failed to load leader %s: %w", leaderID, err)
	}
	if l == nil || !l.IsActive || !l.IsAvailable || !r.pol.IsQualified(l, category) {
		slog.Debug("Registry.TryAssign: leader no longer assignable", "leaderID", leaderID, "category", category)
		return false, nil
	}

	l.OpenConversations++
	l.LastAssignedAt = r.now()
	l.UpdatedAt = l.LastAssignedAt
	if err := r.st.SaveLeader(*l); err != nil {
		return false, fmt.Errorf("failed to save leader %s: %w", leaderID, err)
	}
	slog.Info("Registry.TryAssign: leader claimed", "leaderID", leaderID, "category", category, "openConversations", l.OpenConversations)
	return true, nil
}

// Release decrements a leader's open-conversation count when a conversation
// resolves. A leader with capacity freed becomes a better tie-break candidate
// but no event fires; availability did not change.
func (r *Registry) Release(ctx context.Context, leaderID string) error {
	lock := r.leaderLock(leaderID)
	lock.Lock()
	defer lock.Unlock()

	l, err := r.st.GetLeader(leaderID)
	if err != nil {
		return fmt.Errorf("failed to load leader %s: %w", leaderID, err)
	}
	if l == nil {
		return fmt.Errorf("leader %s: %w", leaderID, models.ErrNotFound)
	}
	if l.OpenConversations > 0 {
		l.OpenConversations--
	}
	l.UpdatedAt = r.now()
	if err := r.st.SaveLeader(*l); err != nil {
		return fmt.Errorf("failed to save leader %s: %w", leaderID, err)
	}
	slog.Debug("Registry.Release: open conversation count decremented", "leaderID", leaderID, "openConversations", l.OpenConversations)
	return nil
}
