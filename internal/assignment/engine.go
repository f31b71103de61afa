// Package assignment matches help requests to qualifying, available leaders.
//
// Assignment is at-most-once per request: once a request is assigned or
// resolved it is never reassigned except through the conversation manager's
// explicit re-escalation path. Requests with no available leader stay pending
// and are retried whenever the registry reports a leader becoming available.
package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haventree/shepherd/internal/models"
	"github.com/haventree/shepherd/internal/notify"
	"github.com/haventree/shepherd/internal/policy"
	"github.com/haventree/shepherd/internal/registry"
	"github.com/haventree/shepherd/internal/store"
)

// Engine selects leaders for help requests and manages the pending queue.
type Engine struct {
	st       store.Store
	reg      *registry.Registry
	pol      *policy.Policy
	notifier notify.Notifier

	// retry carries a coalesced wake-up for the pending-queue goroutine.
	retry chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup

	// broadcasted guards the exactly-once crisis alert per request.
	mu          sync.Mutex
	broadcasted map[string]bool

	listenerMu sync.RWMutex
	assigned   []func(ctx context.Context, requestID, leaderID string)

	now func() time.Time
}

// New creates an assignment engine and subscribes it to the registry's
// availability events.
func New(st store.Store, reg *registry.Registry, pol *policy.Policy, notifier notify.Notifier) *Engine {
	e := &Engine{
		st:          st,
		reg:         reg,
		pol:         pol,
		notifier:    notifier,
		retry:       make(chan struct{}, 1),
		done:        make(chan struct{}),
		broadcasted: make(map[string]bool),
		now:         time.Now,
	}
	reg.OnAvailable(func(leaderID string) {
		slog.Debug("Engine: availability event, queueing retry", "leaderID", leaderID)
		e.requestRetry()
	})
	return e
}

// OnAssigned registers a listener called after Assign commits a request to a
// leader, whether at intake or from the pending-queue retry. The conversation
// manager uses this to move a waiting conversation to active. Reassign does
// not fire it; the escalation path updates its conversation directly.
func (e *Engine) OnAssigned(fn func(ctx context.Context, requestID, leaderID string)) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.assigned = append(e.assigned, fn)
}

// fireAssigned invokes the assigned listeners outside the listener lock.
func (e *Engine) fireAssigned(ctx context.Context, requestID, leaderID string) {
	e.listenerMu.RLock()
	listeners := make([]func(ctx context.Context, requestID, leaderID string), len(e.assigned))
	copy(listeners, e.assigned)
	e.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, requestID, leaderID)
	}
}

// Start launches the pending-queue retry goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-e.done:
				return
			case <-e.retry:
				e.retryPending(ctx)
			}
		}
	}()
}

// Stop terminates the retry goroutine.
func (e *Engine) Stop() {
	close(e.done)
	e.wg.Wait()
}

// requestRetry wakes the retry goroutine; signals coalesce.
func (e *Engine) requestRetry() {
	select {
	case e.retry <- struct{}{}:
	default:
	}
}

// Recover re-queues pending requests after a restart and seeds the crisis
// broadcast guard so requests alerted before the restart are not re-alerted.
func (e *Engine) Recover(ctx context.Context) error {
	pending, err := e.st.ListPendingRequests()
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}
	e.mu.Lock()
	for _, r := range pending {
		if r.Category == models.CategoryCrisis {
			e.broadcasted[r.ID] = true
		}
	}
	e.mu.Unlock()
	if len(pending) > 0 {
		slog.Info("Engine.Recover: re-queueing pending requests", "count", len(pending))
		e.requestRetry()
	}
	return nil
}

// Assign attempts to assign the request to a leader. preferredLeaderID, when
// non-empty, is tried first (a member explicitly picked that leader). The
// Unassignable outcome is Assigned=false with a nil error: the request stays
// pending and is retried on the next availability event.
func (e *Engine) Assign(ctx context.Context, requestID, preferredLeaderID string) (models.AssignmentResult, error) {
	req, err := e.st.GetRequest(requestID)
	if err != nil {
		return models.AssignmentResult{}, fmt.Errorf("failed to load request %s: %w", requestID, err)
	}
	if req == nil {
		return models.AssignmentResult{}, fmt.Errorf("request %s: %w", requestID, models.ErrNotFound)
	}

	// Crisis requests alert all active leaders exactly once, regardless of
	// whether assignment succeeds. Assignment failure is never silent for
	// crisis.
	if req.Category == models.CategoryCrisis {
		e.broadcastCrisis(ctx, req)
	}

	// At-most-once: an already assigned request reports its existing leader;
	// a resolved (possibly withdrawn) request is a no-op.
	switch req.Status {
	case models.RequestStatusAssigned:
		slog.Debug("Engine.Assign: request already assigned", "requestID", req.ID, "leaderID", req.AssignedLeaderID)
		return models.AssignmentResult{Assigned: true, LeaderID: req.AssignedLeaderID}, nil
	case models.RequestStatusResolved:
		slog.Debug("Engine.Assign: request already resolved", "requestID", req.ID)
		return models.AssignmentResult{}, nil
	}

	if preferredLeaderID != "" {
		claimed, err := e.reg.TryAssign(ctx, preferredLeaderID, req.Category)
		if err != nil {
			return models.AssignmentResult{}, err
		}
		if claimed {
			return e.commitAndAnnounce(ctx, req, preferredLeaderID)
		}
		slog.Debug("Engine.Assign: preferred leader unavailable, falling back", "requestID", req.ID, "preferred", preferredLeaderID)
	}

	candidates, err := e.reg.FindAvailable(ctx, req.Category)
	if err != nil {
		return models.AssignmentResult{}, err
	}
	for _, candidate := range candidates {
		claimed, err := e.reg.TryAssign(ctx, candidate.ID, req.Category)
		if err != nil {
			return models.AssignmentResult{}, err
		}
		if claimed {
			return e.commitAndAnnounce(ctx, req, candidate.ID)
		}
	}

	slog.Info("Engine.Assign: no qualifying leader available", "requestID", req.ID, "category", req.Category)
	return models.AssignmentResult{}, nil
}

// Reassign substitutes a new leader for an escalated conversation's request.
// The previous leader is excluded and the request priority is elevated. This
// is the explicit re-escalation path exempt from the at-most-once guard.
func (e *Engine) Reassign(ctx context.Context, requestID, excludeLeaderID string) (models.AssignmentResult, error) {
	req, err := e.st.GetRequest(requestID)
	if err != nil {
		return models.AssignmentResult{}, fmt.Errorf("failed to load request %s: %w", requestID, err)
	}
	if req == nil {
		return models.AssignmentResult{}, fmt.Errorf("request %s: %w", requestID, models.ErrNotFound)
	}
	if req.Status == models.RequestStatusResolved {
		return models.AssignmentResult{}, nil
	}

	req.Priority = req.Priority.Elevate()

	candidates, err := e.reg.FindAvailable(ctx, req.Category)
	if err != nil {
		return models.AssignmentResult{}, err
	}
	for _, candidate := range candidates {
		if candidate.ID == excludeLeaderID {
			continue
		}
		claimed, err := e.reg.TryAssign(ctx, candidate.ID, req.Category)
		if err != nil {
			return models.AssignmentResult{}, err
		}
		if claimed {
			if excludeLeaderID != "" {
				if err := e.reg.Release(ctx, excludeLeaderID); err != nil {
					slog.Warn("Engine.Reassign: failed to release previous leader", "leaderID", excludeLeaderID, "error", err)
				}
			}
			return e.commit(ctx, req, candidate.ID)
		}
	}

	// No substitute found: persist the elevated priority, keep the previous
	// leader if any.
	req.UpdatedAt = e.now()
	if err := e.st.SaveRequest(*req); err != nil {
		return models.AssignmentResult{}, err
	}
	slog.Info("Engine.Reassign: no substitute leader available", "requestID", req.ID, "excluded", excludeLeaderID)
	if req.AssignedLeaderID != "" {
		return models.AssignmentResult{Assigned: true, LeaderID: req.AssignedLeaderID}, nil
	}
	return models.AssignmentResult{}, nil
}

// commitAndAnnounce commits and, on success, tells the assigned listeners so
// a conversation opened before the leader existed catches up.
func (e *Engine) commitAndAnnounce(ctx context.Context, req *models.HelpRequest, leaderID string) (models.AssignmentResult, error) {
	result, err := e.commit(ctx, req, leaderID)
	if err == nil && result.Assigned {
		e.fireAssigned(ctx, req.ID, result.LeaderID)
	}
	return result, err
}

// commit finalizes an assignment after the leader slot was claimed. It
// re-reads the request to honor a concurrent withdrawal: if the member
// withdrew while matching ran, the claim is released and the result is an
// idempotent no-op.
func (e *Engine) commit(ctx context.Context, req *models.HelpRequest, leaderID string) (models.AssignmentResult, error) {
	latest, err := e.st.GetRequest(req.ID)
	if err != nil {
		return models.AssignmentResult{}, fmt.Errorf("failed to reload request %s: %w", req.ID, err)
	}
	if latest == nil || latest.Status == models.RequestStatusResolved {
		slog.Info("Engine.commit: request withdrawn before commit, releasing claim", "requestID", req.ID, "leaderID", leaderID)
		if err := e.reg.Release(ctx, leaderID); err != nil {
			slog.Warn("Engine.commit: failed to release claim", "leaderID", leaderID, "error", err)
		}
		return models.AssignmentResult{}, nil
	}

	latest.Status = models.RequestStatusAssigned
	latest.AssignedLeaderID = leaderID
	latest.Priority = req.Priority
	latest.UpdatedAt = e.now()
	if err := e.st.SaveRequest(*latest); err != nil {
		return models.AssignmentResult{}, fmt.Errorf("failed to save request %s: %w", req.ID, err)
	}
	slog.Info("Engine.commit: request assigned", "requestID", req.ID, "leaderID", leaderID, "priority", latest.Priority)

	event := models.Notification{
		Type:      models.NotificationLeaderAssigned,
		RequestID: latest.ID,
		LeaderID:  leaderID,
		Category:  latest.Category,
		Priority:  latest.Priority,
		Message:   fmt.Sprintf("You have been assigned a new %s conversation.", latest.Category),
		Time:      e.now(),
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		slog.Warn("Engine.commit: assigned notification failed", "requestID", latest.ID, "error", err)
	}

	return models.AssignmentResult{Assigned: true, LeaderID: leaderID}, nil
}

// broadcastCrisis emits the out-of-band crisis alert to all active leaders,
// exactly once per request.
func (e *Engine) broadcastCrisis(ctx context.Context, req *models.HelpRequest) {
	e.mu.Lock()
	if e.broadcasted[req.ID] {
		e.mu.Unlock()
		return
	}
	e.broadcasted[req.ID] = true
	e.mu.Unlock()

	event := models.Notification{
		Type:      models.NotificationCrisisAlert,
		RequestID: req.ID,
		Category:  req.Category,
		Priority:  models.PriorityCrisis,
		Message:   "Crisis help request received. Immediate attention needed.",
		Time:      e.now(),
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		slog.Error("Engine.broadcastCrisis: alert delivery failed", "requestID", req.ID, "error", err)
	} else {
		slog.Info("Engine.broadcastCrisis: alert emitted", "requestID", req.ID)
	}
}

// retryPending walks the pending queue and re-attempts assignment. Retries are
// infinite until the member withdraws; SLA escalation only raises priority.
func (e *Engine) retryPending(ctx context.Context) {
	pending, err := e.st.ListPendingRequests()
	if err != nil {
		slog.Error("Engine.retryPending: failed to list pending requests", "error", err)
		return
	}
	for _, req := range pending {
		result, err := e.Assign(ctx, req.ID, "")
		if err != nil {
			slog.Error("Engine.retryPending: assignment attempt failed", "requestID", req.ID, "error", err)
			continue
		}
		if result.Assigned {
			slog.Info("Engine.retryPending: queued request assigned", "requestID", req.ID, "leaderID", result.LeaderID)
		}
	}
}

// EscalateOverduePriorities raises the priority of requests pending past the
// SLA threshold. Only priority changes, never status; a retry is queued so the
// elevated requests are re-attempted promptly.
func (e *Engine) EscalateOverduePriorities(ctx context.Context, threshold time.Duration) error {
	pending, err := e.st.ListPendingRequests()
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}
	cutoff := e.now().Add(-threshold)
	bumped := 0
	for _, req := range pending {
		if !req.CreatedAt.Before(cutoff) {
			continue
		}
		elevated := req.Priority.Elevate()
		if elevated == req.Priority {
			continue
		}
		req.Priority = elevated
		req.UpdatedAt = e.now()
		if err := e.st.SaveRequest(req); err != nil {
			slog.Error("Engine.EscalateOverduePriorities: save failed", "requestID", req.ID, "error", err)
			continue
		}
		slog.Info("Engine.EscalateOverduePriorities: priority raised", "requestID", req.ID, "priority", elevated)
		bumped++
	}
	if bumped > 0 {
		e.requestRetry()
	}
	return nil
}
