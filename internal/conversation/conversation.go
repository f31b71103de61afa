// Package conversation owns the lifecycle of pastoral conversations.
//
// States advance waiting → active → {escalated ⇄ active} → resolved →
// archived. The AI assistant answers first on waiting and active
// conversations; replies below the confidence threshold flag the conversation
// for mandatory human follow-up without changing status. Invalid transitions
// leave the conversation unchanged.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haventree/shepherd/internal/assignment"
	"github.com/haventree/shepherd/internal/genai"
	"github.com/haventree/shepherd/internal/models"
	"github.com/haventree/shepherd/internal/notify"
	"github.com/haventree/shepherd/internal/registry"
	"github.com/haventree/shepherd/internal/store"
	"github.com/haventree/shepherd/internal/util"
)

// AISenderName labels messages authored by the assistant.
const AISenderName = "Pastoral Assistant"

// Manager is the single writer for pastoral conversations. Operations on the
// same conversation serialize on a per-conversation lock; the transition is
// durably recorded before the call returns.
type Manager struct {
	st       store.Store
	engine   *assignment.Engine
	reg      *registry.Registry
	gen      genai.ClientInterface
	notifier notify.Notifier

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now   func() time.Time
	newID func(prefix string) string
}

// NewManager creates a conversation manager. gen may be nil, in which case no
// AI replies are generated (waiting conversations stay silent until a leader
// responds).
func NewManager(st store.Store, engine *assignment.Engine, reg *registry.Registry, gen genai.ClientInterface, notifier notify.Notifier) *Manager {
	m := &Manager{
		st:       st,
		engine:   engine,
		reg:      reg,
		gen:      gen,
		notifier: notifier,
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
		newID:    util.NewID,
	}
	if engine != nil {
		engine.OnAssigned(m.activateAssigned)
	}
	return m
}

// convLock returns the per-conversation mutex, creating it on first use.
func (m *Manager) convLock(conversationID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[conversationID] = l
	}
	return l
}

// Get returns the conversation, or models.ErrNotFound.
func (m *Manager) Get(ctx context.Context, conversationID string) (*models.PastoralConversation, error) {
	conv, err := m.st.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}
	return conv, nil
}

// Open creates the conversation for a request: active when the request is
// assigned, waiting otherwise. One conversation per request; opening twice
// returns the existing conversation. Crisis conversations are auto-escalated
// the instant they open, with no message threshold.
func (m *Manager) Open(ctx context.Context, requestID string) (*models.PastoralConversation, error) {
	// Opens for the same request serialize so a double intake cannot create
	// two conversations. The request is read under the lock so a concurrent
	// assignment commit is not missed.
	lock := m.convLock(requestID)
	lock.Lock()
	defer lock.Unlock()

	req, err := m.st.GetRequest(requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request %s: %w", requestID, err)
	}
	if req == nil {
		return nil, fmt.Errorf("request %s: %w", requestID, models.ErrNotFound)
	}

	existing, err := m.st.GetConversationByRequest(requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to check conversation for request %s: %w", requestID, err)
	}
	if existing != nil {
		slog.Debug("Manager.Open: conversation already exists", "requestID", requestID, "conversationID", existing.ID)
		return existing, nil
	}

	now := m.now()
	conv := models.PastoralConversation{
		ID:          m.newID("conv"),
		RequestID:   req.ID,
		LeaderID:    req.AssignedLeaderID,
		Category:    req.Category,
		Priority:    req.Priority,
		IsAnonymous: req.IsAnonymous,
		Status:      models.ConversationWaiting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Status == models.RequestStatusAssigned {
		conv.Status = models.ConversationActive
	}

	// The member's description opens the thread so the assistant has context.
	if req.Description != "" {
		senderName := "Member"
		if req.IsAnonymous {
			senderName = "Anonymous"
		}
		conv.Messages = append(conv.Messages, models.PastoralMessage{
			ID:         m.newID("msg"),
			Sender:     models.SenderUser,
			SenderName: senderName,
			Content:    req.Description,
			Timestamp:  now,
		})
	}

	// The assistant greets first; a human leader is not yet responsive.
	m.appendAIReply(ctx, &conv)

	if err := m.st.SaveConversation(conv); err != nil {
		return nil, err
	}
	slog.Info("Manager.Open: conversation created", "conversationID", conv.ID, "requestID", req.ID, "status", conv.Status)

	if conv.Category == models.CategoryCrisis {
		escalated, err := m.Escalate(ctx, conv.ID)
		if err != nil {
			slog.Error("Manager.Open: crisis auto-escalation failed", "conversationID", conv.ID, "error", err)
			return &conv, nil
		}
		return escalated, nil
	}
	return &conv, nil
}

// activateAssigned runs when the assignment engine commits a request to a
// leader. A conversation opened waiting (no leader was available at intake)
// takes its waiting → active edge here and learns its leader; an escalated
// conversation that never got a substitute picks up the leader without
// changing status. At intake the assignment lands before the conversation
// opens, so a missing conversation is not an error.
func (m *Manager) activateAssigned(ctx context.Context, requestID, leaderID string) {
	existing, err := m.st.GetConversationByRequest(requestID)
	if err != nil {
		slog.Error("Manager.activateAssigned: lookup failed", "requestID", requestID, "error", err)
		return
	}
	if existing == nil {
		return
	}

	lock := m.convLock(existing.ID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.st.GetConversation(existing.ID)
	if err != nil || conv == nil {
		slog.Error("Manager.activateAssigned: reload failed", "conversationID", existing.ID, "error", err)
		return
	}

	switch {
	case conv.Status == models.ConversationWaiting:
		conv.Status = models.ConversationActive
		conv.LeaderID = leaderID
	case conv.Status == models.ConversationEscalated && conv.LeaderID == "":
		conv.LeaderID = leaderID
	default:
		return
	}
	conv.UpdatedAt = m.now()
	if err := m.st.SaveConversation(*conv); err != nil {
		slog.Error("Manager.activateAssigned: save failed", "conversationID", conv.ID, "error", err)
		return
	}
	slog.Info("Manager.activateAssigned: conversation picked up its leader",
		"conversationID", conv.ID, "requestID", requestID, "leaderID", leaderID, "status", conv.Status)
}

// ReceiveMessage appends a message. Status never changes here; a member
// message on a waiting or active conversation draws an AI reply, and a
// below-threshold reply flags the conversation for human follow-up. Writes to
// resolved or archived conversations fail with models.ErrConversationClosed
// and leave the conversation unchanged.
func (m *Manager) ReceiveMessage(ctx context.Context, conversationID string, sender models.Sender, senderName, content string) (*models.PastoralConversation, error) {
	if !models.IsValidSender(sender) {
		return nil, models.ErrInvalidSender
	}
	if content == "" {
		return nil, models.ErrEmptyMessage
	}

	lock := m.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status.IsClosed() {
		slog.Warn("Manager.ReceiveMessage: conversation closed", "conversationID", conversationID, "status", conv.Status)
		return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrConversationClosed)
	}

	m.appendMessage(conv, sender, senderName, content, nil)

	if sender == models.SenderUser && (conv.Status == models.ConversationWaiting || conv.Status == models.ConversationActive) {
		m.appendAIReply(ctx, conv)
	}
	if sender == models.SenderLeader {
		// A human responded; the advisory follow-up flag is satisfied.
		conv.NeedsFollowUp = false
	}

	if err := m.st.SaveConversation(*conv); err != nil {
		return nil, err
	}
	slog.Debug("Manager.ReceiveMessage: message appended", "conversationID", conversationID, "sender", sender, "messages", len(conv.Messages))
	return conv, nil
}

// Escalate moves a waiting or active conversation to escalated and re-invokes
// the assignment engine at elevated priority, excluding the current leader so
// a substitute can take over. Any other source status is an invalid
// transition and the conversation is left unchanged.
func (m *Manager) Escalate(ctx context.Context, conversationID string) (*models.PastoralConversation, error) {
	lock := m.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != models.ConversationWaiting && conv.Status != models.ConversationActive {
		slog.Warn("Manager.Escalate: invalid source status", "conversationID", conversationID, "status", conv.Status)
		return nil, fmt.Errorf("cannot escalate from %s: %w", conv.Status, models.ErrInvalidTransition)
	}

	previousLeader := conv.LeaderID
	result, err := m.engine.Reassign(ctx, conv.RequestID, previousLeader)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign during escalation: %w", err)
	}

	conv.Status = models.ConversationEscalated
	conv.Priority = conv.Priority.Elevate()
	if result.Assigned {
		conv.LeaderID = result.LeaderID
	}
	conv.UpdatedAt = m.now()
	if err := m.st.SaveConversation(*conv); err != nil {
		return nil, err
	}
	slog.Info("Manager.Escalate: conversation escalated", "conversationID", conversationID,
		"previousLeader", previousLeader, "leaderID", conv.LeaderID, "priority", conv.Priority)

	event := models.Notification{
		Type:           models.NotificationEscalation,
		ConversationID: conv.ID,
		RequestID:      conv.RequestID,
		LeaderID:       conv.LeaderID,
		Category:       conv.Category,
		Priority:       conv.Priority,
		Message:        fmt.Sprintf("A %s conversation has been escalated and needs attention.", conv.Category),
		Time:           m.now(),
	}
	if err := m.notifier.Notify(ctx, event); err != nil {
		slog.Warn("Manager.Escalate: escalation notification failed", "conversationID", conv.ID, "error", err)
	}

	return conv, nil
}

// Resolve closes an active or escalated conversation. The request resolves
// with it, the leader's open-conversation count is released, and a session
// record is written for the stats aggregator. No further messages may be
// appended afterwards.
func (m *Manager) Resolve(ctx context.Context, conversationID string) (*models.PastoralConversation, error) {
	lock := m.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != models.ConversationActive && conv.Status != models.ConversationEscalated {
		slog.Warn("Manager.Resolve: invalid source status", "conversationID", conversationID, "status", conv.Status)
		return nil, fmt.Errorf("cannot resolve from %s: %w", conv.Status, models.ErrInvalidTransition)
	}

	return m.close(ctx, conv, models.SessionCompleted)
}

// Withdraw lets the member cancel a waiting conversation: it resolves
// directly with no leader contact. Withdrawing an already resolved
// conversation is an idempotent no-op; an active or escalated conversation
// cannot be withdrawn.
func (m *Manager) Withdraw(ctx context.Context, conversationID string) (*models.PastoralConversation, error) {
	lock := m.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == models.ConversationResolved {
		slog.Debug("Manager.Withdraw: already resolved", "conversationID", conversationID)
		return conv, nil
	}
	if conv.Status != models.ConversationWaiting {
		slog.Warn("Manager.Withdraw: invalid source status", "conversationID", conversationID, "status", conv.Status)
		return nil, fmt.Errorf("cannot withdraw from %s: %w", conv.Status, models.ErrInvalidTransition)
	}

	return m.close(ctx, conv, models.SessionAbandoned)
}

// Archive moves a resolved conversation to its terminal archived state, after
// the retention period has passed. Only resolved conversations may archive.
func (m *Manager) Archive(ctx context.Context, conversationID string) (*models.PastoralConversation, error) {
	lock := m.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != models.ConversationResolved {
		slog.Warn("Manager.Archive: invalid source status", "conversationID", conversationID, "status", conv.Status)
		return nil, fmt.Errorf("cannot archive from %s: %w", conv.Status, models.ErrInvalidTransition)
	}

	conv.Status = models.ConversationArchived
	conv.UpdatedAt = m.now()
	if err := m.st.SaveConversation(*conv); err != nil {
		return nil, err
	}
	slog.Info("Manager.Archive: conversation archived", "conversationID", conversationID)
	return conv, nil
}

// close resolves the conversation and its request, releases the leader, and
// records the session.
func (m *Manager) close(ctx context.Context, conv *models.PastoralConversation, sessionStatus models.SessionStatus) (*models.PastoralConversation, error) {
	now := m.now()
	conv.Status = models.ConversationResolved
	conv.UpdatedAt = now
	if err := m.st.SaveConversation(*conv); err != nil {
		return nil, err
	}

	req, err := m.st.GetRequest(conv.RequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request %s: %w", conv.RequestID, err)
	}
	if req != nil && req.Status != models.RequestStatusResolved {
		req.Status = models.RequestStatusResolved
		req.UpdatedAt = now
		if err := m.st.SaveRequest(*req); err != nil {
			return nil, fmt.Errorf("failed to resolve request %s: %w", req.ID, err)
		}
	}

	if conv.LeaderID != "" {
		if err := m.reg.Release(ctx, conv.LeaderID); err != nil {
			slog.Warn("Manager.close: failed to release leader", "leaderID", conv.LeaderID, "error", err)
		}
		record := models.SessionRecord{
			ID:              m.newID("sess"),
			LeaderID:        conv.LeaderID,
			RequestID:       conv.RequestID,
			Category:        conv.Category,
			Status:          sessionStatus,
			StartedAt:       conv.CreatedAt,
			EndedAt:         now,
			DurationMinutes: int(now.Sub(conv.CreatedAt).Minutes()),
			NeedsFollowUp:   conv.NeedsFollowUp,
		}
		if err := m.st.AddSessionRecord(record); err != nil {
			slog.Warn("Manager.close: failed to record session", "conversationID", conv.ID, "error", err)
		}
	}

	slog.Info("Manager.close: conversation resolved", "conversationID", conv.ID, "sessionStatus", sessionStatus)
	return conv, nil
}

// appendMessage appends with a per-conversation monotonic timestamp.
func (m *Manager) appendMessage(conv *models.PastoralConversation, sender models.Sender, senderName, content string, confidence *float64) {
	ts := m.now()
	if last := conv.LastMessage(); last != nil && !ts.After(last.Timestamp) {
		ts = last.Timestamp.Add(time.Millisecond)
	}
	conv.Messages = append(conv.Messages, models.PastoralMessage{
		ID:           m.newID("msg"),
		Sender:       sender,
		SenderName:   senderName,
		Content:      content,
		Timestamp:    ts,
		AIConfidence: confidence,
	})
	conv.UpdatedAt = ts
}

// appendAIReply asks the generator for a reply and appends it with its
// confidence annotation. A below-threshold score sets the advisory follow-up
// flag. Generator failures are logged, never fatal: the conversation stays in
// its current state and a human can still respond.
func (m *Manager) appendAIReply(ctx context.Context, conv *models.PastoralConversation) {
	if m.gen == nil {
		return
	}
	reply, err := m.gen.GenerateReply(ctx, conv)
	if err != nil {
		slog.Error("Manager.appendAIReply: generation failed", "conversationID", conv.ID, "error", err)
		return
	}
	confidence := reply.Confidence
	m.appendMessage(conv, models.SenderAI, AISenderName, reply.Content, &confidence)
	if confidence < genai.ConfidenceThreshold {
		conv.NeedsFollowUp = true
		slog.Info("Manager.appendAIReply: low confidence, human follow-up flagged",
			"conversationID", conv.ID, "confidence", confidence)
	}
}
