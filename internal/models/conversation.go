// Package models defines conversation structures for Shepherd.
package models

import "time"

// ConversationStatus tracks a pastoral conversation through its lifecycle.
//
// Status advances monotonically except active and escalated may cycle.
// Resolved and archived are terminal; archived is reachable only from
// resolved.
type ConversationStatus string

const (
	ConversationWaiting   ConversationStatus = "waiting"
	ConversationActive    ConversationStatus = "active"
	ConversationEscalated ConversationStatus = "escalated"
	ConversationResolved  ConversationStatus = "resolved"
	ConversationArchived  ConversationStatus = "archived"
)

// IsClosed reports whether no further messages may be appended.
func (s ConversationStatus) IsClosed() bool {
	return s == ConversationResolved || s == ConversationArchived
}

// Sender identifies who authored a pastoral message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAI     Sender = "ai"
	SenderLeader Sender = "leader"
)

// IsValidSender checks if the given sender is supported.
func IsValidSender(s Sender) bool {
	switch s {
	case SenderUser, SenderAI, SenderLeader:
		return true
	default:
		return false
	}
}

// PastoralMessage is a single message in a conversation. Immutable once
// appended; ordering is append-only and timestamp-monotonic per conversation.
type PastoralMessage struct {
	ID           string    `json:"id"`
	Sender       Sender    `json:"sender"`
	SenderName   string    `json:"sender_name"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	AIConfidence *float64  `json:"ai_confidence,omitempty"`
}

// PastoralConversation is the stateful exchange created from a help request
// once opened. One conversation per request.
type PastoralConversation struct {
	ID          string             `json:"id"`
	RequestID   string             `json:"request_id"`
	LeaderID    string             `json:"leader_id,omitempty"`
	Category    HelpCategory       `json:"category"`
	Priority    Priority           `json:"priority"`
	IsAnonymous bool               `json:"is_anonymous"`
	Status      ConversationStatus `json:"status"`
	// NeedsFollowUp is set when the AI's last reply fell below the confidence
	// threshold. Advisory only; never a status transition.
	NeedsFollowUp bool              `json:"needs_follow_up"`
	Messages      []PastoralMessage `json:"messages"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// LastMessage returns the most recently appended message, or nil if none.
func (c *PastoralConversation) LastMessage() *PastoralMessage {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}
