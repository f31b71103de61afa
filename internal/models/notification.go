// Package models defines notification event structures.
package models

import "time"

// NotificationType enumerates the out-of-band events the core emits.
type NotificationType string

const (
	NotificationLeaderAssigned NotificationType = "leader_assigned"
	NotificationCrisisAlert    NotificationType = "crisis_alert"
	NotificationEscalation     NotificationType = "escalation"
)

// Notification is an event handed to the notification channel for delivery to
// human leaders. Delivery is the collaborator's responsibility; the core only
// emits.
type Notification struct {
	Type           NotificationType `json:"type"`
	RequestID      string           `json:"request_id,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	LeaderID       string           `json:"leader_id,omitempty"`
	Category       HelpCategory     `json:"category,omitempty"`
	Priority       Priority         `json:"priority,omitempty"`
	Message        string           `json:"message"`
	Time           time.Time        `json:"time"`
}
