// Package models defines session record and derived stats structures.
package models

import "time"

// SessionStatus classifies a recorded pastoral session.
type SessionStatus string

const (
	SessionCompleted SessionStatus = "completed"
	SessionActive    SessionStatus = "active"
	SessionAbandoned SessionStatus = "abandoned"
)

// SessionRecord is the per-session history row the stats aggregator reads.
// Written when a conversation resolves; never mutated afterwards.
type SessionRecord struct {
	ID              string        `json:"id"`
	LeaderID        string        `json:"leader_id"`
	RequestID       string        `json:"request_id"`
	Category        HelpCategory  `json:"category"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
	// Rating is nil when the member left no rating.
	Rating        *int `json:"rating,omitempty"`
	NeedsFollowUp bool `json:"needs_follow_up"`
}

// MonthlyActivity is one bucket of the trailing activity window.
type MonthlyActivity struct {
	Month    string `json:"month"` // YYYY-MM
	Sessions int    `json:"sessions"`
}

// LeaderStats is a derived view over a leader's session history. Never stored;
// recomputed on demand for a given time window.
type LeaderStats struct {
	LeaderID         string                `json:"leader_id"`
	TotalSessions    int                   `json:"total_sessions"`
	SessionsByStatus map[SessionStatus]int `json:"sessions_by_status"`
	TotalDurationMin int                   `json:"total_duration_minutes"`
	// AverageRating is nil ("none") when no session was rated.
	AverageRating      *float64             `json:"average_rating"`
	RatedSessions      int                  `json:"rated_sessions"`
	CategoryPercent    map[HelpCategory]int `json:"category_percent"`
	MonthlyActivity    []MonthlyActivity    `json:"monthly_activity"`
	ResponseRate       float64              `json:"response_rate"`
	FollowUpRate       float64              `json:"follow_up_rate"`
	WindowStart        time.Time            `json:"window_start"`
	WindowEnd          time.Time            `json:"window_end"`
}
