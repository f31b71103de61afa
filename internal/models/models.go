// Package models defines the core data structures for Shepherd.
//
// It includes the help-request, leader, application, and conversation types
// that are shared across modules, together with the sentinel errors every
// component reports through.
package models

import (
	"errors"
	"time"
)

// HelpCategory identifies the kind of pastoral help a member is asking for.
type HelpCategory string

const (
	CategoryMarriage          HelpCategory = "marriage"
	CategoryAddiction         HelpCategory = "addiction"
	CategoryGrief             HelpCategory = "grief"
	CategoryFaithQuestions    HelpCategory = "faith-questions"
	CategoryCrisis            HelpCategory = "crisis"
	CategoryFinancial         HelpCategory = "financial"
	CategoryAnxietyDepression HelpCategory = "anxiety-depression"
	CategoryParenting         HelpCategory = "parenting"
	CategoryGeneral           HelpCategory = "general"
)

// AllHelpCategories lists every supported category in a stable order.
var AllHelpCategories = []HelpCategory{
	CategoryMarriage,
	CategoryAddiction,
	CategoryGrief,
	CategoryFaithQuestions,
	CategoryCrisis,
	CategoryFinancial,
	CategoryAnxietyDepression,
	CategoryParenting,
	CategoryGeneral,
}

// IsValidHelpCategory checks if the given category is supported.
func IsValidHelpCategory(c HelpCategory) bool {
	for _, known := range AllHelpCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Priority describes how urgently a request should be handled.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityCrisis Priority = "crisis"
)

// priorityRank orders priorities from least to most urgent.
var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
	PriorityCrisis: 3,
}

// IsValidPriority checks if the given priority is supported.
func IsValidPriority(p Priority) bool {
	_, ok := priorityRank[p]
	return ok
}

// LessUrgent reports whether p is strictly less urgent than other.
func (p Priority) LessUrgent(other Priority) bool {
	return priorityRank[p] < priorityRank[other]
}

// Elevate returns the next priority up, capped at crisis.
func (p Priority) Elevate() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	case PriorityHigh, PriorityCrisis:
		return PriorityCrisis
	default:
		return PriorityHigh
	}
}

// RequestStatus tracks a help request through intake, assignment, and closure.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAssigned RequestStatus = "assigned"
	RequestStatusResolved RequestStatus = "resolved"
)

// Validation constants for intake input.
const (
	// MaxDescriptionLength caps the free-text description on a help request.
	MaxDescriptionLength = 4096
	// MaxNameLength caps human-readable names on leaders and applicants.
	MaxNameLength = 120
)

// Sentinel errors shared across components. Callers branch with errors.Is.
var (
	// ErrNotFound indicates an unknown leader, request, conversation, or application id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates an attempted state change not on the allowed edge list.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrConversationClosed indicates a write attempted on a resolved or archived conversation.
	ErrConversationClosed = errors.New("conversation is closed")
	// ErrBackgroundCheckIncomplete indicates activation was attempted without a passed or waived background check.
	ErrBackgroundCheckIncomplete = errors.New("background check incomplete")
	// ErrTrainingIncomplete indicates approval was attempted before all required training modules were done.
	ErrTrainingIncomplete = errors.New("training incomplete")

	ErrUnknownCategory = errors.New("unknown help category")
	ErrEmptyMessage    = errors.New("message content cannot be empty")
	ErrInvalidSender   = errors.New("invalid message sender")
	ErrDescriptionTooLong = errors.New("description exceeds maximum length")
	ErrEmptyName          = errors.New("name cannot be empty")
	ErrNameTooLong        = errors.New("name exceeds maximum length")
	ErrNoExpertise        = errors.New("at least one expertise area is required")
	ErrUnknownModule      = errors.New("unknown training module")
)

// HelpRequest is a member-initiated need for pastoral contact.
//
// Created on intake; status and assigned leader are mutated only by the
// assignment engine and on resolution.
type HelpRequest struct {
	ID               string        `json:"id"`
	Category         HelpCategory  `json:"category"`
	Description      string        `json:"description,omitempty"`
	IsAnonymous      bool          `json:"is_anonymous"`
	Priority         Priority      `json:"priority"`
	Status           RequestStatus `json:"status"`
	AssignedLeaderID string        `json:"assigned_leader_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Validate checks intake fields on a new help request.
func (r *HelpRequest) Validate() error {
	if !IsValidHelpCategory(r.Category) {
		return ErrUnknownCategory
	}
	if len(r.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// LeaderProfile describes a vetted human who may receive pastoral conversations.
//
// IsActive is a hard gate: inactive leaders are invisible to matching.
// IsAvailable is a soft gate toggled live by the leader. OpenConversations and
// LastAssignedAt feed the assignment tie-break ordering.
type LeaderProfile struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Phone             string         `json:"phone,omitempty"`
	ExpertiseAreas    []HelpCategory `json:"expertise_areas"`
	Credentials       string         `json:"credentials,omitempty"`
	PersonalityTraits []string       `json:"personality_traits,omitempty"`
	IsAvailable       bool           `json:"is_available"`
	IsActive          bool           `json:"is_active"`
	IsVerified        bool           `json:"is_verified"`
	OpenConversations int            `json:"open_conversations"`
	LastAssignedAt    time.Time      `json:"last_assigned_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// HasExpertise reports whether the leader lists the given category.
func (l *LeaderProfile) HasExpertise(c HelpCategory) bool {
	for _, area := range l.ExpertiseAreas {
		if area == c {
			return true
		}
	}
	return false
}

// AssignmentResult is the outcome of an assignment attempt. Assigned=false is
// the Unassignable outcome: not an error, but one the caller must handle.
type AssignmentResult struct {
	Assigned bool   `json:"assigned"`
	LeaderID string `json:"leader_id,omitempty"`
}

// APIStatus enumerates the status values used in API response envelopes.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope returned by every endpoint.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
