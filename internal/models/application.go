// Package models defines leader application structures for Shepherd.
package models

import "time"

// ApplicationStatus tracks a leader candidate through the approval pipeline.
type ApplicationStatus string

const (
	ApplicationSubmitted   ApplicationStatus = "submitted"
	ApplicationUnderReview ApplicationStatus = "under_review"
	ApplicationInterview   ApplicationStatus = "interview"
	ApplicationTraining    ApplicationStatus = "training"
	ApplicationApproved    ApplicationStatus = "approved"
	ApplicationActive      ApplicationStatus = "active"
	ApplicationSuspended   ApplicationStatus = "suspended"
	ApplicationRejected    ApplicationStatus = "rejected"
)

// IsValidApplicationStatus checks if the given status is supported.
func IsValidApplicationStatus(s ApplicationStatus) bool {
	switch s {
	case ApplicationSubmitted, ApplicationUnderReview, ApplicationInterview,
		ApplicationTraining, ApplicationApproved, ApplicationActive,
		ApplicationSuspended, ApplicationRejected:
		return true
	default:
		return false
	}
}

// BackgroundCheckStatus is an independent axis from the application status.
// Approval and activation are refused unless it is passed or waived.
type BackgroundCheckStatus string

const (
	BackgroundCheckNotStarted BackgroundCheckStatus = "not_started"
	BackgroundCheckInProgress BackgroundCheckStatus = "in_progress"
	BackgroundCheckPassed     BackgroundCheckStatus = "passed"
	BackgroundCheckFailed     BackgroundCheckStatus = "failed"
	BackgroundCheckWaived     BackgroundCheckStatus = "waived"
)

// IsValidBackgroundCheckStatus checks if the given status is supported.
func IsValidBackgroundCheckStatus(s BackgroundCheckStatus) bool {
	switch s {
	case BackgroundCheckNotStarted, BackgroundCheckInProgress,
		BackgroundCheckPassed, BackgroundCheckFailed, BackgroundCheckWaived:
		return true
	default:
		return false
	}
}

// Cleared reports whether the background check permits approval/activation.
func (s BackgroundCheckStatus) Cleared() bool {
	return s == BackgroundCheckPassed || s == BackgroundCheckWaived
}

// LeaderApplication is a leader candidate's record in the approval pipeline.
// It is a superset of a LeaderProfile plus pipeline-only fields.
//
// Invariant: TrainingCompleted is true iff TrainingModulesDone covers every
// required module. The pipeline recomputes it on every module toggle.
type LeaderApplication struct {
	ID                    string                `json:"id"`
	Name                  string                `json:"name"`
	Phone                 string                `json:"phone,omitempty"`
	ExpertiseAreas        []HelpCategory        `json:"expertise_areas"`
	Credentials           string                `json:"credentials,omitempty"`
	PersonalityTraits     []string              `json:"personality_traits,omitempty"`
	Status                ApplicationStatus     `json:"status"`
	BackgroundCheckStatus BackgroundCheckStatus `json:"background_check_status"`
	TrainingModulesDone   []string              `json:"training_modules_done"`
	TrainingCompleted     bool                  `json:"training_completed"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// Validate checks intake fields on a new application.
func (a *LeaderApplication) Validate() error {
	if a.Name == "" {
		return ErrEmptyName
	}
	if len(a.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if len(a.ExpertiseAreas) == 0 {
		return ErrNoExpertise
	}
	for _, c := range a.ExpertiseAreas {
		if !IsValidHelpCategory(c) {
			return ErrUnknownCategory
		}
	}
	return nil
}

// ModuleDone reports whether the named training module has been completed.
func (a *LeaderApplication) ModuleDone(name string) bool {
	for _, m := range a.TrainingModulesDone {
		if m == name {
			return true
		}
	}
	return false
}

// Profile builds the LeaderProfile emitted to the registry when the
// application reaches active. This is the only write path by which a new
// leader becomes visible to assignment.
func (a *LeaderApplication) Profile(now time.Time) LeaderProfile {
	return LeaderProfile{
		ID:                a.ID,
		Name:              a.Name,
		Phone:             a.Phone,
		ExpertiseAreas:    a.ExpertiseAreas,
		Credentials:       a.Credentials,
		PersonalityTraits: a.PersonalityTraits,
		IsAvailable:       true,
		IsActive:          true,
		IsVerified:        a.BackgroundCheckStatus == BackgroundCheckPassed,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
