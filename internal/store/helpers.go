package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haventree/shepherd/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZeroTime returns nil for the zero time, for nullable timestamp columns.
func nilIfZeroTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// encodeJSON marshals v for storage in a TEXT column.
func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode JSON column: %w", err)
	}
	return string(data), nil
}

// decodeJSON unmarshals a TEXT column into v, treating empty as absent.
func decodeJSON(data string, v interface{}) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to decode JSON column: %w", err)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for the shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRequest scans a HelpRequest row.
func scanRequest(row rowScanner) (models.HelpRequest, error) {
	var r models.HelpRequest
	var assignedLeaderID sql.NullString
	err := row.Scan(
		&r.ID, &r.Category, &r.Description, &r.IsAnonymous, &r.Priority,
		&r.Status, &assignedLeaderID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}
	r.AssignedLeaderID = assignedLeaderID.String
	return r, nil
}

// scanLeader scans a LeaderProfile row, decoding its JSON columns.
func scanLeader(row rowScanner) (models.LeaderProfile, error) {
	var l models.LeaderProfile
	var expertiseJSON, traitsJSON string
	var lastAssigned sql.NullTime
	err := row.Scan(
		&l.ID, &l.Name, &l.Phone, &expertiseJSON, &l.Credentials, &traitsJSON,
		&l.IsAvailable, &l.IsActive, &l.IsVerified, &l.OpenConversations,
		&lastAssigned, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return l, err
	}
	if lastAssigned.Valid {
		l.LastAssignedAt = lastAssigned.Time
	}
	if err := decodeJSON(expertiseJSON, &l.ExpertiseAreas); err != nil {
		return l, err
	}
	if err := decodeJSON(traitsJSON, &l.PersonalityTraits); err != nil {
		return l, err
	}
	return l, nil
}

// scanApplication scans a LeaderApplication row, decoding its JSON columns.
func scanApplication(row rowScanner) (models.LeaderApplication, error) {
	var a models.LeaderApplication
	var expertiseJSON, traitsJSON, modulesJSON string
	err := row.Scan(
		&a.ID, &a.Name, &a.Phone, &expertiseJSON, &a.Credentials, &traitsJSON,
		&a.Status, &a.BackgroundCheckStatus, &modulesJSON, &a.TrainingCompleted,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return a, err
	}
	if err := decodeJSON(expertiseJSON, &a.ExpertiseAreas); err != nil {
		return a, err
	}
	if err := decodeJSON(traitsJSON, &a.PersonalityTraits); err != nil {
		return a, err
	}
	if err := decodeJSON(modulesJSON, &a.TrainingModulesDone); err != nil {
		return a, err
	}
	return a, nil
}

// scanConversation scans a PastoralConversation row, decoding its message log.
func scanConversation(row rowScanner) (models.PastoralConversation, error) {
	var c models.PastoralConversation
	var leaderID sql.NullString
	var messagesJSON string
	err := row.Scan(
		&c.ID, &c.RequestID, &leaderID, &c.Category, &c.Priority,
		&c.IsAnonymous, &c.Status, &c.NeedsFollowUp, &messagesJSON,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	c.LeaderID = leaderID.String
	if err := decodeJSON(messagesJSON, &c.Messages); err != nil {
		return c, err
	}
	return c, nil
}

// scanSessionRecord scans a SessionRecord row.
func scanSessionRecord(row rowScanner) (models.SessionRecord, error) {
	var rec models.SessionRecord
	var endedAt sql.NullTime
	var rating sql.NullInt64
	err := row.Scan(
		&rec.ID, &rec.LeaderID, &rec.RequestID, &rec.Category, &rec.Status,
		&rec.StartedAt, &endedAt, &rec.DurationMinutes, &rating, &rec.NeedsFollowUp,
	)
	if err != nil {
		return rec, err
	}
	if endedAt.Valid {
		rec.EndedAt = endedAt.Time
	}
	if rating.Valid {
		v := int(rating.Int64)
		rec.Rating = &v
	}
	return rec, nil
}
