// Package store provides storage backends for Shepherd.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/haventree/shepherd/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists entities in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveRequest(r models.HelpRequest) error {
	_, err := s.db.Exec(`INSERT INTO requests
		(id, category, description, is_anonymous, priority, status, assigned_leader_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			priority=EXCLUDED.priority, status=EXCLUDED.status,
			assigned_leader_id=EXCLUDED.assigned_leader_id, updated_at=EXCLUDED.updated_at`,
		r.ID, r.Category, r.Description, r.IsAnonymous, r.Priority, r.Status,
		nilIfEmpty(r.AssignedLeaderID), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveRequest failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to save request %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetRequest(id string) (*models.HelpRequest, error) {
	row := s.db.QueryRow(`SELECT id, category, description, is_anonymous, priority, status, assigned_leader_id, created_at, updated_at
		FROM requests WHERE id = $1`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetRequest failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get request %s: %w", id, err)
	}
	return &r, nil
}

func (s *PostgresStore) ListPendingRequests() ([]models.HelpRequest, error) {
	rows, err := s.db.Query(`SELECT id, category, description, is_anonymous, priority, status, assigned_leader_id, created_at, updated_at
		FROM requests WHERE status = $1 ORDER BY created_at`, models.RequestStatusPending)
	if err != nil {
		slog.Error("PostgresStore ListPendingRequests query failed", "error", err)
		return nil, fmt.Errorf("failed to query pending requests: %w", err)
	}
	defer rows.Close()

	var out []models.HelpRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveLeader(l models.LeaderProfile) error {
	expertiseJSON, err := encodeJSON(l.ExpertiseAreas)
	if err != nil {
		return err
	}
	traitsJSON, err := encodeJSON(l.PersonalityTraits)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO leaders
		(id, name, phone, expertise_areas, credentials, personality_traits,
		 is_available, is_active, is_verified, open_conversations, last_assigned_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, phone=EXCLUDED.phone, expertise_areas=EXCLUDED.expertise_areas,
			credentials=EXCLUDED.credentials, personality_traits=EXCLUDED.personality_traits,
			is_available=EXCLUDED.is_available, is_active=EXCLUDED.is_active,
			is_verified=EXCLUDED.is_verified, open_conversations=EXCLUDED.open_conversations,
			last_assigned_at=EXCLUDED.last_assigned_at, updated_at=EXCLUDED.updated_at`,
		l.ID, l.Name, l.Phone, expertiseJSON, l.Credentials, traitsJSON,
		l.IsAvailable, l.IsActive, l.IsVerified, l.OpenConversations,
		nilIfZeroTime(l.LastAssignedAt), l.CreatedAt, l.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveLeader failed", "error", err, "id", l.ID)
		return fmt.Errorf("failed to save leader %s: %w", l.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetLeader(id string) (*models.LeaderProfile, error) {
	row := s.db.QueryRow(`SELECT id, name, phone, expertise_areas, credentials, personality_traits,
		is_available, is_active, is_verified, open_conversations, last_assigned_at, created_at, updated_at
		FROM leaders WHERE id = $1`, id)
	l, err := scanLeader(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLeader failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get leader %s: %w", id, err)
	}
	return &l, nil
}

func (s *PostgresStore) ListLeaders() ([]models.LeaderProfile, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, expertise_areas, credentials, personality_traits,
		is_available, is_active, is_verified, open_conversations, last_assigned_at, created_at, updated_at
		FROM leaders ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListLeaders query failed", "error", err)
		return nil, fmt.Errorf("failed to query leaders: %w", err)
	}
	defer rows.Close()

	var out []models.LeaderProfile
	for rows.Next() {
		l, err := scanLeader(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leader row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveApplication(a models.LeaderApplication) error {
	expertiseJSON, err := encodeJSON(a.ExpertiseAreas)
	if err != nil {
		return err
	}
	traitsJSON, err := encodeJSON(a.PersonalityTraits)
	if err != nil {
		return err
	}
	modulesJSON, err := encodeJSON(a.TrainingModulesDone)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO applications
		(id, name, phone, expertise_areas, credentials, personality_traits,
		 status, background_check_status, training_modules_done, training_completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status=EXCLUDED.status, background_check_status=EXCLUDED.background_check_status,
			training_modules_done=EXCLUDED.training_modules_done,
			training_completed=EXCLUDED.training_completed, updated_at=EXCLUDED.updated_at`,
		a.ID, a.Name, a.Phone, expertiseJSON, a.Credentials, traitsJSON,
		a.Status, a.BackgroundCheckStatus, modulesJSON, a.TrainingCompleted,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveApplication failed", "error", err, "id", a.ID)
		return fmt.Errorf("failed to save application %s: %w", a.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetApplication(id string) (*models.LeaderApplication, error) {
	row := s.db.QueryRow(`SELECT id, name, phone, expertise_areas, credentials, personality_traits,
		status, background_check_status, training_modules_done, training_completed, created_at, updated_at
		FROM applications WHERE id = $1`, id)
	a, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetApplication failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get application %s: %w", id, err)
	}
	return &a, nil
}

func (s *PostgresStore) ListApplications() ([]models.LeaderApplication, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, expertise_areas, credentials, personality_traits,
		status, background_check_status, training_modules_done, training_completed, created_at, updated_at
		FROM applications ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListApplications query failed", "error", err)
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var out []models.LeaderApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveConversation(c models.PastoralConversation) error {
	messagesJSON, err := encodeJSON(c.Messages)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO conversations
		(id, request_id, leader_id, category, priority, is_anonymous, status, needs_follow_up, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			leader_id=EXCLUDED.leader_id, priority=EXCLUDED.priority, status=EXCLUDED.status,
			needs_follow_up=EXCLUDED.needs_follow_up, messages=EXCLUDED.messages, updated_at=EXCLUDED.updated_at`,
		c.ID, c.RequestID, nilIfEmpty(c.LeaderID), c.Category, c.Priority,
		c.IsAnonymous, c.Status, c.NeedsFollowUp, messagesJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "id", c.ID)
		return fmt.Errorf("failed to save conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(id string) (*models.PastoralConversation, error) {
	row := s.db.QueryRow(`SELECT id, request_id, leader_id, category, priority, is_anonymous, status, needs_follow_up, messages, created_at, updated_at
		FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	return &c, nil
}

func (s *PostgresStore) GetConversationByRequest(requestID string) (*models.PastoralConversation, error) {
	row := s.db.QueryRow(`SELECT id, request_id, leader_id, category, priority, is_anonymous, status, needs_follow_up, messages, created_at, updated_at
		FROM conversations WHERE request_id = $1`, requestID)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationByRequest failed", "error", err, "requestID", requestID)
		return nil, fmt.Errorf("failed to get conversation for request %s: %w", requestID, err)
	}
	return &c, nil
}

func (s *PostgresStore) AddSessionRecord(rec models.SessionRecord) error {
	var rating interface{}
	if rec.Rating != nil {
		rating = *rec.Rating
	}
	_, err := s.db.Exec(`INSERT INTO session_records
		(id, leader_id, request_id, category, status, started_at, ended_at, duration_minutes, rating, needs_follow_up)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.LeaderID, rec.RequestID, rec.Category, rec.Status,
		rec.StartedAt, nilIfZeroTime(rec.EndedAt), rec.DurationMinutes, rating, rec.NeedsFollowUp)
	if err != nil {
		slog.Error("PostgresStore AddSessionRecord failed", "error", err, "id", rec.ID)
		return fmt.Errorf("failed to insert session record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSessionRecords(leaderID string) ([]models.SessionRecord, error) {
	rows, err := s.db.Query(`SELECT id, leader_id, request_id, category, status, started_at, ended_at, duration_minutes, rating, needs_follow_up
		FROM session_records WHERE leader_id = $1 ORDER BY started_at`, leaderID)
	if err != nil {
		slog.Error("PostgresStore GetSessionRecords query failed", "error", err, "leaderID", leaderID)
		return nil, fmt.Errorf("failed to query session records: %w", err)
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		rec, err := scanSessionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session record row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
