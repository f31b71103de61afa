// Package store provides storage backends for Shepherd.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/haventree/shepherd/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists entities in a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the database file; its directory is created if
// missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveRequest(r models.HelpRequest) error {
	_, err := s.db.Exec(`INSERT INTO requests
		(id, category, description, is_anonymous, priority, status, assigned_leader_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			priority=excluded.priority, status=excluded.status,
			assigned_leader_id=excluded.assigned_leader_id, updated_at=excluded.updated_at`,
		r.ID, r.Category, r.Description, r.IsAnonymous, r.Priority, r.Status,
		nilIfEmpty(r.AssignedLeaderID), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveRequest failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to save request %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRequest(id string) (*models.HelpRequest, error) {
	row := s.db.QueryRow(`SELECT id, category, description, is_anonymous, priority, status, assigned_leader_id, created_at, updated_at
		FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetRequest failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get request %s: %w", id, err)
	}
	return &r, nil
}

func (s *SQLiteStore) ListPendingRequests() ([]models.HelpRequest, error) {
	rows, err := s.db.Query(`SELECT id, category, description, is_anonymous, priority, status, assigned_leader_id, created_at, updated_at
		FROM requests WHERE status = ? ORDER BY created_at`, models.RequestStatusPending)
	if err != nil {
		slog.Error("SQLiteStore ListPendingRequests query failed", "error", err)
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

func (s *SQLiteStore) SaveLeader(l models.LeaderProfile) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, phone=excluded.phone, expertise_areas=excluded.expertise_areas,
			credentials=excluded.credentials, personality_traits=excluded.personality_traits,
			is_available=excluded.is_available, is_active=excluded.is_active,
			is_verified=excluded.is_verified, open_conversations=excluded.open_conversations,
			last_assigned_at=excluded.last_assigned_at, updated_at=excluded.updated_at`,
		l.ID, l.Name, l.Phone, expertiseJSON, l.Credentials, traitsJSON,
		l.IsAvailable, l.IsActive, l.IsVerified, l.OpenConversations,
		nilIfZeroTime(l.LastAssignedAt), l.CreatedAt, l.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveLeader failed", "error", err, "id", l.ID)
		return fmt.Errorf("failed to save leader %s: %w", l.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetLeader(id string) (*models.LeaderProfile, error) {
	row := s.db.QueryRow(`SELECT id, name, phone, expertise_areas, credentials, personality_traits,
		is_available, is_active, is_verified, open_conversations, last_assigned_at, created_at, updated_at
		FROM leaders WHERE id = ?`, id)
	l, err := scanLeader(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLeader failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get leader %s: %w", id, err)
	}
	return &l, nil
}

func (s *SQLiteStore) ListLeaders() ([]models.LeaderProfile, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, expertise_areas, credentials, personality_traits,
		is_available, is_active, is_verified, open_conversations, last_assigned_at, created_at, updated_at
		FROM leaders ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListLeaders query failed", "error", err)
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

func (s *SQLiteStore) SaveApplication(a models.LeaderApplication) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, background_check_status=excluded.background_check_status,
			training_modules_done=excluded.training_modules_done,
			training_completed=excluded.training_completed, updated_at=excluded.updated_at`,
		a.ID, a.Name, a.Phone, expertiseJSON, a.Credentials, traitsJSON,
		a.Status, a.BackgroundCheckStatus, modulesJSON, a.TrainingCompleted,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveApplication failed", "error", err, "id", a.ID)
		return fmt.Errorf("failed to save application %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetApplication(id string) (*models.LeaderApplication, error) {
	row := s.db.QueryRow(`SELECT id, name, phone, expertise_areas, credentials, personality_traits,
		status, background_check_status, training_modules_done, training_completed, created_at, updated_at
		FROM applications WHERE id = ?`, id)
	a, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetApplication failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get application %s: %w", id, err)
	}
	return &a, nil
}

func (s *SQLiteStore) ListApplications() ([]models.LeaderApplication, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, expertise_areas, credentials, personality_traits,
		status, background_check_status, training_modules_done, training_completed, created_at, updated_at
		FROM applications ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListApplications query failed", "error", err)
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

func (s *SQLiteStore) SaveConversation(c models.PastoralConversation) error {
	messagesJSON, err := encodeJSON(c.Messages)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO conversations
		(id, request_id, leader_id, category, priority, is_anonymous, status, needs_follow_up, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			leader_id=excluded.leader_id, priority=excluded.priority, status=excluded.status,
			needs_follow_up=excluded.needs_follow_up, messages=excluded.messages, updated_at=excluded.updated_at`,
		c.ID, c.RequestID, nilIfEmpty(c.LeaderID), c.Category, c.Priority,
		c.IsAnonymous, c.Status, c.NeedsFollowUp, messagesJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "id", c.ID)
		return fmt.Errorf("failed to save conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(id string) (*models.PastoralConversation, error) {
	row := s.db.QueryRow(`SELECT id, request_id, leader_id, category, priority, is_anonymous, status, needs_follow_up, messages, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	return &c, nil
}

func (s *SQLiteStore) GetConversationByRequest(requestID string) (*models.PastoralConversation, error) {
	row := s.db.QueryRow(`SELECT id, request_id, leader_id, category, priority, is_anonymous, status, needs_follow_up, messages, created_at, updated_at
		FROM conversations WHERE request_id = ?`, requestID)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationByRequest failed", "error", err, "requestID", requestID)
		return nil, fmt.Errorf("failed to get conversation for request %s: %w", requestID, err)
	}
	return &c, nil
}

func (s *SQLiteStore) AddSessionRecord(rec models.SessionRecord) error {
	var rating interface{}
	if rec.Rating != nil {
		rating = *rec.Rating
	}
	_, err := s.db.Exec(`INSERT INTO session_records
		(id, leader_id, request_id, category, status, started_at, ended_at, duration_minutes, rating, needs_follow_up)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.LeaderID, rec.RequestID, rec.Category, rec.Status,
		rec.StartedAt, nilIfZeroTime(rec.EndedAt), rec.DurationMinutes, rating, rec.NeedsFollowUp)
	if err != nil {
		slog.Error("SQLiteStore AddSessionRecord failed", "error", err, "id", rec.ID)
		return fmt.Errorf("failed to insert session record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSessionRecords(leaderID string) ([]models.SessionRecord, error) {
	rows, err := s.db.Query(`SELECT id, leader_id, request_id, category, status, started_at, ended_at, duration_minutes, rating, needs_follow_up
		FROM session_records WHERE leader_id = ? ORDER BY started_at`, leaderID)
	if err != nil {
		slog.Error("SQLiteStore GetSessionRecords query failed", "error", err, "leaderID", leaderID)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
