// Package store provides storage backends for Shepherd.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backends with embedded migrations. Writes are atomic per entity;
// reads used for assignment decisions reflect the latest committed write.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/haventree/shepherd/internal/models"
)

// Store defines the persistence operations required by the core components.
// Get methods return (nil, nil) when the entity does not exist.
type Store interface {
	SaveRequest(r models.HelpRequest) error
	GetRequest(id string) (*models.HelpRequest, error)
	ListPendingRequests() ([]models.HelpRequest, error)

	SaveLeader(l models.LeaderProfile) error
	GetLeader(id string) (*models.LeaderProfile, error)
	ListLeaders() ([]models.LeaderProfile, error)

	SaveApplication(a models.LeaderApplication) error
	GetApplication(id string) (*models.LeaderApplication, error)
	ListApplications() ([]models.LeaderApplication, error)

	SaveConversation(c models.PastoralConversation) error
	GetConversation(id string) (*models.PastoralConversation, error)
	GetConversationByRequest(requestID string) (*models.PastoralConversation, error)

	AddSessionRecord(s models.SessionRecord) error
	GetSessionRecords(leaderID string) ([]models.SessionRecord, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL is
// recognized by URL scheme or key=value connection strings; anything else is
// treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded map-backed store used in tests and
// development runs.
type InMemoryStore struct {
	mu            sync.RWMutex
	requests      map[string]models.HelpRequest
	leaders       map[string]models.LeaderProfile
	applications  map[string]models.LeaderApplication
	conversations map[string]models.PastoralConversation
	sessions      []models.SessionRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		requests:      make(map[string]models.HelpRequest),
		leaders:       make(map[string]models.LeaderProfile),
		applications:  make(map[string]models.LeaderApplication),
		conversations: make(map[string]models.PastoralConversation),
	}
}

func (s *InMemoryStore) SaveRequest(r models.HelpRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
	return nil
}

func (s *InMemoryStore) GetRequest(id string) (*models.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *InMemoryStore) ListPendingRequests() ([]models.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.HelpRequest
	for _, r := range s.requests {
		if r.Status == models.RequestStatusPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) SaveLeader(l models.LeaderProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaders[l.ID] = l
	return nil
}

func (s *InMemoryStore) GetLeader(id string) (*models.LeaderProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leaders[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *InMemoryStore) ListLeaders() ([]models.LeaderProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LeaderProfile, 0, len(s.leaders))
	for _, l := range s.leaders {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) SaveApplication(a models.LeaderApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applications[a.ID] = a
	return nil
}

func (s *InMemoryStore) GetApplication(id string) (*models.LeaderApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.applications[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *InMemoryStore) ListApplications() ([]models.LeaderApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LeaderApplication, 0, len(s.applications))
	for _, a := range s.applications {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) SaveConversation(c models.PastoralConversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Copy the message slice so later appends by the caller cannot alias the
	// stored entity.
	msgs := make([]models.PastoralMessage, len(c.Messages))
	copy(msgs, c.Messages)
	c.Messages = msgs
	s.conversations[c.ID] = c
	return nil
}

func (s *InMemoryStore) GetConversation(id string) (*models.PastoralConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	msgs := make([]models.PastoralMessage, len(c.Messages))
	copy(msgs, c.Messages)
	c.Messages = msgs
	return &c, nil
}

func (s *InMemoryStore) GetConversationByRequest(requestID string) (*models.PastoralConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.RequestID == requestID {
			msgs := make([]models.PastoralMessage, len(c.Messages))
			copy(msgs, c.Messages)
			c.Messages = msgs
			return &c, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) AddSessionRecord(rec models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, rec)
	return nil
}

func (s *InMemoryStore) GetSessionRecords(leaderID string) ([]models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SessionRecord
	for _, rec := range s.sessions {
		if rec.LeaderID == leaderID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
