// Package store provides storage backends for chatrelay.
//
// It implements the session store and settings provider on SQLite
// (default) and PostgreSQL, selected by DSN detection, plus an in-memory
// store used by tests.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/mosaaedak/chatrelay/internal/models"
)

// Store is the durable backing for sessions, settings and admin users.
// GetSession and GetUserByUsername return (nil, nil) when no row exists.
type Store interface {
	GetSession(key string) (*models.Session, error)
	UpsertSession(key string, msgs []models.Message) error
	DeleteExpiredSessions(maxAge time.Duration) (int64, error)
	CountSessions() (int, error)

	GetSettings() (models.Settings, error)
	UpdateSettings(update models.SettingsUpdate) error

	GetUserByUsername(username string) (*models.User, error)
	UpdateUserPassword(userID int64, passwordHash string) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3". File paths
// and anything that is not recognizably a Postgres URL or key/value
// string count as SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a non-durable Store used by tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	settings models.Settings
	users    map[string]*models.User
	nextID   int64
}

// NewInMemoryStore creates an empty in-memory store seeded with default
// settings (no credentials configured).
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.Session),
		settings: DefaultSettings(),
		users:    make(map[string]*models.User),
		nextID:   1,
	}
}

func (s *InMemoryStore) GetSession(key string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	cp := *sess
	cp.Messages = append([]models.Message(nil), sess.Messages...)
	return &cp, nil
}

func (s *InMemoryStore) UpsertSession(key string, msgs []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = &models.Session{
		Key:        key,
		Messages:   append([]models.Message(nil), msgs...),
		LastAccess: time.Now().UTC(),
	}
	return nil
}

func (s *InMemoryStore) DeleteExpiredSessions(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, sess := range s.sessions {
		if sess.LastAccess.Before(cutoff) {
			delete(s.sessions, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *InMemoryStore) CountSessions() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

func (s *InMemoryStore) GetSettings() (models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *InMemoryStore) UpdateSettings(update models.SettingsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = update.Apply(s.settings)
	s.settings.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) GetUserByUsername(username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) UpdateUserPassword(userID int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID {
			u.PasswordHash = passwordHash
			return nil
		}
	}
	return nil
}

// AddUser inserts a user record; tests use it to seed admin accounts.
func (s *InMemoryStore) AddUser(username, passwordHash string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.nextID++
	s.users[username] = u
	return u
}

// SetLastAccess backdates a session's last-access time; tests use it to
// exercise the expiry sweep.
func (s *InMemoryStore) SetLastAccess(key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		sess.LastAccess = at
	}
}

func (s *InMemoryStore) Close() error { return nil }
