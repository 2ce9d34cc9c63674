// Package store provides storage backends for chatrelay.
//
// This file implements the PostgreSQL-backed store for sessions, settings
// and admin users.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/mosaaedak/chatrelay/internal/models"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
// First boot seeds a default admin account and the default settings row.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.seedDefaults(); err != nil {
		return nil, err
	}
	slog.Debug("Postgres store ready")
	return s, nil
}

func (s *PostgresStore) seedDefaults() error {
	var userCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&userCount); err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if userCount == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), seedBcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash default admin password: %w", err)
		}
		if _, err := s.db.Exec(`INSERT INTO users (username, password_hash) VALUES ($1, $2)`, DefaultAdminUsername, string(hash)); err != nil {
			return fmt.Errorf("failed to seed default admin: %w", err)
		}
		slog.Info("PostgresStore seeded default admin account", "username", DefaultAdminUsername)
	}

	var settingsCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM settings`).Scan(&settingsCount); err != nil {
		return fmt.Errorf("failed to count settings: %w", err)
	}
	if settingsCount == 0 {
		defaults := DefaultSettings()
		_, err := s.db.Exec(
			`INSERT INTO settings (id, api_key, system_prompt, model_name) VALUES (1, $1, $2, $3)`,
			defaults.APIKey, defaults.SystemPrompt, defaults.ModelName,
		)
		if err != nil {
			return fmt.Errorf("failed to seed default settings: %w", err)
		}
		slog.Info("PostgresStore seeded default settings", "model", defaults.ModelName)
	}
	return nil
}

func (s *PostgresStore) GetSession(key string) (*models.Session, error) {
	var sess models.Session
	var messagesJSON string
	err := s.db.QueryRow(
		`SELECT session_id, messages, last_access FROM chat_sessions WHERE session_id = $1`, key,
	).Scan(&sess.Key, &messagesJSON, &sess.LastAccess)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to query session %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &sess.Messages); err != nil {
		slog.Error("PostgresStore GetSession messages unmarshal failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to decode messages for session %s: %w", key, err)
	}
	return &sess, nil
}

func (s *PostgresStore) UpsertSession(key string, msgs []models.Message) error {
	messagesJSON, err := json.Marshal(msgs)
	if err != nil {
		slog.Error("PostgresStore UpsertSession marshal failed", "error", err, "key", key)
		return fmt.Errorf("failed to encode messages for session %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO chat_sessions (session_id, messages, last_access)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET messages = EXCLUDED.messages, last_access = EXCLUDED.last_access`,
		key, string(messagesJSON), time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore UpsertSession failed", "error", err, "key", key)
		return fmt.Errorf("failed to upsert session %s: %w", key, err)
	}
	slog.Debug("PostgresStore UpsertSession succeeded", "key", key, "messages", len(msgs))
	return nil
}

func (s *PostgresStore) DeleteExpiredSessions(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.Exec(`DELETE FROM chat_sessions WHERE last_access < $1`, cutoff)
	if err != nil {
		slog.Error("PostgresStore DeleteExpiredSessions failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("PostgresStore DeleteExpiredSessions succeeded", "deleted", deleted)
	return deleted, nil
}

func (s *PostgresStore) CountSessions() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_sessions`).Scan(&count); err != nil {
		slog.Error("PostgresStore CountSessions failed", "error", err)
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) GetSettings() (models.Settings, error) {
	var cfg models.Settings
	err := s.db.QueryRow(`
		SELECT api_key, system_prompt, model_name, twilio_account_sid, twilio_auth_token,
		       twilio_phone_number, support_agent_phone, updated_at
		FROM settings WHERE id = 1`).Scan(
		&cfg.APIKey, &cfg.SystemPrompt, &cfg.ModelName, &cfg.TwilioAccountSID,
		&cfg.TwilioAuthToken, &cfg.TwilioPhoneNumber, &cfg.SupportAgentPhone, &cfg.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore GetSettings failed", "error", err)
		return models.Settings{}, fmt.Errorf("failed to query settings: %w", err)
	}
	return cfg, nil
}

func (s *PostgresStore) UpdateSettings(update models.SettingsUpdate) error {
	current, err := s.GetSettings()
	if err != nil {
		return err
	}
	merged := update.Apply(current)
	_, err = s.db.Exec(`
		UPDATE settings SET api_key = $1, system_prompt = $2, model_name = $3,
			twilio_account_sid = $4, twilio_auth_token = $5, twilio_phone_number = $6,
			support_agent_phone = $7, updated_at = $8
		WHERE id = 1`,
		merged.APIKey, merged.SystemPrompt, merged.ModelName, merged.TwilioAccountSID,
		merged.TwilioAuthToken, merged.TwilioPhoneNumber, merged.SupportAgentPhone, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore UpdateSettings failed", "error", err)
		return fmt.Errorf("failed to update settings: %w", err)
	}
	slog.Debug("PostgresStore UpdateSettings succeeded")
	return nil
}

func (s *PostgresStore) GetUserByUsername(username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUserByUsername not found", "username", username)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserByUsername failed", "error", err, "username", username)
		return nil, fmt.Errorf("failed to query user %s: %w", username, err)
	}
	return &u, nil
}

func (s *PostgresStore) UpdateUserPassword(userID int64, passwordHash string) error {
	_, err := s.db.Exec(`UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
	if err != nil {
		slog.Error("PostgresStore UpdateUserPassword failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update password for user %d: %w", userID, err)
	}
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
