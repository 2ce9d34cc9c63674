// Package store provides storage backends for chatrelay.
//
// This file implements the SQLite-backed store for sessions, settings and
// admin users.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/mosaaedak/chatrelay/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
	// seedBcryptCost matches the cost the admin dashboard uses when changing passwords
	seedBcryptCost = 10
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created. First boot seeds a
// default admin account and the default settings row.
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

	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.seedDefaults(); err != nil {
		return nil, err
	}
	slog.Debug("SQLite store ready", "path", dsn)
	return s, nil
}

// seedDefaults inserts the default admin user and settings row when the
// corresponding tables are empty.
func (s *SQLiteStore) seedDefaults() error {
	var userCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&userCount); err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if userCount == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), seedBcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash default admin password: %w", err)
		}
		if _, err := s.db.Exec(`INSERT INTO users (username, password_hash) VALUES (?, ?)`, DefaultAdminUsername, string(hash)); err != nil {
			return fmt.Errorf("failed to seed default admin: %w", err)
		}
		slog.Info("SQLiteStore seeded default admin account", "username", DefaultAdminUsername)
	}

	var settingsCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM settings`).Scan(&settingsCount); err != nil {
		return fmt.Errorf("failed to count settings: %w", err)
	}
	if settingsCount == 0 {
		defaults := DefaultSettings()
		_, err := s.db.Exec(
			`INSERT INTO settings (id, api_key, system_prompt, model_name) VALUES (1, ?, ?, ?)`,
			defaults.APIKey, defaults.SystemPrompt, defaults.ModelName,
		)
		if err != nil {
			return fmt.Errorf("failed to seed default settings: %w", err)
		}
		slog.Info("SQLiteStore seeded default settings", "model", defaults.ModelName)
	}
	return nil
}

func (s *SQLiteStore) GetSession(key string) (*models.Session, error) {
	var sess models.Session
	var messagesJSON string
	err := s.db.QueryRow(
		`SELECT session_id, messages, last_access FROM chat_sessions WHERE session_id = ?`, key,
	).Scan(&sess.Key, &messagesJSON, &sess.LastAccess)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to query session %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &sess.Messages); err != nil {
		slog.Error("SQLiteStore GetSession messages unmarshal failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to decode messages for session %s: %w", key, err)
	}
	slog.Debug("SQLiteStore GetSession found", "key", key, "messages", len(sess.Messages))
	return &sess, nil
}

func (s *SQLiteStore) UpsertSession(key string, msgs []models.Message) error {
	messagesJSON, err := json.Marshal(msgs)
	if err != nil {
		slog.Error("SQLiteStore UpsertSession marshal failed", "error", err, "key", key)
		return fmt.Errorf("failed to encode messages for session %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO chat_sessions (session_id, messages, last_access)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET messages = excluded.messages, last_access = excluded.last_access`,
		key, string(messagesJSON), time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore UpsertSession failed", "error", err, "key", key)
		return fmt.Errorf("failed to upsert session %s: %w", key, err)
	}
	slog.Debug("SQLiteStore UpsertSession succeeded", "key", key, "messages", len(msgs))
	return nil
}

func (s *SQLiteStore) DeleteExpiredSessions(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.Exec(`DELETE FROM chat_sessions WHERE last_access < ?`, cutoff)
	if err != nil {
		slog.Error("SQLiteStore DeleteExpiredSessions failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("SQLiteStore DeleteExpiredSessions succeeded", "deleted", deleted)
	return deleted, nil
}

func (s *SQLiteStore) CountSessions() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_sessions`).Scan(&count); err != nil {
		slog.Error("SQLiteStore CountSessions failed", "error", err)
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) GetSettings() (models.Settings, error) {
	var cfg models.Settings
	err := s.db.QueryRow(`
		SELECT api_key, system_prompt, model_name, twilio_account_sid, twilio_auth_token,
		       twilio_phone_number, support_agent_phone, updated_at
		FROM settings WHERE id = 1`).Scan(
		&cfg.APIKey, &cfg.SystemPrompt, &cfg.ModelName, &cfg.TwilioAccountSID,
		&cfg.TwilioAuthToken, &cfg.TwilioPhoneNumber, &cfg.SupportAgentPhone, &cfg.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore GetSettings failed", "error", err)
		return models.Settings{}, fmt.Errorf("failed to query settings: %w", err)
	}
	return cfg, nil
}

func (s *SQLiteStore) UpdateSettings(update models.SettingsUpdate) error {
	current, err := s.GetSettings()
	if err != nil {
		return err
	}
	merged := update.Apply(current)
	_, err = s.db.Exec(`
		UPDATE settings SET api_key = ?, system_prompt = ?, model_name = ?,
			twilio_account_sid = ?, twilio_auth_token = ?, twilio_phone_number = ?,
			support_agent_phone = ?, updated_at = ?
		WHERE id = 1`,
		merged.APIKey, merged.SystemPrompt, merged.ModelName, merged.TwilioAccountSID,
		merged.TwilioAuthToken, merged.TwilioPhoneNumber, merged.SupportAgentPhone, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore UpdateSettings failed", "error", err)
		return fmt.Errorf("failed to update settings: %w", err)
	}
	slog.Debug("SQLiteStore UpdateSettings succeeded")
	return nil
}

func (s *SQLiteStore) GetUserByUsername(username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUserByUsername not found", "username", username)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByUsername failed", "error", err, "username", username)
		return nil, fmt.Errorf("failed to query user %s: %w", username, err)
	}
	return &u, nil
}

func (s *SQLiteStore) UpdateUserPassword(userID int64, passwordHash string) error {
	_, err := s.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, userID)
	if err != nil {
		slog.Error("SQLiteStore UpdateUserPassword failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update password for user %d: %w", userID, err)
	}
	slog.Debug("SQLiteStore UpdateUserPassword succeeded", "userID", userID)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
