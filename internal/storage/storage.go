// Package storage keeps the local record of sign-in results and monitor
// events in a sqlite database.
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SignRecord is one completed (or failed) sign-in for a chat.
type SignRecord struct {
	ID        int64     `db:"id" json:"id"`
	Task      string    `db:"task" json:"task"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	MessageID int64     `db:"message_id" json:"message_id"`
	Status    string    `db:"status" json:"status"`
	SignedAt  time.Time `db:"signed_at" json:"signed_at"`
}

// MonitorEvent is one rule match and the action taken for it.
type MonitorEvent struct {
	ID        int64     `db:"id" json:"id"`
	Task      string    `db:"task" json:"task"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	RuleIndex int       `db:"rule_index" json:"rule_index"`
	Sender    string    `db:"sender" json:"sender"`
	Matched   string    `db:"matched_text" json:"matched_text"`
	SentText  string    `db:"sent_text" json:"sent_text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Storage manages database operations.
type Storage struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStorage opens the sqlite database at the given path, creating parent
// directories as needed, and applies pending migrations.
func NewStorage(path string, logger *zap.Logger) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, logger: logger}
	if err := s.applyMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) applyMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "tg-signer", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	s.logger.Debug("Database migrations applied")
	return nil
}

// SaveSignRecord stores a completed sign-in.
func (s *Storage) SaveSignRecord(rec *SignRecord) error {
	query := `INSERT INTO sign_records (task, chat_id, message_id, status, signed_at) VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.Exec(query, rec.Task, rec.ChatID, rec.MessageID, rec.Status, rec.SignedAt)
	if err != nil {
		return err
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// LastSignTime returns the time of the most recent successful sign-in for
// a task's chat, if any.
func (s *Storage) LastSignTime(task, chatID string) (time.Time, bool, error) {
	var signedAt time.Time
	query := `SELECT signed_at FROM sign_records WHERE task = ? AND chat_id = ? AND status = 'ok' ORDER BY signed_at DESC LIMIT 1`
	err := s.db.Get(&signedAt, query, task, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return signedAt, true, nil
}

// SaveMonitorEvent stores a rule match.
func (s *Storage) SaveMonitorEvent(ev *MonitorEvent) error {
	query := `INSERT INTO monitor_events (task, chat_id, rule_index, sender, matched_text, sent_text, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.Exec(query, ev.Task, ev.ChatID, ev.RuleIndex, ev.Sender, ev.Matched, ev.SentText, ev.CreatedAt)
	if err != nil {
		return err
	}
	ev.ID, _ = res.LastInsertId()
	return nil
}

// RecentEvents returns the newest monitor events, most recent first.
func (s *Storage) RecentEvents(limit int) ([]MonitorEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []MonitorEvent
	query := `SELECT id, task, chat_id, rule_index, sender, matched_text, sent_text, created_at FROM monitor_events ORDER BY created_at DESC, id DESC LIMIT ?`
	if err := s.db.Select(&events, query, limit); err != nil {
		return nil, err
	}
	return events, nil
}

// RecentSignRecords returns the newest sign records, most recent first.
func (s *Storage) RecentSignRecords(limit int) ([]SignRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []SignRecord
	query := `SELECT id, task, chat_id, message_id, status, signed_at FROM sign_records ORDER BY signed_at DESC, id DESC LIMIT ?`
	if err := s.db.Select(&records, query, limit); err != nil {
		return nil, err
	}
	return records, nil
}
