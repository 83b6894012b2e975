package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	model_id      TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	messages      TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	data TEXT NOT NULL
);
`

// SQLiteBackend stores conversations in a SQLite database. Messages are kept
// as a JSON column since they are always read and written as a whole.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) LoadConversations() ([]*Conversation, error) {
	rows, err := b.db.Query(`SELECT id, title, model_id, system_prompt, messages, created_at, updated_at FROM conversations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var (
			c                Conversation
			messages         string
			created, updated int64
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.ModelID, &c.SystemPrompt, &messages, &created, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(messages), &c.Messages); err != nil {
			return nil, fmt.Errorf("decoding messages of %s: %w", c.ID, err)
		}
		c.CreatedAt = time.UnixMilli(created)
		c.UpdatedAt = time.UnixMilli(updated)
		convs = append(convs, &c)
	}
	return convs, rows.Err()
}

func (b *SQLiteBackend) SaveConversation(c *Conversation) error {
	messages, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO conversations (id, title, model_id, system_prompt, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model_id = excluded.model_id,
			system_prompt = excluded.system_prompt,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		c.ID, c.Title, c.ModelID, c.SystemPrompt, string(messages),
		c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	return err
}

func (b *SQLiteBackend) DeleteConversation(id string) error {
	_, err := b.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	return err
}

func (b *SQLiteBackend) LoadSettings() (*Settings, error) {
	var data string
	err := b.db.QueryRow(`SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &s, nil
}

func (b *SQLiteBackend) SaveSettings(s *Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	_, err = b.db.Exec(`INSERT INTO settings (id, data) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(data))
	return err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
