package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend stores one JSON file per conversation plus settings.json.
type FileBackend struct {
	// BaseDir is the directory holding the conversations/ subdirectory and
	// settings.json.
	BaseDir string
}

// NewFileBackend creates a file backend rooted at baseDir.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "conversations"), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileBackend{BaseDir: baseDir}, nil
}

func (b *FileBackend) conversationPath(id string) string {
	return filepath.Join(b.BaseDir, "conversations", id+".json")
}

func (b *FileBackend) settingsPath() string {
	return filepath.Join(b.BaseDir, "settings.json")
}

func (b *FileBackend) LoadConversations() ([]*Conversation, error) {
	entries, err := os.ReadDir(filepath.Join(b.BaseDir, "conversations"))
	if err != nil {
		return nil, err
	}

	var convs []*Conversation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.BaseDir, "conversations", entry.Name()))
		if err != nil {
			return nil, err
		}
		var c Conversation
		if err := json.Unmarshal(data, &c); err != nil {
			// Skip corrupted files
			continue
		}
		convs = append(convs, &c)
	}
	return convs, nil
}

func (b *FileBackend) SaveConversation(c *Conversation) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	return writeFileAtomic(b.conversationPath(c.ID), data)
}

func (b *FileBackend) DeleteConversation(id string) error {
	err := os.Remove(b.conversationPath(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *FileBackend) LoadSettings() (*Settings, error) {
	data, err := os.ReadFile(b.settingsPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &s, nil
}

func (b *FileBackend) SaveSettings(s *Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return writeFileAtomic(b.settingsPath(), data)
}

func (b *FileBackend) Close() error {
	return nil
}

// writeFileAtomic writes through a temp file and rename so readers never see
// a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
