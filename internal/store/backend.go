package store

import (
	"sync"
)

// Backend persists conversations and settings. Implementations need not be
// safe for concurrent use; Store serialises calls.
type Backend interface {
	LoadConversations() ([]*Conversation, error)
	SaveConversation(c *Conversation) error
	DeleteConversation(id string) error

	// LoadSettings returns nil, nil when nothing has been saved.
	LoadSettings() (*Settings, error)
	SaveSettings(s *Settings) error

	Close() error
}

// MemoryBackend keeps state for the life of the process only.
type MemoryBackend struct {
	mu            sync.Mutex
	conversations map[string]Conversation
	settings      *Settings
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{conversations: make(map[string]Conversation)}
}

func (b *MemoryBackend) LoadConversations() ([]*Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Conversation, 0, len(b.conversations))
	for _, c := range b.conversations {
		c := c.clone()
		out = append(out, &c)
	}
	return out, nil
}

func (b *MemoryBackend) SaveConversation(c *Conversation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[c.ID] = c.clone()
	return nil
}

func (b *MemoryBackend) DeleteConversation(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, id)
	return nil
}

func (b *MemoryBackend) LoadSettings() (*Settings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.settings == nil {
		return nil, nil
	}
	s := *b.settings
	return &s, nil
}

func (b *MemoryBackend) SaveSettings(s *Settings) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	saved := *s
	b.settings = &saved
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
