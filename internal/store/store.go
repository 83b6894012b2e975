// Package store holds conversations and client settings behind an explicit
// handle, persisting them through a pluggable backend.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/internal/translator"
	"github.com/jedarden/stickycheese/pkg/models"
)

// ErrNotFound is returned for an unknown conversation or message id.
var ErrNotFound = errors.New("not found")

const (
	// DefaultTitle is the title of a conversation before its first message.
	DefaultTitle = "New Chat"

	titleMaxRunes = 50
)

// Conversation is an ordered chat history with its settings.
type Conversation struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Messages     []models.Message `json:"messages"`
	ModelID      string           `json:"modelId"`
	SystemPrompt string           `json:"systemPrompt"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = make([]models.Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

func (c *Conversation) message(id string) *models.Message {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i]
		}
	}
	return nil
}

// StorageMode controls where provider keys are kept.
type StorageMode string

const (
	// StorageSession keeps keys in memory for the life of the process.
	StorageSession StorageMode = "session"
	// StorageLocal persists keys through the backend.
	StorageLocal StorageMode = "local"
)

// APIKeys holds one credential per provider.
type APIKeys struct {
	OpenAI    string `json:"openai"`
	Anthropic string `json:"anthropic"`
	Google    string `json:"google"`
}

// Get returns the key for a provider.
func (k APIKeys) Get(id provider.ID) string {
	switch id {
	case provider.OpenAI:
		return k.OpenAI
	case provider.Anthropic:
		return k.Anthropic
	case provider.Google:
		return k.Google
	default:
		return ""
	}
}

func (k *APIKeys) set(id provider.ID, key string) error {
	switch id {
	case provider.OpenAI:
		k.OpenAI = key
	case provider.Anthropic:
		k.Anthropic = key
	case provider.Google:
		k.Google = key
	default:
		return fmt.Errorf("%w: %s", provider.ErrUnknownProvider, id)
	}
	return nil
}

// Settings are the client-wide preferences.
type Settings struct {
	Keys        APIKeys     `json:"keys"`
	RelayURL    string      `json:"relayUrl"`
	StorageMode StorageMode `json:"storageMode"`
}

// Store is the single owner of conversation and settings state. All methods
// are safe for concurrent use and return copies.
type Store struct {
	mu            sync.RWMutex
	backend       Backend
	conversations []*Conversation // newest first
	settings      Settings
	activeID      string
	now           func() time.Time
}

// New loads state from backend. A backend with no saved settings starts in
// session mode.
func New(backend Backend) (*Store, error) {
	s := &Store{
		backend:  backend,
		settings: Settings{StorageMode: StorageSession},
		now:      time.Now,
	}

	convs, err := backend.LoadConversations()
	if err != nil {
		return nil, fmt.Errorf("loading conversations: %w", err)
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
	s.conversations = convs

	settings, err := backend.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if settings != nil {
		s.settings = *settings
		if s.settings.StorageMode == "" {
			s.settings.StorageMode = StorageSession
		}
	}
	return s, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

func (s *Store) find(id string) (*Conversation, error) {
	for _, c := range s.conversations {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("conversation %w: %s", ErrNotFound, id)
}

// update applies fn to a conversation, stamps it and persists it.
func (s *Store) update(id string, fn func(c *Conversation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.find(id)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	c.UpdatedAt = s.now()
	return s.backend.SaveConversation(c)
}

// CreateConversation adds an empty conversation, makes it active and returns
// it.
func (s *Store) CreateConversation() (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := &Conversation{
		ID:        uuid.New().String(),
		Title:     DefaultTitle,
		Messages:  []models.Message{},
		ModelID:   provider.DefaultModel,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.backend.SaveConversation(c); err != nil {
		return Conversation{}, err
	}
	s.conversations = append([]*Conversation{c}, s.conversations...)
	s.activeID = c.ID
	return c.clone(), nil
}

// Conversations returns all conversations, newest first.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.clone()
	}
	return out
}

// Get returns a conversation by id.
func (s *Store) Get(id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.find(id)
	if err != nil {
		return Conversation{}, err
	}
	return c.clone(), nil
}

// Delete removes a conversation. Deleting the active one clears the
// selection.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.conversations {
		if c.ID != id {
			continue
		}
		if err := s.backend.DeleteConversation(id); err != nil {
			return err
		}
		s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
		if s.activeID == id {
			s.activeID = ""
		}
		return nil
	}
	return fmt.Errorf("conversation %w: %s", ErrNotFound, id)
}

// Rename sets a conversation's title.
func (s *Store) Rename(id, title string) error {
	return s.update(id, func(c *Conversation) error {
		c.Title = title
		return nil
	})
}

// SetModel selects the model for a conversation.
func (s *Store) SetModel(id, modelID string) error {
	if _, err := provider.Lookup(modelID); err != nil {
		return err
	}
	return s.update(id, func(c *Conversation) error {
		c.ModelID = modelID
		return nil
	})
}

// SetSystemPrompt sets the conversation's system prompt.
func (s *Store) SetSystemPrompt(id, prompt string) error {
	return s.update(id, func(c *Conversation) error {
		c.SystemPrompt = prompt
		return nil
	})
}

// Clear removes every message of a conversation.
func (s *Store) Clear(id string) error {
	return s.update(id, func(c *Conversation) error {
		c.Messages = []models.Message{}
		return nil
	})
}

// SetActive selects the active conversation. An empty id clears it.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, err := s.find(id); err != nil {
			return err
		}
	}
	s.activeID = id
	return nil
}

// Active returns the active conversation, if any.
func (s *Store) Active() (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == "" {
		return Conversation{}, false
	}
	c, err := s.find(s.activeID)
	if err != nil {
		return Conversation{}, false
	}
	return c.clone(), true
}

// AddMessage appends msg with a fresh id and timestamp and returns the stored
// copy. The first user message of a conversation names it.
func (s *Store) AddMessage(convID string, msg models.Message) (models.Message, error) {
	msg.ID = uuid.New().String()
	msg.Timestamp = s.now()
	if len(msg.Images) > 0 {
		images := make([]models.ImageAttachment, len(msg.Images))
		copy(images, msg.Images)
		for i := range images {
			if images[i].ID == "" {
				images[i].ID = uuid.New().String()
			}
		}
		msg.Images = images
	}

	err := s.update(convID, func(c *Conversation) error {
		if len(c.Messages) == 0 && msg.Role == models.RoleUser {
			if title := DeriveTitle(msg); title != "" {
				c.Title = title
			}
		}
		c.Messages = append(c.Messages, msg)
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// UpdateMessage replaces a message's content and persists the conversation.
func (s *Store) UpdateMessage(convID, msgID, content string) error {
	return s.update(convID, func(c *Conversation) error {
		m := c.message(msgID)
		if m == nil {
			return fmt.Errorf("message %w: %s", ErrNotFound, msgID)
		}
		m.Content = content
		return nil
	})
}

// AppendToMessage appends a streamed delta to a message in memory. Call
// Persist once the stream ends.
func (s *Store) AppendToMessage(convID, msgID, delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.find(convID)
	if err != nil {
		return err
	}
	m := c.message(msgID)
	if m == nil {
		return fmt.Errorf("message %w: %s", ErrNotFound, msgID)
	}
	m.Content += delta
	c.UpdatedAt = s.now()
	return nil
}

// Persist writes a conversation to the backend.
func (s *Store) Persist(convID string) error {
	return s.update(convID, func(c *Conversation) error { return nil })
}

// DeriveTitle names a conversation from its first user message: the first 50
// characters of the text (with an ellipsis when longer), or "Image shared" /
// "Images shared" for an image-only message. It returns "" when neither is
// present.
func DeriveTitle(msg models.Message) string {
	text := msg.Content
	if text != "" {
		if utf8.RuneCountInString(text) > titleMaxRunes {
			runes := []rune(text)
			return string(runes[:titleMaxRunes]) + "…"
		}
		return text
	}
	switch n := len(msg.Images); {
	case n == 1:
		return "Image shared"
	case n > 1:
		return "Images shared"
	}
	return ""
}

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetAPIKey stores a provider key. Keys are persisted only in local mode.
func (s *Store) SetAPIKey(id provider.ID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.settings.Keys.set(id, strings.TrimSpace(key)); err != nil {
		return err
	}
	return s.saveSettings()
}

// SetRelayURL stores the relay base URL, normalised.
func (s *Store) SetRelayURL(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.RelayURL = translator.NormalizeRelayURL(url)
	return s.saveSettings()
}

// SetStorageMode switches between session and local storage of keys. Keys
// move with the mode: entering session mode removes them from the backend,
// entering local mode writes them to it.
func (s *Store) SetStorageMode(mode StorageMode) error {
	switch mode {
	case StorageSession, StorageLocal:
	default:
		return fmt.Errorf("unknown storage mode: %s", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.StorageMode = mode
	return s.saveSettings()
}

// saveSettings persists settings, leaving keys out unless in local mode.
// Callers hold s.mu.
func (s *Store) saveSettings() error {
	persisted := s.settings
	if persisted.StorageMode != StorageLocal {
		persisted.Keys = APIKeys{}
	}
	return s.backend.SaveSettings(&persisted)
}
