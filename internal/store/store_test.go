package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/pkg/models"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(NewMemoryBackend())
	require.NoError(t, err)
	return s
}

func TestCreateConversation(t *testing.T) {
	s := newMemoryStore(t)

	c, err := s.CreateConversation()
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "New Chat", c.Title)
	assert.Equal(t, "gpt-4o", c.ModelID)
	assert.Empty(t, c.Messages)
	assert.False(t, c.CreatedAt.IsZero())

	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, c.ID, active.ID)

	second, err := s.CreateConversation()
	require.NoError(t, err)
	list := s.Conversations()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest conversation first")
}

func TestNotFound(t *testing.T) {
	s := newMemoryStore(t)

	_, err := s.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.ErrorIs(t, s.Delete("missing"), ErrNotFound)
	assert.ErrorIs(t, s.Rename("missing", "x"), ErrNotFound)
	assert.ErrorIs(t, s.SetActive("missing"), ErrNotFound)

	c, err := s.CreateConversation()
	require.NoError(t, err)
	assert.ErrorIs(t, s.UpdateMessage(c.ID, "missing", "x"), ErrNotFound)
	assert.ErrorIs(t, s.AppendToMessage(c.ID, "missing", "x"), ErrNotFound)
}

func TestDeriveTitle(t *testing.T) {
	long := strings.Repeat("a", 60)
	unicode := strings.Repeat("é", 51)
	img := models.ImageAttachment{Data: "AAAA", MediaType: "image/png"}

	tests := []struct {
		name string
		msg  models.Message
		want string
	}{
		{"short text", models.Message{Content: "Hello there"}, "Hello there"},
		{"exactly fifty", models.Message{Content: long[:50]}, long[:50]},
		{"long text", models.Message{Content: long}, long[:50] + "…"},
		{"multibyte", models.Message{Content: unicode}, strings.Repeat("é", 50) + "…"},
		{"text and image", models.Message{Content: "Look", Images: []models.ImageAttachment{img}}, "Look"},
		{"one image", models.Message{Images: []models.ImageAttachment{img}}, "Image shared"},
		{"two images", models.Message{Images: []models.ImageAttachment{img, img}}, "Images shared"},
		{"empty", models.Message{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.msg))
		})
	}
}

func TestAddMessage(t *testing.T) {
	s := newMemoryStore(t)
	c, err := s.CreateConversation()
	require.NoError(t, err)

	user, err := s.AddMessage(c.ID, models.Message{
		Role:    models.RoleUser,
		Content: "What is in this picture?",
		Images:  []models.ImageAttachment{{Data: "AAAA", MediaType: "image/png"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.Timestamp.IsZero())
	assert.NotEmpty(t, user.Images[0].ID, "attachment ids are assigned")

	_, err = s.AddMessage(c.ID, models.Message{Role: models.RoleUser, Content: "second"})
	require.NoError(t, err)

	got, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "What is in this picture?", got.Title, "only the first user message names the conversation")
	assert.Len(t, got.Messages, 2)
}

func TestAddMessage_AssistantFirstKeepsTitle(t *testing.T) {
	s := newMemoryStore(t)
	c, err := s.CreateConversation()
	require.NoError(t, err)

	_, err = s.AddMessage(c.ID, models.Message{Role: models.RoleAssistant, Content: "Hi, I am the assistant"})
	require.NoError(t, err)

	got, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, got.Title)
}

func TestStreamingUpdates(t *testing.T) {
	s := newMemoryStore(t)
	c, err := s.CreateConversation()
	require.NoError(t, err)

	msg, err := s.AddMessage(c.ID, models.Message{Role: models.RoleAssistant, Model: "gpt-4o"})
	require.NoError(t, err)

	for _, d := range []string{"Hel", "lo", "!"} {
		require.NoError(t, s.AppendToMessage(c.ID, msg.ID, d))
	}
	got, _ := s.Get(c.ID)
	assert.Equal(t, "Hello!", got.Messages[0].Content)

	require.NoError(t, s.UpdateMessage(c.ID, msg.ID, "replaced"))
	got, _ = s.Get(c.ID)
	assert.Equal(t, "replaced", got.Messages[0].Content)
}

func TestConversationMutations(t *testing.T) {
	s := newMemoryStore(t)
	c, err := s.CreateConversation()
	require.NoError(t, err)
	_, err = s.AddMessage(c.ID, models.Message{Role: models.RoleUser, Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.Rename(c.ID, "Renamed"))
	require.NoError(t, s.SetSystemPrompt(c.ID, "Be terse"))
	require.NoError(t, s.SetModel(c.ID, "claude-sonnet-4-20250514"))
	assert.ErrorIs(t, s.SetModel(c.ID, "gpt-5"), provider.ErrUnknownModel)
	require.NoError(t, s.Clear(c.ID))

	got, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, "Be terse", got.SystemPrompt)
	assert.Equal(t, "claude-sonnet-4-20250514", got.ModelID)
	assert.Empty(t, got.Messages)
	assert.True(t, !got.UpdatedAt.Before(got.CreatedAt))

	require.NoError(t, s.Delete(c.ID))
	_, ok := s.Active()
	assert.False(t, ok, "deleting the active conversation clears the selection")
	assert.Empty(t, s.Conversations())
}

func TestGetReturnsCopy(t *testing.T) {
	s := newMemoryStore(t)
	c, err := s.CreateConversation()
	require.NoError(t, err)
	_, err = s.AddMessage(c.ID, models.Message{Role: models.RoleUser, Content: "original"})
	require.NoError(t, err)

	got, _ := s.Get(c.ID)
	got.Messages[0].Content = "mutated"

	again, _ := s.Get(c.ID)
	assert.Equal(t, "original", again.Messages[0].Content)
}

func TestExport(t *testing.T) {
	s := newMemoryStore(t)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 30, 0, 0, time.Local) }

	c, err := s.CreateConversation()
	require.NoError(t, err)
	require.NoError(t, s.SetSystemPrompt(c.ID, "Be kind"))
	_, err = s.AddMessage(c.ID, models.Message{Role: models.RoleUser, Content: "Hi"})
	require.NoError(t, err)
	_, err = s.AddMessage(c.ID, models.Message{Role: models.RoleAssistant, Content: "Hello!", Model: "gpt-4o"})
	require.NoError(t, err)
	_, err = s.AddMessage(c.ID, models.Message{Role: models.RoleAssistant, Content: "Anything else?"})
	require.NoError(t, err)

	t.Run("text", func(t *testing.T) {
		out, err := s.Export(c.ID, ExportText)
		require.NoError(t, err)

		want := "# Hi\n\n" +
			"[System] Be kind\n\n" +
			"**You** (2025-03-01 12:30:00):\nHi\n\n---\n\n" +
			"**gpt-4o** (2025-03-01 12:30:00):\nHello!\n\n---\n\n" +
			"**Assistant** (2025-03-01 12:30:00):\nAnything else?\n\n---\n\n"
		assert.Equal(t, want, out)
	})

	t.Run("json", func(t *testing.T) {
		out, err := s.Export(c.ID, ExportJSON)
		require.NoError(t, err)

		var decoded Conversation
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, c.ID, decoded.ID)
		assert.Len(t, decoded.Messages, 3)
		assert.Contains(t, out, `"systemPrompt": "Be kind"`)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := s.Export(c.ID, "pdf")
		assert.Error(t, err)
	})
}

func TestSettings(t *testing.T) {
	backend := NewMemoryBackend()
	s, err := New(backend)
	require.NoError(t, err)

	assert.Equal(t, StorageSession, s.Settings().StorageMode)

	require.NoError(t, s.SetRelayURL("  https://relay.example.com// "))
	assert.Equal(t, "https://relay.example.com", s.Settings().RelayURL)

	require.NoError(t, s.SetAPIKey(provider.OpenAI, " sk-test "))
	assert.Equal(t, "sk-test", s.Settings().Keys.Get(provider.OpenAI))
	assert.Error(t, s.SetAPIKey("azure", "x"))

	saved, err := backend.LoadSettings()
	require.NoError(t, err)
	assert.Empty(t, saved.Keys.OpenAI, "session mode keeps keys out of the backend")
	assert.Equal(t, "https://relay.example.com", saved.RelayURL)
}

func TestStorageModeMigration(t *testing.T) {
	backend := NewMemoryBackend()
	s, err := New(backend)
	require.NoError(t, err)
	require.NoError(t, s.SetAPIKey(provider.Anthropic, "sk-ant"))

	require.NoError(t, s.SetStorageMode(StorageLocal))
	saved, _ := backend.LoadSettings()
	assert.Equal(t, "sk-ant", saved.Keys.Anthropic, "local mode persists keys")

	reopened, err := New(backend)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", reopened.Settings().Keys.Anthropic)
	assert.Equal(t, StorageLocal, reopened.Settings().StorageMode)

	require.NoError(t, reopened.SetStorageMode(StorageSession))
	saved, _ = backend.LoadSettings()
	assert.Empty(t, saved.Keys.Anthropic, "session mode removes persisted keys")
	assert.Equal(t, "sk-ant", reopened.Settings().Keys.Anthropic, "keys stay usable in memory")

	assert.Error(t, reopened.SetStorageMode("cloud"))
}

func testBackendRoundTrip(t *testing.T, open func() Backend) {
	t.Helper()

	backend := open()
	s, err := New(backend)
	require.NoError(t, err)

	first, err := s.CreateConversation()
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.CreateConversation()
	require.NoError(t, err)

	_, err = s.AddMessage(first.ID, models.Message{
		Role:    models.RoleUser,
		Content: "with image",
		Images:  []models.ImageAttachment{{Data: "AAAA", MediaType: "image/jpeg", Name: "cat.jpg"}},
	})
	require.NoError(t, err)
	require.NoError(t, s.SetStorageMode(StorageLocal))
	require.NoError(t, s.SetAPIKey(provider.Google, "g-key"))
	require.NoError(t, s.Delete(second.ID))
	time.Sleep(2 * time.Millisecond)
	third, err := s.CreateConversation()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := New(open())
	require.NoError(t, err)
	defer reopened.Close()

	list := reopened.Conversations()
	require.Len(t, list, 2)
	assert.Equal(t, third.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, "with image", list[1].Title)
	require.Len(t, list[1].Messages, 1)
	assert.Equal(t, "cat.jpg", list[1].Messages[0].Images[0].Name)
	assert.Equal(t, "g-key", reopened.Settings().Keys.Google)
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	testBackendRoundTrip(t, func() Backend {
		b, err := NewFileBackend(dir)
		require.NoError(t, err)
		return b
	})
}

func TestSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stickycheese.db")
	testBackendRoundTrip(t, func() Backend {
		b, err := NewSQLiteBackend(path)
		require.NoError(t, err)
		return b
	})
}
