package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jedarden/stickycheese/internal/config"
	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/internal/store"
	"github.com/jedarden/stickycheese/internal/stream"
	"github.com/jedarden/stickycheese/pkg/models"
)

const openAIReply = "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
	"data: [DONE]\n\n"

type captured struct {
	path     string
	auth     string
	messages []map[string]interface{}
}

func replyServer(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		var payload struct {
			Messages []map[string]interface{} `json:"messages"`
		}
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &payload)
		c.messages = payload.Messages

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			io.WriteString(w, body)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, c
}

func newSession(t *testing.T, cfg *config.Config) (*Session, *store.Store, string) {
	t.Helper()
	st, err := store.New(store.NewMemoryBackend())
	require.NoError(t, err)
	conv, err := st.CreateConversation()
	require.NoError(t, err)
	return NewSession(st, stream.NewClient(), cfg), st, conv.ID
}

func TestSend(t *testing.T) {
	server, got := replyServer(t, http.StatusOK, openAIReply)
	s, st, convID := newSession(t, &config.Config{OpenAIAPIKey: "sk-config", RelayURL: server.URL})

	var chunks []string
	reply, err := s.Send(context.Background(), convID, Input{Text: "  Say hello  "}, func(text string) {
		chunks = append(chunks, text)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello", " world"}, chunks)
	assert.Equal(t, "Hello world", reply.Message.Content)
	assert.Equal(t, models.RoleAssistant, reply.Message.Role)
	assert.Equal(t, provider.DefaultModel, reply.Message.Model)
	assert.False(t, reply.Truncated)
	assert.False(t, reply.Cancelled)
	assert.False(t, s.Streaming())

	assert.Equal(t, "/openai/v1/chat/completions", got.path)
	assert.Equal(t, "Bearer sk-config", got.auth)
	require.Len(t, got.messages, 1, "the empty assistant placeholder is not sent")
	assert.Equal(t, "user", got.messages[0]["role"])
	assert.Equal(t, "Say hello", got.messages[0]["content"])

	conv, err := st.Get(convID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Say hello", conv.Messages[0].Content)
	assert.Equal(t, "Hello world", conv.Messages[1].Content)
	assert.Equal(t, "Say hello", conv.Title)
}

func TestSend_SecondTurnSendsHistory(t *testing.T) {
	server, got := replyServer(t, http.StatusOK, openAIReply)
	s, _, convID := newSession(t, &config.Config{OpenAIAPIKey: "sk-config", RelayURL: server.URL})

	_, err := s.Send(context.Background(), convID, Input{Text: "first"}, nil)
	require.NoError(t, err)
	_, err = s.Send(context.Background(), convID, Input{Text: "second"}, nil)
	require.NoError(t, err)

	require.Len(t, got.messages, 3)
	assert.Equal(t, "first", got.messages[0]["content"])
	assert.Equal(t, "Hello world", got.messages[1]["content"])
	assert.Equal(t, "second", got.messages[2]["content"])
}

func TestSend_SettingsFallback(t *testing.T) {
	server, got := replyServer(t, http.StatusOK, openAIReply)
	s, st, convID := newSession(t, nil)
	require.NoError(t, st.SetAPIKey(provider.OpenAI, "sk-saved"))
	require.NoError(t, st.SetRelayURL(server.URL+"/"))

	_, err := s.Send(context.Background(), convID, Input{Text: "hi"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-saved", got.auth)
	assert.Equal(t, "/openai/v1/chat/completions", got.path)
}

func TestSend_ConfigKeyWins(t *testing.T) {
	server, _ := replyServer(t, http.StatusOK, openAIReply)
	s, st, _ := newSession(t, &config.Config{OpenAIAPIKey: "sk-config", RelayURL: server.URL})
	require.NoError(t, st.SetAPIKey(provider.OpenAI, "sk-saved"))

	assert.Equal(t, "sk-config", s.APIKey(provider.OpenAI))
	assert.Equal(t, "", s.APIKey(provider.Google))
	assert.Equal(t, server.URL, s.RelayURL())
}

func TestSend_ProviderError(t *testing.T) {
	server, _ := replyServer(t, http.StatusUnauthorized,
		`{"error":{"message":"Incorrect API key provided: sk-wrong1234567890abcd"}}`)
	s, st, convID := newSession(t, &config.Config{OpenAIAPIKey: "sk-wrong", RelayURL: server.URL})

	reply, err := s.Send(context.Background(), convID, Input{Text: "hi"}, nil)
	require.Error(t, err)

	var terr *stream.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusUnauthorized, terr.StatusCode)

	assert.True(t, strings.HasPrefix(reply.Message.Content, ErrorPrefix+"Incorrect API key provided"))
	assert.NotContains(t, reply.Message.Content, "sk-wrong1234567890abcd")

	conv, err := st.Get(convID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2, "the user message is kept")
	assert.False(t, s.Streaming())
}

func TestSend_MissingKey(t *testing.T) {
	s, st, convID := newSession(t, nil)
	require.NoError(t, st.SetModel(convID, "claude-sonnet-4-20250514"))

	reply, err := s.Send(context.Background(), convID, Input{Text: "hi"}, nil)
	require.ErrorIs(t, err, stream.ErrMissingCredential)
	assert.Contains(t, reply.Message.Content, "Anthropic")
	assert.Equal(t, "claude-sonnet-4-20250514", reply.Message.Model)
}

func TestSend_Rejected(t *testing.T) {
	s, st, convID := newSession(t, nil)

	_, err := s.Send(context.Background(), convID, Input{Text: "   "}, nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = s.Send(context.Background(), "missing", Input{Text: "hi"}, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	conv, err := st.Get(convID)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
	assert.False(t, s.Streaming())
}

func TestSend_ImageOnly(t *testing.T) {
	server, got := replyServer(t, http.StatusOK, openAIReply)
	s, st, convID := newSession(t, &config.Config{OpenAIAPIKey: "sk-config", RelayURL: server.URL})

	_, err := s.Send(context.Background(), convID, Input{Images: []models.ImageAttachment{
		{Data: "iVBORw0KGgo=", MediaType: "image/png", Name: "a.png"},
	}}, nil)
	require.NoError(t, err)

	require.Len(t, got.messages, 1)
	parts, ok := got.messages[0]["content"].([]interface{})
	require.True(t, ok, "image messages use content parts")
	require.Len(t, parts, 1)

	conv, err := st.Get(convID)
	require.NoError(t, err)
	assert.Equal(t, "Image shared", conv.Title)
	assert.NotEmpty(t, conv.Messages[0].Images[0].ID)
}

func TestSend_BusyAndStop(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	s, st, convID := newSession(t, &config.Config{OpenAIAPIKey: "sk-config", RelayURL: server.URL})

	first := make(chan struct{})
	type result struct {
		reply Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		var once bool
		reply, err := s.Send(context.Background(), convID, Input{Text: "long answer"}, func(string) {
			if !once {
				once = true
				close(first)
			}
		})
		done <- result{reply, err}
	}()

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("no delta received")
	}
	assert.True(t, s.Streaming())

	_, err := s.Send(context.Background(), convID, Input{Text: "interrupt"}, nil)
	assert.ErrorIs(t, err, ErrBusy)

	s.Stop()

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after Stop")
	}
	require.NoError(t, res.err)
	assert.True(t, res.reply.Cancelled)
	assert.Equal(t, "partial", res.reply.Message.Content)
	assert.False(t, s.Streaming())

	conv, err := st.Get(convID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2, "the rejected send adds nothing")
}

func TestSend_Truncated(t *testing.T) {
	server, _ := replyServer(t, http.StatusOK, "data: {\"choices\":[{\"delta\":{\"content\":\"cut\"}}]}\n\n")
	s, _, convID := newSession(t, &config.Config{OpenAIAPIKey: "sk-config", RelayURL: server.URL})

	reply, err := s.Send(context.Background(), convID, Input{Text: "hi"}, nil)
	require.NoError(t, err)
	assert.True(t, reply.Truncated)
	assert.Equal(t, "cut", reply.Message.Content)
}

// slowBackend delays conversation saves once armed, holding Send between
// accepting the turn and opening the stream.
type slowBackend struct {
	*store.MemoryBackend
	armed  atomic.Bool
	saving chan struct{}
	once   sync.Once
}

func (b *slowBackend) SaveConversation(c *store.Conversation) error {
	if b.armed.Load() {
		b.once.Do(func() { close(b.saving) })
		time.Sleep(100 * time.Millisecond)
	}
	return b.MemoryBackend.SaveConversation(c)
}

func TestSend_StopBeforeStreamOpens(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, openAIReply)
	}))
	defer server.Close()

	backend := &slowBackend{MemoryBackend: store.NewMemoryBackend(), saving: make(chan struct{})}
	st, err := store.New(backend)
	require.NoError(t, err)
	conv, err := st.CreateConversation()
	require.NoError(t, err)
	s := NewSession(st, stream.NewClient(), &config.Config{OpenAIAPIKey: "sk-config", RelayURL: server.URL})

	backend.armed.Store(true)
	type result struct {
		reply Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := s.Send(context.Background(), conv.ID, Input{Text: "Say hello"}, nil)
		done <- result{reply, err}
	}()

	select {
	case <-backend.saving:
	case <-time.After(5 * time.Second):
		t.Fatal("user message was never saved")
	}
	require.True(t, s.Streaming())
	s.Stop()

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after Stop")
	}
	require.NoError(t, res.err)
	assert.True(t, res.reply.Cancelled)
	assert.Empty(t, res.reply.Message.Content)
	assert.Zero(t, requests.Load(), "no request is sent for a stopped turn")
	assert.False(t, s.Streaming())
}
