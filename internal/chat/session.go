// Package chat runs conversation turns: it records the user message, streams
// the provider reply into a new assistant message and keeps the store in step.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/jedarden/stickycheese/internal/config"
	"github.com/jedarden/stickycheese/internal/logging"
	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/internal/secrets"
	"github.com/jedarden/stickycheese/internal/store"
	"github.com/jedarden/stickycheese/internal/stream"
	"github.com/jedarden/stickycheese/pkg/models"
)

var (
	// ErrBusy is returned by Send while another reply is streaming.
	ErrBusy = errors.New("a reply is already streaming")
	// ErrEmptyMessage is returned by Send for a message with no text and no
	// images.
	ErrEmptyMessage = errors.New("message is empty")
)

// ErrorPrefix marks an assistant message whose reply failed.
const ErrorPrefix = "⚠️ Error: "

// Input is what the user sends in one turn.
type Input struct {
	Text   string
	Images []models.ImageAttachment
}

// Reply describes how a turn ended.
type Reply struct {
	Message   models.Message // final assistant message
	Truncated bool           // stream ended without an end marker
	Cancelled bool
}

// Session sends turns for the conversations of one store. Only one reply
// streams at a time.
type Session struct {
	store  *store.Store
	client *stream.Client
	cfg    *config.Config

	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc
}

// NewSession creates a session. Keys and the relay URL set in cfg take
// precedence over those saved in the store settings; cfg may be nil.
func NewSession(st *store.Store, client *stream.Client, cfg *config.Config) *Session {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Session{store: st, client: client, cfg: cfg}
}

// Streaming reports whether a reply is in progress.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Stop cancels the reply in progress, keeping what has arrived so far.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// APIKey returns the credential used for a provider.
func (s *Session) APIKey(id provider.ID) string {
	if key := s.cfg.APIKey(id); key != "" {
		return key
	}
	return s.store.Settings().Keys.Get(id)
}

// RelayURL returns the relay base URL in effect, or "" for direct calls.
func (s *Session) RelayURL() string {
	if s.cfg.RelayURL != "" {
		return s.cfg.RelayURL
	}
	return s.store.Settings().RelayURL
}

// acquire marks the session busy and returns the context of the new turn,
// which Stop cancels.
func (s *Session) acquire(ctx context.Context) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, false
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.busy = true
	s.cancel = cancel
	return turnCtx, true
}

func (s *Session) release() {
	s.mu.Lock()
	s.cancel()
	s.busy = false
	s.cancel = nil
	s.mu.Unlock()
}

// Send appends in as a user message to the conversation, then streams the
// reply into a new assistant message, calling onDelta (if non-nil) for each
// chunk. A failed reply is recorded in the assistant message and returned as
// the error. Cancelling ctx or calling Stop ends the turn without an error.
func (s *Session) Send(ctx context.Context, convID string, in Input, onDelta func(string)) (Reply, error) {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" && len(in.Images) == 0 {
		return Reply{}, ErrEmptyMessage
	}
	ctx, ok := s.acquire(ctx)
	if !ok {
		return Reply{}, ErrBusy
	}
	defer s.release()

	conv, err := s.store.Get(convID)
	if err != nil {
		return Reply{}, err
	}
	if len(in.Images) > 0 {
		if m, err := provider.Lookup(conv.ModelID); err == nil && !m.SupportsVision {
			log.Printf("%s %s does not accept images; sending them anyway", logging.Prefix, m.Name)
		}
	}

	if _, err := s.store.AddMessage(convID, models.Message{
		Role:    models.RoleUser,
		Content: in.Text,
		Images:  in.Images,
	}); err != nil {
		return Reply{}, fmt.Errorf("failed to add message: %w", err)
	}
	assistant, err := s.store.AddMessage(convID, models.Message{
		Role:  models.RoleAssistant,
		Model: conv.ModelID,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("failed to add message: %w", err)
	}

	conv, err = s.store.Get(convID)
	if err != nil {
		return Reply{}, err
	}
	history := conv.Messages[:len(conv.Messages)-1]

	var key string
	if p, err := provider.Resolve(conv.ModelID); err == nil {
		key = s.APIKey(p.Name())
	}

	st := s.client.Stream(ctx, stream.Request{
		Messages:     history,
		ModelID:      conv.ModelID,
		APIKey:       key,
		SystemPrompt: conv.SystemPrompt,
		RelayURL:     s.RelayURL(),
	})
	defer st.Close()

	reply, streamErr := s.drain(convID, assistant.ID, st, onDelta)
	if err := s.store.Persist(convID); err != nil {
		log.Printf("%s Failed to save conversation %s: %v", logging.Prefix, convID, err)
	}

	conv, err = s.store.Get(convID)
	if err == nil {
		for _, m := range conv.Messages {
			if m.ID == assistant.ID {
				reply.Message = m
			}
		}
	}
	return reply, streamErr
}

func (s *Session) drain(convID, msgID string, st *stream.Stream, onDelta func(string)) (Reply, error) {
	var reply Reply
	for {
		ev, ok := st.Next()
		if !ok {
			reply.Cancelled = st.State() == stream.StateCancelled
			return reply, nil
		}
		switch ev.Kind {
		case stream.EventDelta:
			if err := s.store.AppendToMessage(convID, msgID, ev.Text); err != nil {
				return reply, err
			}
			if onDelta != nil {
				onDelta(ev.Text)
			}
		case stream.EventDone:
			reply.Truncated = ev.Truncated
			return reply, nil
		case stream.EventError:
			msg := secrets.MaskString(ev.Err.Error())
			log.Printf("%s Reply failed: %s", logging.Prefix, msg)
			if err := s.store.UpdateMessage(convID, msgID, ErrorPrefix+msg); err != nil {
				log.Printf("%s Failed to record error: %v", logging.Prefix, err)
			}
			return reply, ev.Err
		}
	}
}
