package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/pkg/models"
)

var history = []models.Message{{ID: "m1", Role: models.RoleUser, Content: "Hi"}}

// collect drains s and returns its events.
func collect(t *testing.T, s *Stream) []Event {
	t.Helper()
	var events []Event
	for {
		ev, ok := s.Next()
		if !ok {
			return events
		}
		events = append(events, ev)
		if len(events) > 1000 {
			t.Fatal("stream did not terminate")
		}
	}
}

func deltaText(events []Event) string {
	var sb strings.Builder
	for _, ev := range events {
		if ev.Kind == EventDelta {
			sb.WriteString(ev.Text)
		}
	}
	return sb.String()
}

func sseServer(t *testing.T, body string, inspect func(r *http.Request, payload map[string]interface{})) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if inspect != nil {
			raw, _ := io.ReadAll(r.Body)
			var payload map[string]interface{}
			json.Unmarshal(raw, &payload)
			inspect(r, payload)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestStream_UnknownModel(t *testing.T) {
	server, hits := sseServer(t, "", nil)

	s := NewClient().Stream(context.Background(), Request{
		Messages: history, ModelID: "gpt-5", APIKey: "sk-test", RelayURL: server.URL,
	})
	events := collect(t, s)

	if len(events) != 1 || events[0].Kind != EventError {
		t.Fatalf("Expected a single error event, got %+v", events)
	}
	if !errors.Is(events[0].Err, provider.ErrUnknownModel) {
		t.Errorf("Expected ErrUnknownModel, got %v", events[0].Err)
	}
	if s.State() != StateFailed {
		t.Errorf("Expected state failed, got %s", s.State())
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("Expected no network call, got %d", *hits)
	}
}

func TestStream_MissingCredential(t *testing.T) {
	server, hits := sseServer(t, "", nil)

	tests := []struct {
		model string
		label string
	}{
		{"gpt-4o", "OpenAI"},
		{"claude-sonnet-4-20250514", "Anthropic"},
		{"gemini-2.5-flash", "Google"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			s := NewClient().Stream(context.Background(), Request{
				Messages: history, ModelID: tt.model, RelayURL: server.URL,
			})
			events := collect(t, s)
			if len(events) != 1 || !errors.Is(events[0].Err, ErrMissingCredential) {
				t.Fatalf("Expected ErrMissingCredential, got %+v", events)
			}
			msg := events[0].Err.Error()
			if !strings.Contains(msg, tt.label) || !strings.Contains(msg, "stickycheese setup") {
				t.Errorf("Unexpected message: %s", msg)
			}
		})
	}

	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("Expected no network call, got %d", *hits)
	}
}

func TestStream_OpenAI(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n"

	server, _ := sseServer(t, body, func(r *http.Request, payload map[string]interface{}) {
		if r.URL.Path != "/openai/v1/chat/completions" {
			t.Errorf("Expected relayed OpenAI path, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Expected bearer auth, got %q", got)
		}
		if payload["stream"] != true {
			t.Errorf("Expected stream true, got %v", payload["stream"])
		}
		if payload["max_tokens"] != float64(4096) {
			t.Errorf("Expected max_tokens 4096, got %v", payload["max_tokens"])
		}
		msgs := payload["messages"].([]interface{})
		if first := msgs[0].(map[string]interface{}); first["role"] != "system" {
			t.Errorf("Expected leading system message, got %v", first)
		}
	})

	s := NewClient().Stream(context.Background(), Request{
		Messages: history, ModelID: "gpt-4o", APIKey: "sk-test",
		SystemPrompt: "Be brief", RelayURL: server.URL + "/",
	})
	events := collect(t, s)

	if got := deltaText(events); got != "Hello" {
		t.Errorf("Expected Hello, got %q", got)
	}
	last := events[len(events)-1]
	if last.Kind != EventDone || last.Truncated {
		t.Errorf("Expected clean done, got %+v", last)
	}
	if s.State() != StateCompleted {
		t.Errorf("Expected completed, got %s", s.State())
	}
	if _, ok := s.Next(); ok {
		t.Error("Expected no events after done")
	}
}

func TestStream_Anthropic(t *testing.T) {
	body := "event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
		"data: {\"type\":\"content_block_start\",\"index\":0}\n\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Bon\"}}\n\n" +
		"data: {not json}\n\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"jour\"}}\n\n" +
		"data: {\"type\":\"message_stop\"}\n\n"

	server, _ := sseServer(t, body, func(r *http.Request, payload map[string]interface{}) {
		if r.URL.Path != "/anthropic/v1/messages" {
			t.Errorf("Expected relayed Anthropic path, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-ant" {
			t.Errorf("Expected x-api-key, got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-dangerous-direct-browser-access") != "" {
			t.Error("Relayed request must not carry the direct browser header")
		}
		if payload["system"] != "Be brief" {
			t.Errorf("Expected system field, got %v", payload["system"])
		}
	})

	events := collect(t, NewClient().Stream(context.Background(), Request{
		Messages: history, ModelID: "claude-sonnet-4-20250514", APIKey: "sk-ant",
		SystemPrompt: "Be brief", RelayURL: server.URL,
	}))

	if got := deltaText(events); got != "Bonjour" {
		t.Errorf("Expected Bonjour, got %q", got)
	}
	if len(events) != 3 || events[2].Kind != EventDone {
		t.Errorf("Expected two deltas and done, got %+v", events)
	}
}

func TestStream_ReasoningModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["stream"] != false {
			t.Errorf("Expected stream false, got %v", payload["stream"])
		}
		if _, ok := payload["max_tokens"]; ok {
			t.Error("Expected no max_tokens for o1")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Thought it through."}}]}`)
	}))
	defer server.Close()

	events := collect(t, NewClient().Stream(context.Background(), Request{
		Messages: history, ModelID: "o1-mini", APIKey: "sk-test", RelayURL: server.URL,
	}))

	if len(events) != 2 {
		t.Fatalf("Expected delta and done, got %+v", events)
	}
	if events[0].Kind != EventDelta || events[0].Text != "Thought it through." {
		t.Errorf("Unexpected delta: %+v", events[0])
	}
	if events[1].Kind != EventDone {
		t.Errorf("Expected done, got %+v", events[1])
	}
}

func TestStream_HTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		model   string
		wantMsg string
	}{
		{"envelope", 401, `{"error":{"message":"Incorrect API key provided"}}`, "gpt-4o", "Incorrect API key provided"},
		{"anthropic envelope", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, "claude-haiku-4-5-20251001", "Overloaded"},
		{"html body", 502, `<html>bad gateway</html>`, "gpt-4o", "Bad Gateway"},
		{"json without message", 400, `{"detail":"nope"}`, "gemini-2.5-flash", "Google API error: 400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			events := collect(t, NewClient().Stream(context.Background(), Request{
				Messages: history, ModelID: tt.model, APIKey: "k", RelayURL: server.URL,
			}))
			if len(events) != 1 || events[0].Kind != EventError {
				t.Fatalf("Expected one error event, got %+v", events)
			}
			var te *TransportError
			if !errors.As(events[0].Err, &te) {
				t.Fatalf("Expected TransportError, got %T", events[0].Err)
			}
			if te.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, te.StatusCode)
			}
			if te.Message != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, te.Message)
			}
		})
	}
}

func TestStream_Unterminated(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" tail\"}}]}"

	server, _ := sseServer(t, body, nil)
	req := Request{Messages: history, ModelID: "gpt-4o-mini", APIKey: "k", RelayURL: server.URL}

	t.Run("lenient", func(t *testing.T) {
		events := collect(t, NewClient().Stream(context.Background(), req))
		if got := deltaText(events); got != "partial tail" {
			t.Errorf("Expected trailing fragment to be processed, got %q", got)
		}
		last := events[len(events)-1]
		if last.Kind != EventDone || !last.Truncated {
			t.Errorf("Expected truncated done, got %+v", last)
		}
	})

	t.Run("strict", func(t *testing.T) {
		s := NewClient(WithStrictTermination()).Stream(context.Background(), req)
		events := collect(t, s)
		last := events[len(events)-1]
		if last.Kind != EventError || !errors.Is(last.Err, ErrTruncated) {
			t.Errorf("Expected ErrTruncated, got %+v", last)
		}
		if s.State() != StateFailed {
			t.Errorf("Expected failed, got %s", s.State())
		}
	})
}

func TestStream_Cancel(t *testing.T) {
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewClient().Stream(ctx, Request{
		Messages: history, ModelID: "gpt-4o", APIKey: "k", RelayURL: server.URL,
	})

	ev, ok := s.Next()
	if !ok || ev.Text != "first" {
		t.Fatalf("Expected first delta, got %+v %v", ev, ok)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Close()
	}()

	if ev, ok := s.Next(); ok {
		t.Errorf("Expected no event after cancel, got %+v", ev)
	}
	if s.State() != StateCancelled {
		t.Errorf("Expected cancelled, got %s", s.State())
	}
	if _, ok := s.Next(); ok {
		t.Error("Expected stream to stay ended")
	}
}

func TestStream_CancelBeforeStart(t *testing.T) {
	server, hits := sseServer(t, "data: [DONE]\n", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewClient().Stream(ctx, Request{Messages: history, ModelID: "gpt-4o", APIKey: "k", RelayURL: server.URL})
	if _, ok := s.Next(); ok {
		t.Error("Expected no events from a cancelled stream")
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("Expected no request, got %d", *hits)
	}
}

func TestStream_CancelWhileRequesting(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	s := NewClient().Stream(context.Background(), Request{
		Messages: history, ModelID: "gpt-4o", APIKey: "k", RelayURL: server.URL,
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		s.Close()
	}()

	if ev, ok := s.Next(); ok {
		t.Errorf("Expected no event when closed before the response, got %+v", ev)
	}
	if s.State() != StateCancelled {
		t.Errorf("Expected cancelled, got %s", s.State())
	}
}

func TestStream_LargeDeltaAcrossReads(t *testing.T) {
	big := strings.Repeat("é", 5000)
	body := fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\ndata: [DONE]\n\n", big)
	server, _ := sseServer(t, body, nil)

	events := collect(t, NewClient().Stream(context.Background(), Request{
		Messages: history, ModelID: "gpt-4o", APIKey: "k", RelayURL: server.URL,
	}))
	if got := deltaText(events); got != big {
		t.Errorf("Delta corrupted across reads: got %d bytes, want %d", len(got), len(big))
	}
}

func TestRun(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n" +
		"data: [DONE]\n"
	server, _ := sseServer(t, body, nil)

	var got []string
	err := NewClient().Run(context.Background(), Request{
		Messages: history, ModelID: "gpt-4o", APIKey: "k", RelayURL: server.URL,
	}, Handler{
		OnDelta: func(text string) { got = append(got, "delta:"+text) },
		OnDone:  func(truncated bool) { got = append(got, fmt.Sprintf("done:%v", truncated)) },
		OnError: func(err error) { got = append(got, "error") },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"delta:a", "delta:b", "done:false"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRun_Error(t *testing.T) {
	var onError int
	err := NewClient().Run(context.Background(), Request{Messages: history, ModelID: "gpt-4o"}, Handler{
		OnError: func(err error) { onError++ },
		OnDone:  func(bool) { t.Error("OnDone must not be called") },
	})
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("Expected ErrMissingCredential, got %v", err)
	}
	if onError != 1 {
		t.Errorf("Expected exactly one OnError, got %d", onError)
	}
}

func TestWithMaxTokens(t *testing.T) {
	server, _ := sseServer(t, "data: [DONE]\n", func(r *http.Request, payload map[string]interface{}) {
		if payload["max_tokens"] != float64(256) {
			t.Errorf("Expected max_tokens 256, got %v", payload["max_tokens"])
		}
	})

	collect(t, NewClient(WithMaxTokens(256), WithHTTPClient(server.Client())).Stream(context.Background(), Request{
		Messages: history, ModelID: "claude-opus-4-5-20250918", APIKey: "k", RelayURL: server.URL,
	}))
}
