package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/jedarden/stickycheese/internal/logging"
	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/internal/translator"
)

// readSize is the size of each body read while streaming.
const readSize = 4096

// Stream is a single chat reply, consumed by calling Next until it returns
// false. Next must not be called concurrently; Close may be called from any
// goroutine.
type Stream struct {
	client *Client
	ctx    context.Context
	cancel context.CancelFunc
	req    Request

	mu    sync.Mutex
	state State

	provider provider.Provider
	body     io.ReadCloser
	decoder  *translator.Decoder
	buf      []byte
	pending  []Event
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Close cancels the stream. A blocked Next returns false and no further
// events are produced. Closing a finished stream has no effect.
func (s *Stream) Close() {
	s.cancel()
}

// Next returns the next event. It returns false once the stream has ended,
// either after its terminal event or because it was cancelled.
func (s *Stream) Next() (Event, bool) {
	for {
		if s.State().Terminal() {
			return Event{}, false
		}
		if s.ctx.Err() != nil {
			s.abort()
			return Event{}, false
		}

		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			switch ev.Kind {
			case EventDone:
				s.end(StateCompleted)
			case EventError:
				s.end(StateFailed)
			}
			return ev, true
		}

		switch s.State() {
		case StateIdle:
			s.start()
		case StateStreaming:
			s.read()
		}
	}
}

// start validates the request and sends it.
func (s *Stream) start() {
	p, err := provider.Resolve(s.req.ModelID)
	if err != nil {
		s.fail(err)
		return
	}
	if s.req.APIKey == "" {
		s.fail(missingCredential(p.Label()))
		return
	}
	s.provider = p
	s.setState(StateRequesting)

	body, streaming := p.BuildRequest(&provider.ChatRequest{
		Model:        s.req.ModelID,
		Messages:     s.req.Messages,
		SystemPrompt: s.req.SystemPrompt,
		MaxTokens:    s.client.maxTokens,
	})
	payload, err := json.Marshal(body)
	if err != nil {
		s.fail(fmt.Errorf("failed to marshal request: %w", err))
		return
	}

	url := p.GetEndpointURL(s.req.RelayURL)
	logging.LogDebugRequest("OUT", url, body)

	httpReq, err := http.NewRequestWithContext(s.ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		s.fail(fmt.Errorf("failed to create request: %w", err))
		return
	}
	for k, v := range p.GetHeaders(s.req.APIKey, translator.IsRelayed(s.req.RelayURL)) {
		httpReq.Header[k] = v
	}

	resp, err := s.client.httpClient.Do(httpReq)
	if err != nil {
		if s.ctx.Err() == nil {
			log.Printf("%s %s request failed: %v", logging.Prefix, p.Label(), err)
			s.fail(fmt.Errorf("%s request failed: %w", p.Label(), err))
		}
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		msg := translator.ErrorMessage(respBody, http.StatusText(resp.StatusCode), p.Label(), resp.StatusCode)
		log.Printf("%s %s API error %d: %s", logging.Prefix, p.Label(), resp.StatusCode, msg)
		s.fail(&TransportError{StatusCode: resp.StatusCode, Message: msg})
		return
	}

	s.setState(StateStreaming)
	if !streaming {
		s.complete(resp.Body)
		return
	}

	s.body = resp.Body
	s.decoder = translator.NewDecoder(s.parser())
	s.decoder.OnMalformed = func(line string) {
		logging.LogDebugFrame(string(p.Name()), translator.FrameMalformed.String(), line)
	}
	s.buf = make([]byte, readSize)
}

// complete handles a non-streaming reply: the whole text as one delta, then
// done.
func (s *Stream) complete(body io.ReadCloser) {
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		if s.ctx.Err() == nil {
			s.fail(fmt.Errorf("failed to read response: %w", err))
		}
		return
	}
	text, err := s.provider.ParseResponse(data)
	if err != nil {
		s.fail(err)
		return
	}
	s.pending = append(s.pending, Event{Kind: EventDelta, Text: text}, Event{Kind: EventDone})
}

func (s *Stream) parser() translator.FrameParser {
	if !s.client.debugFrames {
		return s.provider.ParseFrame
	}
	name := string(s.provider.Name())
	return func(line string) translator.Frame {
		f := s.provider.ParseFrame(line)
		if f.Kind == translator.FrameDelta || f.Kind == translator.FrameDone {
			logging.LogDebugFrame(name, f.Kind.String(), line)
		}
		return f
	}
}

// read performs one body read and queues the events it completed.
func (s *Stream) read() {
	if s.body == nil {
		s.fail(errors.New("stream body already closed"))
		return
	}

	n, err := s.body.Read(s.buf)
	if n > 0 {
		s.queue(s.decoder.Feed(s.buf[:n]))
	}
	if s.decoder.Done() {
		s.closeBody()
		return
	}
	if err == nil || s.ctx.Err() != nil {
		return
	}

	s.closeBody()
	if !errors.Is(err, io.EOF) {
		s.fail(fmt.Errorf("failed to read stream: %w", err))
		return
	}

	s.queue(s.decoder.Finish())
	if s.decoder.Done() {
		return
	}
	if s.client.strict {
		s.fail(ErrTruncated)
		return
	}
	log.Printf("%s %s stream ended without a terminal event", logging.Prefix, s.provider.Label())
	s.pending = append(s.pending, Event{Kind: EventDone, Truncated: true})
}

func (s *Stream) queue(frames []translator.Frame) {
	for _, f := range frames {
		switch f.Kind {
		case translator.FrameDelta:
			s.pending = append(s.pending, Event{Kind: EventDelta, Text: f.Text})
		case translator.FrameDone:
			s.pending = append(s.pending, Event{Kind: EventDone})
		}
	}
}

// fail queues the terminal error. Deltas already queued are delivered first.
func (s *Stream) fail(err error) {
	s.pending = append(s.pending, Event{Kind: EventError, Err: err})
}

func (s *Stream) end(st State) {
	s.setState(st)
	s.closeBody()
	s.cancel()
}

func (s *Stream) abort() {
	s.closeBody()
	s.pending = nil
	s.setState(StateCancelled)
}

func (s *Stream) closeBody() {
	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
}
