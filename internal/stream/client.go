// Package stream performs chat requests against the supported providers and
// exposes the reply as a uniform sequence of delta, done and error events.
package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/jedarden/stickycheese/internal/translator"
)

// Client issues chat requests. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	maxTokens   int
	strict      bool
	debugFrames bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for provider requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMaxTokens sets the output ceiling sent with streaming requests.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		c.maxTokens = n
	}
}

// WithStrictTermination makes a body that ends without the end-of-stream
// marker fail with ErrTruncated instead of completing.
func WithStrictTermination() Option {
	return func(c *Client) {
		c.strict = true
	}
}

// WithDebugFrames logs every decoded frame to the debug log.
func WithDebugFrames() Option {
	return func(c *Client) {
		c.debugFrames = true
	}
}

// NewClient creates a client. Without options it uses an HTTP client with no
// overall timeout, since replies stream for as long as the model writes.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		maxTokens: translator.DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream prepares a stream for req. No request is made until the first call
// to Next. Cancelling ctx or calling Close ends the stream silently.
func (c *Client) Stream(ctx context.Context, req Request) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	return &Stream{
		client: c,
		ctx:    ctx,
		cancel: cancel,
		req:    req,
	}
}

// Handler receives the events of a stream run through Run.
type Handler struct {
	OnDelta func(text string)
	OnDone  func(truncated bool)
	OnError func(err error)
}

// Run drives a stream to completion, dispatching each event to h. It returns
// the error delivered to OnError, or nil on success or cancellation.
func (c *Client) Run(ctx context.Context, req Request, h Handler) error {
	s := c.Stream(ctx, req)
	defer s.Close()

	for {
		ev, ok := s.Next()
		if !ok {
			return nil
		}
		switch ev.Kind {
		case EventDelta:
			if h.OnDelta != nil {
				h.OnDelta(ev.Text)
			}
		case EventDone:
			if h.OnDone != nil {
				h.OnDone(ev.Truncated)
			}
			return nil
		case EventError:
			if h.OnError != nil {
				h.OnError(ev.Err)
			}
			return ev.Err
		}
	}
}
