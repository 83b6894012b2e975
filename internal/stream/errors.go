package stream

import (
	"errors"
	"fmt"
)

// ErrMissingCredential is returned when no API key is configured for the
// provider that serves the requested model.
var ErrMissingCredential = errors.New("missing API key")

// ErrTruncated is returned in strict mode when the body ends before the
// provider's end-of-stream marker.
var ErrTruncated = errors.New("stream ended without a terminal event")

// TransportError is a non-2xx response from the provider or relay.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	return e.Message
}

func missingCredential(label string) error {
	return fmt.Errorf("%w: no API key provided for %s. Run `stickycheese setup` to add one", ErrMissingCredential, label)
}
