package translator

import (
	"encoding/json"
	"strings"

	"github.com/jedarden/stickycheese/pkg/models"
)

// FrameKind classifies one decoded stream line.
type FrameKind int

const (
	// FrameSkip is a line that carries nothing for the caller.
	FrameSkip FrameKind = iota
	// FrameDelta carries a text fragment.
	FrameDelta
	// FrameDone is the provider's end-of-stream marker.
	FrameDone
	// FrameMalformed is a data line whose JSON could not be decoded.
	FrameMalformed
)

// String returns the string representation of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case FrameDelta:
		return "delta"
	case FrameDone:
		return "done"
	case FrameMalformed:
		return "malformed"
	default:
		return "skip"
	}
}

// Frame is the result of decoding one line of a provider stream.
type Frame struct {
	Kind FrameKind
	Text string
}

const dataPrefix = "data: "

// openAIDoneSentinel terminates an OpenAI-style stream.
const openAIDoneSentinel = "[DONE]"

// DataPayload extracts the payload of an SSE data line. Lines are trimmed
// first; anything without the "data: " prefix is reported as not data.
func DataPayload(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, dataPrefix) {
		return "", false
	}
	return strings.TrimPrefix(trimmed, dataPrefix), true
}

// ParseOpenAIFrame decodes one line of an OpenAI chat completions stream.
func ParseOpenAIFrame(line string) Frame {
	data, ok := DataPayload(line)
	if !ok {
		return Frame{Kind: FrameSkip}
	}
	if data == openAIDoneSentinel {
		return Frame{Kind: FrameDone}
	}

	var chunk models.OpenAIStreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return Frame{Kind: FrameMalformed}
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return Frame{Kind: FrameSkip}
	}
	return Frame{Kind: FrameDelta, Text: chunk.Choices[0].Delta.Content}
}

// ParseAnthropicFrame decodes one line of an Anthropic Messages stream.
// Event types other than text deltas and message_stop are ignored.
func ParseAnthropicFrame(line string) Frame {
	data, ok := DataPayload(line)
	if !ok {
		return Frame{Kind: FrameSkip}
	}

	var event models.AnthropicStreamEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return Frame{Kind: FrameMalformed}
	}

	switch event.Type {
	case models.EventContentBlockDelta:
		if event.Delta.Text != "" {
			return Frame{Kind: FrameDelta, Text: event.Delta.Text}
		}
	case models.EventMessageStop:
		return Frame{Kind: FrameDone}
	}
	return Frame{Kind: FrameSkip}
}
