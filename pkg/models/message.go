package models

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ImageAttachment is an image carried inline with a message.
type ImageAttachment struct {
	ID        string `json:"id"`
	Data      string `json:"data"`      // base64, without the data URI prefix
	MediaType string `json:"mediaType"` // e.g. image/png
	Name      string `json:"name,omitempty"`
}

// Message is a single entry of a conversation. Only the content of an
// assistant message changes after it is appended, while it streams.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Model     string            `json:"model,omitempty"`
	Images    []ImageAttachment `json:"images,omitempty"`
}

// HasImages reports whether the message carries image attachments.
func (m Message) HasImages() bool {
	return len(m.Images) > 0
}
