package translator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/jedarden/stickycheese/pkg/models"
)

func textMessage(role models.Role, text string) models.Message {
	return models.Message{Role: role, Content: text}
}

func imageMessage(text string, n int) models.Message {
	msg := models.Message{Role: models.RoleUser, Content: text}
	for i := 0; i < n; i++ {
		msg.Images = append(msg.Images, models.ImageAttachment{
			ID:        "img",
			Data:      "aGVsbG8=",
			MediaType: "image/png",
		})
	}
	return msg
}

func TestOpenAIContent_PlainText(t *testing.T) {
	content := OpenAIContent(textMessage(models.RoleUser, "hello"))
	s, ok := content.(string)
	if !ok {
		t.Fatalf("content type = %T, want string", content)
	}
	if s != "hello" {
		t.Errorf("content = %q, want %q", s, "hello")
	}
}

func TestAnthropicContent_PlainText(t *testing.T) {
	content := AnthropicContent(textMessage(models.RoleUser, ""))
	if s, ok := content.(string); !ok || s != "" {
		t.Errorf("content = %#v, want empty string", content)
	}
}

func TestOpenAIContent_TextFirst(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		images    int
		wantParts int
	}{
		{"one image with text", "look", 1, 2},
		{"three images with text", "look", 3, 4},
		{"image without text", "", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, ok := OpenAIContent(imageMessage(tt.text, tt.images)).([]models.OpenAIContentPart)
			if !ok {
				t.Fatal("expected []OpenAIContentPart")
			}
			if len(parts) != tt.wantParts {
				t.Fatalf("len(parts) = %d, want %d", len(parts), tt.wantParts)
			}

			images := parts
			if tt.text != "" {
				if parts[0].Type != "text" || parts[0].Text != tt.text {
					t.Errorf("parts[0] = %+v, want leading text part", parts[0])
				}
				images = parts[1:]
			}
			for i, p := range images {
				if p.Type != "image_url" {
					t.Errorf("image part %d type = %q, want image_url", i, p.Type)
				}
				if p.ImageURL == nil || p.ImageURL.URL != "data:image/png;base64,aGVsbG8=" {
					t.Errorf("image part %d url = %+v", i, p.ImageURL)
				}
			}
		})
	}
}

func TestAnthropicContent_ImagesFirst(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		images    int
		wantParts int
	}{
		{"one image with text", "what is this", 1, 2},
		{"two images with text", "compare", 2, 3},
		{"image without text", "", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, ok := AnthropicContent(imageMessage(tt.text, tt.images)).([]models.ContentBlock)
			if !ok {
				t.Fatal("expected []ContentBlock")
			}
			if len(blocks) != tt.wantParts {
				t.Fatalf("len(blocks) = %d, want %d", len(blocks), tt.wantParts)
			}
			for i := 0; i < tt.images; i++ {
				b := blocks[i]
				if b.Type != "image" || b.Source == nil {
					t.Fatalf("blocks[%d] = %+v, want image block", i, b)
				}
				if b.Source.Type != "base64" || b.Source.MediaType != "image/png" || b.Source.Data != "aGVsbG8=" {
					t.Errorf("blocks[%d].Source = %+v", i, b.Source)
				}
			}
			if tt.text != "" {
				last := blocks[len(blocks)-1]
				if last.Type != "text" || last.Text != tt.text {
					t.Errorf("last block = %+v, want trailing text", last)
				}
			}
		})
	}
}

func TestOpenAIMessages_SystemPrompt(t *testing.T) {
	history := []models.Message{
		textMessage(models.RoleSystem, "ignored"),
		textMessage(models.RoleUser, "hi"),
		textMessage(models.RoleAssistant, "hello"),
	}

	msgs := OpenAIMessages(history, "be brief")
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "be brief" {
		t.Errorf("msgs[0] = %+v, want system prompt", msgs[0])
	}
	if msgs[1].Role != "user" || msgs[2].Role != "assistant" {
		t.Errorf("roles = %q, %q", msgs[1].Role, msgs[2].Role)
	}

	if got := OpenAIMessages(history, ""); len(got) != 2 {
		t.Errorf("without system prompt len = %d, want 2", len(got))
	}
}

func TestAnthropicMessages_SkipsSystem(t *testing.T) {
	history := []models.Message{
		textMessage(models.RoleSystem, "ignored"),
		textMessage(models.RoleUser, "hi"),
	}
	msgs := AnthropicMessages(history)
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Errorf("msgs = %+v, want single user message", msgs)
	}
}

func TestBuildOpenAIRequest(t *testing.T) {
	history := []models.Message{textMessage(models.RoleUser, "hi")}

	t.Run("streaming model", func(t *testing.T) {
		req := BuildOpenAIRequest("gpt-4o", history, "", 0)
		if !req.Stream {
			t.Error("expected stream = true")
		}
		if req.MaxTokens != DefaultMaxTokens {
			t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, DefaultMaxTokens)
		}
	})

	t.Run("reasoning-only model", func(t *testing.T) {
		req := BuildOpenAIRequest("o1-mini", history, "", 0)
		if req.Stream {
			t.Error("expected stream = false for o1 models")
		}
		body, err := json.Marshal(req)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if strings.Contains(string(body), "max_tokens") {
			t.Errorf("body should not carry max_tokens: %s", body)
		}
		if !strings.Contains(string(body), `"stream":false`) {
			t.Errorf("body should carry stream:false: %s", body)
		}
	})
}

func TestBuildAnthropicRequest(t *testing.T) {
	req := BuildAnthropicRequest("claude-sonnet-4-20250514", []models.Message{textMessage(models.RoleUser, "hi")}, "sys", 1024)
	if req.System != "sys" {
		t.Errorf("System = %q, want %q", req.System, "sys")
	}
	if req.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", req.MaxTokens)
	}
	if !req.Stream {
		t.Error("expected stream = true")
	}

	body, _ := json.Marshal(BuildAnthropicRequest("m", nil, "", 0))
	if strings.Contains(string(body), `"system"`) {
		t.Errorf("empty system prompt should be omitted: %s", body)
	}
}

func TestIsReasoningOnlyModel(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"o1", true},
		{"o1-mini", true},
		{"O1-preview", true},
		{"gpt-4o", false},
		{"claude-haiku-4-5-20251001", false},
	}
	for _, tt := range tests {
		if got := IsReasoningOnlyModel(tt.model); got != tt.want {
			t.Errorf("IsReasoningOnlyModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
