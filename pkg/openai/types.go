// Package openai implements the OpenAI-compatible side of the gateway:
// chat-completion request parsing and the translation of agent stream
// records into chat.completion.chunk delta frames.
package openai

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is an OpenAI chat-completion request body. Only streaming
// requests reach the execution core; the route rejects stream=false.
type Request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Message is one chat message. Content arrives either as a plain string
// or as an array of typed parts.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content holds both shapes of message content.
type Content struct {
	Text  string
	Parts []ContentPart
}

// ContentPart is one element of array-shaped content.
type ContentPart struct {
	Type     string    `json:"type"` // text | image_url | file
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
	File     *FilePart `json:"file,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type FilePart struct {
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*c = Content{}
		return nil
	}
	if trimmed[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	return json.Unmarshal(data, &c.Parts)
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// TextContent flattens the message content to plain text, joining the
// text parts of array-shaped content.
func (m Message) TextContent() string {
	if m.Content.Parts == nil {
		return m.Content.Text
	}
	parts := make([]string, 0, len(m.Content.Parts))
	for _, p := range m.Content.Parts {
		if p.Type == "text" && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}
