package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record types emitted by the agent CLI in stream-json mode. Anything
// else is passed through untouched and handled by the translators'
// fallback path.
const (
	RecordSystem    = "system"
	RecordAssistant = "assistant"
	RecordUser      = "user"
	RecordResult    = "result"
	RecordError     = "error"

	SubtypeInit    = "init"
	SubtypeSuccess = "success"
)

// Content block types inside assistant/user messages.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Record is one decoded stream-json record from the agent. Raw holds the
// original line verbatim for the native pass-through stream.
type Record struct {
	Type       string
	Subtype    string
	SessionID  string
	CWD        string
	Message    *Message
	Result     string
	IsError    bool
	ErrMessage string
	Raw        []byte
}

// Message carries the content blocks of an assistant or user record.
type Message struct {
	StopReason string         `json:"stop_reason"`
	Content    []ContentBlock `json:"content"`
}

// ContentBlock is one unit of message content. Only the fields matching
// Type are populated by the agent.
type ContentBlock struct {
	Type     string              `json:"type"`
	Text     string              `json:"text"`
	Thinking string              `json:"thinking"`
	Name     string              `json:"name"`
	Input    jsoniter.RawMessage `json:"input"`
	Content  FlexText            `json:"content"`
	IsError  bool                `json:"is_error"`
}

// FlexText is a string that the agent may send either as a JSON string or
// as an array of text blocks (tool_result content takes both shapes).
type FlexText string

func (t *FlexText) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*t = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = FlexText(s)
		return nil
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &blocks); err != nil {
		*t = FlexText(trimmed)
		return nil
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	*t = FlexText(strings.Join(parts, "\n"))
	return nil
}

type wireRecord struct {
	Type      string              `json:"type"`
	Subtype   string              `json:"subtype"`
	SessionID string              `json:"session_id"`
	CWD       string              `json:"cwd"`
	Message   *Message            `json:"message"`
	Result    string              `json:"result"`
	IsError   bool                `json:"is_error"`
	Error     jsoniter.RawMessage `json:"error"`
}

// ParseRecord decodes one line of agent output. Lines that are not JSON
// objects with a type tag are rejected; callers log and skip them rather
// than aborting the stream.
func ParseRecord(line []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, fmt.Errorf("decode agent record: %w", err)
	}
	if w.Type == "" {
		return Record{}, errors.New("agent record has no type tag")
	}

	raw := make([]byte, len(line))
	copy(raw, line)

	return Record{
		Type:       w.Type,
		Subtype:    w.Subtype,
		SessionID:  w.SessionID,
		CWD:        w.CWD,
		Message:    w.Message,
		Result:     w.Result,
		IsError:    w.IsError,
		ErrMessage: errorMessage(w.Error),
		Raw:        raw,
	}, nil
}

func errorMessage(raw jsoniter.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return trimmed
}

// TimeoutRecord builds the synthetic error record yielded when a timeout
// kills the agent. Its Raw form matches the wire error frame so the native
// stream relays it like any other record.
func TimeoutRecord(kind string, limit time.Duration) Record {
	msg := fmt.Sprintf("agent terminated: %s timeout after %s", kind, limit)
	raw, _ := json.Marshal(struct {
		Type  string    `json:"type"`
		Error ErrorBody `json:"error"`
	}{
		Type:  RecordError,
		Error: ErrorBody{Message: msg, Type: TypeAgentCLI, Code: CodeAgentTimeout},
	})
	return Record{Type: RecordError, ErrMessage: msg, Raw: raw}
}
