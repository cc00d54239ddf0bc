package openai

import (
	"fmt"
	"time"
)

// DefaultModel is the model name reported in delta frames.
const DefaultModel = "claude-code"

// DoneMarker is the literal stream-termination sentinel.
const DoneMarker = "[DONE]"

// Chunk is one chat.completion.chunk delta frame.
type Chunk struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	SystemFingerprint string   `json:"system_fingerprint"`
	Choices           []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	Logprobs     any     `json:"logprobs"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// NewChunk builds a delta frame. content==nil yields an empty delta, used
// for the role preamble and the final finish_reason frame.
func NewChunk(id, model string, role string, content *string, finishReason string) Chunk {
	if model == "" {
		model = DefaultModel
	}
	now := time.Now()

	var finish *string
	if finishReason != "" {
		finish = &finishReason
	}

	return Chunk{
		ID:                id,
		Object:            "chat.completion.chunk",
		Created:           now.Unix(),
		Model:             model,
		SystemFingerprint: fmt.Sprintf("fp_%x", now.UnixMilli()),
		Choices: []Choice{{
			Index:        0,
			Delta:        Delta{Role: role, Content: content},
			FinishReason: finish,
		}},
	}
}
