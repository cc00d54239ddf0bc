package openai

import "testing"

func TestMessageContentDecodesString(t *testing.T) {
	var req Request
	payload := `{"model":"claude-code","stream":true,"messages":[{"role":"user","content":"hello"}]}`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatal(err)
	}
	if len(req.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(req.Messages))
	}
	if got := req.Messages[0].TextContent(); got != "hello" {
		t.Errorf("TextContent = %q, want %q", got, "hello")
	}
}

func TestMessageContentDecodesParts(t *testing.T) {
	var req Request
	payload := `{"messages":[{"role":"user","content":[
		{"type":"text","text":"first"},
		{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}},
		{"type":"text","text":"second"}
	]}]}`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatal(err)
	}
	msg := req.Messages[0]
	if got := msg.TextContent(); got != "first\nsecond" {
		t.Errorf("TextContent = %q", got)
	}
	if len(msg.Content.Parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(msg.Content.Parts))
	}
	img := msg.Content.Parts[1].ImageURL
	if img == nil || img.URL != "data:image/png;base64,AAAA" {
		t.Errorf("image part not preserved: %+v", msg.Content.Parts[1])
	}
}

func TestMessageContentRejectsGarbage(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(`{"messages":[{"role":"user","content":42}]}`), &req); err == nil {
		t.Error("numeric content should not decode")
	}
}

func TestChunkWireShape(t *testing.T) {
	content := "hi"
	ch := NewChunk("chatcmpl-1", "", "", &content, "stop")

	data, err := json.Marshal(ch)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["object"] != "chat.completion.chunk" {
		t.Errorf("object = %v", decoded["object"])
	}
	if decoded["model"] != DefaultModel {
		t.Errorf("model = %v, want %v", decoded["model"], DefaultModel)
	}
	choices := decoded["choices"].([]any)
	choice := choices[0].(map[string]any)
	if _, ok := choice["logprobs"]; !ok {
		t.Error("logprobs field must be present (null)")
	}
	if choice["finish_reason"] != "stop" {
		t.Errorf("finish_reason = %v", choice["finish_reason"])
	}
	delta := choice["delta"].(map[string]any)
	if delta["content"] != "hi" {
		t.Errorf("delta content = %v", delta["content"])
	}
	if _, ok := delta["role"]; ok {
		t.Error("empty role must be omitted from delta")
	}
}
