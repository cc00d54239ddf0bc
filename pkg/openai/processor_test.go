package openai

import (
	"strings"
	"testing"

	"github.com/uniagent/gateway/pkg/agent"
)

type frameCollector struct {
	chunks []Chunk
	frames []agent.ErrorFrame
	done   int
}

func (c *frameCollector) Chunk(ch Chunk) error { c.chunks = append(c.chunks, ch); return nil }

func (c *frameCollector) ErrorFrame(f agent.ErrorFrame) error {
	c.frames = append(c.frames, f)
	return nil
}

func (c *frameCollector) Done() error { c.done++; return nil }

func (c *frameCollector) text() string {
	var b strings.Builder
	for _, ch := range c.chunks {
		for _, choice := range ch.Choices {
			if choice.Delta.Content != nil {
				b.WriteString(*choice.Delta.Content)
			}
		}
	}
	return b.String()
}

func (c *frameCollector) lastFinish() string {
	for i := len(c.chunks) - 1; i >= 0; i-- {
		for _, choice := range c.chunks[i].Choices {
			if choice.FinishReason != nil {
				return *choice.FinishReason
			}
		}
	}
	return ""
}

func assistantRecord(stopReason string, blocks ...agent.ContentBlock) agent.Record {
	return agent.Record{
		Type:    agent.RecordAssistant,
		Message: &agent.Message{StopReason: stopReason, Content: blocks},
	}
}

func TestInitEmitsRolePreambleAndBannerOnce(t *testing.T) {
	col := &frameCollector{}
	banner := func(sessionID string) string {
		return "session-id=" + sessionID + "\n\n"
	}
	p := NewProcessor("", false, banner, col)

	rec := agent.Record{Type: agent.RecordSystem, Subtype: agent.SubtypeInit, SessionID: "sess-1"}
	if _, err := p.Feed(rec); err != nil {
		t.Fatal(err)
	}

	if len(col.chunks) < 2 {
		t.Fatalf("want role preamble plus banner chunks, got %d", len(col.chunks))
	}
	first := col.chunks[0]
	if first.Choices[0].Delta.Role != RoleAssistant {
		t.Errorf("first chunk role = %q, want %q", first.Choices[0].Delta.Role, RoleAssistant)
	}
	if first.Choices[0].Delta.Content != nil {
		t.Errorf("role preamble should carry no content")
	}
	if got := col.text(); !strings.Contains(got, "session-id=sess-1") {
		t.Errorf("banner missing from stream: %q", got)
	}

	// A second init record must not repeat the banner.
	before := len(col.chunks)
	if _, err := p.Feed(rec); err != nil {
		t.Fatal(err)
	}
	if len(col.chunks) != before {
		t.Errorf("second init emitted %d extra chunks", len(col.chunks)-before)
	}
}

func TestAssistantFinalTextTagsLastChunkStop(t *testing.T) {
	col := &frameCollector{}
	p := NewProcessor("", false, nil, col)

	rec := assistantRecord("end_turn", agent.ContentBlock{Type: agent.BlockText, Text: "All done."})
	if _, err := p.Feed(rec); err != nil {
		t.Fatal(err)
	}

	if got := col.text(); got != "\nAll done." {
		t.Errorf("content = %q", got)
	}
	if got := col.lastFinish(); got != "stop" {
		t.Errorf("finish_reason = %q, want stop", got)
	}
}

func TestThinkingRenderedAsFence(t *testing.T) {
	col := &frameCollector{}
	p := NewProcessor("", false, nil, col)

	rec := assistantRecord("", agent.ContentBlock{
		Type:     agent.BlockThinking,
		Thinking: "consider ```go\nx := 1\n```",
	})
	if _, err := p.Feed(rec); err != nil {
		t.Fatal(err)
	}

	got := col.text()
	if !strings.Contains(got, "```💭 Thinking\n") {
		t.Errorf("thinking fence missing: %q", got)
	}
	if !strings.Contains(got, "` ` `go") {
		t.Errorf("nested fence not escaped: %q", got)
	}
	if strings.Count(got, "```") != 2 {
		t.Errorf("want exactly opening and closing fence, got %q", got)
	}
}

func TestThinkingRenderedAsTagsWhenEnabled(t *testing.T) {
	col := &frameCollector{}
	p := NewProcessor("", true, nil, col)

	if _, err := p.Feed(assistantRecord("",
		agent.ContentBlock{Type: agent.BlockThinking, Thinking: "pondering"},
	)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Feed(agent.Record{Type: agent.RecordResult, Subtype: agent.SubtypeSuccess}); err != nil {
		t.Fatal(err)
	}

	got := col.text()
	open := strings.Index(got, "<thinking>")
	closing := strings.Index(got, "</thinking>")
	if open < 0 || closing < 0 || closing < open {
		t.Fatalf("thinking tags malformed: %q", got)
	}
	if !strings.Contains(got[open:closing], "💭 pondering") {
		t.Errorf("thinking body not inside tags: %q", got)
	}
}

func TestToolUseAndToolResultBlocks(t *testing.T) {
	col := &frameCollector{}
	p := NewProcessor("", false, nil, col)

	if _, err := p.Feed(assistantRecord("", agent.ContentBlock{
		Type:  agent.BlockToolUse,
		Name:  "read_file",
		Input: []byte(`{"path":"main.go"}`),
	})); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Feed(agent.Record{
		Type: agent.RecordUser,
		Message: &agent.Message{Content: []agent.ContentBlock{{
			Type:    agent.BlockToolResult,
			Content: agent.FlexText("file not found"),
			IsError: true,
		}}},
	}); err != nil {
		t.Fatal(err)
	}

	got := col.text()
	if !strings.Contains(got, "```🔧 Tool use (read_file)") {
		t.Errorf("tool use fence missing: %q", got)
	}
	if !strings.Contains(got, `Using read_file: {"path":"main.go"}`) {
		t.Errorf("tool use body missing: %q", got)
	}
	if !strings.Contains(got, "```❌ Tool Error\nfile not found") {
		t.Errorf("tool error fence missing: %q", got)
	}
}

func TestChunkSplittingNeverTearsAFence(t *testing.T) {
	col := &frameCollector{}
	p := NewProcessor("", false, nil, col)

	// Pad so a fence delimiter straddles the 100-rune boundary.
	body := strings.Repeat("a", 97) + "```go\ncode\n```" + strings.Repeat("b", 150)
	if _, err := p.Feed(assistantRecord("", agent.ContentBlock{Type: agent.BlockText, Text: body})); err != nil {
		t.Fatal(err)
	}

	if got := col.text(); got != "\n"+body {
		t.Errorf("reassembled content differs from source")
	}
	for i := 1; i < len(col.chunks); i++ {
		prev := col.chunks[i-1].Choices[0].Delta.Content
		cur := col.chunks[i].Choices[0].Delta.Content
		if prev == nil || cur == nil {
			continue
		}
		if strings.HasSuffix(*prev, "`") && strings.HasPrefix(*cur, "`") {
			t.Errorf("backtick run split across chunks %d/%d: %q | %q", i-1, i, *prev, *cur)
		}
	}
}

func TestSuccessResultEmitsStopThenDone(t *testing.T) {
	col := &frameCollector{}
	p := NewProcessor("", false, nil, col)

	finished, err := p.Feed(agent.Record{Type: agent.RecordResult, Subtype: agent.SubtypeSuccess, Result: "ok"})
	if err != nil {
		t.Fatal(err)
	}
	if !finished {
		t.Error("result record should finish the stream")
	}
	if got := col.lastFinish(); got != "stop" {
		t.Errorf("finish_reason = %q, want stop", got)
	}
	if col.done != 1 {
		t.Errorf("done frames = %d, want 1", col.done)
	}
}

func TestErrorResultRendersFencedBlock(t *testing.T) {
	col := &frameCollector{}
	p := NewProcessor("", false, nil, col)

	if _, err := p.Feed(agent.Record{Type: agent.RecordResult, IsError: true, Result: "tool crashed"}); err != nil {
		t.Fatal(err)
	}

	if got := col.text(); !strings.Contains(got, "```⚠️ Error\ntool crashed") {
		t.Errorf("error block missing: %q", got)
	}
	if col.done != 1 {
		t.Errorf("done frames = %d, want 1", col.done)
	}
}

func TestErrorRecordEmitsSingleFrameAndNothingAfter(t *testing.T) {
	col := &frameCollector{}
	p := NewProcessor("", false, nil, col)

	rec := agent.TimeoutRecord(agent.TimeoutInactivity, 0)
	finished, err := p.Feed(rec)
	if err != nil {
		t.Fatal(err)
	}
	if !finished {
		t.Error("error record should finish the stream")
	}
	if len(col.frames) != 1 {
		t.Fatalf("error frames = %d, want 1", len(col.frames))
	}
	if got := col.frames[0].Error.Code; got != agent.CodeAgentTimeout {
		t.Errorf("error code = %q, want %q", got, agent.CodeAgentTimeout)
	}
	if col.done != 0 {
		t.Error("no done marker may follow an error frame")
	}

	// Any further records and Finish are no-ops.
	if _, err := p.Feed(assistantRecord("", agent.ContentBlock{Type: agent.BlockText, Text: "late"})); err != nil {
		t.Fatal(err)
	}
	if err := p.Finish(); err != nil {
		t.Fatal(err)
	}
	if len(col.chunks) != 0 || col.done != 0 {
		t.Errorf("frames emitted after error: chunks=%d done=%d", len(col.chunks), col.done)
	}
}

func TestUnknownRecordBecomesDebugBlock(t *testing.T) {
	col := &frameCollector{}
	p := NewProcessor("", false, nil, col)

	rec := agent.Record{Type: "telemetry", Raw: []byte(`{"type":"telemetry","ms":12}`)}
	if _, err := p.Feed(rec); err != nil {
		t.Fatal(err)
	}

	got := col.text()
	if !strings.Contains(got, "```🔍 Debug") {
		t.Errorf("debug fence missing: %q", got)
	}
	if !strings.Contains(got, "Unknown data type 'telemetry'") {
		t.Errorf("debug body missing: %q", got)
	}
}

func TestFinishWithoutResultClosesStream(t *testing.T) {
	col := &frameCollector{}
	p := NewProcessor("", false, nil, col)

	if _, err := p.Feed(assistantRecord("", agent.ContentBlock{Type: agent.BlockText, Text: "partial"})); err != nil {
		t.Fatal(err)
	}
	if err := p.Finish(); err != nil {
		t.Fatal(err)
	}

	if got := col.lastFinish(); got != "stop" {
		t.Errorf("finish_reason = %q, want stop", got)
	}
	if col.done != 1 {
		t.Errorf("done frames = %d, want 1", col.done)
	}
}
