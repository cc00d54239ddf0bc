package openai

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mylxsw/asteria/log"

	"github.com/uniagent/gateway/pkg/agent"
)

const defaultChunkSize = 100

// Emitter receives wire-ready frames in source order. The SSE handler is
// the production implementation; tests collect frames in a slice.
type Emitter interface {
	Chunk(Chunk) error
	ErrorFrame(agent.ErrorFrame) error
	Done() error
}

// Processor reshapes the agent's stream records into chat-completion delta
// frames. It is stateful: it tracks the open-thinking toggle, renders
// thinking/tool blocks as fenced text, and splits content into fixed-size
// chunks without ever breaking a fence delimiter across two frames.
//
// One Processor serves exactly one request stream.
type Processor struct {
	id           string
	model        string
	chunkSize    int
	showThinking bool
	banner       func(sessionID string) string

	emit Emitter

	inThinking     bool
	sessionPrinted bool
	finished       bool
}

// NewProcessor creates a processor for one stream. banner, when non-nil,
// renders the session-continuity block sent ahead of the first content
// (the directive echo the caller pastes back to resume).
func NewProcessor(model string, showThinking bool, banner func(sessionID string) string, emit Emitter) *Processor {
	if model == "" {
		model = DefaultModel
	}
	return &Processor{
		id:           "chatcmpl-" + uuid.NewString(),
		model:        model,
		chunkSize:    defaultChunkSize,
		showThinking: showThinking,
		banner:       banner,
		emit:         emit,
	}
}

// Feed translates one record. It reports finished=true once the stream is
// complete (result record, or an error record after which nothing more may
// be emitted).
func (p *Processor) Feed(rec agent.Record) (finished bool, err error) {
	if p.finished {
		return true, nil
	}

	switch rec.Type {
	case agent.RecordSystem:
		if rec.Subtype == agent.SubtypeInit {
			err = p.processInit(rec)
		}
	case agent.RecordAssistant:
		err = p.processAssistant(rec)
	case agent.RecordUser:
		err = p.processUser(rec)
	case agent.RecordResult:
		err = p.processResult(rec)
		p.finished = true
	case agent.RecordError:
		err = p.emit.ErrorFrame(rec.ErrorFrame())
		p.finished = true
	default:
		err = p.processUnknown(rec)
	}
	return p.finished, err
}

// Finish closes the stream when the source ended without a result record
// (for example on cancellation mid-stream).
func (p *Processor) Finish() error {
	if p.finished {
		return nil
	}
	p.finished = true
	if err := p.closeThinking(); err != nil {
		return err
	}
	if err := p.emit.Chunk(NewChunk(p.id, p.model, "", nil, "stop")); err != nil {
		return err
	}
	return p.emit.Done()
}

func (p *Processor) processInit(rec agent.Record) error {
	if rec.SessionID == "" || p.sessionPrinted {
		return nil
	}
	p.sessionPrinted = true

	// Role preamble, then the session-continuity block.
	if err := p.emit.Chunk(NewChunk(p.id, p.model, RoleAssistant, nil, "")); err != nil {
		return err
	}
	if p.banner == nil {
		return nil
	}
	banner := p.banner(rec.SessionID)
	if banner == "" {
		return nil
	}
	return p.sendText(banner, "")
}

func (p *Processor) processAssistant(rec agent.Record) error {
	msg := rec.Message
	if msg == nil {
		return nil
	}
	isFinal := msg.StopReason == "end_turn"

	hasText := false
	for _, block := range msg.Content {
		switch block.Type {
		case agent.BlockText:
			hasText = true
			if err := p.closeThinking(); err != nil {
				return err
			}
			finish := ""
			if isFinal {
				finish = "stop"
			}
			if err := p.sendText("\n"+block.Text, finish); err != nil {
				return err
			}

		case agent.BlockThinking:
			if p.showThinking {
				if err := p.openThinking(); err != nil {
					return err
				}
				if err := p.sendText("\n💭 "+block.Thinking+"\n\n", ""); err != nil {
					return err
				}
			} else {
				text := "\n```💭 Thinking\n" + escapeFences(block.Thinking) + "\n```\n\n"
				if err := p.sendText(text, ""); err != nil {
					return err
				}
			}

		case agent.BlockToolUse:
			input := strings.TrimSpace(string(block.Input))
			if input == "" {
				input = "{}"
			}
			if p.showThinking {
				if err := p.openThinking(); err != nil {
					return err
				}
				if err := p.sendText(fmt.Sprintf("\n🔧 Using %s: %s\n\n", block.Name, input), ""); err != nil {
					return err
				}
			} else {
				text := fmt.Sprintf("\n```🔧 Tool use (%s)\nUsing %s: %s\n```\n\n",
					block.Name, block.Name, escapeFences(input))
				if err := p.sendText(text, ""); err != nil {
					return err
				}
			}
		}
	}

	// A final response with no text block still needs its finish frame.
	if isFinal && !hasText {
		if err := p.closeThinking(); err != nil {
			return err
		}
		return p.emit.Chunk(NewChunk(p.id, p.model, "", nil, "stop"))
	}
	return nil
}

func (p *Processor) processUser(rec agent.Record) error {
	msg := rec.Message
	if msg == nil {
		return nil
	}
	for _, block := range msg.Content {
		if block.Type != agent.BlockToolResult {
			continue
		}
		content := string(block.Content)
		if p.showThinking {
			prefix := "\n✅ Tool Result: "
			if block.IsError {
				prefix = "\n❌ Tool Error: "
			}
			if err := p.openThinking(); err != nil {
				return err
			}
			if err := p.sendText(prefix+content+"\n\n", ""); err != nil {
				return err
			}
		} else {
			icon, label := "✅", "Tool Result"
			if block.IsError {
				icon, label = "❌", "Tool Error"
			}
			text := fmt.Sprintf("\n```%s %s\n%s\n```\n\n", icon, label, escapeFences(content))
			if err := p.sendText(text, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Processor) processResult(rec agent.Record) error {
	if err := p.closeThinking(); err != nil {
		return err
	}
	if rec.IsError {
		msg := rec.Result
		if msg == "" {
			msg = rec.ErrMessage
		}
		if msg == "" {
			msg = "execution failed"
		}
		text := "\n```⚠️ Error\n" + escapeFences(msg) + "\n```\n\n"
		if err := p.sendText(text, "stop"); err != nil {
			return err
		}
	} else {
		if err := p.emit.Chunk(NewChunk(p.id, p.model, "", nil, "stop")); err != nil {
			return err
		}
	}
	return p.emit.Done()
}

func (p *Processor) processUnknown(rec agent.Record) error {
	log.Warningf("unknown agent record type %q, rendering as debug block", rec.Type)

	content := fmt.Sprintf("Unknown data type '%s': %s", rec.Type, string(rec.Raw))
	if p.showThinking {
		if err := p.openThinking(); err != nil {
			return err
		}
		return p.sendText("\n🔍 "+content+"\n\n", "")
	}
	return p.sendText("\n```🔍 Debug\n"+escapeFences(content)+"\n```\n\n", "")
}

func (p *Processor) openThinking() error {
	if !p.showThinking || p.inThinking {
		return nil
	}
	p.inThinking = true
	return p.sendText("\n<thinking>\n", "")
}

func (p *Processor) closeThinking() error {
	if !p.inThinking {
		return nil
	}
	p.inThinking = false
	if p.showThinking {
		return p.sendText("\n</thinking>\n", "")
	}
	return nil
}

// sendText splits text into chunk-sized frames, tagging the last with
// finalFinish when set. Empty text produces no frames.
func (p *Processor) sendText(text, finalFinish string) error {
	if text == "" {
		return nil
	}
	chunks := p.split(text)
	for i, c := range chunks {
		finish := ""
		if finalFinish != "" && i == len(chunks)-1 {
			finish = finalFinish
		}
		content := c
		if err := p.emit.Chunk(NewChunk(p.id, p.model, "", &content, finish)); err != nil {
			return err
		}
	}
	return nil
}

// split cuts text into runs of at most chunkSize runes, extending a cut
// point forward when it would land inside a backtick run so a fence
// delimiter is never torn across two frames.
func (p *Processor) split(text string) []string {
	runes := []rune(text)
	var chunks []string
	i := 0
	for i < len(runes) {
		end := i + p.chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[i:]))
			break
		}
		if runes[end] == '`' && runes[end-1] == '`' {
			for end < len(runes) && runes[end] == '`' {
				end++
			}
		}
		chunks = append(chunks, string(runes[i:end]))
		i = end
	}
	return chunks
}

// escapeFences defuses nested code fences so they cannot close the
// surrounding block.
func escapeFences(s string) string {
	return strings.ReplaceAll(s, "```", "` ` `")
}
