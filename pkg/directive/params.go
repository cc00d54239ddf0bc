package directive

import (
	"fmt"
	"strings"
)

// Params is the merged execution configuration carried by directives.
// Pointer fields distinguish "not specified" from an explicit false.
type Params struct {
	Workspace       string
	SessionID       string
	AllowedTools    []string
	DisallowedTools []string
	Skills          []string
	SkillOptions    string // raw JSON object
	SkipPermissions *bool
	ShowThinking    *bool
}

func (p *Params) set(d Directive) {
	switch d.Key {
	case KeyWorkspace:
		p.Workspace = d.Value
	case KeySessionID:
		p.SessionID = d.Value
	case KeyAllowedTools:
		p.AllowedTools = d.List
	case KeyDisallowedTools:
		p.DisallowedTools = d.List
	case KeySkills:
		p.Skills = d.List
	case KeySkillOptions:
		p.SkillOptions = d.Value
	case KeySkipPermissions:
		v := d.Bool
		p.SkipPermissions = &v
	case KeyThinking:
		v := d.Bool
		p.ShowThinking = &v
	}
}

// Merge folds directive layers into one Params. Later layers win per key.
func Merge(layers ...[]Directive) Params {
	var p Params
	for _, layer := range layers {
		for _, d := range layer {
			p.set(d)
		}
	}
	return p
}

// FromConversation extracts directives from the three message locations
// that may carry them, with precedence current user message > most recent
// assistant message > system message. Assistant messages are searched
// newest-first and only the first one carrying a session id contributes,
// so stale turns cannot override a resumed session. Returns the merged
// params and the current message with its directives stripped.
func FromConversation(system string, assistants []string, current string) (Params, string) {
	sysDirs, _ := Scan(system)

	var prior []Directive
	for i := len(assistants) - 1; i >= 0; i-- {
		dirs, _ := Scan(assistants[i])
		if hasKey(dirs, KeySessionID) {
			prior = dirs
			break
		}
	}

	curDirs, cleaned := Scan(current)
	return Merge(sysDirs, prior, curDirs), cleaned
}

func hasKey(dirs []Directive, key string) bool {
	for _, d := range dirs {
		if d.Key == key {
			return true
		}
	}
	return false
}

// Echo renders the params (plus the session id the agent reported) in
// directive syntax. Responses carry this block so the caller can paste it
// back to resume the session.
func (p Params) Echo(sessionID string) string {
	var b strings.Builder
	if sessionID != "" {
		fmt.Fprintf(&b, "session-id=%s\n", sessionID)
	}
	if p.Workspace != "" {
		fmt.Fprintf(&b, "workspace=%s\n", p.Workspace)
	}
	if p.SkipPermissions != nil {
		fmt.Fprintf(&b, "dangerously-skip-permissions=%t\n", *p.SkipPermissions)
	}
	if len(p.AllowedTools) > 0 {
		fmt.Fprintf(&b, "allowed-tools=[%s]\n", quoteList(p.AllowedTools))
	}
	if len(p.DisallowedTools) > 0 {
		fmt.Fprintf(&b, "disallowed-tools=[%s]\n", quoteList(p.DisallowedTools))
	}
	if p.ShowThinking != nil {
		fmt.Fprintf(&b, "thinking=%t\n", *p.ShowThinking)
	}
	if len(p.Skills) > 0 {
		fmt.Fprintf(&b, "skills=[%s]\n", quoteList(p.Skills))
	}
	if p.SkillOptions != "" {
		fmt.Fprintf(&b, "skill-options=%s\n", p.SkillOptions)
	}
	return b.String()
}

func quoteList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, `"`+item+`"`)
	}
	return strings.Join(quoted, ",")
}
