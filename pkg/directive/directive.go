// Package directive parses inline key=value execution directives out of
// free-text message content. Directives ride inside chat messages
// (current user message, a prior assistant message echoing session state,
// or the system message) and are stripped from the text forwarded to the
// agent.
package directive

import (
	"strings"
	"unicode"

	jsoniter "github.com/json-iterator/go"
	"github.com/mylxsw/asteria/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Known directive keys.
const (
	KeyWorkspace       = "workspace"
	KeySessionID       = "session-id"
	KeyAllowedTools    = "allowed-tools"
	KeyDisallowedTools = "disallowed-tools"
	KeySkills          = "skills"
	KeySkillOptions    = "skill-options"
	KeySkipPermissions = "dangerously-skip-permissions"
	KeyThinking        = "thinking"
)

// Kind is the value shape a directive key accepts.
type Kind int

const (
	KindScalar Kind = iota
	KindList
	KindBool
	KindJSON
)

var keyKinds = map[string]Kind{
	KeyWorkspace:       KindScalar,
	KeySessionID:       KindScalar,
	KeyAllowedTools:    KindList,
	KeyDisallowedTools: KindList,
	KeySkills:          KindList,
	KeySkillOptions:    KindJSON,
	KeySkipPermissions: KindBool,
	KeyThinking:        KindBool,
}

// scan order is fixed so behavior does not depend on map iteration.
var keyOrder = []string{
	KeyWorkspace,
	KeySessionID,
	KeyAllowedTools,
	KeyDisallowedTools,
	KeySkillOptions,
	KeySkills,
	KeySkipPermissions,
	KeyThinking,
}

// Directive is one parsed key=value token.
type Directive struct {
	Key   string
	Kind  Kind
	Value string   // KindScalar
	List  []string // KindList
	Bool  bool     // KindBool
}

// Scan tokenizes text, returning every well-formed directive and the text
// with those directives removed (whitespace collapsed). A key=value shaped
// substring that does not parse as a directive is left in place: malformed
// bracket lists and boolean values other than literal true/false are not
// matches. Scanning the cleaned text again yields nothing.
func Scan(text string) ([]Directive, string) {
	var dirs []Directive
	var out strings.Builder

	i := 0
	for i < len(text) {
		if atBoundary(text, i) {
			if d, end, ok := matchAt(text, i); ok {
				dirs = append(dirs, d)
				i = end
				continue
			}
		}
		out.WriteByte(text[i])
		i++
	}

	cleaned := strings.Join(strings.Fields(out.String()), " ")
	return dirs, cleaned
}

func atBoundary(text string, i int) bool {
	if i == 0 {
		return true
	}
	return unicode.IsSpace(rune(text[i-1]))
}

func matchAt(text string, i int) (Directive, int, bool) {
	for _, key := range keyOrder {
		rest := text[i:]
		if !strings.HasPrefix(rest, key) || len(rest) <= len(key) || rest[len(key)] != '=' {
			continue
		}
		valueStart := i + len(key) + 1
		switch keyKinds[key] {
		case KindScalar:
			value, end := scanToken(text, valueStart)
			if key == KeySessionID {
				value, end = scanSessionToken(text, valueStart)
			}
			if value == "" {
				return Directive{}, 0, false
			}
			return Directive{Key: key, Kind: KindScalar, Value: value}, end, true
		case KindJSON:
			value, end, ok := scanJSONObject(text, valueStart)
			if !ok {
				log.Warningf("directive %s has malformed JSON value, dropping", key)
				return Directive{}, 0, false
			}
			return Directive{Key: key, Kind: KindJSON, Value: value}, end, true
		case KindBool:
			value, end := scanToken(text, valueStart)
			if value != "true" && value != "false" {
				return Directive{}, 0, false
			}
			return Directive{Key: key, Kind: KindBool, Bool: value == "true"}, end, true
		case KindList:
			list, end, ok := scanList(text, valueStart)
			if !ok {
				log.Warningf("directive %s has malformed list value, dropping", key)
				return Directive{}, 0, false
			}
			return Directive{Key: key, Kind: KindList, List: list}, end, true
		}
	}
	return Directive{}, 0, false
}

// scanToken reads a run of non-space bytes starting at i.
func scanToken(text string, i int) (string, int) {
	end := i
	for end < len(text) && !unicode.IsSpace(rune(text[end])) {
		end++
	}
	return text[i:end], end
}

// scanSessionToken reads a session identifier starting at i. Session IDs
// are lowercase hex with dashes, so a trailing period or other punctuation
// stays in the text.
func scanSessionToken(text string, i int) (string, int) {
	end := i
	for end < len(text) {
		c := text[end]
		if c == '-' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			end++
			continue
		}
		break
	}
	return text[i:end], end
}

// scanJSONObject reads a brace-balanced JSON object starting at i. An
// unbalanced or unparsable block is not a match.
func scanJSONObject(text string, i int) (string, int, bool) {
	if i >= len(text) || text[i] != '{' {
		return "", 0, false
	}
	depth := 0
	for end := i; end < len(text); end++ {
		switch text[end] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				block := text[i : end+1]
				if !json.Valid([]byte(block)) {
					return "", 0, false
				}
				return block, end + 1, true
			}
		}
	}
	return "", 0, false
}

// scanList reads a bracketed, comma-separated list of (optionally quoted)
// strings. A missing closing bracket is not a match.
func scanList(text string, i int) ([]string, int, bool) {
	if i >= len(text) || text[i] != '[' {
		return nil, 0, false
	}
	close := strings.IndexByte(text[i:], ']')
	if close < 0 {
		return nil, 0, false
	}
	inner := text[i+1 : i+close]
	end := i + close + 1

	list := []string{}
	for _, item := range strings.Split(inner, ",") {
		item = strings.TrimSpace(item)
		item = strings.Trim(item, `"'`)
		if item != "" {
			list = append(list, item)
		}
	}
	return list, end, true
}
