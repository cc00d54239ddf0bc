package agent

import "fmt"

// Wire error types.
const (
	TypeAgentCLI   = "agent_cli_error"
	TypeWorkspace  = "workspace_error"
	TypeStream     = "stream_error"
	TypeSystem     = "system_error"
	TypeValidation = "validation_error"
	TypeAuth       = "authentication_error"
)

// Wire error codes.
const (
	CodeAgentNotFound  = "agent_cli_not_found"
	CodeAgentFailed    = "agent_cli_execution_failed"
	CodeAgentTimeout   = "agent_cli_timeout"
	CodeInternal       = "internal_server_error"
	CodeInvalidRequest = "invalid_request"
	CodeMissingAPIKey  = "missing_api_key"
	CodeInvalidAPIKey  = "invalid_api_key"
)

// Error is a failure with a stable wire classification.
type Error struct {
	Message string
	Type    string
	Code    string
}

func (e *Error) Error() string { return e.Message }

func NewError(typ, code, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Type: typ, Code: code}
}

// ErrorFrame is the error shape shared by both stream targets:
// {"error":{"message","type","code"}}.
type ErrorFrame struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func (e *Error) Frame() ErrorFrame {
	return ErrorFrame{Error: ErrorBody{Message: e.Message, Type: e.Type, Code: e.Code}}
}

// ErrorFrame maps an error record to the wire error frame, keeping the
// type and code a synthetic record carries in its raw form.
func (r Record) ErrorFrame() ErrorFrame {
	var frame ErrorFrame
	if len(r.Raw) > 0 {
		if err := json.Unmarshal(r.Raw, &frame); err == nil && frame.Error.Type != "" {
			if frame.Error.Message == "" {
				frame.Error.Message = r.ErrMessage
			}
			return frame
		}
	}
	msg := r.ErrMessage
	if msg == "" {
		msg = "agent stream error"
	}
	return ErrorFrame{Error: ErrorBody{Message: msg, Type: TypeStream, Code: CodeAgentFailed}}
}
