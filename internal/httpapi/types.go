package httpapi

import "github.com/uniagent/gateway/pkg/agent"

// AgentRequest is the native endpoint's request body. Field names mirror
// the directive keys so both surfaces speak the same vocabulary.
type AgentRequest struct {
	Prompt          string   `json:"prompt"`
	SessionID       string   `json:"session-id,omitempty"`
	Workspace       string   `json:"workspace,omitempty"`
	SystemPrompt    string   `json:"system-prompt,omitempty"`
	SkipPermissions bool     `json:"dangerously-skip-permissions,omitempty"`
	AllowedTools    []string `json:"allowed-tools,omitempty"`
	DisallowedTools []string `json:"disallowed-tools,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	SkillOptions    string   `json:"skill-options,omitempty"` // raw JSON object
	Files           []string `json:"files,omitempty"`         // data URIs or raw base64
}

// ProcessRequest is the document-loader request body.
type ProcessRequest struct {
	Filename string `json:"filename,omitempty"`
	Data     string `json:"data"` // data URI or raw base64
}

// ProcessResponse reports a persisted upload.
type ProcessResponse struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Size        int64  `json:"size"`
}

// HealthResponse is the health-check body.
type HealthResponse struct {
	Status          string `json:"status"`
	AgentCLI        string `json:"agent_cli"`
	CLIAvailable    bool   `json:"cli_available"`
	WorkspaceBase   string `json:"workspace_base"`
	ActiveProcesses int    `json:"active_processes"`
}

// ProcessesResponse lists the live agent processes.
type ProcessesResponse struct {
	Count     int                `json:"count"`
	Processes []agent.HandleInfo `json:"processes"`
}
