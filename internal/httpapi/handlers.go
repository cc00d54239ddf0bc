package httpapi

import (
	"context"
	"errors"
	"net/http"
	osexec "os/exec"
	"strings"

	"github.com/mylxsw/asteria/log"

	"github.com/uniagent/gateway/pkg/agent"
	"github.com/uniagent/gateway/pkg/directive"
	"github.com/uniagent/gateway/pkg/openai"
	"github.com/uniagent/gateway/pkg/upload"
	"github.com/uniagent/gateway/pkg/workspace"
)

// Executor runs one agent invocation and streams its output records.
type Executor interface {
	Execute(ctx context.Context, req agent.Request) (<-chan agent.Record, error)
}

// Handler handles HTTP API requests.
type Handler struct {
	exec       Executor
	workspaces *workspace.Manager
	uploads    *upload.Store
	registry   *agent.Registry
	cliPath    string
}

func NewHandler(exec Executor, workspaces *workspace.Manager, uploads *upload.Store, registry *agent.Registry, cliPath string) *Handler {
	return &Handler{
		exec:       exec,
		workspaces: workspaces,
		uploads:    uploads,
		registry:   registry,
		cliPath:    cliPath,
	}
}

// HandleAgent streams the agent's native records, one SSE data frame per
// record, untouched.
func (h *Handler) HandleAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorFrame(w, http.StatusBadRequest,
			agent.NewError(agent.TypeValidation, agent.CodeInvalidRequest, "invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeErrorFrame(w, http.StatusBadRequest,
			agent.NewError(agent.TypeValidation, agent.CodeInvalidRequest, "prompt is required"))
		return
	}

	dir, err := h.workspaces.Resolve(req.Workspace)
	if err != nil {
		status, ae := classifyError(err)
		writeErrorFrame(w, status, ae)
		return
	}

	prompt := req.Prompt
	if len(req.Files) > 0 {
		paths, err := h.saveEncodedFiles(req.Files)
		if err != nil {
			writeErrorFrame(w, http.StatusBadRequest,
				agent.NewError(agent.TypeValidation, agent.CodeInvalidRequest, "invalid file payload: %v", err))
			return
		}
		prompt = upload.BuildPromptWithFiles(prompt, paths)
	}

	events, err := h.exec.Execute(r.Context(), agent.Request{
		Prompt:          prompt,
		SessionID:       req.SessionID,
		Workspace:       dir,
		SystemPrompt:    req.SystemPrompt,
		AllowedTools:    req.AllowedTools,
		DisallowedTools: req.DisallowedTools,
		Skills:          req.Skills,
		SkillOptions:    req.SkillOptions,
		SkipPermissions: req.SkipPermissions,
	})
	if err != nil {
		status, ae := classifyError(err)
		writeErrorFrame(w, status, ae)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeErrorFrame(w, http.StatusInternalServerError,
			agent.NewError(agent.TypeSystem, agent.CodeInternal, "%v", err))
		return
	}

	for rec := range events {
		if rec.Type == agent.RecordError {
			_ = sse.ErrorFrame(rec.ErrorFrame())
			return
		}
		if err := sse.Raw(rec.Raw); err != nil {
			log.Debugf("native stream closed by client: %v", err)
			return
		}
	}
}

// HandleChatCompletions serves the OpenAI-compatible surface: directives
// are extracted from the conversation, the cleaned prompt runs through
// the agent, and its records come back as chat.completion.chunk deltas.
func (h *Handler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openai.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorFrame(w, http.StatusBadRequest,
			agent.NewError(agent.TypeValidation, agent.CodeInvalidRequest, "invalid request body: %v", err))
		return
	}
	if !req.Stream {
		writeErrorFrame(w, http.StatusBadRequest,
			agent.NewError(agent.TypeValidation, agent.CodeInvalidRequest, "only streaming requests are supported; set stream=true"))
		return
	}

	var (
		system     string
		assistants []string
		current    openai.Message
		haveUser   bool
	)
	for _, m := range req.Messages {
		switch m.Role {
		case openai.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.TextContent()
		case openai.RoleAssistant:
			assistants = append(assistants, m.TextContent())
		case openai.RoleUser:
			current = m
			haveUser = true
		}
	}
	if !haveUser {
		writeErrorFrame(w, http.StatusBadRequest,
			agent.NewError(agent.TypeValidation, agent.CodeInvalidRequest, "at least one user message is required"))
		return
	}

	params, prompt := directive.FromConversation(system, assistants, current.TextContent())

	// The system message carries directives and the CLI system prompt;
	// forward the prompt with the directives stripped out.
	_, systemPrompt := directive.Scan(system)

	paths, err := h.saveMessageParts(current)
	if err != nil {
		writeErrorFrame(w, http.StatusBadRequest,
			agent.NewError(agent.TypeValidation, agent.CodeInvalidRequest, "invalid file payload: %v", err))
		return
	}
	prompt = upload.BuildPromptWithFiles(prompt, paths)

	dir, err := h.workspaces.Resolve(params.Workspace)
	if err != nil {
		status, ae := classifyError(err)
		writeErrorFrame(w, status, ae)
		return
	}

	events, err := h.exec.Execute(r.Context(), agent.Request{
		Prompt:          prompt,
		SessionID:       params.SessionID,
		Workspace:       dir,
		SystemPrompt:    systemPrompt,
		AllowedTools:    params.AllowedTools,
		DisallowedTools: params.DisallowedTools,
		Skills:          params.Skills,
		SkillOptions:    params.SkillOptions,
		SkipPermissions: params.SkipPermissions != nil && *params.SkipPermissions,
	})
	if err != nil {
		status, ae := classifyError(err)
		writeErrorFrame(w, status, ae)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeErrorFrame(w, http.StatusInternalServerError,
			agent.NewError(agent.TypeSystem, agent.CodeInternal, "%v", err))
		return
	}

	banner := func(sessionID string) string {
		echo := params.Echo(sessionID)
		if echo == "" {
			return ""
		}
		return "```🔗 Session\n" + echo + "```\n\n"
	}
	thinking := params.ShowThinking != nil && *params.ShowThinking
	proc := openai.NewProcessor(req.Model, thinking, banner, sse)

	finished := false
	for rec := range events {
		done, err := proc.Feed(rec)
		if err != nil {
			log.Debugf("completion stream closed by client: %v", err)
			return
		}
		if done {
			finished = true
			break
		}
	}
	if !finished {
		if err := proc.Finish(); err != nil {
			log.Debugf("completion stream close failed: %v", err)
		}
	}
}

// HandleProcess persists an external document and returns its path for
// use in a later prompt.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorFrame(w, http.StatusBadRequest,
			agent.NewError(agent.TypeValidation, agent.CodeInvalidRequest, "invalid request body: %v", err))
		return
	}
	if req.Data == "" {
		writeErrorFrame(w, http.StatusBadRequest,
			agent.NewError(agent.TypeValidation, agent.CodeInvalidRequest, "data is required"))
		return
	}

	data, err := upload.DecodeDataURI(req.Data)
	if err != nil {
		writeErrorFrame(w, http.StatusBadRequest,
			agent.NewError(agent.TypeValidation, agent.CodeInvalidRequest, "invalid file payload: %v", err))
		return
	}
	saved, err := h.uploads.Save(data, req.Filename)
	if err != nil {
		writeErrorFrame(w, http.StatusInternalServerError,
			agent.NewError(agent.TypeSystem, agent.CodeInternal, "save file: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, ProcessResponse{
		Path:        saved.Path,
		DisplayName: saved.DisplayName,
		Size:        saved.Size,
	})
}

// HandleHealth reports CLI resolvability, workspace writability, and the
// live process count.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:          "ok",
		AgentCLI:        h.cliPath,
		ActiveProcesses: h.registry.Len(),
	}

	if _, err := osexec.LookPath(h.cliPath); err == nil {
		resp.CLIAvailable = true
	} else {
		resp.Status = "degraded"
	}

	if dir, err := h.workspaces.Resolve(""); err == nil {
		resp.WorkspaceBase = dir
	} else {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleProcesses lists the active agent processes.
func (h *Handler) HandleProcesses(w http.ResponseWriter, r *http.Request) {
	procs := h.registry.Snapshot()
	writeJSON(w, http.StatusOK, ProcessesResponse{Count: len(procs), Processes: procs})
}

func (h *Handler) saveEncodedFiles(payloads []string) ([]string, error) {
	paths := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		data, err := upload.DecodeDataURI(payload)
		if err != nil {
			return nil, err
		}
		saved, err := h.uploads.Save(data, "")
		if err != nil {
			return nil, err
		}
		paths = append(paths, saved.Path)
	}
	return paths, nil
}

func (h *Handler) saveMessageParts(msg openai.Message) ([]string, error) {
	var paths []string
	for _, part := range msg.Content.Parts {
		var (
			payload string
			name    string
		)
		switch part.Type {
		case "image_url":
			if part.ImageURL == nil {
				continue
			}
			payload = part.ImageURL.URL
		case "file":
			if part.File == nil {
				continue
			}
			payload = part.File.FileData
			name = part.File.Filename
		default:
			continue
		}
		data, err := upload.DecodeDataURI(payload)
		if err != nil {
			return nil, err
		}
		saved, err := h.uploads.Save(data, name)
		if err != nil {
			return nil, err
		}
		paths = append(paths, saved.Path)
	}
	return paths, nil
}

// classifyError maps a failure to an HTTP status and the wire error shape.
func classifyError(err error) (int, *agent.Error) {
	var ae *agent.Error
	if errors.As(err, &ae) {
		status := http.StatusInternalServerError
		switch ae.Type {
		case agent.TypeValidation:
			status = http.StatusBadRequest
		case agent.TypeAuth:
			status = http.StatusUnauthorized
		}
		return status, ae
	}

	var we *workspace.Error
	if errors.As(err, &we) {
		status := http.StatusBadRequest
		if we.Code == workspace.CodeCreationFailed {
			status = http.StatusInternalServerError
		}
		return status, &agent.Error{Message: we.Error(), Type: agent.TypeWorkspace, Code: we.Code}
	}

	return http.StatusInternalServerError,
		agent.NewError(agent.TypeSystem, agent.CodeInternal, "%v", err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(v)
	_, _ = w.Write(data)
}
