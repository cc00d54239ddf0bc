package agent

import (
	"sync"
	"time"

	"github.com/mylxsw/asteria/log"
)

// Handle tracks one live agent process. It is owned by the runner for the
// lifetime of a request; lastOutput is bumped on every output line and read
// by the inactivity watcher.
type Handle struct {
	PID       int
	SessionID string
	Workspace string
	StartedAt time.Time

	mu         sync.Mutex
	lastOutput time.Time
}

func (h *Handle) Touch() {
	h.mu.Lock()
	h.lastOutput = time.Now()
	h.mu.Unlock()
}

func (h *Handle) LastOutput() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastOutput
}

// HandleInfo is a point-in-time snapshot of a Handle for observability.
type HandleInfo struct {
	PID        int       `json:"pid"`
	SessionID  string    `json:"session_id,omitempty"`
	Workspace  string    `json:"workspace"`
	StartedAt  time.Time `json:"started_at"`
	LastOutput time.Time `json:"last_output"`
}

func (h *Handle) Info() HandleInfo {
	return HandleInfo{
		PID:        h.PID,
		SessionID:  h.SessionID,
		Workspace:  h.Workspace,
		StartedAt:  h.StartedAt,
		LastOutput: h.LastOutput(),
	}
}

type registryEntry struct {
	handle *Handle
	kill   func()
}

// Registry is the shared map of active agent processes, keyed by pid.
// Requests only ever touch their own pid; the registry exists for
// observability and bulk shutdown.
type Registry struct {
	mu    sync.Mutex
	procs map[int]registryEntry
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[int]registryEntry)}
}

// Add registers a running process together with its termination routine.
func (r *Registry) Add(h *Handle, kill func()) {
	r.mu.Lock()
	r.procs[h.PID] = registryEntry{handle: h, kill: kill}
	r.mu.Unlock()
}

// Remove drops a process from the registry. Safe to call for a pid that
// was already removed.
func (r *Registry) Remove(pid int) {
	r.mu.Lock()
	delete(r.procs, pid)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// Snapshot lists the currently active processes.
func (r *Registry) Snapshot() []HandleInfo {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.procs))
	for _, e := range r.procs {
		handles = append(handles, e.handle)
	}
	r.mu.Unlock()

	infos := make([]HandleInfo, 0, len(handles))
	for _, h := range handles {
		infos = append(infos, h.Info())
	}
	return infos
}

// ShutdownAll invokes the termination routine of every active process.
// Used on server shutdown; the routines are idempotent so racing with
// normal completion is fine.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	kills := make([]func(), 0, len(r.procs))
	for _, e := range r.procs {
		kills = append(kills, e.kill)
	}
	count := len(kills)
	r.mu.Unlock()

	if count > 0 {
		log.Infof("shutting down %d active agent process(es)", count)
	}
	for _, kill := range kills {
		kill()
	}
}
