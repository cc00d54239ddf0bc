// Package workspace resolves session/workspace names to isolated
// directories on disk and creates them on demand.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mylxsw/asteria/log"
)

// Error codes reported on the wire for workspace failures.
const (
	CodeInvalidName    = "invalid_workspace_name"
	CodeCreationFailed = "workspace_creation_failed"
)

// Error describes a workspace resolution or creation failure.
type Error struct {
	Name string
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// DefaultName is the workspace used when a request names none.
const DefaultName = "shared"

// Manager maps workspace names to directories under a base path.
// Resolution is a pure function of (base, name); directory creation
// is idempotent and safe to race.
type Manager struct {
	base string
}

func NewManager(base string) *Manager {
	return &Manager{base: base}
}

// Resolve returns the absolute directory for a workspace name, creating
// it if absent. The default/shared workspace lives at {base}/shared_workspace,
// named workspaces at {base}/workspace/{name}. Names that escape the base
// (absolute paths, ".." segments) are rejected without touching the disk.
func (m *Manager) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)

	var dir string
	if name == "" || name == DefaultName {
		dir = filepath.Join(m.base, "shared_workspace")
	} else {
		if err := validateName(name); err != nil {
			return "", err
		}
		dir = filepath.Join(m.base, "workspace", name)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &Error{Name: name, Code: CodeCreationFailed, msg: fmt.Sprintf("resolve workspace path: %v", err)}
	}

	if info, statErr := os.Stat(abs); statErr == nil && !info.IsDir() {
		return "", &Error{Name: name, Code: CodeCreationFailed, msg: fmt.Sprintf("workspace path %s exists and is not a directory", abs)}
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		log.Errorf("workspace create failed: name=%s path=%s err=%v", name, abs, err)
		return "", &Error{Name: name, Code: CodeCreationFailed, msg: fmt.Sprintf("create workspace %s: %v", abs, err)}
	}

	log.Debugf("workspace resolved: name=%s path=%s", name, abs)
	return abs, nil
}

func validateName(name string) error {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "\\") {
		return &Error{Name: name, Code: CodeInvalidName, msg: fmt.Sprintf("workspace name %q must be relative", name)}
	}
	if strings.ContainsRune(name, '\\') {
		return &Error{Name: name, Code: CodeInvalidName, msg: fmt.Sprintf("workspace name %q contains invalid separator", name)}
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return &Error{Name: name, Code: CodeInvalidName, msg: fmt.Sprintf("workspace name %q escapes the workspace base", name)}
		}
	}
	if clean := filepath.Clean(name); clean == "." || clean == "" {
		return &Error{Name: name, Code: CodeInvalidName, msg: fmt.Sprintf("workspace name %q is empty after sanitization", name)}
	}
	return nil
}
