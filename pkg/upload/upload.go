// Package upload persists request-attached files to disk so their paths
// can be handed to the agent CLI as part of the prompt.
package upload

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/mylxsw/asteria/log"
)

// SavedFile describes one persisted upload.
type SavedFile struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Size        int64  `json:"size"`
}

// Store writes uploads under a single directory beneath the workspace
// base. Filenames are random so concurrent requests never collide.
type Store struct {
	dir string
}

func NewStore(base string) *Store {
	return &Store{dir: filepath.Join(base, "files")}
}

// Dir returns the directory uploads are written to.
func (s *Store) Dir() string { return s.dir }

// Save persists data under a generated name. When displayName is empty
// the content is sniffed for an extension, falling back to .txt.
func (s *Store) Save(data []byte, displayName string) (SavedFile, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return SavedFile{}, fmt.Errorf("create upload dir: %w", err)
	}

	ext := filepath.Ext(displayName)
	if ext == "" {
		ext = sniffExtension(data)
	}
	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return SavedFile{}, fmt.Errorf("write upload: %w", err)
	}

	if displayName == "" {
		displayName = name
	}
	log.Debugf("saved upload %s (%d bytes) as %s", displayName, len(data), path)

	return SavedFile{Path: path, DisplayName: displayName, Size: int64(len(data))}, nil
}

// sniffExtension derives a file extension from magic bytes.
func sniffExtension(data []byte) string {
	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		return "." + kind.Extension
	}
	return ".txt"
}

// DecodeDataURI decodes an RFC 2397 data URI ("data:<mime>;base64,<payload>").
// Raw base64 without the scheme prefix is accepted too.
func DecodeDataURI(uri string) ([]byte, error) {
	payload := uri
	if strings.HasPrefix(uri, "data:") {
		idx := strings.Index(uri, ",")
		if idx < 0 {
			return nil, fmt.Errorf("data uri missing payload separator")
		}
		meta := uri[len("data:"):idx]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("unsupported data uri encoding %q", meta)
		}
		payload = uri[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return data, nil
}

// BuildPromptWithFiles prefixes the prompt with the saved file paths so
// the agent can open them from its working directory.
func BuildPromptWithFiles(prompt string, paths []string) string {
	if len(paths) == 0 {
		return prompt
	}
	return "Files: " + strings.Join(paths, " ") + "\n\n" + prompt
}
