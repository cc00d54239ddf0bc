package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveShared(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base)

	for _, name := range []string{"", "shared", "  shared  "} {
		dir, err := m.Resolve(name)
		if err != nil {
			t.Fatalf("resolve %q: %v", name, err)
		}
		want := filepath.Join(base, "shared_workspace")
		if dir != want {
			t.Fatalf("resolve %q = %s, want %s", name, dir, want)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("shared workspace not created: %v", err)
		}
	}
}

func TestResolveNamedIsIdempotent(t *testing.T) {
	m := NewManager(t.TempDir())

	first, err := m.Resolve("proj")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := m.Resolve("proj")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if first != second {
		t.Fatalf("resolve not idempotent: %s vs %s", first, second)
	}
	if filepath.Base(filepath.Dir(first)) != "workspace" {
		t.Fatalf("named workspace should live under workspace/: %s", first)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base)

	cases := []string{
		"..",
		"../outside",
		"proj/../../outside",
		"/etc",
		"a\\..\\b",
		".",
	}
	for _, name := range cases {
		_, err := m.Resolve(name)
		var wsErr *Error
		if !errors.As(err, &wsErr) {
			t.Fatalf("resolve %q: expected workspace error, got %v", name, err)
		}
		if wsErr.Code != CodeInvalidName {
			t.Fatalf("resolve %q: code = %s, want %s", name, wsErr.Code, CodeInvalidName)
		}
	}

	// Nothing may be created for rejected names.
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected names created entries: %v", entries)
	}
}

func TestResolveNonDirectoryCollision(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "shared_workspace"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(base)
	_, err := m.Resolve("")
	var wsErr *Error
	if !errors.As(err, &wsErr) || wsErr.Code != CodeCreationFailed {
		t.Fatalf("expected creation failure, got %v", err)
	}
}
