package upload

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func TestSaveSniffsExtension(t *testing.T) {
	store := NewStore(t.TempDir())

	saved, err := store.Save(pngHeader, "")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(saved.Path) != ".png" {
		t.Errorf("extension = %q, want .png", filepath.Ext(saved.Path))
	}
	if saved.Size != int64(len(pngHeader)) {
		t.Errorf("size = %d, want %d", saved.Size, len(pngHeader))
	}
	data, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(pngHeader) {
		t.Error("saved content differs from input")
	}
}

func TestSaveUnknownContentFallsBackToTxt(t *testing.T) {
	store := NewStore(t.TempDir())

	saved, err := store.Save([]byte("plain notes"), "")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(saved.Path) != ".txt" {
		t.Errorf("extension = %q, want .txt", filepath.Ext(saved.Path))
	}
}

func TestSaveKeepsProvidedExtension(t *testing.T) {
	store := NewStore(t.TempDir())

	saved, err := store.Save([]byte("package main"), "main.go")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(saved.Path) != ".go" {
		t.Errorf("extension = %q, want .go", filepath.Ext(saved.Path))
	}
	if saved.DisplayName != "main.go" {
		t.Errorf("display name = %q", saved.DisplayName)
	}
	if filepath.Base(saved.Path) == "main.go" {
		t.Error("stored name must be generated, not the caller's name")
	}
}

func TestDecodeDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("hello"))

	data, err := DecodeDataURI("data:text/plain;base64," + payload)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("decoded = %q", data)
	}

	// Bare base64 without the scheme.
	data, err = DecodeDataURI(payload)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("decoded = %q", data)
	}

	if _, err := DecodeDataURI("data:text/plain,hello"); err == nil {
		t.Error("non-base64 data uri should be rejected")
	}
	if _, err := DecodeDataURI("data:text/plain;base64"); err == nil {
		t.Error("data uri without payload should be rejected")
	}
}

func TestBuildPromptWithFiles(t *testing.T) {
	got := BuildPromptWithFiles("describe these", []string{"/tmp/a.png", "/tmp/b.txt"})
	want := "Files: /tmp/a.png /tmp/b.txt\n\ndescribe these"
	if got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}

	if got := BuildPromptWithFiles("no files", nil); got != "no files" {
		t.Errorf("prompt = %q", got)
	}
	if !strings.HasPrefix(BuildPromptWithFiles("", []string{"/x"}), "Files: /x") {
		t.Error("empty prompt still gets the file prefix")
	}
}
