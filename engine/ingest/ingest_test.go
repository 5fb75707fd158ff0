package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mnemosdb/mnemos/engine/domain"
)

func drain(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var out []Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestLoadFileEmitsOneTextDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader()
	ch, err := l.Load(context.Background(), NewFileSource(path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chunks := drain(t, ch)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Err != nil {
		t.Fatalf("unexpected error: %v", chunks[0].Err)
	}
	if chunks[0].Doc.Format != domain.FormatText || chunks[0].Doc.Data != "hello world" {
		t.Errorf("unexpected document: %+v", chunks[0].Doc)
	}
}

func TestLoadFileOversizeIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(MaxFileSize + 1); err != nil {
		t.Fatal(err)
	}
	f.Close()

	l := NewLoader()
	_, err = l.Load(context.Background(), NewFileSource(path))
	if err == nil {
		t.Fatal("expected an error for an oversize file")
	}
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Errorf("expected a file-too-large error, got %v", err)
	}
}

func TestLoadFileMissingIsFatal(t *testing.T) {
	l := NewLoader()
	_, err := l.Load(context.Background(), NewFileSource("/nonexistent/path/x.txt"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadFileBinaryFallsBackToBase64OnInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weird.txt")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x01}, 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader()
	ch, err := l.Load(context.Background(), NewFileSource(path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chunks := drain(t, ch)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Doc.Format != domain.FormatBase64 {
		t.Errorf("expected base64 fallback, got format %v", chunks[0].Doc.Format)
	}
	if chunks[0].Warning == "" {
		t.Error("expected a warning on utf-8 fallback")
	}
}

func TestLoadFilesExpandsGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("content "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	l := NewLoader()
	ch, err := l.Load(context.Background(), NewFilesSource(filepath.Join(dir, "*.txt")))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chunks := drain(t, ch)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(chunks))
	}
}

func TestLoadDirectoryRespectsRecursiveAndExtensions(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "top.txt"): "top",
		filepath.Join(dir, "top.md"):  "top md",
		filepath.Join(sub, "deep.txt"): "deep",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	l := NewLoader()

	ch, err := l.Load(context.Background(), NewDirectorySource(dir, DirectoryOptions{
		Recursive:  false,
		Extensions: []string{"txt"},
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chunks := drain(t, ch)
	if len(chunks) != 1 {
		t.Fatalf("non-recursive txt-only: expected 1 match, got %d", len(chunks))
	}

	ch, err = l.Load(context.Background(), NewDirectorySource(dir, DirectoryOptions{
		Recursive:  true,
		Extensions: []string{"txt"},
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chunks = drain(t, ch)
	if len(chunks) != 2 {
		t.Fatalf("recursive txt-only: expected 2 matches, got %d", len(chunks))
	}
}

func TestLoadDirectoryMaxDepth(t *testing.T) {
	dir := t.TempDir()
	level1 := filepath.Join(dir, "l1")
	level2 := filepath.Join(level1, "l2")
	if err := os.MkdirAll(level2, 0o755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, "root.txt"), []byte("r"), 0o644)
	_ = os.WriteFile(filepath.Join(level1, "one.txt"), []byte("1"), 0o644)
	_ = os.WriteFile(filepath.Join(level2, "two.txt"), []byte("2"), 0o644)

	l := NewLoader()
	ch, err := l.Load(context.Background(), NewDirectorySource(dir, DirectoryOptions{
		Recursive: true,
		MaxDepth:  1,
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chunks := drain(t, ch)
	if len(chunks) != 2 {
		t.Fatalf("expected root.txt + l1/one.txt at depth<=1, got %d", len(chunks))
	}
}

func TestRepoNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://github.com/acme/widgets.git": "widgets",
		"https://github.com/acme/widgets":     "widgets",
		"git@github.com:acme/widgets.git":      "widgets",
	}
	for url, want := range cases {
		if got := repoName(url); got != want {
			t.Errorf("repoName(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestAuthURLInjectsToken(t *testing.T) {
	got := authURL("https://github.com/acme/widgets.git", "tok123")
	want := "https://tok123@github.com/acme/widgets.git"
	if got != want {
		t.Errorf("authURL = %q, want %q", got, want)
	}
	if got := authURL("git@github.com:acme/widgets.git", "tok123"); got != "git@github.com:acme/widgets.git" {
		t.Errorf("authURL should leave non-https URLs untouched, got %q", got)
	}
}

func TestDetectMediaTypeByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(path, []byte("# heading\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mt, err := detectMediaType(path)
	if err != nil {
		t.Fatalf("detectMediaType: %v", err)
	}
	if mt != "text/markdown" && !strings.HasPrefix(mt, "text/plain") {
		t.Errorf("unexpected media type %q for .md file", mt)
	}
}
