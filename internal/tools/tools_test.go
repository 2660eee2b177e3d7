package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeTool struct {
	name   string
	result string
}

func (t *fakeTool) Name() string               { return t.name }
func (t *fakeTool) Description() string        { return "fake" }
func (t *fakeTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (t *fakeTool) Execute(_ context.Context, _ map[string]any) (string, error) {
	return t.result, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "beta", result: "b"})
	r.Register(&fakeTool{name: "alpha", result: "a"})

	if _, ok := r.Get("alpha"); !ok {
		t.Fatal("alpha not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("missing tool should not resolve")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("Names() = %v, want sorted [alpha beta]", names)
	}

	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Function.Name != "alpha" || defs[0].Type != "function" {
		t.Errorf("unexpected definitions: %+v", defs)
	}

	out, err := r.Execute(context.Background(), "beta", nil)
	if err != nil || out != "b" {
		t.Errorf("Execute(beta) = %q, %v", out, err)
	}
	if _, err := r.Execute(context.Background(), "missing", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"s":     "text",
		"n":     float64(7),
		"exact": 3,
		"b":     true,
	}
	if got := GetString(args, "s", "d"); got != "text" {
		t.Errorf("GetString = %q", got)
	}
	if got := GetString(args, "missing", "d"); got != "d" {
		t.Errorf("GetString default = %q", got)
	}
	if got := GetInt(args, "n", 0); got != 7 {
		t.Errorf("GetInt float64 = %d", got)
	}
	if got := GetInt(args, "exact", 0); got != 3 {
		t.Errorf("GetInt int = %d", got)
	}
	if got := GetInt(args, "s", 9); got != 9 {
		t.Errorf("GetInt wrong type = %d", got)
	}
	if got := GetBool(args, "b", false); !got {
		t.Error("GetBool = false")
	}
}

func TestReadWriteEditDelete(t *testing.T) {
	dir := t.TempDir()
	workspace := func() string { return dir }
	path := filepath.Join(dir, "sub", "note.txt")

	write := NewWriteFileTool(workspace)
	out, err := write.Execute(context.Background(), map[string]any{
		"path": path, "content": "hello world",
	})
	if err != nil || !strings.Contains(out, "Successfully wrote") {
		t.Fatalf("write = %q, %v", out, err)
	}

	read := NewReadFileTool()
	out, err = read.Execute(context.Background(), map[string]any{"path": path})
	if err != nil || out != "hello world" {
		t.Fatalf("read = %q, %v", out, err)
	}

	edit := NewEditFileTool(workspace)
	out, err = edit.Execute(context.Background(), map[string]any{
		"path": path, "old_text": "world", "new_text": "there",
	})
	if err != nil || !strings.Contains(out, "Successfully edited") {
		t.Fatalf("edit = %q, %v", out, err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "hello there" {
		t.Errorf("content after edit = %q", content)
	}

	out, _ = edit.Execute(context.Background(), map[string]any{
		"path": path, "old_text": "absent", "new_text": "x",
	})
	if !strings.Contains(out, "text not found") {
		t.Errorf("edit missing text = %q", out)
	}

	del := NewDeleteFileTool(workspace)
	out, err = del.Execute(context.Background(), map[string]any{"path": path})
	if err != nil || !strings.Contains(out, "Deleted") {
		t.Fatalf("delete = %q, %v", out, err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("file still exists after delete")
	}
}

func TestWorkspaceGuard(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "escape.txt")
	workspace := func() string { return dir }

	write := NewWriteFileTool(workspace)
	out, err := write.Execute(context.Background(), map[string]any{
		"path": outside, "content": "x",
	})
	if err != nil || !strings.Contains(out, "outside workspace") {
		t.Errorf("write outside = %q, %v", out, err)
	}

	del := NewDeleteFileTool(workspace)
	out, _ = del.Execute(context.Background(), map[string]any{"path": outside})
	if !strings.Contains(out, "outside workspace") {
		t.Errorf("delete outside = %q", out)
	}
}

func TestListFilesLimit(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	list := NewListFilesTool()
	out, err := list.Execute(context.Background(), map[string]any{
		"path": dir, "limit": float64(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "a.txt") || !strings.Contains(out, "b.txt") {
		t.Errorf("missing listed entries: %q", out)
	}
	if strings.Contains(out, "c.txt") {
		t.Errorf("limit not applied: %q", out)
	}
	if !strings.Contains(out, "1 more entries") {
		t.Errorf("missing overflow marker: %q", out)
	}
}

func TestGrepFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	if err := os.WriteFile(path, []byte("alpha\nerror: boom\nbeta\nerror: again\n"), 0644); err != nil {
		t.Fatal(err)
	}

	grep := NewGrepFileTool()
	out, err := grep.Execute(context.Background(), map[string]any{
		"path": path, "pattern": "^error:",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2: error: boom") || !strings.Contains(out, "4: error: again") {
		t.Errorf("grep output = %q", out)
	}

	out, _ = grep.Execute(context.Background(), map[string]any{
		"path": path, "pattern": "nothing-here",
	})
	if out != "No matches." {
		t.Errorf("no-match output = %q", out)
	}

	out, _ = grep.Execute(context.Background(), map[string]any{
		"path": path, "pattern": "([",
	})
	if !strings.Contains(out, "invalid pattern") {
		t.Errorf("bad pattern output = %q", out)
	}
}

func TestExecuteCode(t *testing.T) {
	dir := t.TempDir()
	tool := NewExecuteCodeTool(5*time.Second, true, func() string { return dir })

	out, err := tool.Execute(context.Background(), map[string]any{"command": "echo hi"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "hi" {
		t.Errorf("output = %q", out)
	}

	out, _ = tool.Execute(context.Background(), map[string]any{"command": "exit 3"})
	if !strings.Contains(out, "Exit code: 3") {
		t.Errorf("exit code output = %q", out)
	}
}

func TestExecuteCodeGuards(t *testing.T) {
	dir := t.TempDir()
	tool := NewExecuteCodeTool(5*time.Second, true, func() string { return dir })

	for _, cmd := range []string{
		"rm -rf /",
		"rm -rf .",
		"dd if=/dev/zero of=/dev/sda",
		"shutdown now",
	} {
		out, err := tool.Execute(context.Background(), map[string]any{"command": cmd})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "blocked by safety rules") {
			t.Errorf("command %q not blocked: %q", cmd, out)
		}
	}

	out, _ := tool.Execute(context.Background(), map[string]any{"command": "cat ../secret"})
	if !strings.Contains(out, "path traversal") {
		t.Errorf("traversal not blocked: %q", out)
	}

	out, _ = tool.Execute(context.Background(), map[string]any{
		"command": "pwd", "working_dir": "/",
	})
	if !strings.Contains(out, "outside workspace") {
		t.Errorf("working dir escape not blocked: %q", out)
	}
}

func TestWebFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("response body"))
	}))
	defer srv.Close()

	fetch := NewWebFetchTool(srv.Client())
	out, err := fetch.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "HTTP 200") || !strings.Contains(out, "response body") {
		t.Errorf("fetch output = %q", out)
	}

	out, _ = fetch.Execute(context.Background(), map[string]any{
		"url": srv.URL, "max_bytes": float64(4),
	})
	if !strings.Contains(out, "resp") || strings.Contains(out, "response body") {
		t.Errorf("max_bytes not applied: %q", out)
	}
	if !strings.Contains(out, "truncated at 4 bytes") {
		t.Errorf("missing truncation marker: %q", out)
	}

	out, _ = fetch.Execute(context.Background(), map[string]any{"url": "ftp://example.com"})
	if !strings.Contains(out, "unsupported URL scheme") {
		t.Errorf("scheme check = %q", out)
	}
}
