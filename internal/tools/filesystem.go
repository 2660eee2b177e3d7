package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultListLimit caps list_files results when the caller gives no limit.
const DefaultListLimit = 500

// ReadFileTool reads the contents of a file.
type ReadFileTool struct{}

// NewReadFileTool creates a ReadFileTool.
func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file at the specified path."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to read",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	if path == "" {
		return "Error: path is required", nil
	}
	path = expandPath(path)

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", path), nil
		}
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: permission denied: %s", path), nil
		}
		return fmt.Sprintf("Error reading file: %v", err), nil
	}
	return string(content), nil
}

// WriteFileTool writes content to a file inside the workspace.
type WriteFileTool struct {
	workspaceRoot func() string
}

// NewWriteFileTool creates a WriteFileTool that rejects writes outside the
// workspace root, when one is configured.
func NewWriteFileTool(workspaceGetter func() string) *WriteFileTool {
	if workspaceGetter == nil {
		workspaceGetter = func() string { return "" }
	}
	return &WriteFileTool{workspaceRoot: func() string { return normalizeRoot(workspaceGetter()) }}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file at the specified path. Creates parent directories if needed. Writes are restricted to the workspace."
}

func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write to the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	content := GetString(args, "content", "")
	if path == "" {
		return "Error: path is required", nil
	}

	path = expandPath(path)
	if root := t.workspaceRoot(); root != "" && !isWithin(root, path) {
		return "Error: path outside workspace.", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Sprintf("Error creating directory: %v", err), nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: permission denied: %s", path), nil
		}
		return fmt.Sprintf("Error writing file: %v", err), nil
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

// EditFileTool replaces text in a file inside the workspace.
type EditFileTool struct {
	workspaceRoot func() string
}

// NewEditFileTool creates an EditFileTool with the same workspace guard as
// WriteFileTool.
func NewEditFileTool(workspaceGetter func() string) *EditFileTool {
	if workspaceGetter == nil {
		workspaceGetter = func() string { return "" }
	}
	return &EditFileTool{workspaceRoot: func() string { return normalizeRoot(workspaceGetter()) }}
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Edit a file by replacing text. Useful for making targeted changes. Edits are restricted to the workspace."
}

func (t *EditFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to edit",
			},
			"old_text": map[string]any{
				"type":        "string",
				"description": "The text to find and replace",
			},
			"new_text": map[string]any{
				"type":        "string",
				"description": "The replacement text",
			},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	oldText := GetString(args, "old_text", "")
	newText := GetString(args, "new_text", "")

	if path == "" {
		return "Error: path is required", nil
	}
	if oldText == "" {
		return "Error: old_text is required", nil
	}

	path = expandPath(path)
	if root := t.workspaceRoot(); root != "" && !isWithin(root, path) {
		return "Error: path outside workspace.", nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", path), nil
		}
		return fmt.Sprintf("Error reading file: %v", err), nil
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, oldText) {
		return fmt.Sprintf("Error: text not found in file: %s", path), nil
	}

	newContent := strings.Replace(contentStr, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		return fmt.Sprintf("Error writing file: %v", err), nil
	}
	return fmt.Sprintf("Successfully edited %s", path), nil
}

// DeleteFileTool removes a file inside the workspace. Denied by the default
// policy table; only runs when an operator changes the policy.
type DeleteFileTool struct {
	workspaceRoot func() string
}

// NewDeleteFileTool creates a DeleteFileTool.
func NewDeleteFileTool(workspaceGetter func() string) *DeleteFileTool {
	if workspaceGetter == nil {
		workspaceGetter = func() string { return "" }
	}
	return &DeleteFileTool{workspaceRoot: func() string { return normalizeRoot(workspaceGetter()) }}
}

func (t *DeleteFileTool) Name() string { return "delete_file" }

func (t *DeleteFileTool) Description() string {
	return "Delete a file at the specified path. Restricted to the workspace."
}

func (t *DeleteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to delete",
			},
		},
		"required": []string{"path"},
	}
}

func (t *DeleteFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	if path == "" {
		return "Error: path is required", nil
	}

	path = expandPath(path)
	if root := t.workspaceRoot(); root != "" && !isWithin(root, path) {
		return "Error: path outside workspace.", nil
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", path), nil
		}
		return fmt.Sprintf("Error deleting file: %v", err), nil
	}
	return fmt.Sprintf("Deleted %s", path), nil
}

// ListFilesTool lists directory contents.
type ListFilesTool struct{}

// NewListFilesTool creates a ListFilesTool.
func NewListFilesTool() *ListFilesTool { return &ListFilesTool{} }

func (t *ListFilesTool) Name() string { return "list_files" }

func (t *ListFilesTool) Description() string {
	return "List the contents of a directory."
}

func (t *ListFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The directory path to list",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of entries to return",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := expandPath(GetString(args, "path", "."))
	limit := GetInt(args, "limit", DefaultListLimit)
	if limit <= 0 {
		limit = DefaultListLimit
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: directory not found: %s", path), nil
		}
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: permission denied: %s", path), nil
		}
		return fmt.Sprintf("Error reading directory: %v", err), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Contents of %s:\n", path))
	listed := 0
	for _, entry := range entries {
		if listed >= limit {
			result.WriteString(fmt.Sprintf("  ... %d more entries\n", len(entries)-listed))
			break
		}
		listed++
		info, _ := entry.Info()
		if entry.IsDir() {
			result.WriteString(fmt.Sprintf("  [DIR]  %s/\n", entry.Name()))
		} else if info != nil {
			result.WriteString(fmt.Sprintf("  [FILE] %s (%d bytes)\n", entry.Name(), info.Size()))
		} else {
			result.WriteString(fmt.Sprintf("  [FILE] %s\n", entry.Name()))
		}
	}
	return result.String(), nil
}

// GrepFileTool searches a file for a regular expression.
type GrepFileTool struct{}

// NewGrepFileTool creates a GrepFileTool.
func NewGrepFileTool() *GrepFileTool { return &GrepFileTool{} }

func (t *GrepFileTool) Name() string { return "grep_file" }

func (t *GrepFileTool) Description() string {
	return "Search a file for lines matching a regular expression."
}

func (t *GrepFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to search",
			},
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regular expression to match against each line",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of matching lines to return",
			},
		},
		"required": []string{"path", "pattern"},
	}
}

func (t *GrepFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	pattern := GetString(args, "pattern", "")
	limit := GetInt(args, "limit", 100)
	if limit <= 0 {
		limit = 100
	}
	if path == "" {
		return "Error: path is required", nil
	}
	if pattern == "" {
		return "Error: pattern is required", nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Sprintf("Error: invalid pattern: %v", err), nil
	}

	content, err := os.ReadFile(expandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", path), nil
		}
		return fmt.Sprintf("Error reading file: %v", err), nil
	}

	var result strings.Builder
	matches := 0
	for i, line := range strings.Split(string(content), "\n") {
		if !re.MatchString(line) {
			continue
		}
		if matches >= limit {
			result.WriteString("  ... more matches\n")
			break
		}
		matches++
		result.WriteString(fmt.Sprintf("%d: %s\n", i+1, line))
	}
	if matches == 0 {
		return "No matches.", nil
	}
	return result.String(), nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

func normalizeRoot(root string) string {
	if root == "" {
		return ""
	}
	return expandPath(root)
}

func isWithin(root, path string) bool {
	if root == "" {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".."
}
