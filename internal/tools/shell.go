package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DenyPatterns contains regex patterns for commands that never run,
// regardless of policy.
var DenyPatterns = []string{
	`\brm\s+(-[rf]+\s+)*[/~]`, // rm with root or home
	`\brm\s+-rf\b`,            // rm -rf anywhere
	`\brm\s+-r[fF]?\s+\.\b`,   // rm -r . / rm -rf .
	`\brm\s+-r[fF]?\s+\*`,     // rm -r *
	`\brm\s+\*`,               // rm *
	`\bgit\s+rm\b`,            // git rm
	`\bfind\b.*\b-delete\b`,   // find -delete
	`\bdd\b.*\bof=/dev/`,      // dd to device
	`\bmkfs\b`,                // filesystem format
	`>\s*/dev/`,               // redirect to device
	`\bchmod\s+-R\s+777\b`,    // chmod 777 recursive
	`\bchown\s+-R\b.*[/~]`,    // chown recursive on root/home
	`\bshutdown\b`,            // shutdown
	`\breboot\b`,              // reboot
	`\bsystemctl\s+(start|stop|restart|enable|disable)\b`, // systemd control
}

// pathTraversalPatterns detect attempts to step out of the workspace.
var pathTraversalPatterns = []string{
	`\.\.\/`,
	`\.\.\\`,
	`\/\.\.`,
	`\\\.\.`,
}

const blockedCommandMessage = "Error: command blocked by safety rules"

// ExecuteCodeTool runs shell commands. It carries its own hard deny list on
// top of whatever the policy layer decides.
type ExecuteCodeTool struct {
	Timeout             time.Duration
	RestrictToWorkspace bool
	workspaceRoot       func() string
	denyRegexes         []*regexp.Regexp
	pathRegexes         []*regexp.Regexp
}

// NewExecuteCodeTool creates an ExecuteCodeTool.
func NewExecuteCodeTool(timeout time.Duration, restrictToWorkspace bool, workspaceGetter func() string) *ExecuteCodeTool {
	if workspaceGetter == nil {
		workspaceGetter = func() string { return "" }
	}
	denyRegexes := make([]*regexp.Regexp, 0, len(DenyPatterns))
	for _, pattern := range DenyPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			denyRegexes = append(denyRegexes, re)
		}
	}
	pathRegexes := make([]*regexp.Regexp, 0, len(pathTraversalPatterns))
	for _, pattern := range pathTraversalPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			pathRegexes = append(pathRegexes, re)
		}
	}
	return &ExecuteCodeTool{
		Timeout:             timeout,
		RestrictToWorkspace: restrictToWorkspace,
		workspaceRoot:       func() string { return normalizeRoot(workspaceGetter()) },
		denyRegexes:         denyRegexes,
		pathRegexes:         pathRegexes,
	}
}

func (t *ExecuteCodeTool) Name() string { return "execute_code" }

func (t *ExecuteCodeTool) Description() string {
	return "Execute a shell command and return its output."
}

func (t *ExecuteCodeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"working_dir": map[string]any{
				"type":        "string",
				"description": "Optional working directory for the command",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecuteCodeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command := GetString(args, "command", "")
	workingDir := GetString(args, "working_dir", t.workspaceRoot())
	if command == "" {
		return "Error: command is required", nil
	}

	if err := t.guardCommand(command, workingDir); err != nil {
		return err.Error(), nil
	}

	timeout := t.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workingDir != "" {
		cmd.Dir = workingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	var result strings.Builder
	if stdout.Len() > 0 {
		result.WriteString(stdout.String())
	}
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString("STDERR:\n")
		result.WriteString(stderr.String())
	}

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error: command timed out after %v\n%s", timeout, result.String()), nil
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.WriteString(fmt.Sprintf("\nExit code: %d", exitErr.ExitCode()))
		} else {
			return fmt.Sprintf("Error executing command: %v", err), nil
		}
	}
	if result.Len() == 0 {
		return "(no output)", nil
	}
	return result.String(), nil
}

func (t *ExecuteCodeTool) guardCommand(command, workingDir string) error {
	for _, re := range t.denyRegexes {
		if re.MatchString(command) {
			return fmt.Errorf("%s", blockedCommandMessage)
		}
	}

	if t.RestrictToWorkspace {
		root := t.workspaceRoot()
		if root == "" {
			return nil
		}
		for _, re := range t.pathRegexes {
			if re.MatchString(command) {
				return fmt.Errorf("Error: path traversal not allowed")
			}
		}
		if workingDir != "" {
			absWorkingDir, _ := filepath.Abs(workingDir)
			if !isWithin(root, absWorkingDir) {
				return fmt.Errorf("Error: working directory outside workspace")
			}
		}
	}
	return nil
}
