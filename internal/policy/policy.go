// Package policy decides whether tool calls run, prompt, or are refused.
package policy

import (
	"fmt"
	"strings"
)

// Policy is the execution stance for a tool.
type Policy string

const (
	// Allow executes without prompting.
	Allow Policy = "allow"
	// Prompt requests human confirmation.
	Prompt Policy = "prompt"
	// Deny prevents execution entirely.
	Deny Policy = "deny"
)

// DefaultPolicy applies to tools without an explicit entry.
const DefaultPolicy = Prompt

// Constraints bound what a tool may touch even when it is allowed to run.
type Constraints struct {
	MaxItems          uint     `json:"max_items,omitempty"`
	MaxBytes          uint64   `json:"max_bytes,omitempty"`
	AllowedModes      []string `json:"allowed_modes,omitempty"`
	BlockedSchemes    []string `json:"blocked_schemes,omitempty"`
	BlockedHosts      []string `json:"blocked_hosts,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
	BlockedPatterns   []string `json:"blocked_patterns,omitempty"`
	TimeoutSeconds    uint     `json:"timeout_seconds,omitempty"`
}

// URLBlocked reports whether a URL trips a scheme or host block. A non-empty
// return is the reason.
func (c *Constraints) URLBlocked(url string) string {
	for _, scheme := range c.BlockedSchemes {
		if strings.HasPrefix(url, scheme) {
			return fmt.Sprintf("URL scheme %q is blocked", scheme)
		}
	}
	if len(c.BlockedHosts) == 0 {
		return ""
	}
	idx := strings.Index(url, "://")
	if idx < 0 {
		return ""
	}
	host := url[idx+3:]
	if end := strings.IndexAny(host, "/:?"); end >= 0 {
		host = host[:end]
	}
	for _, blocked := range c.BlockedHosts {
		if host == blocked ||
			strings.HasSuffix(host, "."+blocked) ||
			(strings.HasPrefix(blocked, ".") && strings.HasSuffix(host, blocked)) {
			return fmt.Sprintf("host %q is blocked", host)
		}
	}
	return ""
}

// PathBlocked reports whether a path trips a pattern block or falls outside
// the allowed extensions. A non-empty return is the reason.
func (c *Constraints) PathBlocked(path string) string {
	for _, pattern := range c.BlockedPatterns {
		if globMatch(pattern, path) {
			return fmt.Sprintf("path matches blocked pattern %q", pattern)
		}
	}
	if len(c.AllowedExtensions) > 0 {
		for _, ext := range c.AllowedExtensions {
			if strings.HasSuffix(path, ext) || strings.HasSuffix(path, strings.TrimPrefix(ext, ".")) {
				return ""
			}
		}
		return fmt.Sprintf("file extension not in allowed list %v", c.AllowedExtensions)
	}
	return ""
}

// ModeAllowed reports whether a tool mode passes the allowed-modes list.
// An empty list means no restriction.
func (c *Constraints) ModeAllowed(mode string) bool {
	if len(c.AllowedModes) == 0 {
		return true
	}
	for _, m := range c.AllowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

// ExceedsMaxItems reports whether count is over the item cap.
func (c *Constraints) ExceedsMaxItems(count uint) bool {
	return c.MaxItems > 0 && count > c.MaxItems
}

// ExceedsMaxBytes reports whether size is over the byte cap.
func (c *Constraints) ExceedsMaxBytes(size uint64) bool {
	return c.MaxBytes > 0 && size > c.MaxBytes
}

// globMatch supports *, ** and exact patterns. * stops at path separators
// only in spirit; matching stays simple prefix/suffix like the policy files
// expect.
func globMatch(pattern, path string) bool {
	if strings.Contains(pattern, "**") {
		parts := strings.SplitN(pattern, "**", 2)
		prefix, suffix := parts[0], parts[1]
		if prefix == "" && strings.HasPrefix(suffix, "/") {
			inner := suffix[1:]
			if globMatch(inner, path) {
				return true
			}
			for _, segment := range strings.Split(path, "/") {
				if globMatch(inner, segment) {
					return true
				}
			}
			return false
		}
		if prefix != "" && !strings.HasPrefix(path, prefix) {
			return false
		}
		return suffix == "" || globMatch(suffix, path)
	}
	if strings.Contains(pattern, "*") {
		parts := strings.SplitN(pattern, "*", 2)
		return strings.HasPrefix(path, parts[0]) && strings.HasSuffix(path, parts[1])
	}
	return pattern == path
}
