package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultFetchMaxBytes caps a web_fetch response body. The policy layer can
// clamp the tool's max_bytes argument below this.
const DefaultFetchMaxBytes = 65536

// WebFetchTool fetches a URL over HTTP(S) and returns the body as text.
type WebFetchTool struct {
	client *http.Client
}

// NewWebFetchTool creates a WebFetchTool. A nil client gets a 30s-timeout
// default.
func NewWebFetchTool(client *http.Client) *WebFetchTool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebFetchTool{client: client}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch a URL over HTTP or HTTPS and return the response body."
}

func (t *WebFetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch",
			},
			"max_bytes": map[string]any{
				"type":        "integer",
				"description": "Maximum number of body bytes to return",
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	url := strings.TrimSpace(GetString(args, "url", ""))
	maxBytes := GetInt(args, "max_bytes", DefaultFetchMaxBytes)
	if maxBytes <= 0 || maxBytes > DefaultFetchMaxBytes {
		maxBytes = DefaultFetchMaxBytes
	}
	if url == "" {
		return "Error: url is required", nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Sprintf("Error: unsupported URL scheme: %s", url), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("Error: invalid URL: %v", err), nil
	}
	req.Header.Set("User-Agent", "agentcore/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error fetching URL: %v", err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)+1))
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), nil
	}
	truncated := false
	if len(body) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("HTTP %d %s\n\n", resp.StatusCode, url))
	result.Write(body)
	if truncated {
		result.WriteString(fmt.Sprintf("\n... [response truncated at %d bytes]", maxBytes))
	}
	return result.String(), nil
}
