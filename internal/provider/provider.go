// Package provider implements LLM provider interfaces and clients.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// LLMProvider is the interface for LLM API clients.
type LLMProvider interface {
	// Chat sends a completion request and returns the response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// DefaultModel returns the configured default model.
	DefaultModel() string
}

// StreamingProvider is an optional interface for providers that can stream
// completions as typed events. Callers should use type assertion:
// if sp, ok := prov.(StreamingProvider); ok { ... }
type StreamingProvider interface {
	// ChatStream sends a completion request and emits events until the
	// stream finishes. The channel is closed after the done or error event.
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)
}

// StreamEventKind identifies a streaming event.
type StreamEventKind string

const (
	StreamTextDelta StreamEventKind = "text_delta"
	StreamToolDelta StreamEventKind = "tool_delta"
	StreamUsage     StreamEventKind = "usage"
	StreamDone      StreamEventKind = "done"
	StreamError     StreamEventKind = "error"
)

// StreamEvent is a single typed event from a streaming completion.
type StreamEvent struct {
	Kind StreamEventKind
	// Text is the content delta for text_delta events.
	Text string
	// ToolCall carries the accumulated call for tool_delta events.
	ToolCall *ToolCall
	// Usage is populated on usage and done events.
	Usage *Usage
	// Err is populated on error events.
	Err error
}

// ChatRequest contains the parameters for a chat completion request.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatResponse contains the response from a chat completion request.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Message represents a chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition defines a tool that can be called by the LLM.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a function that can be called.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrUnknownProvider is returned by New for provider IDs outside the
// supported set.
var ErrUnknownProvider = errors.New("unknown provider")

// Options configures a provider built by New.
type Options struct {
	APIKey  string
	APIBase string
	Model   string
}

// New builds an LLMProvider for a supported provider ID. The set is closed:
// anthropic, openai and openrouter all speak the OpenAI-compatible chat
// completions protocol; anything else is an error.
func New(id string, opts Options) (LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "anthropic", "claude":
		if opts.APIBase == "" {
			opts.APIBase = "https://api.anthropic.com/v1"
		}
		return NewOpenAIProvider(opts.APIKey, opts.APIBase, opts.Model), nil
	case "openai":
		return NewOpenAIProvider(opts.APIKey, opts.APIBase, opts.Model), nil
	case "openrouter":
		if opts.APIBase == "" {
			opts.APIBase = "https://openrouter.ai/api/v1"
		}
		return NewOpenAIProvider(opts.APIKey, opts.APIBase, opts.Model), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
}
