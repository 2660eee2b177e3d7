// Package config provides configuration types and loading for agentcore.
package config

import (
	"github.com/KafClaw/agentcore/internal/bus"
	"github.com/KafClaw/agentcore/internal/contextmgr"
	"github.com/KafClaw/agentcore/internal/loopdetect"
	"github.com/KafClaw/agentcore/internal/prune"
	"github.com/KafClaw/agentcore/internal/tokens"
)

// Config is the root configuration struct.
type Config struct {
	Paths     PathsConfig           `json:"paths"`
	Model     ModelConfig           `json:"model"`
	Providers ProvidersConfig       `json:"providers"`
	Budget    tokens.Config         `json:"budget"`
	Trim      contextmgr.TrimConfig `json:"trim"`
	Prune     prune.Config          `json:"prune"`
	Loop      loopdetect.Config     `json:"loop"`
	Approval  ApprovalConfig        `json:"approval"`
	Subagents SubagentsConfig       `json:"subagents"`
	Audit     AuditConfig           `json:"audit"`
	Bus       BusConfig             `json:"bus"`
}

// PathsConfig groups filesystem path settings.
type PathsConfig struct {
	// Workspace is the project the agent operates on.
	Workspace string `json:"workspace" envconfig:"WORKSPACE"`
	// DataDir holds sessions, audit db and learned patterns. Empty means
	// ~/.agentcore.
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
}

// ModelConfig groups LLM model and agent-loop settings.
type ModelConfig struct {
	Provider          string  `json:"provider" envconfig:"PROVIDER"`
	Name              string  `json:"name" envconfig:"MODEL"`
	MaxTokens         int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature       float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxToolIterations int     `json:"maxToolIterations" envconfig:"MAX_TOOL_ITERATIONS"`
}

// ProvidersConfig contains LLM provider credentials.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ApprovalConfig groups the human-in-the-loop settings.
type ApprovalConfig struct {
	// TimeoutSeconds bounds how long a pending approval waits.
	TimeoutSeconds int         `json:"timeoutSeconds" envconfig:"TIMEOUT_SECONDS"`
	Slack          SlackConfig `json:"slack"`
}

// SlackConfig configures the Slack approval notifier.
type SlackConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Token   string `json:"token" envconfig:"TOKEN"`
	Channel string `json:"channel" envconfig:"CHANNEL"`
}

// SubagentsConfig bounds sub-agent execution.
type SubagentsConfig struct {
	MaxDepth      int `json:"maxDepth" envconfig:"MAX_DEPTH"`
	MaxIterations int `json:"maxIterations" envconfig:"MAX_ITERATIONS"`
}

// AuditConfig configures the sqlite audit trail.
type AuditConfig struct {
	Enabled bool `json:"enabled" envconfig:"ENABLED"`
	// Path overrides {dataDir}/audit.db when set.
	Path string `json:"path,omitempty" envconfig:"PATH"`
}

// BusConfig configures the governance event bus.
type BusConfig struct {
	Capacity int             `json:"capacity" envconfig:"CAPACITY"`
	Kafka    bus.KafkaConfig `json:"kafka"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:          "anthropic",
			Name:              "claude-sonnet-4",
			MaxTokens:         8192,
			Temperature:       0.7,
			MaxToolIterations: 50,
		},
		Budget: tokens.DefaultConfig(),
		Trim:   contextmgr.DefaultTrimConfig(),
		Prune:  prune.DefaultConfig(),
		Loop:   loopdetect.DefaultConfig(),
		Approval: ApprovalConfig{
			TimeoutSeconds: 300,
		},
		Subagents: SubagentsConfig{
			MaxDepth:      5,
			MaxIterations: 50,
		},
		Audit: AuditConfig{Enabled: true},
		Bus: BusConfig{
			Capacity: 100,
			Kafka:    bus.DefaultKafkaConfig(),
		},
	}
}
