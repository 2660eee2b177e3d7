package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name under $HOME.
	ConfigDir = ".agentcore"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file. AGENTCORE_CONFIG overrides
// the file, AGENTCORE_HOME the home directory it lives under.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("AGENTCORE_CONFIG")); explicit != "" {
		return expandTilde(explicit)
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// DataDir resolves the data directory for sessions, audit db and patterns.
func DataDir(cfg *Config) (string, error) {
	if cfg != nil && cfg.Paths.DataDir != "" {
		return expandTilde(cfg.Paths.DataDir)
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("AGENTCORE_HOME")); h != "" {
		return expandTilde(h)
	}
	return os.UserHomeDir()
}

func expandTilde(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Environment overrides per group.
	envconfig.Process("AGENTCORE_PATHS", &cfg.Paths)
	envconfig.Process("AGENTCORE_MODEL", &cfg.Model)
	envconfig.Process("AGENTCORE_ANTHROPIC", &cfg.Providers.Anthropic)
	envconfig.Process("AGENTCORE_OPENAI", &cfg.Providers.OpenAI)
	envconfig.Process("AGENTCORE_OPENROUTER", &cfg.Providers.OpenRouter)
	envconfig.Process("AGENTCORE_BUDGET", &cfg.Budget)
	envconfig.Process("AGENTCORE_TRIM", &cfg.Trim)
	envconfig.Process("AGENTCORE_PRUNE", &cfg.Prune)
	envconfig.Process("AGENTCORE_LOOP", &cfg.Loop)
	envconfig.Process("AGENTCORE_APPROVAL", &cfg.Approval)
	envconfig.Process("AGENTCORE_APPROVAL_SLACK", &cfg.Approval.Slack)
	envconfig.Process("AGENTCORE_SUBAGENTS", &cfg.Subagents)
	envconfig.Process("AGENTCORE_AUDIT", &cfg.Audit)
	envconfig.Process("AGENTCORE_BUS", &cfg.Bus)
	envconfig.Process("AGENTCORE_BUS_KAFKA", &cfg.Bus.Kafka)

	// API key fallbacks from the conventional variables.
	if cfg.Providers.Anthropic.APIKey == "" {
		cfg.Providers.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Providers.OpenRouter.APIKey == "" {
		cfg.Providers.OpenRouter.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}

	if cfg.Paths.Workspace != "" {
		if expanded, err := expandTilde(cfg.Paths.Workspace); err == nil {
			cfg.Paths.Workspace = expanded
		}
	}
	return cfg, nil
}

// ProviderFor returns the credentials for the configured provider ID.
func (c *Config) ProviderFor(id string) ProviderConfig {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "openai":
		return c.Providers.OpenAI
	case "openrouter":
		return c.Providers.OpenRouter
	default:
		return c.Providers.Anthropic
	}
}

// Save writes the configuration to its default path with an atomic rename.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
