package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Model.Provider != "anthropic" || cfg.Model.MaxToolIterations != 50 {
		t.Errorf("model defaults = %+v", cfg.Model)
	}
	if cfg.Budget.MaxContextTokens != 128000 {
		t.Errorf("budget default = %d", cfg.Budget.MaxContextTokens)
	}
	if !cfg.Trim.Enabled || cfg.Trim.TargetUtilization != 0.7 {
		t.Errorf("trim defaults = %+v", cfg.Trim)
	}
	if cfg.Approval.TimeoutSeconds != 300 {
		t.Errorf("approval timeout = %d", cfg.Approval.TimeoutSeconds)
	}
	if cfg.Subagents.MaxDepth != 5 {
		t.Errorf("subagent depth = %d", cfg.Subagents.MaxDepth)
	}
	if cfg.Bus.Kafka.Enabled {
		t.Error("kafka should be disabled by default")
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"model": {"name": "from-file", "maxTokens": 1234},
		"loop": {"max_repeated_tool_calls": 9, "enabled": true}
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AGENTCORE_CONFIG", path)
	t.Setenv("AGENTCORE_MODEL_MODEL", "from-env")
	t.Setenv("AGENTCORE_LOOP_MAX_TOOL_LOOPS", "42")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Name != "from-env" {
		t.Errorf("env should beat file: %q", cfg.Model.Name)
	}
	if cfg.Model.MaxTokens != 1234 {
		t.Errorf("file should beat defaults: %d", cfg.Model.MaxTokens)
	}
	if cfg.Loop.MaxRepeatedToolCalls != 9 || cfg.Loop.MaxToolLoops != 42 {
		t.Errorf("loop config = %+v", cfg.Loop)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("AGENTCORE_CONFIG", filepath.Join(t.TempDir(), "absent.json"))
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Provider != "anthropic" {
		t.Errorf("defaults not applied: %+v", cfg.Model)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("AGENTCORE_CONFIG", path)

	cfg := DefaultConfig()
	cfg.Model.Name = "saved-model"
	cfg.Paths.Workspace = "/tmp/project"
	if err := Save(cfg); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Model.Name != "saved-model" || loaded.Paths.Workspace != "/tmp/project" {
		t.Errorf("round trip = %+v", loaded.Model)
	}
}

func TestProviderFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Anthropic.APIKey = "a"
	cfg.Providers.OpenAI.APIKey = "o"
	cfg.Providers.OpenRouter.APIKey = "r"

	if got := cfg.ProviderFor("openai").APIKey; got != "o" {
		t.Errorf("openai key = %q", got)
	}
	if got := cfg.ProviderFor("openrouter").APIKey; got != "r" {
		t.Errorf("openrouter key = %q", got)
	}
	if got := cfg.ProviderFor("anthropic").APIKey; got != "a" {
		t.Errorf("anthropic key = %q", got)
	}
	if got := cfg.ProviderFor("unknown").APIKey; got != "a" {
		t.Errorf("fallback key = %q", got)
	}
}
