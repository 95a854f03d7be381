package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Shell.Command != "" || cfg.LLM.Default != "" {
		t.Errorf("expected zero-value config, got %+v", cfg)
	}
}

func TestLoadParsesFullSchema(t *testing.T) {
	toml := `
[shell]
command = "/bin/zsh"
command_prefix = ";"

[daemon]
socket_path = "/tmp/omnish-test.sock"

[llm]
default = "claude"

[llm.backends.claude]
backend_type = "anthropic"
model = "claude-3-5-haiku-latest"
api_key_cmd = "echo test-key"

[llm.backends.local]
backend_type = "openai-compat"
model = "llama3"
base_url = "http://localhost:11434/v1"

[llm.auto_trigger]
on_nonzero_exit = true
on_stderr_patterns = ["panic:", "Traceback"]
cooldown_seconds = 30
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Shell.Command != "/bin/zsh" || cfg.Shell.CommandPrefix != ";" {
		t.Errorf("shell = %+v", cfg.Shell)
	}
	if cfg.Daemon.SocketPath != "/tmp/omnish-test.sock" {
		t.Errorf("daemon = %+v", cfg.Daemon)
	}
	if cfg.LLM.Default != "claude" {
		t.Errorf("llm.default = %q", cfg.LLM.Default)
	}
	claude, ok := cfg.LLM.Backends["claude"]
	if !ok || claude.BackendType != "anthropic" || claude.APIKeyCmd != "echo test-key" {
		t.Errorf("backends[claude] = %+v (ok=%v)", claude, ok)
	}
	local, ok := cfg.LLM.Backends["local"]
	if !ok || local.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("backends[local] = %+v (ok=%v)", local, ok)
	}
	if !cfg.LLM.AutoTrigger.OnNonzeroExit || cfg.LLM.AutoTrigger.CooldownSeconds != 30 {
		t.Errorf("auto_trigger = %+v", cfg.LLM.AutoTrigger)
	}
	if len(cfg.LLM.AutoTrigger.OnStderrPatterns) != 2 {
		t.Errorf("on_stderr_patterns = %v", cfg.LLM.AutoTrigger.OnStderrPatterns)
	}
}

func TestApplyDefaultsFillsShellFromEnv(t *testing.T) {
	t.Setenv("SHELL", "/bin/fish")
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("OMNISH_SOCKET", "")

	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Shell.Command != "/bin/fish" {
		t.Errorf("Shell.Command = %q, want /bin/fish", cfg.Shell.Command)
	}
	if cfg.Shell.CommandPrefix != ":" {
		t.Errorf("Shell.CommandPrefix = %q, want \":\"", cfg.Shell.CommandPrefix)
	}
	if cfg.Daemon.SocketPath == "" {
		t.Error("expected Daemon.SocketPath to be defaulted")
	}
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{Shell: ShellConfig{Command: "/bin/bash", CommandPrefix: "!"}}
	cfg.ApplyDefaults()
	if cfg.Shell.Command != "/bin/bash" || cfg.Shell.CommandPrefix != "!" {
		t.Errorf("explicit values overwritten: %+v", cfg.Shell)
	}
}

func TestResolveBackendRunsAPIKeyCmd(t *testing.T) {
	cfg := &Config{
		LLM: LLMConfig{
			Default: "dummy",
			Backends: map[string]BackendConfig{
				"dummy": {BackendType: "anthropic", Model: "m", APIKeyCmd: "echo sekret"},
			},
		},
	}
	backend, key, err := cfg.ResolveBackend()
	if err != nil {
		t.Fatalf("ResolveBackend: %v", err)
	}
	if backend.Model != "m" {
		t.Errorf("backend = %+v", backend)
	}
	if key != "sekret" {
		t.Errorf("key = %q, want sekret", key)
	}
}

func TestResolveBackendNoDefaultErrors(t *testing.T) {
	cfg := &Config{}
	if _, _, err := cfg.ResolveBackend(); err == nil {
		t.Fatal("expected error when no default backend configured")
	}
}

func TestResolveBackendUnknownNameErrors(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Default: "missing"}}
	if _, _, err := cfg.ResolveBackend(); err == nil {
		t.Fatal("expected error for unconfigured backend name")
	}
}
