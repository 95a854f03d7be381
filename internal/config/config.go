package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the parsed contents of config.toml. Call ApplyDefaults after
// Load to fill in environment-dependent defaults (shell command, socket path).
type Config struct {
	Shell  ShellConfig  `toml:"shell"`
	Daemon DaemonConfig `toml:"daemon"`
	LLM    LLMConfig    `toml:"llm"`
}

type ShellConfig struct {
	Command       string `toml:"command"`
	CommandPrefix string `toml:"command_prefix"`
}

type DaemonConfig struct {
	SocketPath string `toml:"socket_path"`
}

// LLMConfig holds the default backend name and the table of configured
// backends. `[llm.backends.<name>]` decodes into Backends keyed by name;
// `[llm.auto_trigger]` decodes into AutoTrigger.
type LLMConfig struct {
	Default     string                   `toml:"default"`
	Backends    map[string]BackendConfig `toml:"backends"`
	AutoTrigger AutoTriggerConfig        `toml:"auto_trigger"`
}

type BackendConfig struct {
	BackendType string `toml:"backend_type"` // "anthropic" | "openai-compat"
	Model       string `toml:"model"`
	APIKeyCmd   string `toml:"api_key_cmd"` // shell command; stdout is the key
	BaseURL     string `toml:"base_url"`
}

type AutoTriggerConfig struct {
	OnNonzeroExit    bool     `toml:"on_nonzero_exit"`
	OnStderrPatterns []string `toml:"on_stderr_patterns"`
	CooldownSeconds  uint64   `toml:"cooldown_seconds"`
}

// Load reads and parses the TOML config file at path. A missing file is not
// an error: Load returns a zero-value Config so the caller can proceed with
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills in fields left empty by the config file from the
// environment and the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Shell.Command == "" {
		c.Shell.Command = os.Getenv("SHELL")
		if c.Shell.Command == "" {
			c.Shell.Command = "/bin/sh"
		}
	}
	if c.Shell.CommandPrefix == "" {
		c.Shell.CommandPrefix = ":"
	}
	if c.Daemon.SocketPath == "" {
		c.Daemon.SocketPath = DefaultSocketPath()
	}
}

// ResolveBackend looks up the backend named by LLM.Default and resolves its
// API key by running APIKeyCmd through the shell.
func (c *Config) ResolveBackend() (BackendConfig, string, error) {
	if c.LLM.Default == "" {
		return BackendConfig{}, "", errNoDefaultBackend
	}
	backend, ok := c.LLM.Backends[c.LLM.Default]
	if !ok {
		return BackendConfig{}, "", fmt.Errorf("llm: backend %q not configured", c.LLM.Default)
	}
	key, err := resolveAPIKey(backend.APIKeyCmd)
	if err != nil {
		return BackendConfig{}, "", err
	}
	return backend, key, nil
}

// resolveAPIKey runs cmd through the shell and returns its trimmed stdout.
// An empty cmd yields an empty key, for offline/dummy backends.
func resolveAPIKey(cmd string) (string, error) {
	if cmd == "" {
		return "", nil
	}
	out, err := exec.Command("sh", "-c", cmd).Output()
	if err != nil {
		return "", fmt.Errorf("api_key_cmd %q: %w", cmd, err)
	}
	return strings.TrimSpace(string(out)), nil
}

type configError string

func (e configError) Error() string { return string(e) }

const errNoDefaultBackend = configError("llm: no default backend configured")
