// Package config loads the CLI host configuration: defaults, then an
// optional TOML file, then ASON_* environment overrides (env wins).
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM          LLMConfig          `toml:"llm"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Runner       RunnerConfig       `toml:"runner"`
	Store        StoreConfig        `toml:"store"`
	Observer     ObserverConfig     `toml:"observer"`
}

type LLMConfig struct {
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

type OrchestratorConfig struct {
	MaxFixAttempts        int      `toml:"max_fix_attempts"`
	SkipReception         bool     `toml:"skip_reception"`
	SkipExplainer         bool     `toml:"skip_explainer"`
	ForbiddenKeywords     []string `toml:"forbidden_script_keywords"`
	ReceptionInstructions string   `toml:"reception_instructions"`
	ScriptInstructions    string   `toml:"script_instructions"`
	ExplainerInstructions string   `toml:"explainer_instructions"`
}

type RunnerConfig struct {
	// ExecutionMode is "in-process", "external-process" or "container".
	ExecutionMode  string `toml:"execution_mode"`
	UseRemote      bool   `toml:"use_remote_runner"`
	RemoteBaseURL  string `toml:"remote_runner_base_url"`
	ContainerImage string `toml:"container_image"`
	// ExecutablePath overrides the Python binary for the
	// external-process runner.
	ExecutablePath string `toml:"runner_executable_path"`
}

type StoreConfig struct {
	// Driver is "sqlite", "postgres" or "" (audit disabled).
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM: LLMConfig{Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1"},
		Orchestrator: OrchestratorConfig{
			MaxFixAttempts: 2,
		},
		Runner: RunnerConfig{ExecutionMode: "external-process"},
		Store:  StoreConfig{Path: "ason.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "ason.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("ASON_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("ASON_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ASON_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("ASON_EXECUTION_MODE"); v != "" {
		cfg.Runner.ExecutionMode = v
	}
	if v := os.Getenv("ASON_REMOTE_RUNNER_BASE_URL"); v != "" {
		cfg.Runner.UseRemote = true
		cfg.Runner.RemoteBaseURL = v
	}
	if v := os.Getenv("ASON_CONTAINER_IMAGE"); v != "" {
		cfg.Runner.ContainerImage = v
	}
	if v := os.Getenv("ASON_RUNNER_EXECUTABLE_PATH"); v != "" {
		cfg.Runner.ExecutablePath = v
	}
	if v := os.Getenv("ASON_MAX_FIX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Orchestrator.MaxFixAttempts = n
		}
	}
	if v := os.Getenv("ASON_SKIP_RECEPTION"); v != "" {
		cfg.Orchestrator.SkipReception = parseBool(v)
	}
	if v := os.Getenv("ASON_SKIP_EXPLAINER"); v != "" {
		cfg.Orchestrator.SkipExplainer = parseBool(v)
	}
	if v := os.Getenv("ASON_FORBIDDEN_SCRIPT_KEYWORDS"); v != "" {
		cfg.Orchestrator.ForbiddenKeywords = splitList(v)
	}

	return cfg
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
