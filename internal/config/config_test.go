package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Orchestrator.MaxFixAttempts != 2 {
		t.Fatalf("max_fix_attempts default = %d", cfg.Orchestrator.MaxFixAttempts)
	}
	if cfg.Runner.ExecutionMode != "external-process" {
		t.Fatalf("execution_mode default = %s", cfg.Runner.ExecutionMode)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ason.toml")
	data := `
[llm]
model = "test-model"

[orchestrator]
max_fix_attempts = 5
skip_explainer = true
forbidden_script_keywords = ["BAD", "WORSE"]

[runner]
execution_mode = "container"
container_image = "python:3.13-slim"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.LLM.Model != "test-model" {
		t.Fatalf("model = %s", cfg.LLM.Model)
	}
	if cfg.Orchestrator.MaxFixAttempts != 5 || !cfg.Orchestrator.SkipExplainer {
		t.Fatalf("orchestrator section not applied: %+v", cfg.Orchestrator)
	}
	if len(cfg.Orchestrator.ForbiddenKeywords) != 2 {
		t.Fatalf("keywords = %v", cfg.Orchestrator.ForbiddenKeywords)
	}
	if cfg.Runner.ExecutionMode != "container" || cfg.Runner.ContainerImage != "python:3.13-slim" {
		t.Fatalf("runner section not applied: %+v", cfg.Runner)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ason.toml")
	if err := os.WriteFile(path, []byte("[runner]\nexecution_mode = \"container\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ASON_EXECUTION_MODE", "in-process")
	t.Setenv("ASON_MAX_FIX_ATTEMPTS", "7")
	t.Setenv("ASON_SKIP_RECEPTION", "true")
	t.Setenv("ASON_FORBIDDEN_SCRIPT_KEYWORDS", "a, b ,c")

	cfg := Load(path)
	if cfg.Runner.ExecutionMode != "in-process" {
		t.Fatalf("env did not win: %s", cfg.Runner.ExecutionMode)
	}
	if cfg.Orchestrator.MaxFixAttempts != 7 || !cfg.Orchestrator.SkipReception {
		t.Fatalf("env overrides not applied: %+v", cfg.Orchestrator)
	}
	if len(cfg.Orchestrator.ForbiddenKeywords) != 3 {
		t.Fatalf("keyword list = %v", cfg.Orchestrator.ForbiddenKeywords)
	}
}
