package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
matrix:
  homeserver: https://matrix.example.org
  username: quizbot
moodle:
  url: https://moodle.example.org
quiz:
  ttl: 5m
  catalog:
    - id: quiz_math_1
      title: Basic Math Chapter 1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MOODLE_API_TOKEN", "secret-token")
	t.Setenv("MATRIX_BOT_PASSWORD", "hunter2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Matrix.Homeserver != "https://matrix.example.org" || cfg.Matrix.Username != "quizbot" {
		t.Fatalf("unexpected matrix config %+v", cfg.Matrix)
	}
	if cfg.Moodle.Token != "secret-token" || cfg.Matrix.Password != "hunter2" {
		t.Fatalf("expected env overrides applied")
	}
	if len(cfg.Quiz.Catalog) != 1 || cfg.Quiz.Catalog[0].ID != "quiz_math_1" {
		t.Fatalf("unexpected catalog %+v", cfg.Quiz.Catalog)
	}
}

func TestLoadMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("MATRIX_HOMESERVER", "https://matrix.example.org")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Matrix.Homeserver != "https://matrix.example.org" {
		t.Fatalf("expected env config, got %+v", cfg.Matrix)
	}
}

func TestTTLDuration(t *testing.T) {
	if d := TTLDuration("", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback, got %v", d)
	}
	if d := TTLDuration("30s", time.Minute); d != 30*time.Second {
		t.Fatalf("expected 30s, got %v", d)
	}
	if d := TTLDuration("bogus", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback on parse error, got %v", d)
	}
}
