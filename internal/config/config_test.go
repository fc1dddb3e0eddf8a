package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Dictation.MaxChars != 4000 {
		t.Fatalf("expected default max chars 4000, got %d", cfg.Dictation.MaxChars)
	}
	if cfg.Dictation.TrailingPunct != ".,!?;:" {
		t.Fatalf("unexpected default punctuation set %q", cfg.Dictation.TrailingPunct)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voxscribe.yaml")
	content := `
runtime_name: scribe-test
dictation:
  max_chars: 120
  fold_case: true
  trailing_punct: ".,"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "scribe-test" {
		t.Fatalf("expected runtime name override, got %q", cfg.RuntimeName)
	}
	if cfg.Dictation.MaxChars != 120 || !cfg.Dictation.FoldCase {
		t.Fatalf("expected dictation overrides, got %+v", cfg.Dictation)
	}
	if cfg.Dictation.TrailingPunct != ".," {
		t.Fatalf("expected punctuation override, got %q", cfg.Dictation.TrailingPunct)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("expected untouched defaults, got port %d", cfg.HTTP.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXSCRIBE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOXSCRIBE_BUS_USERNAME", "alice")
	t.Setenv("VOXSCRIBE_BUS_PASSWORD", "secret")
	t.Setenv("VOXSCRIBE_BUS_TLS_INSECURE", "true")
	t.Setenv("VOXSCRIBE_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("VOXSCRIBE_DICTATION_MAX_CHARS", "256")
	t.Setenv("VOXSCRIBE_DICTATION_FOLD_CASE", "true")
	t.Setenv("VOXSCRIBE_DICTATION_IDLE_TIMEOUT_MS", "60000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Dictation.MaxChars != 256 {
		t.Fatalf("expected max chars override, got %d", cfg.Dictation.MaxChars)
	}
	if !cfg.Dictation.FoldCase {
		t.Fatal("expected fold case override true")
	}
	if cfg.Dictation.IdleTimeoutMS != 60000 {
		t.Fatalf("expected idle timeout override, got %d", cfg.Dictation.IdleTimeoutMS)
	}
}

func TestValidateRejectsNonPositiveBudget(t *testing.T) {
	t.Setenv("VOXSCRIBE_DICTATION_MAX_CHARS", "0")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "max_chars") {
		t.Fatalf("expected max_chars validation error, got %v", err)
	}
}
