package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var allEnv = []string{
	"ALLOT_PREFERENCES", "ALLOT_ITEMS", "ALLOT_MODE", "ALLOT_K", "ALLOT_SEED",
	"ALLOT_TOLERANCE", "ALLOT_PORT", "ALLOT_METRICS_PORT", "ALLOT_ADMIN_TOKEN",
	"ALLOT_DATABASE_URL", "ALLOT_HERMES_URL", "ALLOT_METRICS_TEXTFILE",
	"ALLOT_LOG_LEVEL", "ALLOT_LOG_FORMAT", "ALLOT_MAX_BODY_BYTES", "ALLOT_MAX_AGENTS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allEnv {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Input.Preferences != "prefs.csv" {
		t.Errorf("expected prefs.csv, got %s", cfg.Input.Preferences)
	}
	if cfg.Input.Items != "goods.txt" {
		t.Errorf("expected goods.txt, got %s", cfg.Input.Items)
	}
	if cfg.Selection.Mode != ModeTopK {
		t.Errorf("expected mode top_k, got %s", cfg.Selection.Mode)
	}
	if cfg.Selection.K != 5 {
		t.Errorf("expected k 5, got %d", cfg.Selection.K)
	}
	if cfg.Selection.Seed != 0 {
		t.Errorf("expected seed 0, got %d", cfg.Selection.Seed)
	}
	if cfg.Decomposition.Tolerance != 1e-6 {
		t.Errorf("expected tolerance 1e-6, got %g", cfg.Decomposition.Tolerance)
	}
	if cfg.Server.Port != 8700 {
		t.Errorf("expected port 8700, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 8701 {
		t.Errorf("expected metrics port 8701, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Server.MaxBodyBytes != 1<<20 || cfg.Server.MaxAgents != 200 {
		t.Errorf("unexpected request limits %d/%d", cfg.Server.MaxBodyBytes, cfg.Server.MaxAgents)
	}
	if cfg.Database.URL != "" || cfg.Hermes.URL != "" {
		t.Error("expected database and hermes to be off by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected log format 'text', got '%s'", cfg.Logging.Format)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "allot.yaml")
	body := `
input:
  preferences: /data/reviewers.csv
  items: /data/papers.txt
selection:
  mode: sample
  seed: 42
decomposition:
  tolerance: 0.0001
logging:
  format: json
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Input.Preferences != "/data/reviewers.csv" {
		t.Errorf("expected preferences path from file, got %s", cfg.Input.Preferences)
	}
	if cfg.Selection.Mode != ModeSample || cfg.Selection.Seed != 42 {
		t.Errorf("expected sample mode with seed 42, got %s/%d", cfg.Selection.Mode, cfg.Selection.Seed)
	}
	if cfg.Selection.K != 5 {
		t.Errorf("expected unset k to keep default 5, got %d", cfg.Selection.K)
	}
	if cfg.Decomposition.Tolerance != 0.0001 {
		t.Errorf("expected tolerance 0.0001, got %g", cfg.Decomposition.Tolerance)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json format, got %s", cfg.Logging.Format)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALLOT_PREFERENCES", "p.csv")
	t.Setenv("ALLOT_ITEMS", "i.txt")
	t.Setenv("ALLOT_MODE", "sample")
	t.Setenv("ALLOT_K", "3")
	t.Setenv("ALLOT_SEED", "7")
	t.Setenv("ALLOT_PORT", "9000")
	t.Setenv("ALLOT_DATABASE_URL", "postgres://localhost/allot_test")
	t.Setenv("ALLOT_HERMES_URL", "nats://nats:4222")
	t.Setenv("ALLOT_METRICS_TEXTFILE", "/var/lib/node_exporter/allot.prom")
	t.Setenv("ALLOT_LOG_LEVEL", "debug")
	t.Setenv("ALLOT_MAX_BODY_BYTES", "4096")
	t.Setenv("ALLOT_MAX_AGENTS", "12")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Input.Preferences != "p.csv" || cfg.Input.Items != "i.txt" {
		t.Errorf("expected input paths from env, got %+v", cfg.Input)
	}
	if cfg.Selection.Mode != ModeSample || cfg.Selection.K != 3 || cfg.Selection.Seed != 7 {
		t.Errorf("unexpected selection %+v", cfg.Selection)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/allot_test" {
		t.Errorf("expected database URL, got '%s'", cfg.Database.URL)
	}
	if cfg.Hermes.URL != "nats://nats:4222" {
		t.Errorf("expected hermes URL, got '%s'", cfg.Hermes.URL)
	}
	if cfg.Metrics.Textfile != "/var/lib/node_exporter/allot.prom" {
		t.Errorf("expected textfile path, got '%s'", cfg.Metrics.Textfile)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.Logging.Level)
	}
	if cfg.Server.MaxBodyBytes != 4096 || cfg.Server.MaxAgents != 12 {
		t.Errorf("expected request limits from env, got %d/%d", cfg.Server.MaxBodyBytes, cfg.Server.MaxAgents)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Selection.Mode = "best" }},
		{"negative k", func(c *Config) { c.Selection.K = -1 }},
		{"zero tolerance", func(c *Config) { c.Decomposition.Tolerance = 0 }},
		{"huge tolerance", func(c *Config) { c.Decomposition.Tolerance = 1 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero body limit", func(c *Config) { c.Server.MaxBodyBytes = 0 }},
		{"zero agent limit", func(c *Config) { c.Server.MaxAgents = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "run_id", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"run_id":"abc"`) {
		t.Errorf("expected JSON output with run_id, got %s", out)
	}
}
