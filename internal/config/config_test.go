package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: "9090"
log:
  level: debug
  format: json
engine:
  secondsPerSubject: 900
integrity:
  threshold: 12
  weights:
    tab_switch: 4
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Engine.SecondsPerSubject != 900 || cfg.Integrity.Threshold != 12 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Integrity.Weights["tab_switch"] != 4 {
		t.Fatalf("expected weight override, got %v", cfg.Integrity.Weights)
	}
	if cfg.Engine.Tick != "1s" || cfg.Catalog.QuestionLimit != 40 {
		t.Fatalf("expected defaults kept for absent keys, got %+v", cfg.Engine)
	}

	logger := NewLogger(cfg)
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.SecondsPerSubject != 60 || cfg.Postgres.URL != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("garbage", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback on bad input, got %s", got)
	}
	if got := TTLDuration("30s", time.Minute); got != 30*time.Second {
		t.Fatalf("expected parsed duration, got %s", got)
	}
}
