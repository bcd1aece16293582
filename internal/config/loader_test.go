package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"logguard/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logguard.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(EnvDB, "")
	path := writeConfig(t, `
detection:
  window: 5m
  threshold: 10
  allowlist: ["127.0.0.1"]
  rules:
    - attack_type: DDoS
      window: 1m
      threshold: 100
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Detection.Window != 5*time.Minute {
		t.Errorf("Expected window 5m, got %v", cfg.Detection.Window)
	}
	if cfg.Detection.Threshold != 10 {
		t.Errorf("Expected threshold 10, got %d", cfg.Detection.Threshold)
	}
	if len(cfg.Detection.Rules) != 1 || cfg.Detection.Rules[0].Window != time.Minute {
		t.Errorf("Expected one DDoS rule with 1m window, got %+v", cfg.Detection.Rules)
	}
	if cfg.Database.Path != "logguard.db" {
		t.Errorf("Expected default db path, got %s", cfg.Database.Path)
	}
	if cfg.Generator.Interval == nil || *cfg.Generator.Interval != 10*time.Millisecond {
		t.Errorf("Expected default interval 10ms, got %v", cfg.Generator.Interval)
	}
	if cfg.Export.Delimiter != "," {
		t.Errorf("Expected default delimiter, got %q", cfg.Export.Delimiter)
	}
	if err := ValidateDetection(cfg.Detection); err != nil {
		t.Errorf("Expected detection config to validate, got %v", err)
	}
}

func TestLoadConfigZeroIntervalKept(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "generator:\n  interval: 0s\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generator.Interval == nil || *cfg.Generator.Interval != 0 {
		t.Errorf("Expected explicit 0s interval to be kept, got %v", cfg.Generator.Interval)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv(EnvDB, "/tmp/other.db")
	path := writeConfig(t, "database:\n  path: mine.db\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Database.Path != "/tmp/other.db" {
		t.Errorf("Expected LOGGUARD_DB to win, got %s", cfg.Database.Path)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown field":  "detection:\n  windw: 5m\n",
		"bad allowlist":  "detection:\n  allowlist: [\"not-an-ip\"]\n",
		"bad format":     "logging:\n  format: xml\n",
		"bad delimiter":  "export:\n  delimiter: \"::\"\n",
		"rule no target": "detection:\n  rules:\n    - threshold: 3\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, body)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestValidateDetectionRequiresWindowAndThreshold(t *testing.T) {
	if err := ValidateDetection(types.DetectionConfig{Threshold: 10}); err == nil {
		t.Error("Expected error for missing window")
	}
	if err := ValidateDetection(types.DetectionConfig{Window: time.Minute}); err == nil {
		t.Error("Expected error for missing threshold")
	}
	if err := ValidateDetection(types.DetectionConfig{Window: time.Minute, Threshold: -1}); err == nil {
		t.Error("Expected error for negative threshold")
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfig, "")
	if p, explicit := ResolvePath(""); p != DefaultPath || explicit {
		t.Errorf("Expected default path, got %s (explicit=%v)", p, explicit)
	}
	t.Setenv(EnvConfig, "/etc/logguard.yml")
	if p, explicit := ResolvePath(""); p != "/etc/logguard.yml" || !explicit {
		t.Errorf("Expected env path, got %s", p)
	}
	if p, _ := ResolvePath("x.yml"); p != "x.yml" {
		t.Errorf("Expected flag path, got %s", p)
	}
}
