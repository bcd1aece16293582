package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	"logguard/internal/types"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfig = "LOGGUARD_CONFIG"
	EnvDB     = "LOGGUARD_DB"
	EnvUser   = "LOGGUARD_USER"

	DefaultPath = "logguard.yml"

	defaultInterval = 10 * time.Millisecond
)

// LoadConfig reads the configuration from the given path
func LoadConfig(path string) (*types.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var cfg types.Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a config with every default applied, for runs without a config file.
// Detection window and threshold stay unset.
func Default() *types.Config {
	var cfg types.Config
	applyEnv(&cfg)
	// defaults alone always validate
	_ = validateConfig(&cfg)
	return &cfg
}

// ResolvePath picks the config path: explicit flag, then LOGGUARD_CONFIG, then the default.
// The boolean reports whether the path was chosen explicitly.
func ResolvePath(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env, true
	}
	return DefaultPath, false
}

func applyEnv(cfg *types.Config) {
	if db := os.Getenv(EnvDB); db != "" {
		cfg.Database.Path = db
	}
}

// validateConfig applies defaults and hard rules
func validateConfig(cfg *types.Config) error {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "logguard.db"
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = 5 * time.Second
	}
	if cfg.Database.BusyTimeout < 0 {
		return fmt.Errorf("database.busy_timeout must not be negative")
	}

	if cfg.Generator.Interval == nil {
		d := defaultInterval
		cfg.Generator.Interval = &d
	}
	if *cfg.Generator.Interval < 0 {
		return fmt.Errorf("generator.interval must not be negative")
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("unknown logging.format %q", cfg.Logging.Format)
	}

	switch cfg.Explain.Mode {
	case "":
		cfg.Explain.Mode = "template"
	case "template", "llm":
	default:
		return fmt.Errorf("unknown explain.mode %q", cfg.Explain.Mode)
	}
	if cfg.Explain.URL == "" {
		cfg.Explain.URL = "http://localhost:11434/api/generate"
	}
	if cfg.Explain.Model == "" {
		cfg.Explain.Model = "tinyllama"
	}
	if cfg.Explain.Timeout == 0 {
		cfg.Explain.Timeout = 10 * time.Second
	}

	if cfg.Dashboard.Addr == "" {
		cfg.Dashboard.Addr = "127.0.0.1:8080"
	}

	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "."
	}
	if cfg.Export.Delimiter == "" {
		cfg.Export.Delimiter = ","
	}
	if len([]rune(cfg.Export.Delimiter)) != 1 {
		return fmt.Errorf("export.delimiter must be a single character")
	}

	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = 90
	}
	if cfg.Retention.Days < 0 {
		return fmt.Errorf("retention.days must not be negative")
	}

	for _, ip := range cfg.Detection.Allowlist {
		if _, err := netip.ParseAddr(ip); err != nil {
			return fmt.Errorf("detection.allowlist: invalid IP %q", ip)
		}
	}
	for i, r := range cfg.Detection.Rules {
		if strings.TrimSpace(r.AttackType) == "" {
			return fmt.Errorf("detection.rules[%d]: attack_type is required", i)
		}
		if r.Window < 0 || r.Threshold < 0 {
			return fmt.Errorf("detection.rules[%d]: window and threshold must not be negative", i)
		}
	}
	return nil
}

// ValidateDetection enforces an explicit window and threshold. There are no defaults:
// a detector without them cannot say what it counts.
func ValidateDetection(d types.DetectionConfig) error {
	if d.Window <= 0 {
		return fmt.Errorf("detection.window must be set to a positive duration")
	}
	if d.Threshold <= 0 {
		return fmt.Errorf("detection.threshold must be set to a positive count")
	}
	return nil
}
