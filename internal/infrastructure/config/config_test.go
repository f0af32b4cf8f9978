package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, "site:\n  id: lot-42\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Site.ID != "lot-42" {
		t.Errorf("Site.ID = %q, want lot-42", cfg.Site.ID)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
	if cfg.LPR.MinConfidence != 0.7 {
		t.Errorf("LPR.MinConfidence = %v, want default 0.7", cfg.LPR.MinConfidence)
	}
	if cfg.Hardware.PollInterval != 30 {
		t.Errorf("Hardware.PollInterval = %d, want default 30", cfg.Hardware.PollInterval)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
site:
  id: lot-1
hardware:
  poll_interval: 10
lpr:
  poll_interval: 500
  min_confidence: 0.85
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := cfg.HardwarePollInterval(); got != 10*time.Second {
		t.Errorf("HardwarePollInterval() = %v, want 10s", got)
	}
	if got := cfg.LPRPollInterval(); got != 500*time.Millisecond {
		t.Errorf("LPRPollInterval() = %v, want 500ms", got)
	}
	if cfg.LPR.MinConfidence != 0.85 {
		t.Errorf("MinConfidence = %v, want 0.85", cfg.LPR.MinConfidence)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "site:\n  id: lot-1\ndatabase:\n  path: ./from-file.db\n")

	t.Setenv("GATEWISE_DATABASE_PATH", "/from/env.db")
	t.Setenv("GATEWISE_MQTT_HOST", "broker.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.Path != "/from/env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.example" {
		t.Errorf("MQTT host = %q, want broker.example", cfg.MQTT.Broker.Host)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() with missing file should return an error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty site id", func(c *Config) { c.Site.ID = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"port too low", func(c *Config) { c.API.Port = 0 }},
		{"port too high", func(c *Config) { c.API.Port = 70000 }},
		{"qos out of range", func(c *Config) { c.MQTT.QoS = 3 }},
		{"confidence above one", func(c *Config) { c.LPR.MinConfidence = 1.5 }},
		{"zero poll interval", func(c *Config) { c.Hardware.PollInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() accepted invalid config (%s)", tt.name)
			}
		})
	}
}
