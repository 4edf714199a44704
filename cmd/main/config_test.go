package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfigCreatesDefaults(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if cfg.Server.ApiAddr != DefaultServerConfig().ApiAddr {
				t.Errorf("expected default api addr, got %q", cfg.Server.ApiAddr)
			}

			if _, err = os.Stat(path); err != nil {
				t.Fatalf("expected default config file to be written: %v", err)
			}

			// Reading the written file back must give the same values.
			again, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("second LoadConfig failed: %v", err)
			}
			if again.Server.ApiAddr != cfg.Server.ApiAddr || again.Server.DatabasePath != cfg.Server.DatabasePath {
				t.Errorf("reloaded server config differs: %+v vs %+v", again.Server, cfg.Server)
			}
			if *again.Model != *cfg.Model {
				t.Errorf("reloaded model config differs: %+v vs %+v", again.Model, cfg.Model)
			}
		})
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	testCases := []struct {
		name    string
		file    string
		content string
	}{
		{"JSON", "config.json", `{"model_config": {"default_order": 3}}`},
		{"YAML", "config.yml", "model_config:\n  default_order: 3\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.file)
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if cfg.Model.DefaultOrder != 3 {
				t.Errorf("expected default_order 3, got %d", cfg.Model.DefaultOrder)
			}
			if cfg.Server == nil || cfg.Server.DatabasePath != DefaultServerConfig().DatabasePath {
				t.Errorf("expected missing server section to keep defaults, got %+v", cfg.Server)
			}
		})
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected an error for a malformed config file")
	}
}

func TestConfigManagerUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cm, err := NewConfigManager(path)
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}
	cm.SetLogger(discardLogger())

	cfg := cm.Get()
	cfg.Model.DefaultOrder = 0
	if err = cm.Update(cfg); err == nil {
		t.Error("expected an update with a zero default order to be rejected")
	}
	if got := cm.Get().Model.DefaultOrder; got != DefaultModelConfig().DefaultOrder {
		t.Errorf("rejected update leaked into the live config: order %d", got)
	}

	cfg = cm.Get()
	cfg.Model.DefaultOrder = 4
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.1", "bogus"}
	if err = cm.Update(cfg); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "default_order: 4") {
		t.Errorf("expected YAML config on disk to contain the new order, got:\n%s", data)
	}

	// Get must hand out copies.
	snapshot := cm.Get()
	snapshot.Model.DefaultOrder = 99
	if cm.Get().Model.DefaultOrder != 4 {
		t.Error("modifying a Get() copy changed the live config")
	}

	trustedCases := map[string]bool{
		"10.1.2.3":    true,
		"192.168.1.1": true,
		"192.168.1.2": false,
		"not-an-ip":   false,
	}
	for ip, want := range trustedCases {
		if got := cm.IsTrusted(ip); got != want {
			t.Errorf("IsTrusted(%q) = %v, want %v", ip, got, want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for in, want := range testCases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
