package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stellarlinkco/pharm/internal/apperr"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PHARM_DATA_FILE", "PHARM_LOG_LEVEL", "PHARM_LOG_FORMAT", "PHARM_POLL_INTERVAL",
		"PHARM_TELEGRAM_TOKEN", "PHARM_TELEGRAM_CHAT_ID", "PHARM_DESKTOP_ENABLED", "PHARM_STATUS_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Daemon.PollInterval != DefaultPollInterval {
		t.Errorf("pollInterval = %q, want %q", cfg.Daemon.PollInterval, DefaultPollInterval)
	}
	if cfg.Daemon.OverdueAfter != DefaultOverdueAfter {
		t.Errorf("overdueAfter = %q, want %q", cfg.Daemon.OverdueAfter, DefaultOverdueAfter)
	}
	if cfg.Daemon.Status.Enabled {
		t.Error("status server should be disabled by default")
	}
	if cfg.Daemon.Status.Host != DefaultStatusHost {
		t.Errorf("host = %q, want %q", cfg.Daemon.Status.Host, DefaultStatusHost)
	}
	if cfg.Daemon.Status.Port != DefaultStatusPort {
		t.Errorf("port = %d, want %d", cfg.Daemon.Status.Port, DefaultStatusPort)
	}
	if !cfg.Notify.Desktop.Enabled {
		t.Error("desktop notifications should be enabled by default")
	}
	if cfg.Notify.Telegram.Enabled {
		t.Error("telegram should be disabled by default")
	}
	if filepath.Base(cfg.DataFile) != DefaultDataFileName {
		t.Errorf("dataFile = %q, want basename %q", cfg.DataFile, DefaultDataFileName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.DataFile != filepath.Join(tmpDir, ".pharm.json") {
		t.Errorf("dataFile = %q", cfg.DataFile)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("log level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	cfgDir := filepath.Join(tmpDir, ".pharm")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"dataFile": "~/meds/pharm.yaml",
		"daemon": map[string]any{
			"pollInterval": "30s",
		},
		"notify": map[string]any{
			"telegram": map[string]any{
				"enabled": true,
				"token":   "bot-token",
				"chatId":  12345,
			},
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.DataFile != filepath.Join(tmpDir, "meds", "pharm.yaml") {
		t.Errorf("dataFile = %q, want expanded home path", cfg.DataFile)
	}
	if d, _ := cfg.Daemon.PollEvery(); d != 30*time.Second {
		t.Errorf("pollInterval = %v, want 30s", d)
	}
	if cfg.Daemon.OverdueAfter != DefaultOverdueAfter {
		t.Errorf("overdueAfter = %q, want default", cfg.Daemon.OverdueAfter)
	}
	if cfg.Notify.Telegram.ChatID != 12345 || cfg.Notify.Telegram.Token != "bot-token" {
		t.Errorf("telegram = %+v", cfg.Notify.Telegram)
	}
	if cfg.Notify.QueueSize != DefaultQueueSize {
		t.Errorf("queueSize = %d, want %d", cfg.Notify.QueueSize, DefaultQueueSize)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	t.Setenv("PHARM_DATA_FILE", "/srv/pharm.json")
	t.Setenv("PHARM_LOG_LEVEL", "debug")
	t.Setenv("PHARM_LOG_FORMAT", "json")
	t.Setenv("PHARM_POLL_INTERVAL", "5s")
	t.Setenv("PHARM_TELEGRAM_TOKEN", "env-token")
	t.Setenv("PHARM_TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("PHARM_DESKTOP_ENABLED", "false")
	t.Setenv("PHARM_STATUS_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.DataFile != "/srv/pharm.json" {
		t.Errorf("dataFile = %q", cfg.DataFile)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Daemon.PollInterval != "5s" {
		t.Errorf("pollInterval = %q", cfg.Daemon.PollInterval)
	}
	if cfg.Notify.Telegram.Token != "env-token" || cfg.Notify.Telegram.ChatID != -1001 {
		t.Errorf("telegram = %+v", cfg.Notify.Telegram)
	}
	if cfg.Notify.Desktop.Enabled {
		t.Error("desktop override not applied")
	}
	if !cfg.Daemon.Status.Enabled {
		t.Error("status override not applied")
	}
}

func TestLoadConfig_InvalidEnvIgnored(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)
	t.Setenv("PHARM_TELEGRAM_CHAT_ID", "not-a-number")
	t.Setenv("PHARM_DESKTOP_ENABLED", "maybe")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Notify.Telegram.ChatID != 0 {
		t.Errorf("chatId = %d, want 0", cfg.Notify.Telegram.ChatID)
	}
	if !cfg.Notify.Desktop.Enabled {
		t.Error("invalid bool should leave default")
	}
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := DefaultConfig()
	cfg.Notify.Telegram.Token = "test-token"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	path := filepath.Join(tmpDir, ".pharm", "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if loaded.Notify.Telegram.Token != "test-token" {
		t.Errorf("saved token = %q, want test-token", loaded.Notify.Telegram.Token)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("mode = %v, want 0600", info.Mode().Perm())
		}
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	cfgDir := filepath.Join(tmpDir, ".pharm")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("invalid json"), 0644)

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad poll interval", func(c *Config) { c.Daemon.PollInterval = "soon" }},
		{"zero poll interval", func(c *Config) { c.Daemon.PollInterval = "0s" }},
		{"negative overdue", func(c *Config) { c.Daemon.OverdueAfter = "-1h" }},
		{"bad breaker timeout", func(c *Config) { c.Notify.Breaker.OpenTimeout = "x" }},
		{"port range", func(c *Config) { c.Daemon.Status.Port = 70000 }},
		{"telegram without token", func(c *Config) { c.Notify.Telegram.Enabled = true }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("error %v is not a validation error", err)
			}
		})
	}
}

func TestStatusAddr(t *testing.T) {
	s := StatusConfig{Host: "127.0.0.1", Port: 9000}
	if s.Addr() != "127.0.0.1:9000" {
		t.Errorf("addr = %q", s.Addr())
	}
}
