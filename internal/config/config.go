package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/stellarlinkco/pharm/internal/apperr"
)

const (
	DefaultDataFileName   = ".pharm.json"
	DefaultPollInterval   = "60s"
	DefaultOverdueAfter   = "2h"
	DefaultStatusHost     = "127.0.0.1"
	DefaultStatusPort     = 18791
	DefaultQueueSize      = 32
	DefaultBreakerFails   = 3
	DefaultBreakerTimeout = "5m"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
)

type Config struct {
	DataFile string       `json:"dataFile"`
	Daemon   DaemonConfig `json:"daemon"`
	Notify   NotifyConfig `json:"notify"`
	Log      LogConfig    `json:"log"`
}

type DaemonConfig struct {
	PollInterval string       `json:"pollInterval"`
	OverdueAfter string       `json:"overdueAfter"`
	Status       StatusConfig `json:"status"`
}

// StatusConfig controls the daemon's local HTTP status endpoint.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type NotifyConfig struct {
	QueueSize int            `json:"queueSize"`
	Desktop   DesktopConfig  `json:"desktop"`
	Telegram  TelegramConfig `json:"telegram"`
	Breaker   BreakerConfig  `json:"breaker"`
}

type DesktopConfig struct {
	Enabled bool   `json:"enabled"`
	AppIcon string `json:"appIcon,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chatId"`
	Proxy   string `json:"proxy,omitempty"`
}

// BreakerConfig applies to remote sinks.
type BreakerConfig struct {
	MaxFailures uint32 `json:"maxFailures"`
	OpenTimeout string `json:"openTimeout"`
}

type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // console or json
}

func DefaultConfig() *Config {
	return &Config{
		DataFile: DefaultDataFile(),
		Daemon: DaemonConfig{
			PollInterval: DefaultPollInterval,
			OverdueAfter: DefaultOverdueAfter,
			Status: StatusConfig{
				Host: DefaultStatusHost,
				Port: DefaultStatusPort,
			},
		},
		Notify: NotifyConfig{
			QueueSize: DefaultQueueSize,
			Desktop:   DesktopConfig{Enabled: true},
			Breaker: BreakerConfig{
				MaxFailures: DefaultBreakerFails,
				OpenTimeout: DefaultBreakerTimeout,
			},
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// DefaultDataFile is the medication document location used by earlier
// releases, kept so existing data is picked up.
func DefaultDataFile() string {
	return filepath.Join(homeDir(), DefaultDataFileName)
}

func ConfigDir() string {
	return filepath.Join(homeDir(), ".pharm")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if path := os.Getenv("PHARM_DATA_FILE"); path != "" {
		cfg.DataFile = path
	}
	if level := os.Getenv("PHARM_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv("PHARM_LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
	if interval := os.Getenv("PHARM_POLL_INTERVAL"); interval != "" {
		cfg.Daemon.PollInterval = interval
	}
	if token := os.Getenv("PHARM_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.Telegram.Token = token
	}
	if chatID := os.Getenv("PHARM_TELEGRAM_CHAT_ID"); chatID != "" {
		if parsed, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.Notify.Telegram.ChatID = parsed
		}
	}
	if enabled := os.Getenv("PHARM_DESKTOP_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Notify.Desktop.Enabled = parsed
		}
	}
	if enabled := os.Getenv("PHARM_STATUS_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Daemon.Status.Enabled = parsed
		}
	}

	if cfg.DataFile == "" {
		cfg.DataFile = DefaultDataFile()
	}
	cfg.DataFile = expandHome(cfg.DataFile)
	if cfg.Daemon.PollInterval == "" {
		cfg.Daemon.PollInterval = DefaultPollInterval
	}
	if cfg.Daemon.OverdueAfter == "" {
		cfg.Daemon.OverdueAfter = DefaultOverdueAfter
	}
	if cfg.Daemon.Status.Host == "" {
		cfg.Daemon.Status.Host = DefaultStatusHost
	}
	if cfg.Daemon.Status.Port == 0 {
		cfg.Daemon.Status.Port = DefaultStatusPort
	}
	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = DefaultQueueSize
	}
	if cfg.Notify.Breaker.MaxFailures == 0 {
		cfg.Notify.Breaker.MaxFailures = DefaultBreakerFails
	}
	if cfg.Notify.Breaker.OpenTimeout == "" {
		cfg.Notify.Breaker.OpenTimeout = DefaultBreakerTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	return cfg, nil
}

func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// the file may carry a bot token
	return os.WriteFile(ConfigPath(), data, 0600)
}

// Validate checks values that LoadConfig cannot default.
func (c *Config) Validate() error {
	if _, err := c.Daemon.PollEvery(); err != nil {
		return err
	}
	if _, err := c.Daemon.OverdueThreshold(); err != nil {
		return err
	}
	if _, err := c.Notify.Breaker.Timeout(); err != nil {
		return err
	}
	if c.Daemon.Status.Port < 0 || c.Daemon.Status.Port > 65535 {
		return apperr.Validation("config", "daemon.status.port %d out of range", c.Daemon.Status.Port)
	}
	if c.Notify.Telegram.Enabled && (c.Notify.Telegram.Token == "" || c.Notify.Telegram.ChatID == 0) {
		return apperr.Validation("config", "notify.telegram requires token and chatId when enabled")
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return apperr.Validation("config", "log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, apperr.Validation("config", "%s: invalid duration %q", field, value)
	}
	if d <= 0 {
		return 0, apperr.Validation("config", "%s must be positive, got %s", field, value)
	}
	return d, nil
}

// PollEvery is the parsed poll interval.
func (d DaemonConfig) PollEvery() (time.Duration, error) {
	return parseDuration("daemon.pollInterval", d.PollInterval)
}

// OverdueThreshold is the parsed delay after which a reminder is critical.
func (d DaemonConfig) OverdueThreshold() (time.Duration, error) {
	return parseDuration("daemon.overdueAfter", d.OverdueAfter)
}

// Addr is the status server listen address.
func (s StatusConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (b BreakerConfig) Timeout() (time.Duration, error) {
	return parseDuration("notify.breaker.openTimeout", b.OpenTimeout)
}
