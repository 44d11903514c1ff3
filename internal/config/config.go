package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// FileName is the TOML config file for the bridge
const FileName = "config.toml"

// Config represents the bridge configuration in TOML format
type Config struct {
	// Telegram defines the chat transport settings
	Telegram TelegramSettings `toml:"telegram"`

	// Claude defines how the assistant executable is located and run
	Claude ClaudeSettings `toml:"claude"`

	// Bridge defines state file locations and dispatch concurrency
	Bridge BridgeSettings `toml:"bridge"`

	// Hooks defines the embedded lifecycle hook server
	Hooks HookSettings `toml:"hooks"`

	// Logs defines log output settings
	Logs LogSettings `toml:"logs"`

	// path is the file this config was loaded from (empty when defaults only)
	path string
}

// TelegramSettings defines Telegram bot configuration
type TelegramSettings struct {
	// Token is the Telegram bot token from @BotFather
	Token string `toml:"token"`

	// ChatID is the single authorized chat. Accepts a TOML string or integer.
	ChatID ChatID `toml:"chat_id"`

	// PollTimeoutSeconds is the getUpdates long-poll timeout (default: 30)
	PollTimeoutSeconds int `toml:"poll_timeout_seconds"`

	// APIEndpoint overrides the Bot API endpoint format (for self-hosted API servers)
	APIEndpoint string `toml:"api_endpoint"`

	// SendRatePerSecond caps outbound send/edit calls (default: 1)
	SendRatePerSecond float64 `toml:"send_rate_per_second"`
}

// ClaudeSettings defines Claude Code invocation settings
type ClaudeSettings struct {
	// Path is an explicit path to the claude executable.
	// Empty = search common install locations and PATH.
	Path string `toml:"path"`

	// ConfigDir is the path to Claude's config directory
	// Default: ~/.claude (or CLAUDE_CONFIG_DIR env var)
	ConfigDir string `toml:"config_dir"`

	// TimeoutSeconds bounds a single resume invocation (default: 300)
	TimeoutSeconds int `toml:"timeout_seconds"`

	// ExtraPath is prepended to PATH for the child process
	ExtraPath []string `toml:"extra_path"`
}

// BridgeSettings defines session state and dispatch settings
type BridgeSettings struct {
	// StateFile is the session mapping file written by the lifecycle hook
	// Default: ~/.claude/tg-sessions.json
	StateFile string `toml:"state_file"`

	// PIDFile receives the bridge process id at startup
	// Default: ~/.hangar/bridge/bridge.pid
	PIDFile string `toml:"pid_file"`

	// Workers is the number of concurrent dispatches (default: 4)
	Workers int `toml:"workers"`

	// QueueSize is the number of dispatches allowed to wait for a worker (default: 32)
	QueueSize int `toml:"queue_size"`

	// NotifyEvents are the hook events that produce a chat notification
	// Default: ["Stop", "Notification"]
	NotifyEvents []string `toml:"notify_events"`
}

// HookSettings defines the lifecycle hook server
type HookSettings struct {
	// Enabled starts the hook server alongside the poller (default: true)
	Enabled *bool `toml:"enabled"`

	// Port is the 127.0.0.1 port the hook server binds to (default: 9876)
	Port int `toml:"port"`
}

// LogSettings defines log output
type LogSettings struct {
	// Dir is the directory for bridge.log. Empty = stderr only.
	Dir string `toml:"dir"`

	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `toml:"level"`

	// Format is "json" (default) or "text"
	Format string `toml:"format"`

	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days"`
	Compress   bool `toml:"compress"`
}

// envOverrides are applied on top of the file. Unset variables leave the file value alone.
type envOverrides struct {
	Token     string `envconfig:"CLAUDE_HOOK_TG_BOT_TOKEN"`
	ChatID    string `envconfig:"CLAUDE_HOOK_TG_CHAT_ID"`
	ClaudeBin string `envconfig:"HANGAR_BRIDGE_CLAUDE_PATH"`
	StateFile string `envconfig:"HANGAR_BRIDGE_STATE_FILE"`
	ConfigDir string `envconfig:"CLAUDE_CONFIG_DIR"`
	LogLevel  string `envconfig:"HANGAR_BRIDGE_LOG_LEVEL"`
}

// ChatID is a chat identity normalized to its decimal string form
type ChatID string

// UnmarshalTOML accepts both chat_id = "123" and chat_id = 123
func (c *ChatID) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		*c = ChatID(strings.TrimSpace(val))
	case int64:
		*c = ChatID(strconv.FormatInt(val, 10))
	default:
		return fmt.Errorf("chat_id: unsupported type %T", v)
	}
	return nil
}

// Int64 returns the numeric chat id used by the Bot API
func (c ChatID) Int64() (int64, error) {
	id, err := strconv.ParseInt(string(c), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chat_id %q is not numeric: %w", string(c), err)
	}
	return id, nil
}

// Dir returns the bridge home directory (~/.hangar/bridge)
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".hangar", "bridge"), nil
}

// DefaultPath returns the default config file path
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the config at path (DefaultPath when empty), applies environment
// overrides and fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	path = ExpandTilde(path)

	cfg := &Config{path: path}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.applyEnv(env)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(env envOverrides) {
	if env.Token != "" {
		c.Telegram.Token = env.Token
	}
	if env.ChatID != "" {
		c.Telegram.ChatID = ChatID(env.ChatID)
	}
	if env.ClaudeBin != "" {
		c.Claude.Path = env.ClaudeBin
	}
	if env.StateFile != "" {
		c.Bridge.StateFile = env.StateFile
	}
	// CLAUDE_CONFIG_DIR takes priority over the file, matching claude itself
	if env.ConfigDir != "" {
		c.Claude.ConfigDir = env.ConfigDir
	}
	if env.LogLevel != "" {
		c.Logs.Level = env.LogLevel
	}
}

func (c *Config) applyDefaults() {
	home, _ := os.UserHomeDir()
	bridgeDir, _ := Dir()

	if c.Telegram.PollTimeoutSeconds <= 0 {
		c.Telegram.PollTimeoutSeconds = 30
	}
	if c.Telegram.SendRatePerSecond <= 0 {
		c.Telegram.SendRatePerSecond = 1
	}
	c.Telegram.ChatID = ChatID(strings.TrimSpace(string(c.Telegram.ChatID)))

	if c.Claude.ConfigDir == "" {
		c.Claude.ConfigDir = filepath.Join(home, ".claude")
	}
	c.Claude.ConfigDir = ExpandTilde(c.Claude.ConfigDir)
	c.Claude.Path = ExpandTilde(c.Claude.Path)
	if c.Claude.TimeoutSeconds <= 0 {
		c.Claude.TimeoutSeconds = 300
	}
	if c.Claude.ExtraPath == nil {
		c.Claude.ExtraPath = []string{"/usr/local/bin", "/opt/homebrew/bin", filepath.Join(home, ".local", "bin")}
	}
	for i, p := range c.Claude.ExtraPath {
		c.Claude.ExtraPath[i] = ExpandTilde(p)
	}

	if c.Bridge.StateFile == "" {
		c.Bridge.StateFile = filepath.Join(home, ".claude", "tg-sessions.json")
	}
	c.Bridge.StateFile = ExpandTilde(c.Bridge.StateFile)
	if c.Bridge.PIDFile == "" {
		c.Bridge.PIDFile = filepath.Join(bridgeDir, "bridge.pid")
	}
	c.Bridge.PIDFile = ExpandTilde(c.Bridge.PIDFile)
	if c.Bridge.Workers <= 0 {
		c.Bridge.Workers = 4
	}
	if c.Bridge.QueueSize <= 0 {
		c.Bridge.QueueSize = 32
	}
	if c.Bridge.NotifyEvents == nil {
		c.Bridge.NotifyEvents = []string{"Stop", "Notification"}
	}

	if c.Hooks.Enabled == nil {
		enabled := true
		c.Hooks.Enabled = &enabled
	}
	if c.Hooks.Port <= 0 {
		c.Hooks.Port = 9876
	}

	if c.Logs.Dir == "" {
		c.Logs.Dir = bridgeDir
	}
	c.Logs.Dir = ExpandTilde(c.Logs.Dir)
}

// Path returns the file this config was loaded from
func (c *Config) Path() string {
	return c.path
}

// Validate checks the settings required to run the bridge
func (c *Config) Validate() error {
	var missing []string
	if c.Telegram.Token == "" {
		missing = append(missing, "telegram.token")
	}
	if c.Telegram.ChatID == "" {
		missing = append(missing, "telegram.chat_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s: check %s or CLAUDE_HOOK_TG_BOT_TOKEN/CLAUDE_HOOK_TG_CHAT_ID",
			strings.Join(missing, ", "), c.path)
	}
	if _, err := c.Telegram.ChatID.Int64(); err != nil {
		return err
	}
	return nil
}

// HooksEnabled reports whether the hook server should run
func (c *Config) HooksEnabled() bool {
	return c.Hooks.Enabled == nil || *c.Hooks.Enabled
}

// ResumeTimeout returns the resume wall-clock bound
func (c *Config) ResumeTimeout() time.Duration {
	return time.Duration(c.Claude.TimeoutSeconds) * time.Second
}

// PollTimeout returns the long-poll timeout
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Telegram.PollTimeoutSeconds) * time.Second
}

// ExpandTilde expands a leading ~ to the user's home directory
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Clean(filepath.Join(home, strings.TrimPrefix(path, "~")))
	}
	return path
}

// CreateExample writes an example config if none exists
func CreateExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(exampleConfig), 0600)
}

const exampleConfig = `# Hangar Bridge configuration

[telegram]
# Bot token from @BotFather (or CLAUDE_HOOK_TG_BOT_TOKEN)
token = ""
# The only chat allowed to drive sessions (or CLAUDE_HOOK_TG_CHAT_ID)
chat_id = ""
# poll_timeout_seconds = 30
# send_rate_per_second = 1

[claude]
# path = "/usr/local/bin/claude"
# config_dir = "~/.claude"
# timeout_seconds = 300

[bridge]
# state_file = "~/.claude/tg-sessions.json"
# workers = 4
# queue_size = 32
# notify_events = ["Stop", "Notification"]

[hooks]
# enabled = true
# port = 9876

[logs]
# level = "info"
# format = "json"
`
