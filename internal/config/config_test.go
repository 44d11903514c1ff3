package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"CLAUDE_HOOK_TG_BOT_TOKEN", "CLAUDE_HOOK_TG_CHAT_ID", "HANGAR_BRIDGE_CLAUDE_PATH",
		"HANGAR_BRIDGE_STATE_FILE", "CLAUDE_CONFIG_DIR", "HANGAR_BRIDGE_LOG_LEVEL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return home
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := isolateEnv(t)

	cfg, err := Load(filepath.Join(home, "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Telegram.PollTimeoutSeconds)
	assert.Equal(t, 300, cfg.Claude.TimeoutSeconds)
	assert.Equal(t, filepath.Join(home, ".claude"), cfg.Claude.ConfigDir)
	assert.Equal(t, filepath.Join(home, ".claude", "tg-sessions.json"), cfg.Bridge.StateFile)
	assert.Equal(t, 4, cfg.Bridge.Workers)
	assert.Equal(t, []string{"Stop", "Notification"}, cfg.Bridge.NotifyEvents)
	assert.True(t, cfg.HooksEnabled())
	assert.Equal(t, 9876, cfg.Hooks.Port)
}

func TestLoad_FileValues(t *testing.T) {
	home := isolateEnv(t)
	path := filepath.Join(home, "config.toml")
	content := `
[telegram]
token = "tok"
chat_id = " 12345 "

[claude]
path = "~/bin/claude"
timeout_seconds = 60

[hooks]
enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tok", cfg.Telegram.Token)
	assert.Equal(t, ChatID("12345"), cfg.Telegram.ChatID)
	assert.Equal(t, filepath.Join(home, "bin", "claude"), cfg.Claude.Path)
	assert.Equal(t, 60, cfg.Claude.TimeoutSeconds)
	assert.False(t, cfg.HooksEnabled())
	assert.Equal(t, path, cfg.Path())
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := isolateEnv(t)
	path := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[telegram]\ntoken = \"file\"\n"), 0600))

	t.Setenv("CLAUDE_HOOK_TG_BOT_TOKEN", "env-token")
	t.Setenv("CLAUDE_HOOK_TG_CHAT_ID", "777")
	t.Setenv("CLAUDE_CONFIG_DIR", "~/.claude-work")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, ChatID("777"), cfg.Telegram.ChatID)
	assert.Equal(t, filepath.Join(home, ".claude-work"), cfg.Claude.ConfigDir)
}

func TestLoad_ParseError(t *testing.T) {
	home := isolateEnv(t)
	path := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[telegram\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestValidate_Missing(t *testing.T) {
	home := isolateEnv(t)
	cfg, err := Load(filepath.Join(home, "config.toml"))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")
	assert.Contains(t, err.Error(), "telegram.chat_id")
}

func TestCreateExample_DoesNotOverwrite(t *testing.T) {
	home := isolateEnv(t)
	path := filepath.Join(home, "sub", "config.toml")

	require.NoError(t, CreateExample(path))
	_, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("# mine\n"), 0600))
	require.NoError(t, CreateExample(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# mine\n", string(data))
}

func TestChatID_IntegerInTOML(t *testing.T) {
	home := isolateEnv(t)
	path := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[telegram]\nchat_id = -100123\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ChatID("-100123"), cfg.Telegram.ChatID)

	id, err := cfg.Telegram.ChatID.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-100123), id)

	_, err = ChatID("abc").Int64()
	assert.Error(t, err)
}
