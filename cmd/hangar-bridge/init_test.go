package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjoeboo/hangar-bridge/internal/config"
)

func clearBridgeEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"CLAUDE_HOOK_TG_BOT_TOKEN", "CLAUDE_HOOK_TG_CHAT_ID", "CLAUDE_CONFIG_DIR", "HANGAR_BRIDGE_STATE_FILE"} {
		t.Setenv(k, "")
	}
}

func TestInitCommand_WritesExample(t *testing.T) {
	clearBridgeEnv(t)
	path := filepath.Join(t.TempDir(), "bridge", "config.toml")

	out := executeCmd(t, "--config", path, "init")
	assert.Contains(t, out, "wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())

	out = executeCmd(t, "--config", path, "init")
	assert.Contains(t, out, "already exists")
}

func TestRunCommand_MissingConfigWritesExample(t *testing.T) {
	clearBridgeEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	_, err := executeCmdErr(t, "--config", path, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")
	assert.Contains(t, err.Error(), "example config written")

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestEnsureExampleConfig_KeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("# mine\n"), 0600))

	created, err := ensureExampleConfig(path)
	require.NoError(t, err)
	assert.False(t, created)

	created, err = ensureExampleConfig("")
	require.NoError(t, err)
	assert.False(t, created)
}
