package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readHooks(t *testing.T, configDir string) (map[string]json.RawMessage, map[string]json.RawMessage) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(configDir, "settings.json"))
	require.NoError(t, err)
	var settings map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &settings))
	var hooks map[string]json.RawMessage
	if raw, ok := settings["hooks"]; ok {
		require.NoError(t, json.Unmarshal(raw, &hooks))
	}
	return settings, hooks
}

func TestInstallClaudeHooks_Fresh(t *testing.T) {
	dir := t.TempDir()

	installed, err := InstallClaudeHooks(dir, 9876)
	require.NoError(t, err)
	assert.True(t, installed)

	_, hooks := readHooks(t, dir)
	for _, event := range HookEvents() {
		require.Contains(t, hooks, event)
		var matchers []claudeHookMatcher
		require.NoError(t, json.Unmarshal(hooks[event], &matchers))
		require.Len(t, matchers, 1)
		require.Len(t, matchers[0].Hooks, 1)
		assert.Equal(t, "http", matchers[0].Hooks[0].Type)
		assert.Equal(t, "http://127.0.0.1:9876/hooks", matchers[0].Hooks[0].URL)
	}
	assert.True(t, CheckClaudeHooksInstalled(dir))
}

func TestInstallClaudeHooks_NotificationSkipsIdlePrompt(t *testing.T) {
	dir := t.TempDir()
	_, err := InstallClaudeHooks(dir, 9876)
	require.NoError(t, err)

	_, hooks := readHooks(t, dir)
	var matchers []claudeHookMatcher
	require.NoError(t, json.Unmarshal(hooks["Notification"], &matchers))
	require.Len(t, matchers, 1)
	assert.Contains(t, matchers[0].Matcher, "permission_prompt")
	assert.NotContains(t, matchers[0].Matcher, "idle_prompt")
}

func TestInstallClaudeHooks_Idempotent(t *testing.T) {
	dir := t.TempDir()

	_, err := InstallClaudeHooks(dir, 9876)
	require.NoError(t, err)

	installed, err := InstallClaudeHooks(dir, 9876)
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestInstallClaudeHooks_PreservesExisting(t *testing.T) {
	dir := t.TempDir()
	existing := `{
		"apiKey": "sk-test-123",
		"hooks": {"Stop": [{"hooks": [{"type": "command", "command": "my-custom-hook"}]}]}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(existing), 0644))

	_, err := InstallClaudeHooks(dir, 9876)
	require.NoError(t, err)

	settings, hooks := readHooks(t, dir)
	assert.JSONEq(t, `"sk-test-123"`, string(settings["apiKey"]))

	var matchers []claudeHookMatcher
	require.NoError(t, json.Unmarshal(hooks["Stop"], &matchers))
	require.Len(t, matchers, 1)
	require.Len(t, matchers[0].Hooks, 2)
	assert.Equal(t, "my-custom-hook", matchers[0].Hooks[0].Command)
	assert.True(t, isBridgeHook(matchers[0].Hooks[1]))
}

func TestInstallClaudeHooks_ChangesPort(t *testing.T) {
	dir := t.TempDir()

	_, err := InstallClaudeHooks(dir, 9876)
	require.NoError(t, err)
	installed, err := InstallClaudeHooks(dir, 9999)
	require.NoError(t, err)
	assert.True(t, installed)

	_, hooks := readHooks(t, dir)
	var matchers []claudeHookMatcher
	require.NoError(t, json.Unmarshal(hooks["Stop"], &matchers))
	require.Len(t, matchers, 1)
	require.Len(t, matchers[0].Hooks, 1)
	assert.Equal(t, "http://127.0.0.1:9999/hooks", matchers[0].Hooks[0].URL)
}

func TestInstallClaudeHooks_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	_, err := InstallClaudeHooks(dir, 0)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{oops"), 0644))
	_, err = InstallClaudeHooks(dir, 9876)
	assert.Error(t, err)
}

func TestRemoveClaudeHooks(t *testing.T) {
	dir := t.TempDir()
	existing := `{"hooks": {"Stop": [{"hooks": [{"type": "command", "command": "keep-me"}]}]}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(existing), 0644))

	_, err := InstallClaudeHooks(dir, 9876)
	require.NoError(t, err)

	removed, err := RemoveClaudeHooks(dir)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, CheckClaudeHooksInstalled(dir))

	_, hooks := readHooks(t, dir)
	assert.Len(t, hooks, 1)
	assert.Contains(t, string(hooks["Stop"]), "keep-me")

	removed, err = RemoveClaudeHooks(dir)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveClaudeHooks_DropsEmptyHooksKey(t *testing.T) {
	dir := t.TempDir()
	_, err := InstallClaudeHooks(dir, 9876)
	require.NoError(t, err)

	_, err = RemoveClaudeHooks(dir)
	require.NoError(t, err)

	settings, _ := readHooks(t, dir)
	assert.NotContains(t, settings, "hooks")
}

func TestRemoveClaudeHooks_NoFile(t *testing.T) {
	removed, err := RemoveClaudeHooks(t.TempDir())
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestParseClaudeVersion(t *testing.T) {
	v, err := parseClaudeVersion("2.1.70 (Claude Code)\n")
	require.NoError(t, err)
	assert.Equal(t, "2.1.70", v)

	_, err = parseClaudeVersion("unknown")
	assert.Error(t, err)
}

func TestSupportsHTTPHooks(t *testing.T) {
	assert.True(t, SupportsHTTPHooks("2.1.63"))
	assert.True(t, SupportsHTTPHooks("2.2.0"))
	assert.True(t, SupportsHTTPHooks("3.0.0"))
	assert.False(t, SupportsHTTPHooks("2.1.62"))
	assert.False(t, SupportsHTTPHooks("1.9.99"))
	assert.False(t, SupportsHTTPHooks("garbage"))
}
