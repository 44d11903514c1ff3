package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(Shutdown)

	_, err := Init(Config{LogDir: dir, Level: "debug"})
	require.NoError(t, err)

	ForComponent(CompRouter).Info("router_started", slog.Int("workers", 2))

	data, err := os.ReadFile(filepath.Join(dir, "bridge.log"))
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `"msg":"router_started"`)
	assert.Contains(t, line, `"component":"router"`)
	assert.Contains(t, line, `"workers":2`)
}

func TestInit_TextFormat(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(Shutdown)

	_, err := Init(Config{LogDir: dir, Format: "text"})
	require.NoError(t, err)
	Logger().Info("hello")

	data, err := os.ReadFile(filepath.Join(dir, "bridge.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "msg=hello"))
}

func TestInit_RejectsUnknownSettings(t *testing.T) {
	_, err := Init(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = Init(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestLogger_BeforeInit(t *testing.T) {
	Shutdown()
	assert.NotNil(t, Logger())
	assert.NotPanics(t, func() { ForComponent(CompStore).Info("ignored") })
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
