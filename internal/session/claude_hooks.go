package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sjoeboo/hangar-bridge/internal/logging"
)

// bridgeHookURL is the URL template for the bridge's hook server.
const bridgeHookURL = "http://127.0.0.1:%d/hooks"

// bridgeHookRE matches URLs of the form http://127.0.0.1:PORT/hooks (exact path, no subpaths).
var bridgeHookRE = regexp.MustCompile(`^http://127\.0\.0\.1:\d{1,5}/hooks$`)

// claudeHookEntry represents a single hook entry in Claude Code settings.
type claudeHookEntry struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Async   bool   `json:"async,omitempty"`
	URL     string `json:"url,omitempty"`
	Timeout int    `json:"timeout,omitempty"`
}

// claudeHookMatcher represents a matcher block (with optional matcher pattern) in settings.
type claudeHookMatcher struct {
	Matcher string            `json:"matcher,omitempty"`
	Hooks   []claudeHookEntry `json:"hooks"`
}

func bridgeHook(port int) claudeHookEntry {
	return claudeHookEntry{
		Type:    "http",
		URL:     fmt.Sprintf(bridgeHookURL, port),
		Timeout: 5,
	}
}

func isBridgeHook(h claudeHookEntry) bool {
	return h.Type == "http" && bridgeHookRE.MatchString(h.URL)
}

// hookEventConfigs defines which Claude Code events the bridge subscribes to.
var hookEventConfigs = []struct {
	Event   string
	Matcher string // empty = no matcher
}{
	{Event: "SessionStart"},
	{Event: "UserPromptSubmit"},
	{Event: "Stop"},
	// idle_prompt is left out: it fires on sessions that already stopped
	{Event: "Notification", Matcher: "permission_prompt|elicitation_dialog"},
	{Event: "SessionEnd"},
}

// HookEvents lists the lifecycle events the installed hooks report
func HookEvents() []string {
	out := make([]string, 0, len(hookEventConfigs))
	for _, cfg := range hookEventConfigs {
		out = append(out, cfg.Event)
	}
	return out
}

func readSettings(settingsPath string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, fmt.Errorf("read settings.json: %w", err)
	}
	var rawSettings map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawSettings); err != nil {
		return nil, fmt.Errorf("parse settings.json: %w", err)
	}
	if rawSettings == nil {
		rawSettings = make(map[string]json.RawMessage)
	}
	return rawSettings, nil
}

func writeSettings(configDir string, rawSettings map[string]json.RawMessage) error {
	finalData, err := json.MarshalIndent(rawSettings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	settingsPath := filepath.Join(configDir, "settings.json")
	tmpPath := settingsPath + ".tmp"
	if err := os.WriteFile(tmpPath, finalData, 0644); err != nil {
		return fmt.Errorf("write settings.json.tmp: %w", err)
	}
	if err := os.Rename(tmpPath, settingsPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename settings.json: %w", err)
	}
	return nil
}

// InstallClaudeHooks adds HTTP hook entries pointing at the bridge's hook server
// to Claude Code's settings.json. All other settings and user hooks are preserved.
// A bridge hook on a different port is replaced.
// Returns true if the file changed, false if hooks for this port were already present.
func InstallClaudeHooks(configDir string, port int) (bool, error) {
	if port <= 0 || port > 65535 {
		return false, fmt.Errorf("invalid hook port %d", port)
	}
	settingsPath := filepath.Join(configDir, "settings.json")
	rawSettings, err := readSettings(settingsPath)
	if err != nil {
		return false, err
	}

	existingHooks := make(map[string]json.RawMessage)
	if raw, ok := rawSettings["hooks"]; ok {
		if err := json.Unmarshal(raw, &existingHooks); err != nil || existingHooks == nil {
			// hooks key exists but isn't a valid object; start fresh for hooks
			existingHooks = make(map[string]json.RawMessage)
		}
	}

	want := bridgeHook(port)
	if hooksInstalledFor(existingHooks, want.URL) {
		return false, nil
	}

	for _, cfg := range hookEventConfigs {
		raw := existingHooks[cfg.Event]
		if raw != nil {
			cleaned, _ := removeBridgeFromEvent(raw)
			raw = cleaned
		}
		existingHooks[cfg.Event] = mergeHookEvent(raw, cfg.Matcher, want)
	}

	hooksRaw, err := json.Marshal(existingHooks)
	if err != nil {
		return false, fmt.Errorf("marshal hooks: %w", err)
	}
	rawSettings["hooks"] = hooksRaw

	if err := writeSettings(configDir, rawSettings); err != nil {
		return false, err
	}
	logging.ForComponent(logging.CompHooks).Info("claude_hooks_installed",
		slog.String("config_dir", configDir),
		slog.Int("port", port))
	return true, nil
}

// RemoveClaudeHooks removes bridge hook entries from Claude Code's settings.json.
// Returns true if hooks were removed, false if none found.
func RemoveClaudeHooks(configDir string) (bool, error) {
	settingsPath := filepath.Join(configDir, "settings.json")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		return false, nil
	}
	rawSettings, err := readSettings(settingsPath)
	if err != nil {
		return false, err
	}

	hooksRaw, ok := rawSettings["hooks"]
	if !ok {
		return false, nil
	}
	var existingHooks map[string]json.RawMessage
	if err := json.Unmarshal(hooksRaw, &existingHooks); err != nil {
		return false, nil
	}

	removed := false
	for event, raw := range existingHooks {
		cleaned, didRemove := removeBridgeFromEvent(raw)
		if !didRemove {
			continue
		}
		removed = true
		if cleaned == nil {
			delete(existingHooks, event)
		} else {
			existingHooks[event] = cleaned
		}
	}
	if !removed {
		return false, nil
	}

	// If hooks map is empty, remove the key entirely
	if len(existingHooks) == 0 {
		delete(rawSettings, "hooks")
	} else {
		hooksData, _ := json.Marshal(existingHooks)
		rawSettings["hooks"] = hooksData
	}

	if err := writeSettings(configDir, rawSettings); err != nil {
		return false, err
	}
	logging.ForComponent(logging.CompHooks).Info("claude_hooks_removed", slog.String("config_dir", configDir))
	return true, nil
}

// CheckClaudeHooksInstalled reports whether every subscribed event has a bridge hook.
func CheckClaudeHooksInstalled(configDir string) bool {
	settingsPath := filepath.Join(configDir, "settings.json")
	rawSettings, err := readSettings(settingsPath)
	if err != nil {
		return false
	}
	var hooks map[string]json.RawMessage
	if err := json.Unmarshal(rawSettings["hooks"], &hooks); err != nil {
		return false
	}
	return hooksInstalledFor(hooks, "")
}

// hooksInstalledFor checks every subscribed event for a bridge hook. An empty url
// accepts any bridge port.
func hooksInstalledFor(hooks map[string]json.RawMessage, url string) bool {
	for _, cfg := range hookEventConfigs {
		raw, ok := hooks[cfg.Event]
		if !ok {
			return false
		}
		var matchers []claudeHookMatcher
		if err := json.Unmarshal(raw, &matchers); err != nil {
			return false
		}
		found := false
		for _, m := range matchers {
			for _, h := range m.Hooks {
				if isBridgeHook(h) && (url == "" || h.URL == url) {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// mergeHookEvent adds a hook entry to an existing event's matcher array.
// Preserves all existing matchers and hooks.
func mergeHookEvent(existing json.RawMessage, matcher string, hook claudeHookEntry) json.RawMessage {
	var matchers []claudeHookMatcher
	if existing != nil {
		if err := json.Unmarshal(existing, &matchers); err != nil {
			matchers = nil
		}
	}

	for i, m := range matchers {
		if m.Matcher == matcher {
			matchers[i].Hooks = append(matchers[i].Hooks, hook)
			result, _ := json.Marshal(matchers)
			return result
		}
	}

	matchers = append(matchers, claudeHookMatcher{
		Matcher: matcher,
		Hooks:   []claudeHookEntry{hook},
	})
	result, _ := json.Marshal(matchers)
	return result
}

// removeBridgeFromEvent removes bridge hook entries from an event's matcher array.
// Returns cleaned JSON and whether any removal happened. Returns nil JSON if the array is empty.
func removeBridgeFromEvent(raw json.RawMessage) (json.RawMessage, bool) {
	var matchers []claudeHookMatcher
	if err := json.Unmarshal(raw, &matchers); err != nil {
		return raw, false
	}

	removed := false
	var cleaned []claudeHookMatcher
	for _, m := range matchers {
		var hooks []claudeHookEntry
		for _, h := range m.Hooks {
			if isBridgeHook(h) {
				removed = true
				continue
			}
			hooks = append(hooks, h)
		}
		if len(hooks) > 0 {
			m.Hooks = hooks
			cleaned = append(cleaned, m)
		}
	}

	if !removed {
		return raw, false
	}
	if len(cleaned) == 0 {
		return nil, true
	}
	result, _ := json.Marshal(cleaned)
	return result, true
}

var versionRegexp = regexp.MustCompile(`(?:^|[^\d])v?(\d+)\.(\d+)\.(\d+)\b`)

// parseClaudeVersion extracts the semver string from `claude --version` output.
func parseClaudeVersion(output string) (string, error) {
	m := versionRegexp.FindStringSubmatch(strings.TrimSpace(output))
	if m == nil {
		return "", fmt.Errorf("no semver found in %q", output)
	}
	return m[1] + "." + m[2] + "." + m[3], nil
}

// versionAtLeast reports whether version string (e.g. "2.1.63") is >= major.minor.patch.
func versionAtLeast(version string, major, minor, patch int) bool {
	m := versionRegexp.FindStringSubmatch(version)
	if m == nil {
		return false
	}
	maj, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	pat, _ := strconv.Atoi(m[3])
	if maj != major {
		return maj > major
	}
	if min != minor {
		return min > minor
	}
	return pat >= patch
}

// SupportsHTTPHooks reports whether the given Claude Code version supports type:"http" hooks.
// HTTP hooks were introduced in Claude Code 2.1.63.
func SupportsHTTPHooks(version string) bool {
	return versionAtLeast(version, 2, 1, 63)
}

// DetectClaudeVersion runs `<claude> --version` and returns the parsed semver string.
func DetectClaudeVersion(claudePath string) (string, error) {
	if claudePath == "" {
		claudePath = "claude"
	}
	out, err := exec.Command(claudePath, "--version").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("claude --version: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("claude --version: %w", err)
	}
	return parseClaudeVersion(string(out))
}
