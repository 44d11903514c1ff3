package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sjoeboo/hangar-bridge/internal/logging"
)

// DefaultTranscriptChars is the maximum length of a transcript excerpt in characters
const DefaultTranscriptChars = 600

// sessionIDPattern restricts ids used in file lookups to what Claude generates
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// projectDirPattern matches characters Claude replaces when naming project directories
var projectDirPattern = regexp.MustCompile(`[^A-Za-z0-9]`)

var errTranscriptFound = errors.New("transcript found")

// TranscriptReader extracts the last assistant message from a session transcript.
// Transcripts are JSONL files named <session id>.jsonl.
type TranscriptReader struct {
	// ConfigDir is Claude's config directory (transcripts live under projects/)
	ConfigDir string

	// MaxChars caps the returned excerpt (default: DefaultTranscriptChars)
	MaxChars int

	log *slog.Logger
}

// NewTranscriptReader creates a reader rooted at Claude's config dir
func NewTranscriptReader(configDir string, log *slog.Logger) *TranscriptReader {
	if log == nil {
		log = logging.Discard()
	}
	return &TranscriptReader{
		ConfigDir: configDir,
		MaxChars:  DefaultTranscriptChars,
		log:       log,
	}
}

// ProjectDirName converts a working directory to Claude's project directory name
// (/Users/me/code/app -> -Users-me-code-app).
func ProjectDirName(cwd string) string {
	return projectDirPattern.ReplaceAllString(cwd, "-")
}

// LastMessage returns the most recent assistant text for the session, truncated to
// MaxChars. ok is false when no transcript or no assistant message was found.
func (r *TranscriptReader) LastMessage(sessionID, cwd string) (text string, ok bool) {
	if !sessionIDPattern.MatchString(sessionID) {
		return "", false
	}
	path := r.find(sessionID, cwd)
	if path == "" {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.log.Debug("transcript_read_failed", slog.String("path", path), slog.String("error", err.Error()))
		return "", false
	}
	msg := lastAssistantText(data)
	if msg == "" {
		return "", false
	}
	max := r.MaxChars
	if max <= 0 {
		max = DefaultTranscriptChars
	}
	return TruncateRunes(msg, max), true
}

// find returns the first transcript file for the session: the project directory
// derived from cwd, then anywhere under cwd, then anywhere under projects/.
func (r *TranscriptReader) find(sessionID, cwd string) string {
	name := sessionID + ".jsonl"
	projectsDir := filepath.Join(r.ConfigDir, "projects")

	if cwd != "" && r.ConfigDir != "" {
		direct := filepath.Join(projectsDir, ProjectDirName(cwd), name)
		if info, err := os.Stat(direct); err == nil && info.Mode().IsRegular() {
			return direct
		}
	}

	var bases []string
	if cwd != "" {
		bases = append(bases, cwd)
	}
	if r.ConfigDir != "" {
		bases = append(bases, projectsDir)
	}
	for _, base := range bases {
		if p := globFirst(base, "**/"+name); p != "" {
			return p
		}
	}
	return ""
}

func globFirst(base, pattern string) string {
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		return ""
	}
	var found string
	err = doublestar.GlobWalk(os.DirFS(base), pattern, func(p string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		found = filepath.Join(base, filepath.FromSlash(p))
		return errTranscriptFound
	})
	if err != nil && !errors.Is(err, errTranscriptFound) {
		return ""
	}
	return found
}

// transcriptEntry is the subset of a transcript record we read
type transcriptEntry struct {
	Type    string `json:"type"`
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// lastAssistantText scans JSONL records backwards and returns the text of the
// newest assistant record that has any. Malformed lines are skipped.
func lastAssistantText(data []byte) string {
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		var entry transcriptEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Type != "assistant" {
			continue
		}
		if text := contentText(entry.Message.Content); text != "" {
			return text
		}
	}
	return ""
}

// contentText handles both content shapes: a plain string or a list of typed blocks.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var texts []string
	for _, b := range blocks {
		if b.Type == "text" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// TruncateRunes cuts s to at most max runes
func TruncateRunes(s string, max int) string {
	if max < 0 {
		max = 0
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
