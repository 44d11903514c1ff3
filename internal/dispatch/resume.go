package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sjoeboo/hangar-bridge/internal/logging"
	"github.com/sjoeboo/hangar-bridge/internal/metrics"
	"github.com/sjoeboo/hangar-bridge/internal/session"
)

// DefaultResumeTimeout bounds a single resume invocation
const DefaultResumeTimeout = 300 * time.Second

// nestedSessionEnv is set by claude for its children; a child claude that sees it
// refuses to start.
const nestedSessionEnv = "CLAUDECODE"

var (
	// ErrTimeout means the resume invocation hit its wall-clock bound
	ErrTimeout = errors.New("resume timed out")

	// ErrExecutableNotFound means the claude executable could not be started
	ErrExecutableNotFound = errors.New("claude executable not found")
)

// ErrorKind classifies a failed resume for rendering
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindTimeout
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// ExecError is a resume failure with its user-facing classification
type ExecError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("resume %s: %v", e.Kind, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel for the error's kind
func (e *ExecError) Is(target error) bool {
	switch e.Kind {
	case KindTimeout:
		return target == ErrTimeout
	case KindNotFound:
		return target == ErrExecutableNotFound
	}
	return false
}

// Messenger is the part of the chat transport dispatch needs.
// Calls are best-effort: a zero message id or false means the call failed
// and the transport already logged it.
type Messenger interface {
	SendMessage(ctx context.Context, text string, replyTo int) int
	EditMessageText(ctx context.Context, messageID int, text string) bool
}

// Command is one out-of-process invocation
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Runner starts a command and waits for it
type Runner interface {
	Run(ctx context.Context, cmd Command) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after the process is killed
	WaitDelay time.Duration
}

func (r ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, []byte, error) {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.WaitDelay = r.WaitDelay
	if c.WaitDelay == 0 {
		c.WaitDelay = 5 * time.Second
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Request is one resume job
type Request struct {
	SessionID   string
	Cwd         string
	Instruction string

	// ReplyTo is the chat message the placeholder and result reply to (0 = none)
	ReplyTo int
}

// Result is what a resume delivered
type Result struct {
	// Text is the final rendered chat message
	Text string

	// MessageID is the chat message holding Text (0 if delivery failed)
	MessageID int

	// Err is the classified failure, nil when claude produced output
	Err *ExecError
}

// Executor resumes an idle session with one instruction and delivers the output to chat
type Executor struct {
	Messenger Messenger
	Locator   *Locator
	Runner    Runner

	// Timeout bounds one invocation (default: DefaultResumeTimeout)
	Timeout time.Duration

	// ExtraPath is prepended to PATH for the child
	ExtraPath []string

	// Placeholder sends a "working" message first and edits it with the result
	Placeholder bool

	Metrics *metrics.Metrics

	log *slog.Logger
}

// NewExecutor creates an executor using os/exec
func NewExecutor(m Messenger, locator *Locator, log *slog.Logger) *Executor {
	if log == nil {
		log = logging.Discard()
	}
	return &Executor{
		Messenger:   m,
		Locator:     locator,
		Runner:      ExecRunner{},
		Timeout:     DefaultResumeTimeout,
		Placeholder: true,
		log:         log,
	}
}

// Resume runs claude against the session and delivers the result. It never
// returns an error: every failure is rendered into the delivered message.
func (e *Executor) Resume(ctx context.Context, req Request) Result {
	log := e.log.With(slog.String("session", session.ShortID(req.SessionID)))

	placeholderID := 0
	if e.Placeholder {
		placeholderID = e.Messenger.SendMessage(ctx, PlaceholderText(req.Instruction), req.ReplyTo)
		if placeholderID == 0 {
			log.Warn("resume_placeholder_failed")
		}
	}

	start := time.Now()
	output, execErr := e.run(ctx, req)
	elapsed := time.Since(start)

	var text string
	outcome := "ok"
	if execErr != nil {
		outcome = execErr.Kind.String()
		text = e.failureText(execErr)
		log.Warn("resume_failed",
			slog.String("kind", outcome),
			slog.String("error", execErr.Err.Error()),
			slog.Duration("elapsed", elapsed))
	} else {
		text = ResultText(TruncateOutput(output))
		log.Info("resume_completed",
			slog.Int("output_bytes", len(output)),
			slog.Duration("elapsed", elapsed))
	}
	e.Metrics.RecordResume(outcome, elapsed)

	res := Result{Text: text, Err: execErr}
	if placeholderID != 0 && e.Messenger.EditMessageText(ctx, placeholderID, text) {
		res.MessageID = placeholderID
		return res
	}
	res.MessageID = e.Messenger.SendMessage(ctx, text, req.ReplyTo)
	if res.MessageID == 0 {
		log.Error("resume_delivery_failed")
	}
	return res
}

func (e *Executor) failureText(err *ExecError) string {
	switch err.Kind {
	case KindTimeout:
		return TimeoutText(e.timeout())
	case KindNotFound:
		return NotFoundText()
	default:
		return ErrorText(err.Err)
	}
}

func (e *Executor) timeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultResumeTimeout
	}
	return e.Timeout
}

// run invokes claude and returns its output (stdout, or stderr when stdout is blank).
// A non-zero exit with output is a normal completion: claude reports its own errors.
func (e *Executor) run(ctx context.Context, req Request) (string, *ExecError) {
	exe := e.Locator.Find()
	dir := workDir(req.Cwd)

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	cmd := Command{
		Path: exe,
		Args: []string{"-p", req.Instruction, "--resume", req.SessionID, "--output-format", "text"},
		Dir:  dir,
		Env:  childEnv(os.Environ(), e.ExtraPath),
	}
	e.log.Debug("resume_started",
		slog.String("session", session.ShortID(req.SessionID)),
		slog.String("exe", exe),
		slog.String("dir", dir))

	stdout, stderr, err := e.Runner.Run(ctx, cmd)
	if err != nil {
		// A run that completed is never a timeout, even if the deadline passed since
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &ExecError{Kind: KindTimeout, Err: ErrTimeout}
		}
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			// fall through to output handling
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return "", &ExecError{Kind: KindNotFound, Err: fmt.Errorf("%w: %v", ErrExecutableNotFound, err)}
		default:
			return "", &ExecError{Kind: KindGeneric, Err: err}
		}
	}

	out := string(stdout)
	if strings.TrimSpace(out) == "" {
		out = string(stderr)
	}
	return out, nil
}

// workDir returns cwd when it is an existing directory, else the home directory
func workDir(cwd string) string {
	if cwd != "" {
		if info, err := os.Stat(cwd); err == nil && info.IsDir() {
			return cwd
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

// childEnv drops the nested-session marker and prepends extra PATH entries
func childEnv(environ []string, extraPath []string) []string {
	env := make([]string, 0, len(environ)+1)
	path := ""
	for _, kv := range environ {
		name, value, _ := strings.Cut(kv, "=")
		switch name {
		case nestedSessionEnv:
			continue
		case "PATH":
			path = value
			continue
		}
		env = append(env, kv)
	}
	parts := make([]string, 0, len(extraPath)+1)
	for _, p := range extraPath {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if path != "" {
		parts = append(parts, path)
	}
	return append(env, "PATH="+strings.Join(parts, string(os.PathListSeparator)))
}
