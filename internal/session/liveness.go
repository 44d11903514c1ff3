package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"time"

	"github.com/sjoeboo/hangar-bridge/internal/logging"
)

// DefaultProbeTimeout bounds a single liveness check
const DefaultProbeTimeout = 3 * time.Second

// LivenessProbe reports whether a session's backing process is currently running.
// Implementations must return false on any probing error.
type LivenessProbe interface {
	IsActive(ctx context.Context, sessionID string) bool
}

// ProbeFunc adapts a function to LivenessProbe
type ProbeFunc func(ctx context.Context, sessionID string) bool

func (f ProbeFunc) IsActive(ctx context.Context, sessionID string) bool {
	return f(ctx, sessionID)
}

// ProbeResult is the outcome of a successful process-table scan
type ProbeResult int

const (
	ProbeNotRunning ProbeResult = iota
	ProbeRunning
)

func (r ProbeResult) String() string {
	if r == ProbeRunning {
		return "running"
	}
	return "not_running"
}

// ErrProbeFailed means the process table could not be scanned
var ErrProbeFailed = errors.New("liveness probe failed")

// ProcessProbe is a heuristic liveness check: it scans the process table for a
// command line containing the assistant command followed by the session id.
type ProcessProbe struct {
	// Command is the assistant command name matched in process command lines (default: claude)
	Command string

	// Timeout bounds the scan (default: DefaultProbeTimeout)
	Timeout time.Duration

	log *slog.Logger

	// run executes pgrep and returns its exit code; replaced in tests
	run func(ctx context.Context, pattern string) (int, error)
}

// NewProcessProbe creates a pgrep-backed probe
func NewProcessProbe(command string, log *slog.Logger) *ProcessProbe {
	if command == "" {
		command = "claude"
	}
	if log == nil {
		log = logging.Discard()
	}
	return &ProcessProbe{
		Command: command,
		Timeout: DefaultProbeTimeout,
		log:     log,
		run:     runPgrep,
	}
}

// IsActive implements LivenessProbe. A failed scan is treated as inactive so the
// resume attempt runs and reports its own failure instead of silently dropping input.
func (p *ProcessProbe) IsActive(ctx context.Context, sessionID string) bool {
	res, err := p.Probe(ctx, sessionID)
	if err != nil {
		p.log.Warn("liveness_probe_failed",
			slog.String("session", ShortID(sessionID)),
			slog.String("error", err.Error()))
		return false
	}
	p.log.Debug("liveness_probe",
		slog.String("session", ShortID(sessionID)),
		slog.String("result", res.String()))
	return res == ProbeRunning
}

// Probe scans the process table. It distinguishes "no such process" (ProbeNotRunning,
// nil) from a scan that could not complete (ErrProbeFailed).
func (p *ProcessProbe) Probe(ctx context.Context, sessionID string) (ProbeResult, error) {
	if sessionID == "" {
		return ProbeNotRunning, fmt.Errorf("%w: empty session id", ErrProbeFailed)
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pattern := regexp.QuoteMeta(p.Command) + ".*" + regexp.QuoteMeta(sessionID)
	code, err := p.run(ctx, pattern)
	if ctx.Err() != nil {
		return ProbeNotRunning, fmt.Errorf("%w: %v", ErrProbeFailed, ctx.Err())
	}
	if err != nil {
		return ProbeNotRunning, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}

	// pgrep: 0 = matched, 1 = no match, anything else = usage or fatal error
	switch code {
	case 0:
		return ProbeRunning, nil
	case 1:
		return ProbeNotRunning, nil
	default:
		return ProbeNotRunning, fmt.Errorf("%w: pgrep exit status %d", ErrProbeFailed, code)
	}
}

func runPgrep(ctx context.Context, pattern string) (int, error) {
	cmd := exec.CommandContext(ctx, "pgrep", "-f", pattern)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
