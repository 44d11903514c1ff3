package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component constants for structured logging.
const (
	CompRouter    = "router"
	CompDispatch  = "dispatch"
	CompResume    = "resume"
	CompStore     = "store"
	CompLiveness  = "liveness"
	CompTelegram  = "telegram"
	CompHooks     = "hooks"
	CompWorker    = "worker"
	CompLifecycle = "lifecycle"
)

// Config holds logging configuration.
type Config struct {
	// LogDir is the directory for bridge.log. Empty = stderr only.
	LogDir string

	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format is "json" (default) or "text"
	Format string

	// MaxSizeMB is the max size in MB before rotation (default: 10)
	MaxSizeMB int

	// MaxBackups is rotated files to keep (default: 5)
	MaxBackups int

	// MaxAgeDays is days to keep rotated files (default: 10)
	MaxAgeDays int

	// Compress rotated files
	Compress bool

	// Stderr mirrors log output to stderr (default for the run command)
	Stderr bool
}

var (
	globalLogger *slog.Logger
	globalMu     sync.RWMutex
	lumberjackW  *lumberjack.Logger
)

// Init initializes the process logger. The returned logger is also what
// Logger and ForComponent hand out afterwards.
func Init(cfg Config) (*slog.Logger, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 10
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var writers []io.Writer
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		lumberjackW = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "bridge.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		writers = append(writers, lumberjackW)
	}
	if cfg.Stderr || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	out := io.MultiWriter(writers...)

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", cfg.Format)
	}

	globalLogger = slog.New(handler)
	return globalLogger, nil
}

// ParseLevel maps a config level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Logger returns the process logger. Safe to call before Init (returns a discard logger).
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return Discard()
	}
	return globalLogger
}

// ForComponent returns a sub-logger with the component field set.
func ForComponent(name string) *slog.Logger {
	return Logger().With(slog.String("component", name))
}

// Discard returns a logger that drops everything. Used as the nil default by constructors.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Printer adapts a slog logger to Println/Printf style loggers used by third-party libraries.
type Printer struct {
	Log *slog.Logger
}

func (p Printer) Println(v ...interface{}) {
	p.Log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (p Printer) Printf(format string, v ...interface{}) {
	p.Log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Shutdown closes the rotating file writer.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if lumberjackW != nil {
		lumberjackW.Close()
		lumberjackW = nil
	}
	globalLogger = nil
}
