package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sjoeboo/hangar-bridge/internal/config"
	"github.com/sjoeboo/hangar-bridge/internal/dispatch"
	"github.com/sjoeboo/hangar-bridge/internal/hookserver"
	"github.com/sjoeboo/hangar-bridge/internal/logging"
	"github.com/sjoeboo/hangar-bridge/internal/metrics"
	"github.com/sjoeboo/hangar-bridge/internal/router"
	"github.com/sjoeboo/hangar-bridge/internal/session"
	"github.com/sjoeboo/hangar-bridge/internal/telegram"
	"github.com/sjoeboo/hangar-bridge/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge in the foreground",
	Long: `Run long-polls Telegram for replies and button presses, dispatches them to
Claude Code sessions, and serves the local hook endpoint that records session
lifecycle events. Stop with Ctrl-C or SIGTERM; in-flight resumes are allowed to finish.`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		if created, cerr := ensureExampleConfig(cfg.Path()); cerr == nil && created {
			return fmt.Errorf("%w (example config written to %s)", err, cfg.Path())
		}
		return err
	}

	if _, err := logging.Init(logging.Config{
		LogDir:     cfg.Logs.Dir,
		Level:      cfg.Logs.Level,
		Format:     cfg.Logs.Format,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
		Compress:   cfg.Logs.Compress,
		Stderr:     true,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Shutdown()
	log := logging.ForComponent(logging.CompLifecycle)

	if err := writePIDFile(cfg.Bridge.PIDFile); err != nil {
		return err
	}
	defer removePIDFile(cfg.Bridge.PIDFile)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := newBridge(cfg)
	if err != nil {
		return err
	}
	log.Info("bridge_starting",
		slog.String("bot", b.client.BotName()),
		slog.String("state_file", cfg.Bridge.StateFile),
		slog.Int("workers", cfg.Bridge.Workers),
		slog.Bool("hooks", cfg.HooksEnabled()))

	pool := worker.New(ctx, cfg.Bridge.Workers, cfg.Bridge.QueueSize, logging.ForComponent(logging.CompWorker), b.metrics)
	rt := router.New(router.Options{
		ChatID:      string(cfg.Telegram.ChatID),
		Transport:   b.client,
		Store:       b.store,
		Dispatcher:  b.dispatcher,
		Pool:        pool,
		PollTimeout: cfg.Telegram.PollTimeoutSeconds,
		Metrics:     b.metrics,
		Log:         logging.ForComponent(logging.CompRouter),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Run(gctx)
	})
	g.Go(func() error {
		// The watcher only keeps the read cache warm; losing it is not fatal
		if err := b.store.Watch(gctx); err != nil {
			log.Warn("store_watch_unavailable", slog.String("error", err.Error()))
		}
		return nil
	})
	if cfg.HooksEnabled() {
		hs := hookserver.New(hookserver.Options{
			Port:         cfg.Hooks.Port,
			Store:        b.store,
			Notifier:     b.client,
			Transcripts:  b.transcripts,
			Pool:         pool,
			NotifyEvents: cfg.Bridge.NotifyEvents,
			Metrics:      b.metrics,
			Log:          logging.ForComponent(logging.CompHooks),
		})
		g.Go(func() error {
			return hs.Start(gctx)
		})
	}

	runErr := g.Wait()
	log.Info("bridge_draining")
	if err := pool.Close(); err != nil {
		log.Warn("worker_pool_close_failed", slog.String("error", err.Error()))
	}
	log.Info("bridge_stopped")
	return runErr
}

// bridge holds the long-lived components shared by the router and the hook server
type bridge struct {
	client      *telegram.Client
	store       *session.Store
	transcripts *session.TranscriptReader
	dispatcher  *dispatch.Dispatcher
	metrics     *metrics.Metrics
}

func newBridge(cfg *config.Config) (*bridge, error) {
	chatID, err := cfg.Telegram.ChatID.Int64()
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	client, err := telegram.New(telegram.Options{
		Token:       cfg.Telegram.Token,
		ChatID:      chatID,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		PollTimeout: cfg.PollTimeout(),
		SendRate:    cfg.Telegram.SendRatePerSecond,
		Log:         logging.ForComponent(logging.CompTelegram),
		Metrics:     m,
	})
	if err != nil {
		return nil, err
	}

	store := session.NewStore(cfg.Bridge.StateFile, logging.ForComponent(logging.CompStore))
	transcripts := session.NewTranscriptReader(cfg.Claude.ConfigDir, logging.ForComponent(logging.CompStore))

	executor := dispatch.NewExecutor(client, dispatch.NewLocator(cfg.Claude.Path), logging.ForComponent(logging.CompResume))
	executor.Timeout = cfg.ResumeTimeout()
	executor.ExtraPath = cfg.Claude.ExtraPath
	executor.Metrics = m

	d := dispatch.New(dispatch.Options{
		Probe:       session.NewProcessProbe(dispatch.DefaultExecutable, logging.ForComponent(logging.CompLiveness)),
		Transcripts: transcripts,
		Resumer:     executor,
		Messenger:   client,
		Metrics:     m,
		Log:         logging.ForComponent(logging.CompDispatch),
	})

	return &bridge{
		client:      client,
		store:       store,
		transcripts: transcripts,
		dispatcher:  d,
		metrics:     m,
	}, nil
}

// writePIDFile records the bridge pid. A file naming a live process means
// another bridge is polling the same bot, which Telegram rejects.
func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if pid, ok := readPIDFile(path); ok && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("bridge already running (pid %d, %s)", pid, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func readPIDFile(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// removePIDFile deletes the pid file if it still names this process
func removePIDFile(path string) {
	if pid, ok := readPIDFile(path); ok && pid == os.Getpid() {
		_ = os.Remove(path)
	}
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, os.ErrPermission)
}
