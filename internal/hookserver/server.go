package hookserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sjoeboo/hangar-bridge/internal/dispatch"
	"github.com/sjoeboo/hangar-bridge/internal/logging"
	"github.com/sjoeboo/hangar-bridge/internal/metrics"
	"github.com/sjoeboo/hangar-bridge/internal/session"
	"github.com/sjoeboo/hangar-bridge/internal/telegram"
	"github.com/sjoeboo/hangar-bridge/internal/worker"
)

// maxBodyBytes caps a hook payload
const maxBodyBytes = 1 << 16

// Store is the write side of the session store
type Store interface {
	RecordEvent(sessionID, cwd, event string) error
	Bind(messageID int, sessionID string) error
	Session(id string) *session.Session
}

// Notifier sends a session notification with resume buttons
type Notifier interface {
	SendWithKeyboard(ctx context.Context, text string, replyTo int, kb tgbotapi.InlineKeyboardMarkup) int
}

// Submitter runs notification jobs off the request path
type Submitter interface {
	TrySubmit(job worker.Job) error
}

// Options wires a HookServer
type Options struct {
	// Port on 127.0.0.1. 0 is valid for tests (use ServeHTTP directly).
	Port int

	Store       Store
	Notifier    Notifier
	Transcripts dispatch.TranscriptSource
	Pool        Submitter

	// NotifyEvents are the hook events that produce a chat notification
	NotifyEvents []string

	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// HookServer is an embedded HTTP server that receives Claude Code hook events,
// records them in the session store and posts notifications to the chat.
// It binds to 127.0.0.1 only.
type HookServer struct {
	port         int
	store        Store
	notifier     Notifier
	transcripts  dispatch.TranscriptSource
	pool         Submitter
	notifyEvents map[string]bool
	metrics      *metrics.Metrics
	log          *slog.Logger
	server       *http.Server
}

// New creates a new HookServer
func New(opts Options) *HookServer {
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	s := &HookServer{
		port:         opts.Port,
		store:        opts.Store,
		notifier:     opts.Notifier,
		transcripts:  opts.Transcripts,
		pool:         opts.Pool,
		notifyEvents: make(map[string]bool, len(opts.NotifyEvents)),
		metrics:      opts.Metrics,
		log:          log,
	}
	for _, e := range opts.NotifyEvents {
		s.notifyEvents[e] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/hooks", s.handleHook)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ServeHTTP implements http.Handler for testing; it delegates directly to the mux.
func (s *HookServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// Start binds to 127.0.0.1:{port} and begins serving. Blocks until ctx is cancelled.
// Returns nil on clean shutdown.
func (s *HookServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("hookserver listen :%d: %w", s.port, err)
	}
	s.log.Info("hookserver_started", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutCtx)
		s.log.Info("hookserver_stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

// hookPayload is the JSON body Claude Code sends for HTTP hook events.
type hookPayload struct {
	HookEventName string `json:"hook_event_name"`
	SessionID     string `json:"session_id"`
	Cwd           string `json:"cwd"`
	Message       string `json:"message,omitempty"`

	// NotificationType is set on Notification events (permission_prompt, idle_prompt, ...)
	NotificationType string `json:"notification_type,omitempty"`
}

// idlePrompt is the Notification type Claude sends while a stopped session waits for input
const idlePrompt = "idle_prompt"

// storedEvent maps a hook event to the event recorded for the session.
// An ended session is as resumable as a stopped one.
func storedEvent(hookEvent string) string {
	if hookEvent == "SessionEnd" {
		return session.EventStop
	}
	return hookEvent
}

func (s *HookServer) handleHook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Hook failures must never block Claude: always answer 200
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	var payload hookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.log.Debug("hook_payload_invalid", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusOK)
		return
	}
	if payload.SessionID == "" || payload.HookEventName == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.metrics.RecordHookEvent(payload.HookEventName)
	log := s.log.With(
		slog.String("session", session.ShortID(payload.SessionID)),
		slog.String("event", payload.HookEventName))

	// An idle reminder must not overwrite Stop: the session is still resumable
	// and the user was already notified when it stopped.
	if payload.NotificationType == idlePrompt {
		log.Debug("hook_idle_prompt_ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.store.RecordEvent(payload.SessionID, payload.Cwd, storedEvent(payload.HookEventName)); err != nil {
		log.Error("hook_record_failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusOK)
		return
	}
	log.Debug("hook_event_recorded")

	if s.notifier != nil && s.notifyEvents[payload.HookEventName] {
		s.queueNotification(log, payload)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *HookServer) queueNotification(log *slog.Logger, p hookPayload) {
	job := worker.Job{
		Name: "notify:" + session.ShortID(p.SessionID),
		Run: func(ctx context.Context) {
			s.notify(ctx, log, p)
		},
	}
	if s.pool == nil {
		job.Run(context.Background())
		return
	}
	if err := s.pool.TrySubmit(job); err != nil {
		log.Warn("hook_notify_dropped", slog.String("error", err.Error()))
	}
}

// notify posts the session notification and binds the sent message to the session
// so replies and button presses route back to it.
func (s *HookServer) notify(ctx context.Context, log *slog.Logger, p hookPayload) {
	sess := s.store.Session(p.SessionID)
	if sess == nil {
		return
	}

	detail := p.Message
	if detail == "" && s.transcripts != nil {
		detail, _ = s.transcripts.LastMessage(sess.ID, sess.Cwd)
	}

	msgID := s.notifier.SendWithKeyboard(ctx, dispatch.NotificationText(sess, detail), 0, telegram.ResumeKeyboard(sess.ID))
	if msgID == 0 {
		log.Warn("hook_notify_failed")
		return
	}
	if err := s.store.Bind(msgID, sess.ID); err != nil {
		log.Error("hook_bind_failed", slog.Int("message_id", msgID), slog.String("error", err.Error()))
		return
	}
	log.Info("hook_notified", slog.Int("message_id", msgID))
}
