package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sjoeboo/hangar-bridge/internal/dispatch"
	"github.com/sjoeboo/hangar-bridge/internal/logging"
	"github.com/sjoeboo/hangar-bridge/internal/metrics"
	"github.com/sjoeboo/hangar-bridge/internal/session"
	"github.com/sjoeboo/hangar-bridge/internal/telegram"
	"github.com/sjoeboo/hangar-bridge/internal/worker"
)

const (
	// DefaultPollTimeout is the getUpdates long-poll timeout in seconds
	DefaultPollTimeout = 30

	// DefaultBackoff is the pause after a failed poll
	DefaultBackoff = 5 * time.Second

	// processingPreviewChars caps the instruction echoed in a callback toast
	processingPreviewChars = 50
)

// Transport is the chat API the router consumes
type Transport interface {
	dispatch.Messenger
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) bool
	GetUpdates(ctx context.Context, offset, timeout int, allowed []string) ([]tgbotapi.Update, error)
}

// SessionStore resolves chat messages and session ids to sessions
type SessionStore interface {
	Resolve(messageID int) (string, *session.Session)
	Session(id string) *session.Session
}

// Dispatcher delivers one instruction to a session
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *session.Session, instruction string, replyTo int) dispatch.Route
}

// Submitter runs jobs off the poll loop
type Submitter interface {
	TrySubmit(job worker.Job) error
}

// Options wires a Router
type Options struct {
	// ChatID is the only chat whose updates are acted on
	ChatID     string
	Transport  Transport
	Store      SessionStore
	Dispatcher Dispatcher
	Pool       Submitter

	// PollTimeout is the long-poll timeout in seconds (default: DefaultPollTimeout)
	PollTimeout int

	// Backoff is the pause after a failed poll (default: DefaultBackoff)
	Backoff time.Duration

	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// Router consumes chat updates and turns replies and button presses into dispatches.
type Router struct {
	chatID      string
	transport   Transport
	store       SessionStore
	dispatcher  Dispatcher
	pool        Submitter
	pollTimeout int
	backoff     time.Duration
	metrics     *metrics.Metrics
	log         *slog.Logger
}

// New creates a router
func New(opts Options) *Router {
	r := &Router{
		chatID:      strings.TrimSpace(opts.ChatID),
		transport:   opts.Transport,
		store:       opts.Store,
		dispatcher:  opts.Dispatcher,
		pool:        opts.Pool,
		pollTimeout: opts.PollTimeout,
		backoff:     opts.Backoff,
		metrics:     opts.Metrics,
		log:         opts.Log,
	}
	if r.pollTimeout <= 0 {
		r.pollTimeout = DefaultPollTimeout
	}
	if r.backoff <= 0 {
		r.backoff = DefaultBackoff
	}
	if r.log == nil {
		r.log = logging.Discard()
	}
	return r
}

// Run discards the update backlog and then long-polls until ctx is cancelled.
// Offsets only move forward, so each update is acknowledged at most once.
func (r *Router) Run(ctx context.Context) error {
	offset := r.DiscardBacklog(ctx)
	r.log.Info("router_started", slog.Int("offset", offset))

	for {
		if ctx.Err() != nil {
			r.log.Info("router_stopped")
			return nil
		}

		updates, err := r.transport.GetUpdates(ctx, offset, r.pollTimeout, telegram.AllowedUpdates)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.log.Warn("router_poll_failed", slog.String("error", err.Error()))
			sleep(ctx, r.backoff)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			r.Handle(ctx, telegram.Decode(u))
		}
	}
}

// DiscardBacklog confirms every update that arrived while the bridge was down
// and returns the offset to poll from. Failures are logged and yield offset 0.
func (r *Router) DiscardBacklog(ctx context.Context) int {
	updates, err := r.transport.GetUpdates(ctx, -1, 1, nil)
	if err != nil {
		r.log.Warn("router_backlog_discard_failed", slog.String("error", err.Error()))
		return 0
	}
	offset := 0
	for _, u := range updates {
		if u.UpdateID >= offset {
			offset = u.UpdateID + 1
		}
	}
	if len(updates) > 0 {
		r.log.Info("router_backlog_discarded", slog.Int("offset", offset))
	}
	return offset
}

// Handle processes one decoded update. Panics are recovered and logged so a single
// bad update never stops the loop.
func (r *Router) Handle(ctx context.Context, in telegram.Inbound) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("router_handler_panic",
				slog.Int("update_id", in.UpdateID()),
				slog.String("kind", in.Kind()),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	r.metrics.RecordUpdate(in.Kind())
	switch u := in.(type) {
	case telegram.PlainReply:
		r.handleReply(ctx, u)
	case telegram.CallbackPress:
		r.handleCallback(ctx, u)
	case telegram.Ignored:
		r.log.Debug("router_update_ignored", slog.Int("update_id", u.ID), slog.String("reason", u.Reason))
	}
}

func (r *Router) authorized(chatID string) bool {
	return r.chatID != "" && strings.TrimSpace(chatID) == r.chatID
}

func (r *Router) handleReply(ctx context.Context, u telegram.PlainReply) {
	log := r.log.With(slog.Int("update_id", u.ID))
	if !r.authorized(u.ChatID) {
		log.Debug("router_reply_unauthorized", slog.String("chat_id", u.ChatID))
		return
	}
	text := strings.TrimSpace(u.Text)
	if text == "" || u.ReplyToID == 0 {
		return
	}

	sessionID, sess := r.store.Resolve(u.ReplyToID)
	if sessionID == "" {
		// not one of our messages
		log.Debug("router_reply_unbound", slog.Int("reply_to", u.ReplyToID))
		return
	}
	if sess == nil {
		// replies drop quietly; only button presses get a "not found" answer
		log.Info("router_reply_session_missing", slog.String("session", session.ShortID(sessionID)))
		return
	}

	r.submit(ctx, sess, text, u.MessageID)
}

func (r *Router) handleCallback(ctx context.Context, u telegram.CallbackPress) {
	log := r.log.With(slog.Int("update_id", u.ID))

	// Inline-message callbacks carry no chat and cannot be authorized
	if !r.authorized(u.ChatID) {
		log.Debug("router_callback_unauthorized", slog.String("chat_id", u.ChatID))
		r.transport.AnswerCallback(ctx, u.CallbackID, "", false)
		return
	}
	if !IsResumeCallback(u.Data) {
		r.transport.AnswerCallback(ctx, u.CallbackID, "", false)
		return
	}
	sessionID, code, ok := ParseCallback(u.Data)
	if !ok {
		log.Debug("router_callback_malformed", slog.String("data", u.Data))
		r.transport.AnswerCallback(ctx, u.CallbackID, "", false)
		return
	}

	instruction := ExpandCode(code)
	sess := r.store.Session(sessionID)
	if sess == nil {
		r.transport.AnswerCallback(ctx, u.CallbackID, dispatch.SessionNotFoundText, true)
		return
	}

	r.transport.AnswerCallback(ctx, u.CallbackID,
		"Processing: "+session.TruncateRunes(instruction, processingPreviewChars), false)
	r.submit(ctx, sess, instruction, u.MessageID)
}

// submit hands the dispatch to the pool; the loop never waits for it
func (r *Router) submit(ctx context.Context, sess *session.Session, instruction string, replyTo int) {
	err := r.pool.TrySubmit(worker.Job{
		Name: "dispatch:" + sess.ShortID(),
		Run: func(jobCtx context.Context) {
			r.dispatcher.Dispatch(jobCtx, sess, instruction, replyTo)
		},
	})
	if err == nil {
		return
	}
	r.metrics.RecordDispatch(metrics.RouteRejected)
	r.log.Warn("router_dispatch_rejected",
		slog.String("session", sess.ShortID()),
		slog.String("error", err.Error()))
	if errors.Is(err, worker.ErrQueueFull) {
		r.transport.SendMessage(ctx, dispatch.QueueFullText, replyTo)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
