package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sjoeboo/hangar-bridge/internal/logging"
	"github.com/sjoeboo/hangar-bridge/internal/metrics"
	"github.com/sjoeboo/hangar-bridge/internal/session"
)

// Route is where a dispatch goes
type Route int

const (
	// RouteResume runs the instruction against the idle session
	RouteResume Route = iota
	// RouteNotify tells the user to type into the live terminal
	RouteNotify
)

func (r Route) String() string {
	if r == RouteResume {
		return metrics.RouteResume
	}
	return metrics.RouteNotify
}

// Resumer runs an instruction against an idle session
type Resumer interface {
	Resume(ctx context.Context, req Request) Result
}

// TranscriptSource returns the last assistant message of a session
type TranscriptSource interface {
	LastMessage(sessionID, cwd string) (string, bool)
}

// Dispatcher routes one instruction to a session: resume it when it is idle,
// otherwise ask the user to type into the live terminal.
type Dispatcher struct {
	probe       session.LivenessProbe
	transcripts TranscriptSource
	resumer     Resumer
	messenger   Messenger
	metrics     *metrics.Metrics
	log         *slog.Logger
}

// Options wires a Dispatcher
type Options struct {
	Probe       session.LivenessProbe
	Transcripts TranscriptSource
	Resumer     Resumer
	Messenger   Messenger
	Metrics     *metrics.Metrics
	Log         *slog.Logger
}

// New creates a dispatcher
func New(opts Options) *Dispatcher {
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Dispatcher{
		probe:       opts.Probe,
		transcripts: opts.Transcripts,
		resumer:     opts.Resumer,
		messenger:   opts.Messenger,
		metrics:     opts.Metrics,
		log:         log,
	}
}

// Decide picks the route for a session. Idle requires both a Stop as the last
// recorded event and no live process; the recorded event may be stale.
func (d *Dispatcher) Decide(ctx context.Context, sess *session.Session) Route {
	if sess.Stopped() && !d.probe.IsActive(ctx, sess.ID) {
		return RouteResume
	}
	return RouteNotify
}

// Dispatch makes a single attempt to deliver instruction to the session.
// It blocks for the duration of a resume and is meant to run on a worker.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, instruction string, replyTo int) Route {
	jobID := uuid.NewString()
	log := d.log.With(
		slog.String("job", jobID),
		slog.String("session", sess.ShortID()))

	route := d.Decide(ctx, sess)
	d.metrics.RecordDispatch(route.String())
	log.Info("dispatch_routed",
		slog.String("route", route.String()),
		slog.String("last_event", sess.LastEvent))

	switch route {
	case RouteResume:
		d.resumer.Resume(ctx, Request{
			SessionID:   sess.ID,
			Cwd:         sess.Cwd,
			Instruction: instruction,
			ReplyTo:     replyTo,
		})
	default:
		d.notifyBusy(ctx, log, sess, instruction, replyTo)
	}
	return route
}

func (d *Dispatcher) notifyBusy(ctx context.Context, log *slog.Logger, sess *session.Session, instruction string, replyTo int) {
	lastMessage := ""
	if d.transcripts != nil {
		if text, ok := d.transcripts.LastMessage(sess.ID, sess.Cwd); ok {
			lastMessage = text
		}
	}
	if d.messenger.SendMessage(ctx, BusyText(sess.ID, instruction, lastMessage), replyTo) == 0 {
		log.Warn("dispatch_notify_failed")
	}
}
