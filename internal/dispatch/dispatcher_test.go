package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjoeboo/hangar-bridge/internal/metrics"
	"github.com/sjoeboo/hangar-bridge/internal/session"
)

func probeReturning(active bool) (session.LivenessProbe, *int) {
	calls := 0
	return session.ProbeFunc(func(ctx context.Context, id string) bool {
		calls++
		return active
	}), &calls
}

type dispatchFixture struct {
	dispatcher *Dispatcher
	resumer    *fakeResumer
	messenger  *fakeMessenger
	metrics    *metrics.Metrics
	probeCalls *int
}

func newDispatchFixture(active bool, lastMessage string) *dispatchFixture {
	probe, calls := probeReturning(active)
	f := &dispatchFixture{
		resumer:    &fakeResumer{},
		messenger:  &fakeMessenger{},
		metrics:    metrics.New(),
		probeCalls: calls,
	}
	f.dispatcher = New(Options{
		Probe:       probe,
		Transcripts: fakeTranscripts{text: lastMessage},
		Resumer:     f.resumer,
		Messenger:   f.messenger,
		Metrics:     f.metrics,
	})
	return f
}

func TestDispatch_IdleSessionResumes(t *testing.T) {
	f := newDispatchFixture(false, "")
	sess := &session.Session{ID: "abc123", Cwd: "/work/app", LastEvent: session.EventStop}

	route := f.dispatcher.Dispatch(context.Background(), sess, "fix the failing test", 77)

	assert.Equal(t, RouteResume, route)
	require.Len(t, f.resumer.requests, 1)
	assert.Equal(t, Request{
		SessionID:   "abc123",
		Cwd:         "/work/app",
		Instruction: "fix the failing test",
		ReplyTo:     77,
	}, f.resumer.requests[0])
	assert.Empty(t, f.messenger.sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DispatchesTotal.WithLabelValues(metrics.RouteResume)))
}

func TestDispatch_LiveProcessNotifiesRegardlessOfEvent(t *testing.T) {
	for _, event := range []string{session.EventStop, "UserPromptSubmit", "Notification"} {
		t.Run(event, func(t *testing.T) {
			f := newDispatchFixture(true, "")
			sess := &session.Session{ID: "abcdefgh-1234", Cwd: "/w", LastEvent: event}

			route := f.dispatcher.Dispatch(context.Background(), sess, "continue", 5)

			assert.Equal(t, RouteNotify, route)
			assert.Empty(t, f.resumer.requests)
			require.Len(t, f.messenger.sent, 1)
			assert.Equal(t, BusyText("abcdefgh-1234", "continue", ""), f.messenger.sent[0].Text)
			assert.Equal(t, 5, f.messenger.sent[0].ReplyTo)
		})
	}
}

func TestDispatch_NonStopEventNotifiesWithoutProbing(t *testing.T) {
	f := newDispatchFixture(false, "")
	sess := &session.Session{ID: "s1", Cwd: "/w", LastEvent: "UserPromptSubmit"}

	assert.Equal(t, RouteNotify, f.dispatcher.Dispatch(context.Background(), sess, "hi", 1))
	assert.Empty(t, f.resumer.requests)
	assert.Equal(t, 0, *f.probeCalls)
}

func TestDispatch_NotifyIncludesTranscript(t *testing.T) {
	f := newDispatchFixture(true, "Refactored <store>")
	sess := &session.Session{ID: "s1", Cwd: "/w", LastEvent: session.EventStop}

	f.dispatcher.Dispatch(context.Background(), sess, "status?", 1)

	require.Len(t, f.messenger.sent, 1)
	assert.Contains(t, f.messenger.sent[0].Text, "<i>Last message:</i>\nRefactored &lt;store&gt;")
}

func TestDispatch_ResumesExactlyOncePerCall(t *testing.T) {
	f := newDispatchFixture(false, "")
	sess := &session.Session{ID: "s1", Cwd: "/w", LastEvent: session.EventStop}

	for i := 0; i < 3; i++ {
		f.dispatcher.Dispatch(context.Background(), sess, "again", i)
	}
	assert.Len(t, f.resumer.requests, 3)
	assert.Equal(t, 3, *f.probeCalls)
}

// End to end through the real executor with a fake runner and transport.
func TestDispatch_TimeoutDeliversTemplate(t *testing.T) {
	m := &fakeMessenger{}
	ex := NewExecutor(m, fixedLocator("/bin/claude"), nil)
	ex.Runner = &fakeRunner{block: true}
	ex.Timeout = 20 * time.Millisecond

	probe, _ := probeReturning(false)
	d := New(Options{Probe: probe, Resumer: ex, Messenger: m})
	d.Dispatch(context.Background(), &session.Session{ID: "s1", Cwd: "/w", LastEvent: session.EventStop}, "slow", 1)

	require.Len(t, m.edits, 1)
	assert.Equal(t, TimeoutText(ex.Timeout), m.edits[0].Text)
}

func TestRouteString(t *testing.T) {
	assert.Equal(t, "resume", RouteResume.String())
	assert.Equal(t, "notify", RouteNotify.String())
}
