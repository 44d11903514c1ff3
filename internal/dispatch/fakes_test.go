package dispatch

import (
	"context"
	"sync"
)

type sentMessage struct {
	Text    string
	ReplyTo int
}

type editedMessage struct {
	MessageID int
	Text      string
}

// fakeMessenger records transport calls
type fakeMessenger struct {
	mu       sync.Mutex
	nextID   int
	sendFail bool
	editFail bool
	sent     []sentMessage
	edits    []editedMessage
}

func (f *fakeMessenger) SendMessage(ctx context.Context, text string, replyTo int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Text: text, ReplyTo: replyTo})
	if f.sendFail {
		return 0
	}
	f.nextID++
	return 1000 + f.nextID
}

func (f *fakeMessenger) EditMessageText(ctx context.Context, messageID int, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editedMessage{MessageID: messageID, Text: text})
	return !f.editFail
}

// fakeRunner returns canned output and records the command
type fakeRunner struct {
	stdout string
	stderr string
	err    error
	block  bool
	late   bool
	got    Command
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) ([]byte, []byte, error) {
	f.calls++
	f.got = cmd
	if f.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	if f.late {
		// finished cleanly, but only after the deadline expired
		<-ctx.Done()
	}
	return []byte(f.stdout), []byte(f.stderr), f.err
}

// fakeResumer records resume requests
type fakeResumer struct {
	mu       sync.Mutex
	requests []Request
}

func (f *fakeResumer) Resume(ctx context.Context, req Request) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return Result{Text: "ok", MessageID: 1}
}

type fakeTranscripts struct {
	text string
}

func (f fakeTranscripts) LastMessage(sessionID, cwd string) (string, bool) {
	return f.text, f.text != ""
}

func fixedLocator(path string) *Locator {
	return &Locator{
		lookPath:     func(string) (string, error) { return "", errNoLookPath },
		isExecutable: func(p string) bool { return p == path },
		Configured:   path,
	}
}
