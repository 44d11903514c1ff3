package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/sjoeboo/hangar-bridge/internal/session"
)

const (
	// MaxOutputChars is the largest resume output shown in chat
	MaxOutputChars = 3800

	// TruncationMarker is appended to output cut at MaxOutputChars
	TruncationMarker = "\n…(truncated)"

	// EmptyOutput stands in for a resume that printed nothing
	EmptyOutput = "(empty response)"

	// placeholderInstructionChars caps the instruction echoed in the placeholder
	placeholderInstructionChars = 120
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape makes text safe for Telegram's HTML parse mode.
// It is not idempotent: Escape("&amp;") is "&amp;amp;".
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}

// TruncateOutput trims resume output, substitutes EmptyOutput for blank output
// and cuts anything longer than MaxOutputChars, appending TruncationMarker.
func TruncateOutput(out string) string {
	out = strings.TrimSpace(out)
	if out == "" {
		return EmptyOutput
	}
	if cut := session.TruncateRunes(out, MaxOutputChars); len(cut) < len(out) {
		return cut + TruncationMarker
	}
	return out
}

// PlaceholderText is shown while a resume is running
func PlaceholderText(instruction string) string {
	return "⏳ <b>Sending to Claude...</b>\n<code>" +
		Escape(session.TruncateRunes(instruction, placeholderInstructionChars)) + "</code>"
}

// ResultText renders a finished resume's (already truncated) output
func ResultText(output string) string {
	return "✅ <b>Claude:</b>\n\n" + Escape(output)
}

// TimeoutText renders the timeout failure for the configured bound
func TimeoutText(limit time.Duration) string {
	return "⏰ <b>Timeout</b> — command exceeded " + limitLabel(limit) + " limit."
}

func limitLabel(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%d-minute", int(d/time.Minute))
	}
	return fmt.Sprintf("%d-second", int(d.Round(time.Second)/time.Second))
}

// NotFoundText renders the missing-executable failure
func NotFoundText() string {
	return "❌ <code>claude</code> not found. Is Claude Code installed?"
}

// ErrorText renders any other execution failure
func ErrorText(err error) string {
	return "❌ <b>Error:</b> " + Escape(err.Error())
}

// BusyText asks the user to type the instruction into the live terminal.
// lastMessage is the transcript excerpt, empty when none was found.
func BusyText(sessionID, instruction, lastMessage string) string {
	var b strings.Builder
	b.WriteString("⌨️ <b>Please type in your terminal:</b>\n<code>")
	b.WriteString(Escape(instruction))
	b.WriteString("</code>")
	if lastMessage != "" {
		b.WriteString("\n\n<i>Last message:</i>\n")
		b.WriteString(Escape(lastMessage))
	}
	b.WriteString("\n\n<i>Session <code>")
	b.WriteString(Escape(session.ShortID(sessionID)))
	b.WriteString("</code> is still active — direct input injection is not supported.</i>")
	return b.String()
}

// SessionNotFoundText is shown when a button or reply targets an unknown session
const SessionNotFoundText = "Session not found or expired."

// QueueFullText is shown when every worker is busy and the queue is full
const QueueFullText = "⚠️ <b>Bridge busy</b> — too many instructions in flight, try again shortly."

// NotificationText renders a lifecycle hook notification for the chat
func NotificationText(sess *session.Session, lastMessage string) string {
	var b strings.Builder
	switch sess.LastEvent {
	case session.EventStop:
		b.WriteString("🤖 <b>Claude finished</b>")
	default:
		b.WriteString("🔔 <b>Claude needs attention</b>")
	}
	b.WriteString(" <code>")
	b.WriteString(Escape(sess.ShortID()))
	b.WriteString("</code>\n<i>")
	b.WriteString(Escape(sess.Cwd))
	b.WriteString("</i>")
	if lastMessage != "" {
		b.WriteString("\n\n")
		b.WriteString(Escape(lastMessage))
	}
	b.WriteString("\n\n<i>Reply to this message to send an instruction.</i>")
	return b.String()
}
