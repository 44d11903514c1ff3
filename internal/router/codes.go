package router

import (
	"strings"

	"github.com/sjoeboo/hangar-bridge/internal/telegram"
)

// shortCodes expands button codes into the instruction sent to the session
var shortCodes = map[string]string{
	"y":   "yes",
	"n":   "no",
	"s":   "What is the current status of the task?",
	"sum": "Please summarize what was just accomplished.",
}

// ExpandCode returns the instruction for a short code; unknown codes are free text
func ExpandCode(code string) string {
	if instruction, ok := shortCodes[code]; ok {
		return instruction
	}
	return code
}

// ParseCallback splits a resume:<session id>:<code> payload.
// The code is everything after the second colon, so free text may contain colons.
func ParseCallback(data string) (sessionID, code string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != telegram.CallbackPrefix {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// IsResumeCallback reports whether data belongs to the resume button family
func IsResumeCallback(data string) bool {
	return strings.HasPrefix(data, telegram.CallbackPrefix+":")
}
