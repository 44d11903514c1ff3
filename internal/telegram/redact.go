package telegram

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// redactedToken replaces the bot token wherever it would be printed
const redactedToken = "<token>"

// redactor strips the bot token from text. The Bot API carries the token in the
// request path, so transport errors quote it verbatim.
type redactor struct {
	secrets []string
}

func newRedactor(token string) redactor {
	if token == "" {
		return redactor{}
	}
	r := redactor{secrets: []string{token}}
	if esc := url.PathEscape(token); esc != token {
		r.secrets = append(r.secrets, esc)
	}
	return r
}

func (r redactor) String(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, redactedToken)
	}
	return s
}

// Error returns err with the token removed from its message. errors.Is and
// errors.As still see the original chain.
func (r redactor) Error(err error) error {
	if err == nil {
		return nil
	}
	msg := r.String(err.Error())
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// leveledLogger adapts slog to retryablehttp.LeveledLogger, redacting every value
type leveledLogger struct {
	log      *slog.Logger
	redactor redactor
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, l.args(keysAndValues)...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn(msg, l.args(keysAndValues)...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, l.args(keysAndValues)...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, l.args(keysAndValues)...)
}

func (l leveledLogger) args(keysAndValues []interface{}) []any {
	out := make([]any, 0, len(keysAndValues))
	for i, v := range keysAndValues {
		if i%2 == 0 {
			out = append(out, v)
			continue
		}
		out = append(out, l.redactor.String(fmt.Sprint(v)))
	}
	return out
}
