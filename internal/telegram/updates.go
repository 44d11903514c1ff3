package telegram

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Inbound is a decoded update: PlainReply, CallbackPress or Ignored.
type Inbound interface {
	// UpdateID is the transport offset of the update
	UpdateID() int
	// Kind is a short label for logs and metrics
	Kind() string
	inbound()
}

// PlainReply is a text message sent as a reply to an earlier message
type PlainReply struct {
	ID int
	// ChatID is the sender chat in decimal form
	ChatID    string
	MessageID int
	ReplyToID int
	Text      string
}

// CallbackPress is an inline button press
type CallbackPress struct {
	ID         int
	CallbackID string
	// ChatID is the chat holding the pressed message, empty if unknown
	ChatID    string
	MessageID int
	Data      string
}

// Ignored is any update the bridge does not act on
type Ignored struct {
	ID     int
	Reason string
}

func (u PlainReply) UpdateID() int    { return u.ID }
func (u CallbackPress) UpdateID() int { return u.ID }
func (u Ignored) UpdateID() int       { return u.ID }

func (PlainReply) Kind() string    { return "reply" }
func (CallbackPress) Kind() string { return "callback" }
func (Ignored) Kind() string       { return "ignored" }

func (PlainReply) inbound()    {}
func (CallbackPress) inbound() {}
func (Ignored) inbound()       {}

// Decode turns a raw update into one of the Inbound variants
func Decode(u tgbotapi.Update) Inbound {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		press := CallbackPress{ID: u.UpdateID, CallbackID: cb.ID, Data: cb.Data}
		if cb.Message != nil {
			press.MessageID = cb.Message.MessageID
			if cb.Message.Chat != nil {
				press.ChatID = strconv.FormatInt(cb.Message.Chat.ID, 10)
			}
		}
		if press.CallbackID == "" {
			return Ignored{ID: u.UpdateID, Reason: "callback_without_id"}
		}
		return press

	case u.Message != nil:
		msg := u.Message
		if msg.Chat == nil {
			return Ignored{ID: u.UpdateID, Reason: "message_without_chat"}
		}
		if msg.ReplyToMessage == nil {
			return Ignored{ID: u.UpdateID, Reason: "not_a_reply"}
		}
		return PlainReply{
			ID:        u.UpdateID,
			ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
			MessageID: msg.MessageID,
			ReplyToID: msg.ReplyToMessage.MessageID,
			Text:      msg.Text,
		}
	}
	return Ignored{ID: u.UpdateID, Reason: "unsupported_update"}
}
