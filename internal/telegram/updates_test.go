package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_PlainReply(t *testing.T) {
	u := tgbotapi.Update{
		UpdateID: 3,
		Message: &tgbotapi.Message{
			MessageID:      11,
			Chat:           &tgbotapi.Chat{ID: -100123},
			Text:           "  run it  ",
			ReplyToMessage: &tgbotapi.Message{MessageID: 9},
		},
	}

	got := Decode(u)
	reply, ok := got.(PlainReply)
	require.True(t, ok)
	assert.Equal(t, PlainReply{ID: 3, ChatID: "-100123", MessageID: 11, ReplyToID: 9, Text: "  run it  "}, reply)
	assert.Equal(t, 3, got.UpdateID())
	assert.Equal(t, "reply", got.Kind())
}

func TestDecode_CallbackPress(t *testing.T) {
	u := tgbotapi.Update{
		UpdateID: 4,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-1",
			Data: "resume:abc:y",
			Message: &tgbotapi.Message{
				MessageID: 21,
				Chat:      &tgbotapi.Chat{ID: 555},
			},
		},
	}

	press, ok := Decode(u).(CallbackPress)
	require.True(t, ok)
	assert.Equal(t, CallbackPress{ID: 4, CallbackID: "cb-1", ChatID: "555", MessageID: 21, Data: "resume:abc:y"}, press)
}

func TestDecode_Ignored(t *testing.T) {
	cases := map[string]tgbotapi.Update{
		"not a reply":    {UpdateID: 1, Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: 1}, Text: "hi"}},
		"no chat":        {UpdateID: 2, Message: &tgbotapi.Message{MessageID: 1}},
		"edited message": {UpdateID: 3, EditedMessage: &tgbotapi.Message{MessageID: 1}},
		"callback no id": {UpdateID: 4, CallbackQuery: &tgbotapi.CallbackQuery{Data: "resume:a:y"}},
		"empty":          {UpdateID: 5},
	}
	for name, u := range cases {
		t.Run(name, func(t *testing.T) {
			got := Decode(u)
			ignored, ok := got.(Ignored)
			require.True(t, ok, "%T", got)
			assert.Equal(t, u.UpdateID, ignored.UpdateID())
			assert.NotEmpty(t, ignored.Reason)
			assert.Equal(t, "ignored", got.Kind())
		})
	}
}

func TestCallbackData(t *testing.T) {
	assert.Equal(t, "resume:abc-123:sum", CallbackData("abc-123", "sum"))
	// Telegram limits callback data to 64 bytes
	assert.LessOrEqual(t, len(CallbackData("0b0e3c6e-7f0a-4a59-9d8e-2f1f4c6d7e8f", "sum")), 64)
}
