package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// CallbackPrefix marks button payloads that resume a session
const CallbackPrefix = "resume"

// CallbackData builds a resume:<session id>:<code> payload
func CallbackData(sessionID, code string) string {
	return strings.Join([]string{CallbackPrefix, sessionID, code}, ":")
}

// ResumeKeyboard is attached to session notifications. Codes are expanded by the router.
func ResumeKeyboard(sessionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Yes", CallbackData(sessionID, "y")),
			tgbotapi.NewInlineKeyboardButtonData("❌ No", CallbackData(sessionID, "n")),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Status", CallbackData(sessionID, "s")),
			tgbotapi.NewInlineKeyboardButtonData("📝 Summary", CallbackData(sessionID, "sum")),
		),
	)
}
