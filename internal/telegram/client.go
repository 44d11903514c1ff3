package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/sjoeboo/hangar-bridge/internal/logging"
	"github.com/sjoeboo/hangar-bridge/internal/metrics"
)

// Update kinds requested from getUpdates
var AllowedUpdates = []string{"message", "callback_query"}

// Options configures the Bot API client
type Options struct {
	Token  string
	ChatID int64

	// APIEndpoint overrides tgbotapi.APIEndpoint (format: .../bot%s/%s)
	APIEndpoint string

	// PollTimeout is the long-poll timeout; the HTTP timeout is derived from it
	PollTimeout time.Duration

	// SendRate caps outbound calls per second (default: 1)
	SendRate float64

	// RetryMax is the number of HTTP retries on 429 and 5xx (default: 3, negative = none)
	RetryMax int

	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// Client is a best-effort transport bound to the single authorized chat.
// Send and edit failures are logged and reported as zero values, never returned.
type Client struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	redact  redactor
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New connects to the Bot API and verifies the token with getMe
func New(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.SendRate <= 0 {
		opts.SendRate = 1
	}
	endpoint := opts.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	redact := newRedactor(opts.Token)

	rc := retryablehttp.NewClient()
	rc.Logger = leveledLogger{log: log, redactor: redact}
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	switch {
	case opts.RetryMax > 0:
		rc.RetryMax = opts.RetryMax
	case opts.RetryMax < 0:
		rc.RetryMax = 0
	default:
		rc.RetryMax = 3
	}
	// Long polls hold the connection for PollTimeout
	rc.HTTPClient.Timeout = opts.PollTimeout + 15*time.Second

	_ = tgbotapi.SetLogger(logging.Printer{Log: log})

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, rc.StandardClient())
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", redact.Error(err))
	}
	log.Info("telegram_connected", slog.String("bot", bot.Self.UserName))

	return &Client{
		bot:     bot,
		chatID:  opts.ChatID,
		limiter: rate.NewLimiter(rate.Limit(opts.SendRate), 3),
		redact:  redact,
		log:     log,
		metrics: opts.Metrics,
	}, nil
}

// BotName returns the bot's username
func (c *Client) BotName() string {
	return c.bot.Self.UserName
}

// ChatID returns the chat this client sends to
func (c *Client) ChatID() int64 {
	return c.chatID
}

func (c *Client) wait(ctx context.Context, method string) bool {
	if err := c.limiter.Wait(ctx); err != nil {
		c.log.Warn("telegram_rate_wait_aborted", slog.String("method", method), slog.String("error", err.Error()))
		return false
	}
	return true
}

func (c *Client) failed(method string, err error) {
	c.metrics.RecordTransportError(method)
	c.log.Warn("telegram_call_failed", slog.String("method", method), slog.String("error", c.redact.String(err.Error())))
}

// SendMessage sends HTML text to the chat, optionally as a reply. Returns the new
// message id, or 0 on failure.
func (c *Client) SendMessage(ctx context.Context, text string, replyTo int) int {
	return c.send(ctx, newHTMLMessage(c.chatID, text, replyTo))
}

// SendWithKeyboard sends HTML text with an inline keyboard. Returns the message id or 0.
func (c *Client) SendWithKeyboard(ctx context.Context, text string, replyTo int, kb tgbotapi.InlineKeyboardMarkup) int {
	msg := newHTMLMessage(c.chatID, text, replyTo)
	msg.ReplyMarkup = kb
	return c.send(ctx, msg)
}

func newHTMLMessage(chatID int64, text string, replyTo int) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
		msg.AllowSendingWithoutReply = true
	}
	return msg
}

func (c *Client) send(ctx context.Context, msg tgbotapi.MessageConfig) int {
	if !c.wait(ctx, "sendMessage") {
		return 0
	}
	sent, err := c.bot.Send(msg)
	if err != nil {
		c.failed("sendMessage", err)
		return 0
	}
	return sent.MessageID
}

// EditMessageText replaces the text of a message the bot sent. Returns false on failure.
func (c *Client) EditMessageText(ctx context.Context, messageID int, text string) bool {
	if !c.wait(ctx, "editMessageText") {
		return false
	}
	edit := tgbotapi.NewEditMessageText(c.chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	if _, err := c.bot.Request(edit); err != nil {
		c.failed("editMessageText", err)
		return false
	}
	return true
}

// AnswerCallback acknowledges a button press. Empty text sends a bare ack;
// alert shows the text as a modal instead of a toast.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) bool {
	cb := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := c.bot.Request(cb); err != nil {
		c.failed("answerCallbackQuery", err)
		return false
	}
	return true
}

// GetUpdates long-polls for updates after offset. It returns early with ctx.Err()
// when ctx is cancelled; the in-flight request is abandoned.
func (c *Client) GetUpdates(ctx context.Context, offset, timeout int, allowed []string) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.UpdateConfig{
		Offset:         offset,
		Timeout:        timeout,
		AllowedUpdates: allowed,
	}

	type result struct {
		updates []tgbotapi.Update
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		updates, err := c.bot.GetUpdates(cfg)
		ch <- result{updates, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			c.metrics.RecordTransportError("getUpdates")
			return nil, fmt.Errorf("getUpdates: %w", c.redact.Error(r.err))
		}
		return r.updates, nil
	}
}
