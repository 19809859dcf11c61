// Package telegram connects the bot handlers to the Telegram Bot API using
// long polling.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"finbot/internal/bot"
	applog "finbot/internal/log"
)

// BotAPI is the subset of *tgbotapi.BotAPI the transport uses.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Limiter decides whether a chat may be served right now.
type Limiter interface {
	Allow(chatID int64) bool
}

// Handler answers one request.
type Handler interface {
	Handle(ctx context.Context, req bot.Request) []bot.Reply
}

type Transport struct {
	api         BotAPI
	handler     Handler
	pollTimeout int
	limiter     Limiter
	logger      *applog.Logger
}

type Option func(*Transport)

// WithLimiter drops updates from chats the limiter rejects.
func WithLimiter(l Limiter) Option {
	return func(t *Transport) { t.limiter = l }
}

// NewBotAPI authenticates with token.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = debug
	return api, nil
}

func NewTransport(api BotAPI, handler Handler, pollTimeout int, logger *applog.Logger, opts ...Option) *Transport {
	t := &Transport{
		api:         api,
		handler:     handler,
		pollTimeout: pollTimeout,
		logger:      logger.WithComponent(applog.ComponentTelegram),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run long-polls updates and handles them one at a time until ctx is
// cancelled.
func (t *Transport) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(u)

	t.logger.InfoContext(ctx, "Polling for updates", "timeout_s", t.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			t.logger.InfoContext(ctx, "Stopped polling")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate converts one update, runs the handler and delivers replies.
func (t *Transport) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	req, ok := toRequest(update)
	if !ok {
		return
	}
	if cq := update.CallbackQuery; cq != nil {
		// Stops the client's loading indicator; the answer carries no text.
		if _, err := t.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			t.logger.WarnContext(ctx, "Failed to answer callback query", applog.FieldError, err)
		}
	}

	if t.limiter != nil && !t.limiter.Allow(req.ChatID) {
		t.logger.WarnContext(ctx, "Update dropped by rate limit", applog.FieldChatID, req.ChatID)
		return
	}

	for _, reply := range t.handler.Handle(ctx, req) {
		if err := t.Send(ctx, req.ChatID, reply); err != nil {
			t.logger.ErrorContext(ctx, "Failed to send reply",
				applog.NewFields().WithChat(req.ChatID, req.UserID).WithError(err).ToSlice()...)
		}
	}
}

// Send delivers one reply to chatID. It is also the scheduler's notifier.
func (t *Transport) Send(_ context.Context, chatID int64, reply bot.Reply) error {
	if _, err := t.api.Send(render(chatID, reply)); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

// toRequest maps messages and callback queries to handler requests. Other
// update types are ignored.
func toRequest(update tgbotapi.Update) (bot.Request, bool) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		m := update.Message
		req := bot.Request{ChatID: m.Chat.ID, UserID: m.From.ID}
		if m.IsCommand() {
			req.Command = strings.ToLower(m.Command())
			req.Args = strings.Fields(m.CommandArguments())
		} else {
			req.Text = m.Text
		}
		return req, true

	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		cq := update.CallbackQuery
		return bot.Request{
			ChatID:   cq.Message.Chat.ID,
			UserID:   cq.From.ID,
			Callback: cq.Data,
		}, true
	}
	return bot.Request{}, false
}

func render(chatID int64, reply bot.Reply) tgbotapi.Chattable {
	if d := reply.Document; d != nil {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: d.Name, Bytes: d.Data})
		doc.Caption = d.Caption
		return doc
	}

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if reply.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	if len(reply.Buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reply.Buttons))
		for _, row := range reply.Buttons {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	return msg
}
