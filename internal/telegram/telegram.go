// Package telegram runs the bot over Telegram long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"

	"github.com/pavelanni/exambot/internal/i18n"
	"github.com/pavelanni/exambot/internal/model"
)

// UserIDPrefix marks Telegram user ids in the session store.
const UserIDPrefix = "tg:"

// Engine turns one inbound message into replies.
type Engine interface {
	HandleMessage(ctx context.Context, userID, text string) []model.Reply
}

// Bot connects a Telegram bot account to the engine.
type Bot struct {
	bot    *tele.Bot
	engine Engine
	lang   string
}

// Options configures the Telegram connection.
type Options struct {
	Token       string
	PollTimeout time.Duration
	// Offline skips the getMe call; used in tests.
	Offline bool
}

// New creates a Bot and registers its handlers.
func New(opts Options, engine Engine, lang string) (*Bot, error) {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   opts.Token,
		Poller:  &tele.LongPoller{Timeout: opts.PollTimeout},
		Offline: opts.Offline,
		OnError: func(err error, c tele.Context) {
			slog.Error("telegram handler error", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot := &Bot{bot: b, engine: engine, lang: lang}
	b.Handle(tele.OnText, bot.handleText)
	return bot, nil
}

// Run polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	slog.Info("telegram polling started", "bot", b.bot.Me.Username)
	b.bot.Start()
	slog.Info("telegram polling stopped")
}

func (b *Bot) handleText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		slog.Warn("telegram message without sender")
		return nil
	}
	ctx := i18n.WithLang(context.Background(), b.lang)
	ctx = model.ContextWithRequestID(ctx, uuid.NewString())
	userID := UserIDPrefix + strconv.FormatInt(sender.ID, 10)

	for _, reply := range b.engine.HandleMessage(ctx, userID, c.Text()) {
		var opts []interface{}
		if reply.Menu != nil {
			opts = append(opts, Markup(reply.Menu))
		}
		if err := c.Send(reply.Text, opts...); err != nil {
			slog.Error("send telegram reply", "user_id", userID, "error", err)
		}
	}
	return nil
}

// Markup converts a menu into a resizable reply keyboard.
// Replies without a menu are sent without markup, which keeps the current keyboard.
func Markup(menu *model.Menu) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{ResizeKeyboard: true}
	if menu == nil {
		return rm
	}
	rows := make([]tele.Row, 0, len(menu.Rows))
	for _, r := range menu.Rows {
		btns := make([]tele.Btn, 0, len(r))
		for _, b := range r {
			btns = append(btns, rm.Text(b.Label))
		}
		rows = append(rows, rm.Row(btns...))
	}
	rm.Reply(rows...)
	return rm
}
