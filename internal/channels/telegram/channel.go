// Package telegram implements the six-method channel contract over the
// Telegram Bot API using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// updateQueueCapacity bounds the buffered channel fed by the
// long-polling goroutine; Poll drains it in bounded batches so a slow
// consumer never blocks Telegram's update delivery indefinitely.
const updateQueueCapacity = 256

// pollBatchSize is the max number of updates drained per Poll call.
const pollBatchSize = 32

// Channel connects to Telegram via the Bot API using long polling,
// decoupling the library's push-style update delivery from the
// contract's pull-style Poll via an internal buffered queue.
type Channel struct {
	*channels.BaseChannel
	cfg config.TelegramConfig

	bot *telego.Bot

	mu         sync.Mutex
	updates    chan telego.Update
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

var _ channels.Channel = (*Channel)(nil)

// New creates a Telegram channel from config.
func New(cfg config.TelegramConfig, msgBus *bus.Bus) (*Channel, error) {
	base := channels.NewBaseChannel("telegram", msgBus, cfg.AllowFrom)
	if cfg.DMPolicy != "" {
		base.DMPolicy = channels.DMPolicy(cfg.DMPolicy)
	}
	if cfg.GroupPolicy != "" {
		base.GroupPolicy = channels.GroupPolicy(cfg.GroupPolicy)
	}
	return &Channel{
		BaseChannel: base,
		cfg:         cfg,
		updates:     make(chan telego.Update, updateQueueCapacity),
	}, nil
}

// Init constructs the telego.Bot client and validates the token is
// present. Idempotent before Start.
func (c *Channel) Init(_ context.Context) error {
	if c.cfg.Token == "" {
		return corekind.New(corekind.Config, "telegram.Init")
	}
	if c.bot != nil {
		return nil
	}

	var opts []telego.BotOption
	if c.cfg.Proxy != "" {
		proxyURL, err := url.Parse(c.cfg.Proxy)
		if err != nil {
			return corekind.Wrap(corekind.Config, "telegram.Init", err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(c.cfg.Token, opts...)
	if err != nil {
		return corekind.Wrap(corekind.Io, "telegram.Init", err)
	}
	c.bot = bot
	return nil
}

// Start verifies connectivity via GetMe, then begins long polling into
// the internal update queue.
func (c *Channel) Start(ctx context.Context) error {
	if c.bot == nil {
		return corekind.New(corekind.Config, "telegram.Start")
	}

	slog.Info("telegram bot connected", "username", c.bot.Username())

	timeout := c.cfg.PollTimeoutSec
	if timeout == 0 {
		timeout = 30
	}

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        timeout,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return corekind.Wrap(corekind.Io, "telegram.Start", err)
	}

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				select {
				case c.updates <- upd:
				default:
					slog.Warn("telegram update queue full, dropping update", "update_id", upd.UpdateID)
				}
			}
		}
	}()

	c.SetRunning(true)
	return nil
}

// Poll drains up to pollBatchSize queued updates, publishing each
// message to the bus. Returns Timeout when nothing was queued.
func (c *Channel) Poll(_ context.Context) error {
	n := 0
	for i := 0; i < pollBatchSize; i++ {
		select {
		case upd := <-c.updates:
			if upd.Message != nil {
				c.handleMessage(upd)
			}
			n++
		default:
			i = pollBatchSize
		}
	}
	if n == 0 {
		return corekind.New(corekind.Timeout, "telegram.Poll")
	}
	return nil
}

func (c *Channel) handleMessage(upd telego.Update) {
	msg := upd.Message
	senderID := ""
	if msg.From != nil {
		senderID = fmt.Sprintf("%d|%s", msg.From.ID, msg.From.Username)
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if err := c.HandleMessage(senderID, chatID, msg.Text, c.cfg.HistoryLimit); err != nil {
		slog.Error("telegram publish inbound failed", "error", err)
	}
}

// Send delivers a text message to the given chat ID.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return corekind.Wrap(corekind.InvalidInput, "telegram.Send", err)
	}
	_, err = c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   msg.Content,
	})
	if err != nil {
		return corekind.Wrap(corekind.Io, "telegram.Send", err)
	}
	return nil
}

// Stop cancels long polling and waits for the consumer goroutine.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		<-c.pollDone
	}
	return nil
}

// Destroy releases the bot client. Idempotent.
func (c *Channel) Destroy() error {
	c.bot = nil
	return nil
}
