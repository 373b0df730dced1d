// Package discord implements the six-method channel contract over the
// Discord gateway using discordgo.
package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

const messageQueueCapacity = 256
const pollBatchSize = 32
const discordMaxMessageLen = 2000

// inboundMsg is a queued gateway message awaiting Poll.
type inboundMsg struct {
	senderID string
	chatID   string
	content  string
}

// Channel connects to Discord via a gateway session, buffering
// AddHandler-delivered events into an internal queue so Poll can drain
// them in a pull-style loop matching the rest of the channel contract.
type Channel struct {
	*channels.BaseChannel
	cfg       config.DiscordConfig
	session   *discordgo.Session
	botUserID string
	queue     chan inboundMsg
}

var _ channels.Channel = (*Channel)(nil)

// New creates a Discord channel from config.
func New(cfg config.DiscordConfig, msgBus *bus.Bus) (*Channel, error) {
	base := channels.NewBaseChannel("discord", msgBus, cfg.AllowFrom)
	if cfg.DMPolicy != "" {
		base.DMPolicy = channels.DMPolicy(cfg.DMPolicy)
	}
	if cfg.GroupPolicy != "" {
		base.GroupPolicy = channels.GroupPolicy(cfg.GroupPolicy)
	}
	return &Channel{
		BaseChannel: base,
		cfg:         cfg,
		queue:       make(chan inboundMsg, messageQueueCapacity),
	}, nil
}

// Init constructs the gateway session and registers the handler.
func (c *Channel) Init(_ context.Context) error {
	if c.cfg.Token == "" {
		return corekind.New(corekind.Config, "discord.Init")
	}
	if c.session != nil {
		return nil
	}
	session, err := discordgo.New("Bot " + c.cfg.Token)
	if err != nil {
		return corekind.Wrap(corekind.Io, "discord.Init", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.AddHandler(c.onMessageCreate)
	c.session = session
	return nil
}

// Start opens the gateway connection.
func (c *Channel) Start(_ context.Context) error {
	if c.session == nil {
		return corekind.New(corekind.Config, "discord.Start")
	}
	if err := c.session.Open(); err != nil {
		return corekind.Wrap(corekind.Io, "discord.Start", err)
	}
	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return corekind.Wrap(corekind.Io, "discord.Start", err)
	}
	c.botUserID = user.ID
	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

func (c *Channel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == c.botUserID {
		return
	}
	select {
	case c.queue <- inboundMsg{senderID: m.Author.ID, chatID: m.ChannelID, content: m.Content}:
	default:
		slog.Warn("discord message queue full, dropping message", "channel_id", m.ChannelID)
	}
}

// Poll drains up to pollBatchSize queued messages, publishing each to
// the bus. Returns Timeout when nothing was queued.
func (c *Channel) Poll(_ context.Context) error {
	n := 0
	for i := 0; i < pollBatchSize; i++ {
		select {
		case m := <-c.queue:
			if err := c.HandleMessage(m.senderID, m.chatID, m.content, c.cfg.HistoryLimit); err != nil {
				slog.Error("discord publish inbound failed", "error", err)
			}
			n++
		default:
			i = pollBatchSize
		}
	}
	if n == 0 {
		return corekind.New(corekind.Timeout, "discord.Poll")
	}
	return nil
}

// Send delivers content to a Discord channel, splitting at the 2000
// character message limit.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	content := msg.Content
	for len(content) > 0 {
		chunk := content
		if len(chunk) > discordMaxMessageLen {
			cutAt := discordMaxMessageLen
			if idx := lastIndexByte(content[:discordMaxMessageLen], '\n'); idx > discordMaxMessageLen/2 {
				cutAt = idx + 1
			}
			chunk = content[:cutAt]
			content = content[cutAt:]
		} else {
			content = ""
		}
		if _, err := c.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			return corekind.Wrap(corekind.Io, "discord.Send", err)
		}
	}
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.session == nil {
		return nil
	}
	return corekind.Wrap(corekind.Io, "discord.Stop", c.session.Close())
}

// Destroy releases the session. Idempotent.
func (c *Channel) Destroy() error {
	c.session = nil
	return nil
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}
