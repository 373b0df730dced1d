// Package slack implements a webhook-only outbound channel: Send posts
// to an incoming-webhook URL, Poll always reports Timeout since there
// is no inbound transport to read from.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

const sendTimeout = 10 * time.Second

// Channel posts outbound messages to a Slack incoming webhook.
type Channel struct {
	*channels.BaseChannel
	cfg    config.SlackConfig
	client *http.Client
}

var _ channels.Channel = (*Channel)(nil)

// New creates a webhook-only Slack channel.
func New(cfg config.SlackConfig, msgBus *bus.Bus) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel("slack", msgBus, nil),
		cfg:         cfg,
		client:      &http.Client{Timeout: sendTimeout},
	}
}

// Init validates the webhook URL is configured.
func (c *Channel) Init(_ context.Context) error {
	if c.cfg.WebhookURL == "" {
		return corekind.New(corekind.Config, "slack.Init")
	}
	return nil
}

// Start marks the channel running; there is no connection to
// establish for a webhook-only outbound adapter.
func (c *Channel) Start(_ context.Context) error {
	c.SetRunning(true)
	return nil
}

// Poll always returns Timeout: this adapter has no inbound transport.
func (c *Channel) Poll(_ context.Context) error {
	return corekind.New(corekind.Timeout, "slack.Poll")
}

type webhookPayload struct {
	Text string `json:"text"`
}

// Send posts content to the configured incoming webhook.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	body, err := json.Marshal(webhookPayload{Text: msg.Content})
	if err != nil {
		return corekind.Wrap(corekind.Io, "slack.Send", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return corekind.Wrap(corekind.Io, "slack.Send", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return corekind.Wrap(corekind.Io, "slack.Send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return corekind.New(corekind.Io, "slack.Send")
	}
	return nil
}

// Stop marks the channel stopped.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return nil
}

// Destroy is a no-op; the channel holds no external resources besides
// the HTTP client.
func (c *Channel) Destroy() error { return nil }
