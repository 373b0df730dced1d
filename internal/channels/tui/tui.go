// Package tui implements a local console channel: an interactive
// operator prompt for input, and width-aware terminal output for
// replies. Its synthetic transport identity is "tui", conversation id
// "0" for the single local operator.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// OperatorChatID is the synthetic conversation id for the single local
// operator session.
const OperatorChatID = "0"

// promptForm abstracts huh's blocking form so tests can substitute a
// canned input without a real terminal.
type promptForm interface {
	Run() (string, error)
}

type huhForm struct {
	prompt string
}

func (f *huhForm) Run() (string, error) {
	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewText().Title(f.prompt).Value(&value),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return value, nil
}

// Channel reads operator input from the local terminal and writes
// replies back to stdout.
type Channel struct {
	*channels.BaseChannel
	cfg     config.TUIConfig
	newForm func() promptForm
}

var _ channels.Channel = (*Channel)(nil)

// New creates a local console channel.
func New(cfg config.TUIConfig, msgBus *bus.Bus) *Channel {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = "you>"
	}
	ch := &Channel{
		BaseChannel: channels.NewBaseChannel("tui", msgBus, nil),
		cfg:         cfg,
	}
	ch.newForm = func() promptForm { return &huhForm{prompt: prompt} }
	return ch
}

// Init is a no-op; the terminal is always available.
func (c *Channel) Init(_ context.Context) error { return nil }

// Start marks the channel running.
func (c *Channel) Start(_ context.Context) error {
	c.SetRunning(true)
	return nil
}

// Poll blocks on one interactive prompt and publishes the resulting
// line as an inbound message. Returns Timeout on an empty line (no
// progress), matching the contract's "nothing read" signal.
func (c *Channel) Poll(_ context.Context) error {
	line, err := c.newForm().Run()
	if err != nil {
		return corekind.Wrap(corekind.Io, "tui.Poll", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return corekind.New(corekind.Timeout, "tui.Poll")
	}
	return corekind.Wrap(corekind.Io, "tui.Poll",
		c.HandleMessage("operator", OperatorChatID, line, 0))
}

// Send writes a reply to stdout, padding the "goclaw>" label to a
// fixed display width so replies line up regardless of terminal font.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	label := runewidth.FillRight("goclaw>", 8)
	fmt.Println(label, msg.Content)
	return nil
}

// Stop marks the channel stopped.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return nil
}

// Destroy is a no-op.
func (c *Channel) Destroy() error { return nil }
