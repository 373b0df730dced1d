package tui

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

type fakeForm struct {
	line string
	err  error
}

func (f *fakeForm) Run() (string, error) { return f.line, f.err }

func TestPollPublishesTypedLine(t *testing.T) {
	b := bus.New()
	ch := New(config.TUIConfig{}, b)
	ch.newForm = func() promptForm { return &fakeForm{line: "hello agent"} }

	if err := ch.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	msg, err := b.ConsumeInbound(0)
	if err != nil {
		t.Fatalf("ConsumeInbound: %v", err)
	}
	if msg.Channel != "tui" || msg.ChatID != OperatorChatID || msg.Content != "hello agent" {
		t.Fatalf("got %+v", msg)
	}
}

func TestPollEmptyLineIsTimeout(t *testing.T) {
	b := bus.New()
	ch := New(config.TUIConfig{}, b)
	ch.newForm = func() promptForm { return &fakeForm{line: "   "} }

	err := ch.Poll(context.Background())
	if corekind.KindOf(err) != corekind.Timeout {
		t.Fatalf("expected Timeout, got %v", err)
	}
}

func TestSendDoesNotError(t *testing.T) {
	ch := New(config.TUIConfig{}, bus.New())
	if err := ch.Send(context.Background(), bus.OutboundMessage{Content: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
