package channels

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

type fakeChannel struct {
	name      string
	running   bool
	polls     int32
	sent      []bus.OutboundMessage
	pollAlway error
}

func (f *fakeChannel) Init(context.Context) error  { return nil }
func (f *fakeChannel) Start(context.Context) error { f.running = true; return nil }
func (f *fakeChannel) Poll(context.Context) error {
	atomic.AddInt32(&f.polls, 1)
	if f.pollAlway != nil {
		return f.pollAlway
	}
	return corekind.New(corekind.Timeout, "fakeChannel.Poll")
}
func (f *fakeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}
func (f *fakeChannel) Stop(context.Context) error { f.running = false; return nil }
func (f *fakeChannel) Destroy() error              { return nil }
func (f *fakeChannel) Name() string                { return f.name }
func (f *fakeChannel) IsRunning() bool             { return f.running }
func (f *fakeChannel) SetRunning(running bool)     { f.running = running }
func (f *fakeChannel) IsAllowed(string) bool       { return true }

func TestManagerRegisterAndGet(t *testing.T) {
	m := NewManager(bus.New())
	ch := &fakeChannel{name: "fake"}
	if err := m.Register(ch); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := m.Get("fake")
	if !ok || got != ch {
		t.Fatalf("Get returned %v, %v", got, ok)
	}
}

func TestManagerRegisterFull(t *testing.T) {
	m := NewManager(bus.New())
	for i := 0; i < MaxChannels; i++ {
		if err := m.Register(&fakeChannel{name: string(rune('a' + i))}); err != nil {
			t.Fatalf("Register #%d: %v", i, err)
		}
	}
	err := m.Register(&fakeChannel{name: "overflow"})
	if corekind.KindOf(err) != corekind.Full {
		t.Fatalf("expected Full, got %v", err)
	}
}

func TestManagerStartAllPollsAndDispatches(t *testing.T) {
	b := bus.New()
	m := NewManager(b)
	ch := &fakeChannel{name: "fake"}
	if err := m.Register(ch); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	if err := b.PublishOutbound("fake", "chat1", []byte("hi"), nil); err != nil {
		t.Fatalf("PublishOutbound: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(ch.sent) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(ch.sent) != 1 || ch.sent[0].Content != "hi" {
		t.Fatalf("sent = %+v", ch.sent)
	}

	cancel()
	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if ch.running {
		t.Fatal("expected channel to be stopped")
	}
}

func TestManagerDropsOutboundForUnknownChannel(t *testing.T) {
	b := bus.New()
	m := NewManager(b)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if err := b.PublishOutbound("unknown", "chat1", []byte("hi"), nil); err != nil {
		t.Fatalf("PublishOutbound: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	_, outbound := b.Counts()
	if outbound != 0 {
		t.Fatalf("expected outbound message to be drained and dropped, depth = %d", outbound)
	}
}
