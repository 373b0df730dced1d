package bus

import (
	"strconv"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/arena"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

const (
	// DefaultCapacity is the default ring depth for each queue.
	DefaultCapacity = 256
	// DefaultArenaBytes sizes the shared payload arena.
	DefaultArenaBytes = 1 << 20 // 1 MiB
)

type inboundRecord struct {
	kind         MessageKind
	channel      arena.Handle
	sender       arena.Handle
	chatID       string
	content      arena.Handle
	sessionKey   string
	historyLimit int
	publishedAt  int64
}

type outboundRecord struct {
	channel     arena.Handle
	chatID      string
	content     arena.Handle
	media       []MediaAttachment
	publishedAt int64
}

// Bus is the two-ring-queue message fabric described by the core spec:
// bounded inbound/outbound queues, each with its own mutex and condition
// variable, sharing a single payload arena.
type Bus struct {
	arena *arena.Arena

	inMu    sync.Mutex
	inCond  *sync.Cond
	inQ     []inboundRecord
	inCap   int

	outMu   sync.Mutex
	outCond *sync.Cond
	outQ    []outboundRecord
	outCap  int

	closedMu sync.Mutex
	closed   bool

	evMu    sync.Mutex
	evSubs  map[string]EventHandler
}

// Option configures a new Bus.
type Option func(*Bus)

// WithCapacity overrides the default 256-deep ring for both queues.
func WithCapacity(capacity int) Option {
	return func(b *Bus) {
		b.inCap = capacity
		b.outCap = capacity
	}
}

// WithArenaBytes overrides the default 1 MiB shared payload arena size.
func WithArenaBytes(n int) Option {
	return func(b *Bus) {
		b.arena = arena.New(n)
	}
}

// New builds a Bus with default capacity 256 per queue and a 1 MiB arena.
func New(opts ...Option) *Bus {
	b := &Bus{
		inCap:  DefaultCapacity,
		outCap: DefaultCapacity,
		arena:  arena.New(DefaultArenaBytes),
		evSubs: make(map[string]EventHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.inCond = sync.NewCond(&b.inMu)
	b.outCond = sync.NewCond(&b.outMu)
	return b
}

// PublishInbound copies channel/sender/content into the shared arena,
// computes the session key "<channel>:<chatID>", and appends the record
// to the inbound queue's tail. Returns QueueFull if the queue is at
// capacity (no blocking) and ArenaFull if the payload copy fails; in
// either case the message is NOT enqueued.
func (b *Bus) PublishInbound(channel, sender, chatID string, content []byte, historyLimit int) error {
	return b.publishInbound(KindUserInput, channel, sender, chatID, content, historyLimit)
}

// PublishSystemEvent is PublishInbound with kind fixed to KindSystemEvent,
// the form cron and heartbeat use to inject synthetic messages that
// should never be mistaken for a real user's input.
func (b *Bus) PublishSystemEvent(channel, sender, chatID string, content []byte) error {
	return b.publishInbound(KindSystemEvent, channel, sender, chatID, content, 0)
}

func (b *Bus) publishInbound(kind MessageKind, channel, sender, chatID string, content []byte, historyLimit int) error {
	b.inMu.Lock()
	defer b.inMu.Unlock()

	if len(b.inQ) >= b.inCap {
		return corekind.New(corekind.QueueFull, "bus.PublishInbound")
	}

	chH, err := b.arena.Alloc([]byte(channel))
	if err != nil {
		return corekind.Wrap(corekind.ArenaFull, "bus.PublishInbound", err)
	}
	snH, err := b.arena.Alloc([]byte(sender))
	if err != nil {
		return corekind.Wrap(corekind.ArenaFull, "bus.PublishInbound", err)
	}
	cH, err := b.arena.Alloc(content)
	if err != nil {
		return corekind.Wrap(corekind.ArenaFull, "bus.PublishInbound", err)
	}

	rec := inboundRecord{
		kind:         kind,
		channel:      chH,
		sender:       snH,
		chatID:       chatID,
		content:      cH,
		sessionKey:   channel + ":" + chatID,
		historyLimit: historyLimit,
		publishedAt:  time.Now().UnixMilli(),
	}
	b.inQ = append(b.inQ, rec)
	b.inCond.Signal()
	return nil
}

// ConsumeInbound pops the head of the inbound queue. With timeoutMs = 0 it
// is non-blocking and returns NotFound if the queue is empty. With a
// positive timeout it waits on the condition variable until the queue is
// non-empty, the bus is destroyed (Eof), or the timeout elapses (Timeout).
func (b *Bus) ConsumeInbound(timeoutMs int) (InboundMessage, error) {
	b.inMu.Lock()
	defer b.inMu.Unlock()

	if len(b.inQ) == 0 {
		if timeoutMs == 0 {
			return InboundMessage{}, corekind.New(corekind.NotFound, "bus.ConsumeInbound")
		}
		if err := b.waitInbound(timeoutMs); err != nil {
			return InboundMessage{}, err
		}
	}

	rec := b.inQ[0]
	b.inQ = b.inQ[1:]
	return b.materializeInbound(rec), nil
}

// waitInbound blocks on inCond until the inbound queue is non-empty, the
// bus is closed, or timeoutMs elapses. Caller must hold inMu.
func (b *Bus) waitInbound(timeoutMs int) error {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	timer := time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
		b.inMu.Lock()
		b.inCond.Broadcast()
		b.inMu.Unlock()
	})
	defer timer.Stop()

	for len(b.inQ) == 0 {
		if b.isClosed() {
			return corekind.New(corekind.Eof, "bus.ConsumeInbound")
		}
		if !time.Now().Before(deadline) {
			return corekind.New(corekind.Timeout, "bus.ConsumeInbound")
		}
		b.inCond.Wait()
	}
	return nil
}

func (b *Bus) materializeInbound(rec inboundRecord) InboundMessage {
	channel := string(b.arena.Bytes(rec.channel))
	sender := string(b.arena.Bytes(rec.sender))
	content := string(b.arena.Bytes(rec.content))
	return InboundMessage{
		Kind:         rec.kind,
		Channel:      channel,
		SenderID:     sender,
		ChatID:       rec.chatID,
		Content:      content,
		SessionKey:   rec.sessionKey,
		HistoryLimit: rec.historyLimit,
		PublishedAt:  rec.publishedAt,
	}
}

// PublishOutbound mirrors PublishInbound on the outbound queue.
func (b *Bus) PublishOutbound(channel, chatID string, content []byte, media []MediaAttachment) error {
	b.outMu.Lock()
	defer b.outMu.Unlock()

	if len(b.outQ) >= b.outCap {
		return corekind.New(corekind.QueueFull, "bus.PublishOutbound")
	}

	chH, err := b.arena.Alloc([]byte(channel))
	if err != nil {
		return corekind.Wrap(corekind.ArenaFull, "bus.PublishOutbound", err)
	}
	cH, err := b.arena.Alloc(content)
	if err != nil {
		return corekind.Wrap(corekind.ArenaFull, "bus.PublishOutbound", err)
	}

	rec := outboundRecord{
		channel:     chH,
		chatID:      chatID,
		content:     cH,
		media:       media,
		publishedAt: time.Now().UnixMilli(),
	}
	b.outQ = append(b.outQ, rec)
	b.outCond.Signal()
	return nil
}

// ConsumeOutbound is always non-blocking; returns NotFound when empty.
func (b *Bus) ConsumeOutbound() (OutboundMessage, error) {
	b.outMu.Lock()
	defer b.outMu.Unlock()

	if len(b.outQ) == 0 {
		return OutboundMessage{}, corekind.New(corekind.NotFound, "bus.ConsumeOutbound")
	}
	rec := b.outQ[0]
	b.outQ = b.outQ[1:]
	return b.materializeOutbound(rec), nil
}

// ConsumeOutboundForChannel does a linear scan of the outbound queue for
// the first record whose channel matches name, extracts it, and shifts
// only the elements after it — a stable single-element removal that
// preserves the relative order of every other element, including other
// channels'. Returns NotFound if no match exists.
func (b *Bus) ConsumeOutboundForChannel(name string) (OutboundMessage, error) {
	b.outMu.Lock()
	defer b.outMu.Unlock()

	for i, rec := range b.outQ {
		if string(b.arena.Bytes(rec.channel)) != name {
			continue
		}
		b.outQ = append(b.outQ[:i], b.outQ[i+1:]...)
		return b.materializeOutbound(rec), nil
	}
	return OutboundMessage{}, corekind.New(corekind.NotFound, "bus.ConsumeOutboundForChannel")
}

func (b *Bus) materializeOutbound(rec outboundRecord) OutboundMessage {
	channel := string(b.arena.Bytes(rec.channel))
	content := string(b.arena.Bytes(rec.content))
	return OutboundMessage{
		Channel:     channel,
		ChatID:      rec.chatID,
		Content:     content,
		Media:       rec.media,
		PublishedAt: rec.publishedAt,
	}
}

// ResetArena acquires both mutexes in a fixed order (inbound then
// outbound) and resets the shared arena. Callers must ensure no consumer
// holds a previously returned reference across this call; by the time a
// consumer has a Go string copy (as returned from Consume*), that copy is
// unaffected by Reset — this only invalidates internal handles still
// sitting in the queues, so callers should only call this when both
// queues are empty.
func (b *Bus) ResetArena() {
	b.inMu.Lock()
	defer b.inMu.Unlock()
	b.outMu.Lock()
	defer b.outMu.Unlock()
	b.arena.Reset()
}

// Counts returns the current inbound and outbound queue depths.
func (b *Bus) Counts() (inbound, outbound int) {
	b.inMu.Lock()
	inbound = len(b.inQ)
	b.inMu.Unlock()

	b.outMu.Lock()
	outbound = len(b.outQ)
	b.outMu.Unlock()
	return inbound, outbound
}

func (b *Bus) isClosed() bool {
	b.closedMu.Lock()
	defer b.closedMu.Unlock()
	return b.closed
}

// Destroy marks the bus as shut down and broadcasts both condition
// variables so every blocked consumer wakes and observes Eof.
func (b *Bus) Destroy() {
	b.closedMu.Lock()
	b.closed = true
	b.closedMu.Unlock()

	b.inMu.Lock()
	b.inCond.Broadcast()
	b.inMu.Unlock()

	b.outMu.Lock()
	b.outCond.Broadcast()
	b.outMu.Unlock()
}

// Subscribe registers an EventHandler under id, satisfying EventPublisher.
func (b *Bus) Subscribe(id string, handler EventHandler) {
	b.evMu.Lock()
	defer b.evMu.Unlock()
	b.evSubs[id] = handler
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(id string) {
	b.evMu.Lock()
	defer b.evMu.Unlock()
	delete(b.evSubs, id)
}

// Broadcast invokes every subscribed handler with event, in no particular
// order (subscribers must not assume ordering relative to each other).
func (b *Bus) Broadcast(event Event) {
	b.evMu.Lock()
	handlers := make([]EventHandler, 0, len(b.evSubs))
	for _, h := range b.evSubs {
		handlers = append(handlers, h)
	}
	b.evMu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// ConvKey builds the canonical "<transport>:<conversation_id>" session key.
func ConvKey(transport string, convID int64) string {
	return transport + ":" + strconv.FormatInt(convID, 10)
}
