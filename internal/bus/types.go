// Package bus implements the central message-passing fabric: two bounded
// ring queues (inbound/outbound) backed by a shared arena, with FIFO
// delivery, blocking consumes with timeouts, and channel-filtered dequeue
// for the outbound side.
package bus

// MessageKind classifies a BusMessage.
type MessageKind int

const (
	KindUserInput MessageKind = iota
	KindSystemEvent
	KindToolResult
	KindOutbound
)

func (k MessageKind) String() string {
	switch k {
	case KindUserInput:
		return "user_input"
	case KindSystemEvent:
		return "system_event"
	case KindToolResult:
		return "tool_result"
	case KindOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// InboundMessage represents a message received from a channel (Telegram,
// Discord, etc.) and enqueued onto the bus's inbound ring.
type InboundMessage struct {
	Kind         MessageKind       `json:"kind"`
	Channel      string            `json:"channel"`
	SenderID     string            `json:"sender_id"`
	ChatID       string            `json:"chat_id"`
	Content      string            `json:"content"`
	Media        []string          `json:"media,omitempty"`
	SessionKey   string            `json:"session_key"`
	HistoryLimit int               `json:"history_limit,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	PublishedAt  int64             `json:"published_at_ms"`
}

// OutboundMessage represents a message to be sent to a channel, drained
// from the bus's outbound ring by the channel dispatcher.
type OutboundMessage struct {
	Channel     string            `json:"channel"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	Media       []MediaAttachment `json:"media,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	PublishedAt int64             `json:"published_at_ms"`
}

// MediaAttachment represents a media file to be sent with a message.
type MediaAttachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// Event represents a server-side event to broadcast to WebSocket clients.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// MessageHandler handles an inbound message from a specific channel.
type MessageHandler func(InboundMessage) error

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription, letting the
// WebSocket server and orchestration task decouple from the concrete Bus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}
