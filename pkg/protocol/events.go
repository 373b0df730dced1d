// Package protocol defines the WebSocket wire event names shared between
// the core runtime and any connected client.
package protocol

// WebSocket event names pushed from server to client.
const (
	EventAgent    = "agent"
	EventChat     = "chat"
	EventHealth   = "health"
	EventCron     = "cron"
	EventPresence = "presence"
	EventTick     = "tick"
	EventShutdown = "shutdown"
	EventHeartbeat = "heartbeat"
)

// Agent event subtypes (in payload.type).
const (
	AgentEventRunStarted   = "run.started"
	AgentEventRunCompleted = "run.completed"
	AgentEventRunFailed    = "run.failed"
	AgentEventToolCall     = "tool.call"
	AgentEventToolResult   = "tool.result"
)

// Chat event subtypes (in payload.type).
const (
	ChatEventChunk    = "chunk"
	ChatEventMessage  = "message"
	ChatEventThinking = "thinking"
)
