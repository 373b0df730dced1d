// Package orchestration implements the distinguished glue task that
// turns one inbound bus message into one LLM turn and an outbound
// reply: consume, run the content-safety shield, append to session
// history, call the language model (dispatching any requested tool
// calls through the tool registry), append the reply, and publish
// outbound on the originating channel/chat.
package orchestration

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/goclaw/internal/auth"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/shield"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// consumeTimeoutMs is how long ConsumeInbound blocks per iteration
// before the loop re-checks ctx.Done.
const consumeTimeoutMs = 200

// ToolCallRequest is one tool invocation the LLM asked for.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// Reply is what an LLM call returns: either final content, or a set of
// tool calls to run before the turn can continue.
type Reply struct {
	Content   string
	ToolCalls []ToolCallRequest
}

// LLM is the language-model collaborator this loop borrows. It is
// intentionally minimal — concrete provider wiring (Anthropic, OpenAI,
// etc.) lives outside this core's scope.
type LLM interface {
	Chat(ctx context.Context, history []sessions.Message, toolDefs []tools.Definition) (Reply, error)
}

// Tracer wraps a turn (and optionally each tool call) in a span. A nil
// Tracer disables tracing entirely.
type Tracer interface {
	StartTurn(ctx context.Context, channel, sessionKey string) (context.Context, func())
	StartToolCall(ctx context.Context, toolName string) (context.Context, func(err error))
}

// Loop owns the single inbound-consume goroutine.
type Loop struct {
	bus      *bus.Bus
	sessions *sessions.Manager
	llm      LLM
	toolsReg *tools.Registry
	authMgr  *auth.Manager
	tracer   Tracer

	// maxToolRounds bounds how many tool-call/response round-trips a
	// single turn may take before giving up with a Timeout error; any
	// content alongside the last round's tool calls is discarded.
	maxToolRounds int
}

// Option configures a Loop.
type Option func(*Loop)

func WithAuth(m *auth.Manager) Option   { return func(l *Loop) { l.authMgr = m } }
func WithTracer(t Tracer) Option        { return func(l *Loop) { l.tracer = t } }
func WithMaxToolRounds(n int) Option    { return func(l *Loop) { l.maxToolRounds = n } }

// NewLoop builds a Loop. toolsReg may be nil to disable tool dispatch.
func NewLoop(msgBus *bus.Bus, sessMgr *sessions.Manager, llm LLM, toolsReg *tools.Registry, opts ...Option) *Loop {
	l := &Loop{
		bus:           msgBus,
		sessions:      sessMgr,
		llm:           llm,
		toolsReg:      toolsReg,
		maxToolRounds: 4,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drains inbound messages until ctx is cancelled. Intended to be
// the body of the single agent-loop goroutine.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := l.bus.ConsumeInbound(consumeTimeoutMs)
		if err != nil {
			if corekind.KindOf(err) == corekind.Timeout {
				continue
			}
			if corekind.KindOf(err) == corekind.Eof {
				return
			}
			slog.Warn("orchestration: consume inbound failed", "error", err)
			continue
		}

		l.handleTurn(ctx, msg)
	}
}

// handleTurn processes exactly one inbound message end to end.
func (l *Loop) handleTurn(ctx context.Context, msg bus.InboundMessage) {
	if !shield.CheckInputInjection([]byte(msg.Content)) {
		slog.Warn("orchestration: rejected inbound message on injection check",
			"channel", msg.Channel, "session", msg.SessionKey)
		l.publishReply(msg, "Rejected: injection detected.")
		return
	}

	if l.tracer != nil {
		var end func()
		ctx, end = l.tracer.StartTurn(ctx, msg.Channel, msg.SessionKey)
		defer end()
	}

	l.broadcastAgentEvent(protocol.AgentEventRunStarted, msg.SessionKey, nil)

	sess := l.sessions.GetOrCreate(msg.SessionKey)
	if err := l.sessions.AddMessage(msg.SessionKey, sessions.RoleUser, msg.Content); err != nil {
		slog.Error("orchestration: failed to append user message", "error", err, "session", msg.SessionKey)
		return
	}

	reply, err := l.runLLMWithTools(ctx, msg.SessionKey, msg.Metadata["auth_token"], sess)
	if err != nil {
		slog.Error("orchestration: llm call failed", "error", err, "session", msg.SessionKey)
		l.broadcastAgentEvent(protocol.AgentEventRunFailed, msg.SessionKey, map[string]interface{}{"error": err.Error()})
		l.publishReply(msg, "Something went wrong generating a reply.")
		return
	}

	if !shield.CheckOutputInjection([]byte(reply)) {
		slog.Warn("orchestration: rejected model output on injection check", "session", msg.SessionKey)
		reply = "Rejected: unsafe content withheld."
	}

	if err := l.sessions.AddMessage(msg.SessionKey, sessions.RoleAssistant, reply); err != nil {
		slog.Error("orchestration: failed to append assistant message", "error", err, "session", msg.SessionKey)
	}

	l.broadcastAgentEvent(protocol.AgentEventRunCompleted, msg.SessionKey, map[string]interface{}{"content": reply})
	l.publishReply(msg, reply)
}

// broadcastAgentEvent pushes an optional streaming/reaction-forwarding
// event for sessionKey. It is a supplementary, best-effort push channel
// (e.g. for a WebSocket client watching the turn live) — nothing in this
// loop depends on any subscriber receiving it. A nil bus is a no-op, so
// this is safe to call unconditionally.
func (l *Loop) broadcastAgentEvent(subtype, sessionKey string, extra map[string]interface{}) {
	if l.bus == nil {
		return
	}
	payload := map[string]interface{}{"type": subtype, "session_key": sessionKey}
	for k, v := range extra {
		payload[k] = v
	}
	l.bus.Broadcast(bus.Event{Name: protocol.EventAgent, Payload: payload})
}

// runLLMWithTools calls the LLM, dispatching any requested tool calls
// and feeding their results back as Tool-role messages, until it gets a
// final content reply or maxToolRounds is exhausted. token identifies
// the caller for the per-call CanCallTool gate; an empty token is only
// permissive when no auth manager is configured or it is in dev mode.
func (l *Loop) runLLMWithTools(ctx context.Context, sessionKey, token string, sess *sessions.Session) (string, error) {
	var toolDefs []tools.Definition
	if l.toolsReg != nil {
		toolDefs = l.toolsReg.Definitions()
	}

	for round := 0; round < l.maxToolRounds; round++ {
		history, err := l.sessions.GetHistory(sessionKey, sessions.RingCapacity)
		if err != nil {
			return "", err
		}

		reply, err := l.llm.Chat(ctx, history, toolDefs)
		if err != nil {
			return "", corekind.Wrap(corekind.Io, "orchestration.runLLMWithTools", err)
		}

		if len(reply.ToolCalls) == 0 {
			return reply.Content, nil
		}

		for _, call := range reply.ToolCalls {
			l.dispatchToolCall(ctx, sessionKey, token, call)
		}
	}

	return "", corekind.New(corekind.Timeout, "orchestration.runLLMWithTools")
}

// dispatchToolCall gates a tool call through CanCallTool, runs it, and
// appends the result as a Tool-role session message. A call rejected by
// the auth gate never reaches the tool registry; its rejection is
// reported back to the model as a Tool-role message, same as any other
// tool failure.
func (l *Loop) dispatchToolCall(ctx context.Context, sessionKey, token string, call ToolCallRequest) {
	if l.toolsReg == nil {
		return
	}

	if !l.CanCallTool(token, call.Name) {
		slog.Warn("orchestration: tool call denied by auth", "tool", call.Name, "session", sessionKey)
		if appendErr := l.sessions.AddMessage(sessionKey, sessions.RoleTool, "tool call denied: permission required"); appendErr != nil {
			slog.Warn("orchestration: failed to append tool result", "error", appendErr, "session", sessionKey)
		}
		return
	}

	var endSpan func(error)
	if l.tracer != nil {
		ctx, endSpan = l.tracer.StartToolCall(ctx, call.Name)
	}

	l.broadcastAgentEvent(protocol.AgentEventToolCall, sessionKey, map[string]interface{}{"tool": call.Name})

	out, err := l.toolsReg.Dispatch(ctx, tools.Call{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
	if endSpan != nil {
		endSpan(err)
	}
	if err != nil {
		out = "tool call failed: " + err.Error()
	}
	l.broadcastAgentEvent(protocol.AgentEventToolResult, sessionKey, map[string]interface{}{"tool": call.Name, "result": out})
	if appendErr := l.sessions.AddMessage(sessionKey, sessions.RoleTool, out); appendErr != nil {
		slog.Warn("orchestration: failed to append tool result", "error", appendErr, "session", sessionKey)
	}
}

func (l *Loop) publishReply(msg bus.InboundMessage, content string) {
	if err := l.bus.PublishOutbound(msg.Channel, msg.ChatID, []byte(content), nil); err != nil {
		slog.Error("orchestration: publish outbound failed", "error", err, "channel", msg.Channel)
	}
}

// CanCallTool reports whether a caller identified by token may invoke
// tool. With no auth manager configured, every call is allowed.
func (l *Loop) CanCallTool(token, tool string) bool {
	if l.authMgr == nil {
		return true
	}
	return l.authMgr.CanCallTool(token, tool)
}
