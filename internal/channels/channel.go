// Package channels provides the transport-adapter contract, a
// BaseChannel helper embedding common allowlist and policy logic, and
// the Manager that drives each adapter's poll loop and outbound
// dispatch.
package channels

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// InternalChannels are system channels excluded from outbound dispatch.
var InternalChannels = map[string]bool{
	"cron-agent": true,
	"heartbeat":  true,
}

// IsInternalChannel checks if a channel name is internal.
func IsInternalChannel(name string) bool {
	return InternalChannels[name]
}

// DMPolicy controls how direct messages from unknown senders are handled.
type DMPolicy string

const (
	DMPolicyAllowlist DMPolicy = "allowlist"
	DMPolicyOpen      DMPolicy = "open"
	DMPolicyDisabled  DMPolicy = "disabled"
)

// GroupPolicy controls how group messages are handled.
type GroupPolicy string

const (
	GroupPolicyOpen      GroupPolicy = "open"
	GroupPolicyAllowlist GroupPolicy = "allowlist"
	GroupPolicyDisabled  GroupPolicy = "disabled"
)

// Channel is the transport-adapter contract every concrete channel
// implements.
type Channel interface {
	// Init wires up the bus back-reference and validates configuration.
	// Idempotent before Start.
	Init(ctx context.Context) error

	// Start verifies external connectivity (e.g. a platform "who am I"
	// call) and transitions the channel to Running.
	Start(ctx context.Context) error

	// Poll performs one round of reading from the transport, publishing
	// each valid inbound message to the bus. Returns Timeout when
	// nothing was read, nil on progress, any other error indicates a
	// transient failure.
	Poll(ctx context.Context) error

	// Send delivers a text payload to a specific conversation.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// Stop requests cooperative shutdown; state becomes Stopped.
	Stop(ctx context.Context) error

	// Destroy releases implementation resources. Called once;
	// subsequent calls are no-ops.
	Destroy() error

	// Name returns the channel identifier (e.g. "telegram", "discord").
	Name() string

	// IsRunning reports the channel's current lifecycle state.
	IsRunning() bool

	// SetRunning updates the channel's lifecycle flag. Called by Manager
	// after a successful Start and before a Stop.
	SetRunning(running bool)

	// IsAllowed checks if a sender is permitted by the channel's
	// allowlist.
	IsAllowed(senderID string) bool
}

// BaseChannel provides the allowlist/policy/publish machinery shared by
// every concrete channel. Channel implementations embed this struct.
type BaseChannel struct {
	name      string
	bus       *bus.Bus
	running   bool
	allowList []string

	DMPolicy    DMPolicy
	GroupPolicy GroupPolicy
}

// NewBaseChannel creates a new BaseChannel bound to msgBus.
func NewBaseChannel(name string, msgBus *bus.Bus, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:        name,
		bus:         msgBus,
		allowList:   allowList,
		DMPolicy:    DMPolicyOpen,
		GroupPolicy: GroupPolicyOpen,
	}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running }

func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.Bus { return c.bus }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// IsAllowed checks if a sender is permitted by the allowlist. Supports
// compound senderID format "123456|username". Empty allowlist means all
// senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID := trimmed
		allowedUser := ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			allowedID = trimmed[:idx]
			allowedUser = trimmed[idx+1:]
		}

		if senderID == allowed ||
			idPart == allowed ||
			senderID == trimmed ||
			idPart == trimmed ||
			idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == allowed || userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}

	return false
}

// CheckPolicy evaluates DM/Group policy for a message. peerKind is
// "direct" or "group".
func (c *BaseChannel) CheckPolicy(peerKind, senderID string) bool {
	if peerKind == "group" {
		switch c.GroupPolicy {
		case GroupPolicyDisabled:
			return false
		case GroupPolicyAllowlist:
			return c.IsAllowed(senderID)
		default:
			return true
		}
	}
	switch c.DMPolicy {
	case DMPolicyDisabled:
		return false
	case DMPolicyAllowlist:
		return c.IsAllowed(senderID)
	default:
		return true
	}
}

// HandleMessage publishes an inbound message to the bus on behalf of a
// concrete channel, after checking the allowlist.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, historyLimit int) error {
	if !c.IsAllowed(senderID) {
		return nil
	}
	return corekind.Wrap(corekind.Io, "channels.HandleMessage",
		c.bus.PublishInbound(c.name, senderID, chatID, []byte(content), historyLimit))
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
