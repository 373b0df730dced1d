package config

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Slack    SlackConfig    `json:"slack"`
	TUI      TUIConfig      `json:"tui"`
}

// TelegramConfig configures the long-polling Telegram Bot API adapter.
type TelegramConfig struct {
	Enabled        bool                `json:"enabled"`
	Token          string              `json:"token"`
	Proxy          string              `json:"proxy,omitempty"`
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	DMPolicy       string              `json:"dm_policy,omitempty"`       // "open" (default), "allowlist", "disabled"
	GroupPolicy    string              `json:"group_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	RequireMention *bool               `json:"require_mention,omitempty"` // parsed but not read by the adapter; group messages are not mention-filtered
	HistoryLimit   int                 `json:"history_limit,omitempty"`
	PollTimeoutSec int                 `json:"poll_timeout_sec,omitempty"` // long-poll timeout (default 30)
}

// DiscordConfig configures the gateway-session Discord adapter.
type DiscordConfig struct {
	Enabled        bool                `json:"enabled"`
	Token          string              `json:"token"`
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	DMPolicy       string              `json:"dm_policy,omitempty"`
	GroupPolicy    string              `json:"group_policy,omitempty"`
	RequireMention *bool               `json:"require_mention,omitempty"`
	HistoryLimit   int                 `json:"history_limit,omitempty"`
}

// SlackConfig configures the webhook-only outbound Slack adapter
// (inbound polling is a no-op per the core's webhook-only contract).
type SlackConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// TUIConfig configures the local console adapter.
type TUIConfig struct {
	Enabled bool   `json:"enabled"`
	Prompt  string `json:"prompt,omitempty"`
}
