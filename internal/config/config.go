// Package config loads the single JSON(5) configuration file the core
// reads at startup: channel credentials, store location, bus
// capacities, session limits, cron/heartbeat intervals, and the auth
// dev-mode flag. It deliberately does not model agent/provider/tool
// policy configuration — those concerns live outside this core.
package config

import (
	"encoding/json"
	"fmt"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON, matching
// how operators hand-edit allowlists.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the core runtime.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Store     StoreConfig     `json:"store"`
	Bus       BusConfig       `json:"bus"`
	Sessions  SessionsConfig  `json:"sessions"`
	Cron      CronConfig      `json:"cron"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Auth      AuthConfig      `json:"auth"`
	Gateway   GatewayConfig   `json:"gateway"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" (default) or "postgres"
	SqlitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"` // from env GOCLAW_POSTGRES_DSN only
}

// BusConfig sizes the inbound/outbound ring queues and shared arena.
type BusConfig struct {
	QueueCapacity int `json:"queue_capacity,omitempty"` // default 256
	ArenaBytes    int `json:"arena_bytes,omitempty"`     // default 1MiB
}

// SessionsConfig controls session history retention and summarisation.
type SessionsConfig struct {
	MaxHistory int `json:"max_history,omitempty"` // default 30
	KeepRecent int `json:"keep_recent,omitempty"` // default 10
}

// CronConfig reserved for future scheduler-level tuning; currently
// empty since MaxJobs/parsing rules are fixed by internal/cron.
type CronConfig struct{}

// HeartbeatConfig configures the workspace HEARTBEAT.md poller.
type HeartbeatConfig struct {
	Path        string `json:"path,omitempty"`          // default "HEARTBEAT.md"
	IntervalSec int    `json:"interval_sec,omitempty"`   // default 1800
	Enabled     bool   `json:"enabled,omitempty"`
}

// AuthConfig controls the bearer-token gate.
type AuthConfig struct {
	DevMode bool `json:"dev_mode,omitempty"`
}

// GatewayConfig controls the WebSocket server.
type GatewayConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:     "sqlite",
			SqlitePath: "./goclaw.db",
		},
		Bus: BusConfig{
			QueueCapacity: 256,
			ArenaBytes:    1 << 20,
		},
		Sessions: SessionsConfig{
			MaxHistory: 30,
			KeepRecent: 10,
		},
		Heartbeat: HeartbeatConfig{
			Path:        "HEARTBEAT.md",
			IntervalSec: 1800,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18790,
		},
	}
}
