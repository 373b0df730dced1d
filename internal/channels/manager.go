package channels

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// MaxChannels bounds the number of channels a Manager can hold.
const MaxChannels = 16

// pollRetryDelay is how long a channel's poll loop backs off after a
// non-timeout error before retrying.
const pollRetryDelay = 5 * time.Second

// Manager owns the registered channel adapters, drives each one's poll
// loop, and dispatches outbound bus messages to the right adapter.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	bus      *bus.Bus

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewManager creates a channel manager bound to msgBus.
func NewManager(msgBus *bus.Bus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// Register adds a channel to the manager. Returns Full once MaxChannels
// is reached.
func (m *Manager) Register(ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.channels) >= MaxChannels {
		return corekind.New(corekind.Full, "channels.Register")
	}
	m.channels[ch.Name()] = ch
	return nil
}

// Unregister removes a channel from the manager.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

// Get returns a registered channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll initializes and starts every registered channel, then spawns
// a poll-loop goroutine per channel and one outbound-dispatch goroutine.
func (m *Manager) StartAll(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.mu.RLock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		ch, ok := m.Get(name)
		if !ok {
			continue
		}
		if err := ch.Init(runCtx); err != nil {
			slog.Error("channel init failed", "channel", name, "error", err)
			continue
		}
		if err := ch.Start(runCtx); err != nil {
			slog.Error("channel start failed", "channel", name, "error", err)
			continue
		}
		ch.SetRunning(true)
		m.wg.Add(1)
		go m.pollLoop(runCtx, ch)
	}

	m.wg.Add(1)
	go m.dispatchOutbound(runCtx)

	return nil
}

// StopAll requests cooperative shutdown of every channel and waits for
// the poll/dispatch goroutines to exit.
func (m *Manager) StopAll(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			slog.Error("channel stop failed", "channel", name, "error", err)
		}
		ch.SetRunning(false)
		if err := ch.Destroy(); err != nil {
			slog.Error("channel destroy failed", "channel", name, "error", err)
		}
	}
	return nil
}

// pollLoop repeatedly calls ch.Poll until ctx is cancelled. Timeout
// errors are silent (nothing to read); any other error backs off for
// pollRetryDelay before retrying.
func (m *Manager) pollLoop(ctx context.Context, ch Channel) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := ch.Poll(ctx)
		switch {
		case err == nil:
			continue
		case corekind.Is(err, corekind.Timeout):
			continue
		default:
			slog.Warn("channel poll error", "channel", ch.Name(), "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}
		}
	}
}

// dispatchOutbound drains the bus's outbound queue and routes each
// message to its named channel, skipping internal channels and
// channels that are not currently running.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := m.bus.ConsumeOutbound()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		if IsInternalChannel(msg.Channel) {
			continue
		}

		ch, ok := m.Get(msg.Channel)
		if !ok || !ch.IsRunning() {
			slog.Warn("dropping outbound message for unknown/stopped channel", "channel", msg.Channel)
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			slog.Error("channel send failed", "channel", msg.Channel, "error", err)
		}
	}
}

// Names returns the registered channel names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.channels))
	for name := range m.channels {
		out = append(out, name)
	}
	return out
}
