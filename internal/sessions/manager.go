// Package sessions implements the per-(transport, conversation) history
// manager: a bounded ring of recent messages per session, automatic
// LLM-driven summarisation once the ring grows past max_history, and an
// LRU-evicted session table capped at MaxSessions.
package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/arena"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// Role tags a single message in a session's history ring.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry in a session's ring.
type Message struct {
	Role      Role
	Content   string
	Timestamp int64
}

const (
	// MaxSessions bounds the in-memory session table.
	MaxSessions = 256
	// RingCapacity bounds the in-memory message ring regardless of
	// max_history; persistence keeps the full history.
	RingCapacity = 50
	// DefaultMaxHistory triggers summarisation once exceeded.
	DefaultMaxHistory = 30
	// DefaultKeepRecent is how many of the newest entries survive a
	// summarisation pass.
	DefaultKeepRecent = 10
)

// Session is a single ongoing dialogue keyed by "<transport>:<conv_id>".
type Session struct {
	Key           string
	Transport     string
	ConvID        string
	Messages      []Message
	Summary       string
	TotalMessages int64
	CreatedAt     int64
	LastActive    int64
}

func (s *Session) historyCount() int { return len(s.Messages) }

// ChatFunc is the LLM chat callable the manager borrows to produce
// summaries. It is intentionally minimal — the LLM client itself is a
// named collaborator interface, not part of this core.
type ChatFunc func(ctx context.Context, prompt string) (string, error)

// Store persists session metadata and an append-only message log.
type Store interface {
	UpsertSession(s *Session) error
	AppendMessage(key string, m Message) error
	DeleteSession(key string) error
}

// Manager owns the session table and its own arena for message-body
// storage. It borrows a persistence Store and an LLM ChatFunc.
type Manager struct {
	mu  sync.Mutex
	arn *arena.Arena

	table map[string]*Session

	store Store
	chat  ChatFunc

	MaxHistory int
	KeepRecent int
}

// Option configures a new Manager.
type Option func(*Manager)

func WithStore(s Store) Option { return func(m *Manager) { m.store = s } }
func WithChat(c ChatFunc) Option { return func(m *Manager) { m.chat = c } }
func WithLimits(maxHistory, keepRecent int) Option {
	return func(m *Manager) {
		m.MaxHistory = maxHistory
		m.KeepRecent = keepRecent
	}
}

// NewManager builds a Manager with default max_history=30, keep_recent=10.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		arn:        arena.New(4 << 20),
		table:      make(map[string]*Session),
		MaxHistory: DefaultMaxHistory,
		KeepRecent: DefaultKeepRecent,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the session for key, creating it (and evicting the
// least-recently-active session if the table is full) if it doesn't
// exist yet.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UnixMilli()
	if s, ok := m.table[key]; ok {
		s.LastActive = now
		return s
	}

	if len(m.table) >= MaxSessions {
		m.evictLRULocked()
	}

	transport, convID, _ := ParseKey(key)
	s := &Session{
		Key:        key,
		Transport:  transport,
		ConvID:     convID,
		CreatedAt:  now,
		LastActive: now,
	}
	m.table[key] = s
	return s
}

// evictLRULocked removes the session with the smallest LastActive.
// Caller must hold mu. Eviction only removes the in-memory entry; its
// persisted rows remain.
func (m *Manager) evictLRULocked() {
	var oldestKey string
	var oldest int64
	first := true
	for k, s := range m.table {
		if first || s.LastActive < oldest {
			oldestKey = k
			oldest = s.LastActive
			first = false
		}
	}
	if !first {
		delete(m.table, oldestKey)
	}
}

// AddMessage appends content under role to the session's ring, dropping
// the oldest in-memory entry once the ring reaches RingCapacity (the
// persisted history is unaffected). If history_count exceeds MaxHistory
// and an LLM is configured, triggers Summarise. The guard is a strict
// ">" rather than ">=" so that a single message landing exactly on
// MaxHistory doesn't get summarised and then immediately regrown past
// KeepRecent by the very next append — it fires once the ring has
// actually overshot, and Summarise always compacts back down to
// KeepRecent in the same call.
func (m *Manager) AddMessage(key string, role Role, content string) error {
	m.mu.Lock()
	s, ok := m.table[key]
	if !ok {
		m.mu.Unlock()
		return corekind.New(corekind.NotFound, "sessions.AddMessage")
	}

	if _, err := m.arn.Alloc([]byte(content)); err != nil {
		m.mu.Unlock()
		return corekind.Wrap(corekind.ArenaFull, "sessions.AddMessage", err)
	}

	now := time.Now().UnixMilli()
	msg := Message{Role: role, Content: content, Timestamp: now}
	s.Messages = append(s.Messages, msg)
	if len(s.Messages) > RingCapacity {
		s.Messages = s.Messages[len(s.Messages)-RingCapacity:]
	}
	s.TotalMessages++
	s.LastActive = now
	shouldSummarise := m.chat != nil && s.historyCount() > m.MaxHistory
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.AppendMessage(key, msg); err != nil {
			slog.Warn("sessions: failed to persist message", "key", key, "error", err)
		}
		if err := m.store.UpsertSession(s); err != nil {
			slog.Warn("sessions: failed to persist session row", "key", key, "error", err)
		}
	}

	if shouldSummarise {
		m.Summarise(context.Background(), key)
	}
	return nil
}

// GetHistory returns the last min(max, history_count) entries in
// chronological order.
func (m *Manager) GetHistory(key string, max int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.table[key]
	if !ok {
		return nil, corekind.New(corekind.NotFound, "sessions.GetHistory")
	}
	n := max
	if n > len(s.Messages) {
		n = len(s.Messages)
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]Message, n)
	copy(out, s.Messages[len(s.Messages)-n:])
	return out, nil
}

// Summarise builds a prompt from the previous summary plus the oldest
// (history_count - KeepRecent) ring entries, calls the configured LLM,
// and on success replaces the summary and compacts the ring to
// KeepRecent entries. Failure is logged and leaves the ring intact —
// summarisation is best-effort and never blocks message handling.
func (m *Manager) Summarise(ctx context.Context, key string) {
	m.mu.Lock()
	s, ok := m.table[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	n := s.historyCount() - m.KeepRecent
	if n <= 0 {
		m.mu.Unlock()
		return
	}
	prompt := buildSummaryPrompt(s.Summary, s.Messages[:n])
	m.mu.Unlock()

	reply, err := m.chat(ctx, prompt)
	if err != nil {
		slog.Warn("sessions: summarisation failed, leaving ring intact", "key", key, "error", err)
		return
	}

	m.mu.Lock()
	s, ok = m.table[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	s.Summary = reply
	if len(s.Messages) > m.KeepRecent {
		s.Messages = s.Messages[len(s.Messages)-m.KeepRecent:]
	}
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.UpsertSession(s); err != nil {
			slog.Warn("sessions: failed to persist summary", "key", key, "error", err)
		}
	}
}

func buildSummaryPrompt(prevSummary string, entries []Message) string {
	var b []byte
	if prevSummary != "" {
		b = append(b, "Previous summary:\n"...)
		b = append(b, prevSummary...)
		b = append(b, "\n\n"...)
	}
	b = append(b, "Summarise the following conversation turns:\n"...)
	for _, e := range entries {
		b = append(b, string(e.Role)...)
		b = append(b, ": "...)
		b = append(b, e.Content...)
		b = append(b, '\n')
	}
	return string(b)
}

// Clear wipes the ring, summary, and counter for key, and deletes its
// persisted rows.
func (m *Manager) Clear(key string) error {
	m.mu.Lock()
	s, ok := m.table[key]
	if ok {
		s.Messages = nil
		s.Summary = ""
		s.TotalMessages = 0
	}
	m.mu.Unlock()

	if !ok {
		return corekind.New(corekind.NotFound, "sessions.Clear")
	}
	if m.store != nil {
		return corekind.Wrap(corekind.Io, "sessions.Clear", m.store.DeleteSession(key))
	}
	return nil
}

// SaveAll upserts every in-memory session row to the persistence store.
func (m *Manager) SaveAll() error {
	if m.store == nil {
		return nil
	}
	m.mu.Lock()
	rows := make([]*Session, 0, len(m.table))
	for _, s := range m.table {
		rows = append(rows, s)
	}
	m.mu.Unlock()

	var firstErr error
	for _, s := range rows {
		if err := m.store.UpsertSession(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return corekind.Wrap(corekind.Io, "sessions.SaveAll", firstErr)
	}
	return nil
}
