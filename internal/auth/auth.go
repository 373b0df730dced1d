// Package auth implements bearer-token authentication and authorisation:
// token generation, a permission bitmask, and a per-token tool allowlist,
// persisted through a pluggable Store.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// Permission is a bitmask over named capabilities.
type Permission uint32

const (
	PermChat Permission = 1 << iota
	PermTools
	PermShell
	PermFiles
	PermNetwork
	PermAdmin
	PermDelegate
	PermSkills

	PermAll = PermChat | PermTools | PermShell | PermFiles | PermNetwork | PermAdmin | PermDelegate | PermSkills
)

// MaxTokens is the default fixed-capacity token table size.
const MaxTokens = 32

// MaxAllowedTools caps a single token's tool allowlist.
const MaxAllowedTools = 16

// Token is an in-memory record. The token value is stored unmasked;
// List returns copies with it masked after the first 8 characters.
type Token struct {
	Token        string
	Label        string
	Permissions  Permission
	CreatedAt    int64
	ExpiresAt    int64 // 0 = no expiry
	Revoked      bool
	AllowedTools []string
}

func (t Token) valid(now int64) bool {
	if t.Revoked {
		return false
	}
	return t.ExpiresAt == 0 || t.ExpiresAt > now
}

// Store persists the auth token table. Implementations upsert the full
// row on every mutation and replay every row back on Load.
type Store interface {
	UpsertToken(t Token) error
	Load() ([]Token, error)
}

// Manager owns the in-memory token table and an optional persistence
// Store. DevMode, when true, makes Validate return PermAll for any input
// (development/"grant all" flag) as described in the core spec.
type Manager struct {
	mu      sync.RWMutex
	tokens  map[string]*Token
	store   Store
	DevMode bool
}

// NewManager constructs a Manager. If store is non-nil, every existing
// row is replayed into the in-memory table immediately.
func NewManager(store Store) (*Manager, error) {
	m := &Manager{
		tokens: make(map[string]*Token),
		store:  store,
	}
	if store == nil {
		return m, nil
	}
	rows, err := store.Load()
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "auth.NewManager", err)
	}
	for _, r := range rows {
		row := r
		m.tokens[row.Token] = &row
	}
	return m, nil
}

// generateToken returns 32 cryptographically random bytes rendered as 64
// lowercase hex digits. There is no silent fallback to a weaker source:
// a crypto/rand failure is returned to the caller.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", corekind.Wrap(corekind.Io, "auth.generateToken", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create mints a new token with the given label, permission bitmask, and
// expiry (0 = no expiry). Fails Full if the table is already at
// MaxTokens.
func (m *Manager) Create(label string, perms Permission, expiresAt int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tokens) >= MaxTokens {
		return "", corekind.New(corekind.Full, "auth.Create")
	}

	tok, err := generateToken()
	if err != nil {
		return "", err
	}

	rec := &Token{
		Token:       tok,
		Label:       label,
		Permissions: perms,
		CreatedAt:   time.Now().Unix(),
		ExpiresAt:   expiresAt,
	}
	m.tokens[tok] = rec
	if err := m.persist(rec); err != nil {
		slog.Warn("auth: failed to persist new token", "label", label, "error", err)
	}
	return tok, nil
}

// Validate returns the permission bitmask if token exists, is not
// revoked, and has not expired; otherwise zero. In DevMode it returns
// PermAll unconditionally.
func (m *Manager) Validate(token string) Permission {
	if m.DevMode {
		return PermAll
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tokens[token]
	if !ok || !rec.valid(time.Now().Unix()) {
		return 0
	}
	return rec.Permissions
}

// HasPermission reports (Validate(token) & bit) != 0.
func (m *Manager) HasPermission(token string, bit Permission) bool {
	return m.Validate(token)&bit != 0
}

// Revoke marks token revoked. Idempotent success if already revoked;
// fails NotFound if the token is unknown.
func (m *Manager) Revoke(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tokens[token]
	if !ok {
		return corekind.New(corekind.NotFound, "auth.Revoke")
	}
	if rec.Revoked {
		return nil
	}
	rec.Revoked = true
	if err := m.persist(rec); err != nil {
		slog.Warn("auth: failed to persist revocation", "error", err)
	}
	return nil
}

// AllowTool appends tool to token's allowlist. Fails AlreadyExists on
// duplicate, Full when MaxAllowedTools is reached.
func (m *Manager) AllowTool(token, tool string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tokens[token]
	if !ok {
		return corekind.New(corekind.NotFound, "auth.AllowTool")
	}
	for _, t := range rec.AllowedTools {
		if t == tool {
			return corekind.New(corekind.AlreadyExists, "auth.AllowTool")
		}
	}
	if len(rec.AllowedTools) >= MaxAllowedTools {
		return corekind.New(corekind.Full, "auth.AllowTool")
	}
	rec.AllowedTools = append(rec.AllowedTools, tool)
	if err := m.persist(rec); err != nil {
		slog.Warn("auth: failed to persist tool allowlist", "error", err)
	}
	return nil
}

// CanCallTool requires PermTools. An empty allowlist means every tool is
// allowed; a non-empty allowlist means only the listed tools.
func (m *Manager) CanCallTool(token, tool string) bool {
	if !m.HasPermission(token, PermTools) {
		return false
	}
	m.mu.RLock()
	rec, ok := m.tokens[token]
	m.mu.RUnlock()
	if !ok {
		return m.DevMode
	}
	if len(rec.AllowedTools) == 0 {
		return true
	}
	for _, t := range rec.AllowedTools {
		if t == tool {
			return true
		}
	}
	return false
}

// List returns every token record with the token string masked after the
// first 8 characters.
func (m *Manager) List() []Token {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Token, 0, len(m.tokens))
	for _, rec := range m.tokens {
		masked := *rec
		if len(masked.Token) > 8 {
			masked.Token = masked.Token[:8] + "..."
		}
		out = append(out, masked)
	}
	return out
}

func (m *Manager) persist(rec *Token) error {
	if m.store == nil {
		return nil
	}
	return corekind.Wrap(corekind.Io, "auth.persist", m.store.UpsertToken(*rec))
}
