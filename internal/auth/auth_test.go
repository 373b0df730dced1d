package auth

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

type memStore struct {
	rows map[string]Token
}

func newMemStore() *memStore { return &memStore{rows: make(map[string]Token)} }

func (s *memStore) UpsertToken(t Token) error {
	s.rows[t.Token] = t
	return nil
}

func (s *memStore) Load() ([]Token, error) {
	out := make([]Token, 0, len(s.rows))
	for _, t := range s.rows {
		out = append(out, t)
	}
	return out, nil
}

func TestCreateValidateIdempotence(t *testing.T) {
	m, err := NewManager(nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tok, err := m.Create("ci", PermChat|PermTools, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := m.Validate(tok); got != PermChat|PermTools {
		t.Fatalf("Validate = %v, want %v", got, PermChat|PermTools)
	}

	if err := m.Revoke(tok); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if got := m.Validate(tok); got != 0 {
		t.Fatalf("Validate after revoke = %v, want 0", got)
	}

	// Revoking an already-revoked token is Ok.
	if err := m.Revoke(tok); err != nil {
		t.Fatalf("Revoke twice: %v", err)
	}
}

func TestRevokeUnknownTokenNotFound(t *testing.T) {
	m, _ := NewManager(nil)
	err := m.Revoke("unknown")
	if corekind.KindOf(err) != corekind.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDevModeGrantsAll(t *testing.T) {
	m, _ := NewManager(nil)
	m.DevMode = true
	if got := m.Validate("anything"); got != PermAll {
		t.Fatalf("Validate in dev mode = %v, want PermAll", got)
	}
}

func TestAllowToolAndCanCallTool(t *testing.T) {
	m, _ := NewManager(nil)
	tok, _ := m.Create("ci", PermChat|PermTools, 0)

	if !m.CanCallTool(tok, "anything") {
		t.Fatalf("expected empty allowlist to allow any tool")
	}

	if err := m.AllowTool(tok, "search"); err != nil {
		t.Fatalf("AllowTool: %v", err)
	}
	if err := m.AllowTool(tok, "search"); corekind.KindOf(err) != corekind.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}

	if !m.CanCallTool(tok, "search") {
		t.Fatalf("expected allowlisted tool to be callable")
	}
	if m.CanCallTool(tok, "shell") {
		t.Fatalf("expected non-allowlisted tool to be rejected")
	}
}

func TestAllowToolFull(t *testing.T) {
	m, _ := NewManager(nil)
	tok, _ := m.Create("ci", PermTools, 0)
	for i := 0; i < MaxAllowedTools; i++ {
		name := string(rune('a' + i))
		if err := m.AllowTool(tok, name); err != nil {
			t.Fatalf("AllowTool %d: %v", i, err)
		}
	}
	if err := m.AllowTool(tok, "overflow"); corekind.KindOf(err) != corekind.Full {
		t.Fatalf("expected Full, got %v", err)
	}
}

func TestCreateFullTable(t *testing.T) {
	m, _ := NewManager(nil)
	for i := 0; i < MaxTokens; i++ {
		if _, err := m.Create("t", PermChat, 0); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if _, err := m.Create("overflow", PermChat, 0); corekind.KindOf(err) != corekind.Full {
		t.Fatalf("expected Full, got %v", err)
	}
}

func TestListMasksToken(t *testing.T) {
	m, _ := NewManager(nil)
	tok, _ := m.Create("ci", PermChat, 0)
	list := m.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 token, got %d", len(list))
	}
	if list[0].Token == tok {
		t.Fatalf("List() should not return the raw token")
	}
	if len(list[0].Token) >= len(tok) {
		t.Fatalf("masked token should be shorter than the original")
	}
}

func TestAuthPersistence(t *testing.T) {
	store := newMemStore()
	m1, err := NewManager(store)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tokA, _ := m1.Create("a", PermChat, 0)
	tokB, _ := m1.Create("b", PermTools, 0)
	if err := m1.Revoke(tokB); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	m2, err := NewManager(store)
	if err != nil {
		t.Fatalf("NewManager (reload): %v", err)
	}
	if got := m2.Validate(tokA); got != PermChat {
		t.Fatalf("reloaded Validate(tokA) = %v, want PermChat", got)
	}
	if got := m2.Validate(tokB); got != 0 {
		t.Fatalf("reloaded Validate(tokB) = %v, want 0 (revoked)", got)
	}
}
