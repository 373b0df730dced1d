package tools

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

func TestRegisterAndDispatchEcho(t *testing.T) {
	r := NewDefaultRegistry()
	out, err := r.Dispatch(context.Background(), Call{Name: "echo", Arguments: map[string]interface{}{"text": "hi"}})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out != "hi" {
		t.Fatalf("out = %q, want %q", out, "hi")
	}
}

func TestDispatchUnknownToolIsNotFound(t *testing.T) {
	r := NewDefaultRegistry()
	_, err := r.Dispatch(context.Background(), Call{Name: "nope"})
	if corekind.KindOf(err) != corekind.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRegisterDuplicateIsAlreadyExists(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register(echoTool{})
	if corekind.KindOf(err) != corekind.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestRegisterFullAtCapacity(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxTools; i++ {
		name := string(rune('a' + i%26))
		tool := namedTool{name: name + string(rune(i))}
		if err := r.Register(tool); err != nil {
			t.Fatalf("Register #%d: %v", i, err)
		}
	}
	err := r.Register(namedTool{name: "overflow"})
	if corekind.KindOf(err) != corekind.Full {
		t.Fatalf("expected Full, got %v", err)
	}
}

type namedTool struct{ name string }

func (n namedTool) Definition() Definition { return Definition{Name: n.name} }
func (n namedTool) Run(context.Context, map[string]interface{}) (string, error) {
	return "", nil
}

func TestCurrentTimeToolUsesInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tool := currentTimeTool{now: func() time.Time { return fixed }}
	out, err := tool.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "2026-01-02T03:04:05Z"
	if out != want {
		t.Fatalf("out = %q, want %q", out, want)
	}
}

func TestDefinitionsReturnsRegistrationOrder(t *testing.T) {
	r := NewDefaultRegistry()
	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Name != "echo" || defs[1].Name != "current_time" {
		t.Fatalf("defs = %+v", defs)
	}
}

func TestArgsFromJSON(t *testing.T) {
	args, err := ArgsFromJSON([]byte(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("ArgsFromJSON: %v", err)
	}
	if args["text"] != "hi" {
		t.Fatalf("args = %+v", args)
	}

	if _, err := ArgsFromJSON([]byte("not json")); corekind.KindOf(err) != corekind.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}
