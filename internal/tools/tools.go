// Package tools implements the minimal tool-call registry the
// orchestration loop dispatches into: a fixed-capacity name->Tool table
// plus JSON-schema descriptors for the LLM request, modeled on the
// function-calling tool shapes used across the provider integrations.
// The many leaf tool implementations (shell, web search, image
// generation, subagent delegation, and so on) are out of scope here;
// this package exists to give the registry contract a real home, with
// two illustrative tools wired in.
package tools

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// MaxTools bounds the fixed registry table.
const MaxTools = 64

// Definition describes a tool's name, purpose, and JSON-schema
// parameters for the LLM's function-calling request.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Call is one tool invocation requested by the LLM.
type Call struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// Tool is a single callable capability.
type Tool interface {
	Definition() Definition
	Run(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry is a fixed-capacity name->Tool table.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Returns AlreadyExists for a duplicate name and
// Full once MaxTools is reached.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Definition().Name
	if _, ok := r.tools[name]; ok {
		return corekind.New(corekind.AlreadyExists, "tools.Register")
	}
	if len(r.tools) >= MaxTools {
		return corekind.New(corekind.Full, "tools.Register")
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Count reports how many tools are registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns every registered tool's Definition, in
// registration order, for inclusion in an LLM request.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Dispatch runs a tool Call against the registry. Callers are expected
// to have already gated the call through an authorization check.
func (r *Registry) Dispatch(ctx context.Context, call Call) (string, error) {
	t, ok := r.Get(call.Name)
	if !ok {
		return "", corekind.New(corekind.NotFound, "tools.Dispatch")
	}
	out, err := t.Run(ctx, call.Arguments)
	if err != nil {
		return "", corekind.Wrap(corekind.Io, "tools.Dispatch", err)
	}
	return out, nil
}

// echoTool returns its single "text" argument verbatim, useful for
// exercising the dispatch path end to end without side effects.
type echoTool struct{}

func (echoTool) Definition() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echo back the given text.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"text": map[string]interface{}{"type": "string"},
			},
			"required": []string{"text"},
		},
	}
}

func (echoTool) Run(_ context.Context, args map[string]interface{}) (string, error) {
	text, _ := args["text"].(string)
	return text, nil
}

// currentTimeTool returns the current UTC time in RFC 3339, driven by
// an injected clock so it stays deterministic in tests.
type currentTimeTool struct {
	now func() time.Time
}

func (currentTimeTool) Definition() Definition {
	return Definition{
		Name:        "current_time",
		Description: "Return the current UTC time in RFC 3339.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}
}

func (t currentTimeTool) Run(_ context.Context, _ map[string]interface{}) (string, error) {
	clock := t.now
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Format(time.RFC3339), nil
}

// NewDefaultRegistry builds a registry with the two illustrative tools
// (echo, current_time) wired in.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(echoTool{})
	_ = r.Register(currentTimeTool{})
	return r
}

// ArgsFromJSON decodes a raw JSON arguments blob, the shape most LLM
// providers hand back for a tool call.
func ArgsFromJSON(raw []byte) (map[string]interface{}, error) {
	var args map[string]interface{}
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, corekind.Wrap(corekind.InvalidInput, "tools.ArgsFromJSON", err)
	}
	return args, nil
}
