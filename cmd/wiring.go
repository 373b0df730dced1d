package main

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
	"github.com/nextlevelbuilder/goclaw/internal/orchestration"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
)

// cronExecutor implements cron.Executor by routing every job action
// kind into the bus/tool registry this process already owns. Shell
// execution is explicitly refused — the built-in tool implementations
// (including a shell tool) are a named out-of-scope concern; a cron job
// wanting a shell side effect should be defined as an ActionTool
// instead.
type cronExecutor struct {
	msgBus   *bus.Bus
	toolsReg *tools.Registry
}

func newCronExecutor(msgBus *bus.Bus, toolsReg *tools.Registry) *cronExecutor {
	return &cronExecutor{msgBus: msgBus, toolsReg: toolsReg}
}

func (e *cronExecutor) RunShell(command, args string) error {
	return corekind.New(corekind.PermissionDenied, "cronExecutor.RunShell")
}

func (e *cronExecutor) RunTool(name, args string) error {
	if e.toolsReg == nil {
		return corekind.New(corekind.NotFound, "cronExecutor.RunTool")
	}
	parsed, err := tools.ArgsFromJSON([]byte(args))
	if err != nil {
		return err
	}
	_, err = e.toolsReg.Dispatch(context.Background(), tools.Call{Name: name, Arguments: parsed})
	return err
}

// PublishBusMessage parses target as "<channel>:<conv_id>" and publishes
// a SystemEvent inbound message carrying the job's command as content on
// that channel/conversation, per the BusMessage action kind's contract.
func (e *cronExecutor) PublishBusMessage(target, content string) error {
	channel, chatID, ok := strings.Cut(target, ":")
	if !ok {
		return corekind.New(corekind.InvalidInput, "cronExecutor.PublishBusMessage")
	}
	return e.msgBus.PublishSystemEvent(channel, "cron", chatID, []byte(content))
}

// PublishAgentEvent publishes a SystemEvent inbound message on the
// synthetic "cron-agent" channel, per the Agent action kind's contract.
func (e *cronExecutor) PublishAgentEvent(jobName, command string) error {
	content := "[Cron:" + jobName + "] " + command
	return e.msgBus.PublishSystemEvent("cron-agent", "cron", jobName, []byte(content))
}

// placeholderLLM is a stand-in for the real language-model client,
// which is an explicit out-of-scope collaborator interface for this
// core: deployments wire in their own Anthropic/OpenAI/etc. client
// satisfying orchestration.LLM in its place.
type placeholderLLM struct{}

func newPlaceholderLLM() *placeholderLLM { return &placeholderLLM{} }

func (placeholderLLM) Chat(_ context.Context, history []sessions.Message, _ []tools.Definition) (orchestration.Reply, error) {
	var last string
	if len(history) > 0 {
		last = history[len(history)-1].Content
	}
	return orchestration.Reply{Content: "no language model configured; last message was: " + last}, nil
}
