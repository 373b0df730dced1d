package tracing

import (
	"context"
	"testing"
)

func TestStartTurnAndStopDoNotPanic(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	ctx, end := c.StartTurn(context.Background(), "telegram", "telegram:42")
	end()

	toolCtx, endTool := c.StartToolCall(ctx, "echo")
	endTool(nil)
	_ = toolCtx

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
