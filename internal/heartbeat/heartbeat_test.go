package heartbeat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

type recordingBus struct {
	published []string
}

func (b *recordingBus) PublishSystemEvent(channel, sender, chatID string, content []byte) error {
	b.published = append(b.published, string(content))
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "HEARTBEAT.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestParsePendingAndCompleted(t *testing.T) {
	path := writeFile(t, "- [ ] Check inbox\n- [x] Done\n")
	b := &recordingBus{}
	h := New(path, b)

	tasks, err := h.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].Completed || tasks[0].Text != "Check inbox" || tasks[0].Line != 1 {
		t.Fatalf("task0 = %+v", tasks[0])
	}
	if !tasks[1].Completed || tasks[1].Text != "Done" || tasks[1].Line != 2 {
		t.Fatalf("task1 = %+v", tasks[1])
	}
}

func TestTriggerInjectsAndComplete(t *testing.T) {
	path := writeFile(t, "- [ ] Check inbox\n- [x] Done\n")
	b := &recordingBus{}
	h := New(path, b)

	n, err := h.Trigger(time.Now())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if n != 1 {
		t.Fatalf("injected = %d, want 1", n)
	}
	if len(b.published) != 1 {
		t.Fatalf("published = %d, want 1", len(b.published))
	}

	if err := h.Complete(1); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	b.published = nil
	n, err = h.Trigger(time.Now())
	if err != nil {
		t.Fatalf("second Trigger: %v", err)
	}
	if n != 0 {
		t.Fatalf("injected after complete = %d, want 0", n)
	}
}

func TestCompleteIdempotence(t *testing.T) {
	path := writeFile(t, "- [ ] Check inbox\n")
	h := New(path, &recordingBus{})

	if err := h.Complete(1); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	err := h.Complete(1)
	if corekind.KindOf(err) != corekind.NotFound {
		t.Fatalf("expected NotFound on second Complete, got %v", err)
	}
}

func TestTickRespectsInterval(t *testing.T) {
	path := writeFile(t, "- [ ] Check inbox\n")
	b := &recordingBus{}
	h := New(path, b)
	h.IntervalSec = 3600

	now := time.Now()
	n, err := h.Tick(now)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 1 {
		t.Fatalf("first Tick injected = %d, want 1", n)
	}

	n, err = h.Tick(now.Add(10 * time.Second))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 0 {
		t.Fatalf("Tick before interval elapsed injected = %d, want 0", n)
	}
}
