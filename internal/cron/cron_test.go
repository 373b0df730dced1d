package cron

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

type fakeExecutor struct {
	busMessages []string
	agentEvents []string
}

func (f *fakeExecutor) RunShell(command, args string) error { return nil }
func (f *fakeExecutor) RunTool(name, args string) error      { return nil }
func (f *fakeExecutor) PublishBusMessage(target, content string) error {
	f.busMessages = append(f.busMessages, target+"|"+content)
	return nil
}
func (f *fakeExecutor) PublishAgentEvent(jobName, command string) error {
	f.agentEvents = append(f.agentEvents, jobName+"|"+command)
	return nil
}

func TestParseEveryDuration(t *testing.T) {
	now := time.Now()
	kind, interval, ok := ParseSchedule("@every 30s", now)
	if !ok || kind != ScheduleInterval || interval != 30 {
		t.Fatalf("got kind=%v interval=%d ok=%v, want Interval/30/true", kind, interval, ok)
	}
}

func TestParseOnceDuration(t *testing.T) {
	now := time.Now()
	kind, interval, ok := ParseSchedule("@once 1s", now)
	if !ok || kind != ScheduleOnce || interval != 1 {
		t.Fatalf("got kind=%v interval=%d ok=%v", kind, interval, ok)
	}
}

func TestCronOneShotBusMessage(t *testing.T) {
	exec := &fakeExecutor{}
	s := NewScheduler(exec, nil)
	id := s.Add("greet", ActionBusMessage, "@once 1s", "hi", "telegram:100")
	if id < 0 {
		t.Fatalf("Add returned -1")
	}

	fireAt := time.Now().Add(2 * time.Second)
	if n := s.Tick(fireAt); n != 1 {
		t.Fatalf("Tick executed = %d, want 1", n)
	}
	if len(exec.busMessages) != 1 || exec.busMessages[0] != "telegram:100|hi" {
		t.Fatalf("got busMessages %+v", exec.busMessages)
	}

	// Subsequent ticks produce no further messages; job is Completed.
	if n := s.Tick(fireAt.Add(5 * time.Second)); n != 0 {
		t.Fatalf("second Tick executed = %d, want 0", n)
	}
	s.mu.Lock()
	state := s.jobs[id].State
	s.mu.Unlock()
	if state != StateCompleted {
		t.Fatalf("job state = %v, want Completed", state)
	}
}

func TestRemovePauseResume(t *testing.T) {
	exec := &fakeExecutor{}
	s := NewScheduler(exec, nil)
	id := s.Add("tick", ActionBusMessage, "@every 10s", "hi", "telegram:1")

	if err := s.Pause(id); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if n := s.Tick(time.Now().Add(20 * time.Second)); n != 0 {
		t.Fatalf("paused job fired, count=%d", n)
	}
	if err := s.Resume(id); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := s.Remove(id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(id); corekind.KindOf(err) != corekind.NotFound {
		t.Fatalf("expected NotFound removing twice, got %v", err)
	}
}

func TestParseScheduleRejectsGarbage(t *testing.T) {
	if _, _, ok := ParseSchedule("not a schedule", time.Now()); ok {
		t.Fatalf("expected garbage schedule to be rejected")
	}
}
