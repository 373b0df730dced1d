// Package heartbeat implements the periodic markdown-checklist scanner:
// it turns unchecked "- [ ]" items in a workspace file into inbound bus
// system events, and lets the orchestration task mark a line complete.
package heartbeat

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// MaxTasks bounds a single scan.
const MaxTasks = 16

// MaxTaskBytes bounds a single task's text body.
const MaxTaskBytes = 512

// Channel is the synthetic bus channel heartbeat messages are published
// under.
const Channel = "heartbeat"

// Task is one checklist line.
type Task struct {
	Text      string
	Completed bool
	Line      int // 1-indexed source line number
}

// Publisher is the subset of the bus the heartbeat needs: publishing a
// SystemEvent inbound message.
type Publisher interface {
	PublishSystemEvent(channel, sender, chatID string, content []byte) error
}

// Heartbeat scans Path for "- [ ]"/"- [x]" lines on a configurable
// interval and injects pending tasks into the bus.
type Heartbeat struct {
	Path        string
	IntervalSec int64
	Enabled     bool

	bus       Publisher
	lastCheck int64
}

const DefaultIntervalSec = 1800

// New builds a Heartbeat reading from path, publishing through bus.
func New(path string, bus Publisher) *Heartbeat {
	return &Heartbeat{
		Path:        path,
		IntervalSec: DefaultIntervalSec,
		Enabled:     true,
		bus:         bus,
	}
}

// Parse scans the file at h.Path and returns up to MaxTasks tasks, each
// truncated to MaxTaskBytes, with the source line number retained.
func (h *Heartbeat) Parse() ([]Task, error) {
	f, err := os.Open(h.Path)
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "heartbeat.Parse", err)
	}
	defer f.Close()

	var tasks []Task
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		t, ok := parseLine(line, lineNo)
		if !ok {
			continue
		}
		tasks = append(tasks, t)
		if len(tasks) >= MaxTasks {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, corekind.Wrap(corekind.Io, "heartbeat.Parse", err)
	}
	return tasks, nil
}

func parseLine(line string, lineNo int) (Task, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	var completed bool
	var rest string
	switch {
	case strings.HasPrefix(trimmed, "- [ ] "):
		completed = false
		rest = trimmed[len("- [ ] "):]
	case strings.HasPrefix(trimmed, "- [x] "):
		completed = true
		rest = trimmed[len("- [x] "):]
	default:
		return Task{}, false
	}
	if len(rest) > MaxTaskBytes {
		rest = rest[:MaxTaskBytes]
	}
	return Task{Text: rest, Completed: completed, Line: lineNo}, true
}

// Tick checks the interval and, if due, parses the file and publishes
// one inbound message per pending task. Returns the number injected;
// returns 0 without parsing if not yet time.
func (h *Heartbeat) Tick(now time.Time) (int, error) {
	if !h.Enabled {
		return 0, nil
	}
	if now.Unix()-h.lastCheck < h.IntervalSec {
		return 0, nil
	}
	return h.trigger(now)
}

// Trigger is identical to Tick but ignores the interval check.
func (h *Heartbeat) Trigger(now time.Time) (int, error) {
	return h.trigger(now)
}

func (h *Heartbeat) trigger(now time.Time) (int, error) {
	tasks, err := h.Parse()
	if err != nil {
		return 0, err
	}
	h.lastCheck = now.Unix()

	injected := 0
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		content := "[Heartbeat] Pending task from HEARTBEAT.md: " + t.Text
		if err := h.bus.PublishSystemEvent(Channel, Channel, "0", []byte(content)); err != nil {
			continue
		}
		injected++
	}
	return injected, nil
}

// Complete rewrites the file in place, substituting "- [ ]" with "- [x]"
// on the target line. Fails NotFound if the line is not a pending item.
func (h *Heartbeat) Complete(line int) error {
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return corekind.Wrap(corekind.Io, "heartbeat.Complete", err)
	}
	lines := strings.Split(string(data), "\n")
	if line < 1 || line > len(lines) {
		return corekind.New(corekind.NotFound, "heartbeat.Complete")
	}

	idx := line - 1
	trimmed := strings.TrimLeft(lines[idx], " \t")
	if !strings.HasPrefix(trimmed, "- [ ] ") {
		return corekind.New(corekind.NotFound, "heartbeat.Complete")
	}
	prefixLen := len(lines[idx]) - len(trimmed)
	lines[idx] = lines[idx][:prefixLen] + "- [x] " + trimmed[len("- [ ] "):]

	out := strings.Join(lines, "\n")
	if err := os.WriteFile(h.Path, []byte(out), 0o644); err != nil {
		return corekind.Wrap(corekind.Io, "heartbeat.Complete", err)
	}
	return nil
}
