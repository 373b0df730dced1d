// Package cron implements the tick-driven persistent job scheduler:
// schedule parsing (@every/@once/five-field cron expressions), a
// fixed-capacity job table, and action dispatch by kind.
package cron

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// ActionKind names what a job does when it fires.
type ActionKind int

const (
	ActionShell ActionKind = iota
	ActionTool
	ActionBusMessage
	ActionAgent
)

// State is a job's lifecycle state.
type State int

const (
	StateActive State = iota
	StatePaused
	StateCompleted
)

// ScheduleKind names how a job's next run is computed.
type ScheduleKind int

const (
	ScheduleOnce ScheduleKind = iota
	ScheduleInterval
	ScheduleCron
)

// MaxJobs bounds the job table.
const MaxJobs = 32

// Job is a single scheduled action.
type Job struct {
	ID           int64
	Name         string
	Action       ActionKind
	State        State
	ScheduleKind ScheduleKind
	ScheduleText string // original schedule text, for Cron kind re-evaluation
	IntervalSec  int64
	NextRun      int64
	LastRun      int64
	RunCount     int64
	FailCount    int64
	Command      string
	Args         string
	CreatedAt    int64
}

// Executor runs a job's action by kind. Implementations are supplied by
// the host (shell exec, tool registry, bus publish); cron itself has no
// knowledge of any of them.
type Executor interface {
	RunShell(command, args string) error
	RunTool(name, args string) error
	PublishBusMessage(target, content string) error
	PublishAgentEvent(jobName, command string) error
}

// Store persists the job table and an append-only execution log.
type Store interface {
	UpsertJob(j *Job) error
	LoadJobs() ([]Job, error)
	AppendLog(jobID int64, status, output string, executedAt, durationMs int64) error
}

// Scheduler owns the job table; Tick is expected to be called once per
// second by the host.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[int64]*Job
	nextID int64

	store Store
	exec  Executor
}

func NewScheduler(exec Executor, store Store) *Scheduler {
	return &Scheduler{
		jobs:  make(map[int64]*Job),
		exec:  exec,
		store: store,
	}
}

// Load replays the job table from the persistence store.
func (s *Scheduler) Load() error {
	if s.store == nil {
		return nil
	}
	rows, err := s.store.LoadJobs()
	if err != nil {
		return corekind.Wrap(corekind.Io, "cron.Load", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		row := r
		s.jobs[row.ID] = &row
		if row.ID >= s.nextID {
			s.nextID = row.ID + 1
		}
	}
	return nil
}

// Add assigns a monotonically increasing id, computes next_run from the
// parsed schedule, persists, and returns the new id (or -1 on failure).
func (s *Scheduler) Add(name string, action ActionKind, schedule, command, args string) int64 {
	kind, interval, ok := ParseSchedule(schedule, time.Now())
	if !ok {
		return -1
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	job := &Job{
		ID:           id,
		Name:         name,
		Action:       action,
		State:        StateActive,
		ScheduleKind: kind,
		ScheduleText: schedule,
		IntervalSec:  interval,
		NextRun:      time.Now().Unix() + interval,
		Command:      command,
		Args:         args,
		CreatedAt:    time.Now().Unix(),
	}
	s.jobs[id] = job
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.UpsertJob(job); err != nil {
			slog.Warn("cron: failed to persist new job", "name", name, "error", err)
		}
	}
	return id
}

func (s *Scheduler) Remove(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return corekind.New(corekind.NotFound, "cron.Remove")
	}
	delete(s.jobs, id)
	return nil
}

func (s *Scheduler) Pause(id int64) error {
	return s.setState(id, StatePaused)
}

// Resume recomputes next_run from the current time.
func (s *Scheduler) Resume(id int64) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return corekind.New(corekind.NotFound, "cron.Resume")
	}
	job.State = StateActive
	_, interval, ok2 := ParseSchedule(job.ScheduleText, time.Now())
	if ok2 {
		job.IntervalSec = interval
	}
	job.NextRun = time.Now().Unix() + job.IntervalSec
	s.mu.Unlock()
	return s.persist(job)
}

func (s *Scheduler) setState(id int64, st State) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return corekind.New(corekind.NotFound, "cron.setState")
	}
	job.State = st
	s.mu.Unlock()
	return s.persist(job)
}

func (s *Scheduler) persist(job *Job) error {
	if s.store == nil {
		return nil
	}
	return corekind.Wrap(corekind.Io, "cron.persist", s.store.UpsertJob(job))
}

// Tick executes every Active job whose next_run <= now, synchronously,
// logging the outcome and advancing next_run (or marking Completed for
// Once-scheduled jobs). Returns the count executed.
func (s *Scheduler) Tick(now time.Time) int {
	s.mu.Lock()
	due := make([]*Job, 0)
	for _, j := range s.jobs {
		if j.State == StateActive && j.NextRun <= now.Unix() {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	executed := 0
	for _, j := range due {
		start := time.Now()
		err := s.runAction(j)
		duration := time.Since(start).Milliseconds()

		s.mu.Lock()
		j.LastRun = now.Unix()
		status := "ok"
		if err != nil {
			j.FailCount++
			status = "error"
			slog.Warn("cron: job execution failed", "job", j.Name, "error", err)
		} else {
			j.RunCount++
		}
		if j.ScheduleKind == ScheduleOnce {
			j.State = StateCompleted
		} else {
			if j.ScheduleKind == ScheduleCron {
				if _, iv, ok := ParseSchedule(j.ScheduleText, now); ok {
					j.IntervalSec = iv
				}
			}
			j.NextRun = now.Unix() + j.IntervalSec
		}
		s.mu.Unlock()

		if s.store != nil {
			if err := s.store.AppendLog(j.ID, status, "", now.Unix(), duration); err != nil {
				slog.Warn("cron: failed to append execution log", "job", j.Name, "error", err)
			}
			if err := s.store.UpsertJob(j); err != nil {
				slog.Warn("cron: failed to persist job after tick", "job", j.Name, "error", err)
			}
		}
		executed++
	}
	return executed
}

func (s *Scheduler) runAction(j *Job) error {
	if s.exec == nil {
		return corekind.New(corekind.Config, "cron.runAction")
	}
	switch j.Action {
	case ActionShell:
		return s.exec.RunShell(j.Command, j.Args)
	case ActionTool:
		return s.exec.RunTool(j.Command, j.Args)
	case ActionBusMessage:
		return s.exec.PublishBusMessage(j.Args, j.Command)
	case ActionAgent:
		return s.exec.PublishAgentEvent(j.Name, j.Command)
	default:
		return corekind.New(corekind.InvalidInput, "cron.runAction")
	}
}

var gronEval = gronx.New()

// ParseSchedule accepts "@every <duration>", "@once <duration>", or a
// five-field cron expression (delegated to gronx for real evaluation).
// Returns the schedule kind and the initial interval in seconds (for
// Once/Interval) or the seconds until the next cron-computed fire (for
// Cron, recomputed after every fire and on Resume since cron expressions aren't
// fixed intervals).
func ParseSchedule(schedule string, now time.Time) (ScheduleKind, int64, bool) {
	schedule = strings.TrimSpace(schedule)
	switch {
	case strings.HasPrefix(schedule, "@every "):
		d, ok := parseDuration(strings.TrimPrefix(schedule, "@every "))
		if !ok {
			return 0, 0, false
		}
		return ScheduleInterval, d, true
	case strings.HasPrefix(schedule, "@once "):
		d, ok := parseDuration(strings.TrimPrefix(schedule, "@once "))
		if !ok {
			return 0, 0, false
		}
		return ScheduleOnce, d, true
	default:
		if !gronEval.IsValid(schedule) {
			return 0, 0, false
		}
		next, err := gronx.NextTick(schedule, false)
		if err != nil {
			return 0, 0, false
		}
		interval := int64(next.Sub(now).Seconds())
		if interval <= 0 {
			interval = 60
		}
		return ScheduleCron, interval, true
	}
}

// parseDuration parses a bare-number-means-seconds duration suffixed
// with s/m/h/d.
func parseDuration(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	unit := int64(1)
	numPart := s
	switch s[len(s)-1] {
	case 's':
		unit = 1
		numPart = s[:len(s)-1]
	case 'm':
		unit = 60
		numPart = s[:len(s)-1]
	case 'h':
		unit = 3600
		numPart = s[:len(s)-1]
	case 'd':
		unit = 86400
		numPart = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n * unit, true
}
