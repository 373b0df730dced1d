// Package store provides the sqlite-backed persistence implementation
// shared by auth, sessions, and cron. Tables are created on open
// ("CREATE TABLE IF NOT EXISTS") rather than through a migration runner,
// per the core's recreate-on-open persistence contract.
package store

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/goclaw/internal/auth"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
	"github.com/nextlevelbuilder/goclaw/internal/cron"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	key TEXT PRIMARY KEY,
	channel TEXT,
	chat_id TEXT,
	summary TEXT,
	total_messages INTEGER,
	created_at INTEGER,
	last_active INTEGER
);
CREATE TABLE IF NOT EXISTS session_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT,
	role TEXT,
	content TEXT,
	timestamp_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_session_messages_key ON session_messages(session_key, id DESC);

CREATE TABLE IF NOT EXISTS auth_tokens (
	token TEXT PRIMARY KEY,
	label TEXT,
	permissions INTEGER,
	created_at INTEGER,
	expires_at INTEGER,
	revoked INTEGER,
	allowed_tools TEXT
);

CREATE TABLE IF NOT EXISTS cron_jobs (
	id INTEGER PRIMARY KEY,
	name TEXT,
	action INTEGER,
	state INTEGER,
	schedule_kind INTEGER,
	schedule_text TEXT,
	interval_sec INTEGER,
	next_run INTEGER,
	last_run INTEGER,
	run_count INTEGER,
	fail_count INTEGER,
	command TEXT,
	args TEXT,
	created_at INTEGER
);
CREATE TABLE IF NOT EXISTS cron_log (
	job_id INTEGER,
	status TEXT,
	output TEXT,
	executed_at INTEGER,
	duration_ms INTEGER
);

CREATE TABLE IF NOT EXISTS heartbeat_log (
	event_type TEXT,
	task_line TEXT,
	executed_at INTEGER
);
`

// Store wraps a database/sql handle over modernc.org/sqlite and
// implements auth.Store, sessions.Store, and cron.Store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "store.Open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, corekind.Wrap(corekind.Config, "store.Open", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- auth.Store ---

var _ auth.Store = (*Store)(nil)

func (s *Store) UpsertToken(t auth.Token) error {
	revoked := 0
	if t.Revoked {
		revoked = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO auth_tokens (token, label, permissions, created_at, expires_at, revoked, allowed_tools)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			label=excluded.label, permissions=excluded.permissions,
			expires_at=excluded.expires_at, revoked=excluded.revoked,
			allowed_tools=excluded.allowed_tools`,
		t.Token, t.Label, int64(t.Permissions), t.CreatedAt, t.ExpiresAt, revoked,
		strings.Join(t.AllowedTools, "\n"))
	return corekind.Wrap(corekind.Io, "store.UpsertToken", err)
}

func (s *Store) Load() ([]auth.Token, error) {
	rows, err := s.db.Query(`SELECT token, label, permissions, created_at, expires_at, revoked, allowed_tools FROM auth_tokens`)
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "store.Load", err)
	}
	defer rows.Close()

	var out []auth.Token
	for rows.Next() {
		var t auth.Token
		var perms int64
		var revoked int
		var tools string
		if err := rows.Scan(&t.Token, &t.Label, &perms, &t.CreatedAt, &t.ExpiresAt, &revoked, &tools); err != nil {
			return nil, corekind.Wrap(corekind.Io, "store.Load", err)
		}
		t.Permissions = auth.Permission(perms)
		t.Revoked = revoked != 0
		if tools != "" {
			t.AllowedTools = strings.Split(tools, "\n")
		}
		out = append(out, t)
	}
	return out, corekind.Wrap(corekind.Io, "store.Load", rows.Err())
}

// --- sessions.Store ---

var _ sessions.Store = (*Store)(nil)

func (s *Store) UpsertSession(sess *sessions.Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (key, channel, chat_id, summary, total_messages, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			summary=excluded.summary, total_messages=excluded.total_messages,
			last_active=excluded.last_active`,
		sess.Key, sess.Transport, sess.ConvID, sess.Summary, sess.TotalMessages, sess.CreatedAt, sess.LastActive)
	return corekind.Wrap(corekind.Io, "store.UpsertSession", err)
}

func (s *Store) AppendMessage(key string, m sessions.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO session_messages (session_key, role, content, timestamp_ms) VALUES (?, ?, ?, ?)`,
		key, string(m.Role), m.Content, m.Timestamp)
	return corekind.Wrap(corekind.Io, "store.AppendMessage", err)
}

func (s *Store) DeleteSession(key string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE key = ?`, key); err != nil {
		return corekind.Wrap(corekind.Io, "store.DeleteSession", err)
	}
	_, err := s.db.Exec(`DELETE FROM session_messages WHERE session_key = ?`, key)
	return corekind.Wrap(corekind.Io, "store.DeleteSession", err)
}

// --- cron.Store ---

var _ cron.Store = (*Store)(nil)

func (s *Store) UpsertJob(j *cron.Job) error {
	_, err := s.db.Exec(`
		INSERT INTO cron_jobs (id, name, action, state, schedule_kind, schedule_text, interval_sec,
			next_run, last_run, run_count, fail_count, command, args, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state, next_run=excluded.next_run, last_run=excluded.last_run,
			run_count=excluded.run_count, fail_count=excluded.fail_count`,
		j.ID, j.Name, int(j.Action), int(j.State), int(j.ScheduleKind), j.ScheduleText, j.IntervalSec,
		j.NextRun, j.LastRun, j.RunCount, j.FailCount, j.Command, j.Args, j.CreatedAt)
	return corekind.Wrap(corekind.Io, "store.UpsertJob", err)
}

func (s *Store) LoadJobs() ([]cron.Job, error) {
	rows, err := s.db.Query(`SELECT id, name, action, state, schedule_kind, schedule_text, interval_sec,
		next_run, last_run, run_count, fail_count, command, args, created_at FROM cron_jobs`)
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "store.LoadJobs", err)
	}
	defer rows.Close()

	var out []cron.Job
	for rows.Next() {
		var j cron.Job
		var action, state, scheduleKind int
		if err := rows.Scan(&j.ID, &j.Name, &action, &state, &scheduleKind, &j.ScheduleText, &j.IntervalSec,
			&j.NextRun, &j.LastRun, &j.RunCount, &j.FailCount, &j.Command, &j.Args, &j.CreatedAt); err != nil {
			return nil, corekind.Wrap(corekind.Io, "store.LoadJobs", err)
		}
		j.Action = cron.ActionKind(action)
		j.State = cron.State(state)
		j.ScheduleKind = cron.ScheduleKind(scheduleKind)
		out = append(out, j)
	}
	return out, corekind.Wrap(corekind.Io, "store.LoadJobs", rows.Err())
}

func (s *Store) AppendLog(jobID int64, status, output string, executedAt, durationMs int64) error {
	_, err := s.db.Exec(`INSERT INTO cron_log (job_id, status, output, executed_at, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		jobID, status, output, executedAt, durationMs)
	return corekind.Wrap(corekind.Io, "store.AppendLog", err)
}

// --- heartbeat log ---

// AppendHeartbeatLog records an injected or completed heartbeat event.
func (s *Store) AppendHeartbeatLog(eventType, taskLine string, executedAt int64) error {
	_, err := s.db.Exec(`INSERT INTO heartbeat_log (event_type, task_line, executed_at) VALUES (?, ?, ?)`,
		eventType, taskLine, executedAt)
	return corekind.Wrap(corekind.Io, "store.AppendHeartbeatLog", err)
}
