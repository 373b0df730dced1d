// Package pg provides an optional managed-mode Postgres backend
// implementing the same store interfaces as the sqlite package, for
// deployments that need a shared persistence tier instead of a local
// file.
package pg

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

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
	total_messages BIGINT,
	created_at BIGINT,
	last_active BIGINT
);
CREATE TABLE IF NOT EXISTS session_messages (
	id BIGSERIAL PRIMARY KEY,
	session_key TEXT,
	role TEXT,
	content TEXT,
	timestamp_ms BIGINT
);
CREATE INDEX IF NOT EXISTS idx_session_messages_key ON session_messages(session_key, id DESC);

CREATE TABLE IF NOT EXISTS auth_tokens (
	token TEXT PRIMARY KEY,
	label TEXT,
	permissions BIGINT,
	created_at BIGINT,
	expires_at BIGINT,
	revoked BOOLEAN,
	allowed_tools TEXT
);

CREATE TABLE IF NOT EXISTS cron_jobs (
	id BIGINT PRIMARY KEY,
	name TEXT,
	action INTEGER,
	state INTEGER,
	schedule_kind INTEGER,
	schedule_text TEXT,
	interval_sec BIGINT,
	next_run BIGINT,
	last_run BIGINT,
	run_count BIGINT,
	fail_count BIGINT,
	command TEXT,
	args TEXT,
	created_at BIGINT
);
CREATE TABLE IF NOT EXISTS cron_log (
	job_id BIGINT,
	status TEXT,
	output TEXT,
	executed_at BIGINT,
	duration_ms BIGINT
);

CREATE TABLE IF NOT EXISTS heartbeat_log (
	event_type TEXT,
	task_line TEXT,
	executed_at BIGINT
);
`

// Store wraps a pgxpool.Pool and implements auth.Store, sessions.Store,
// and cron.Store against a Postgres database.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to connString and applies the schema.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "pg.Open", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, corekind.Wrap(corekind.Config, "pg.Open", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

var _ auth.Store = (*Store)(nil)

func (s *Store) UpsertToken(t auth.Token) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_tokens (token, label, permissions, created_at, expires_at, revoked, allowed_tools)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token) DO UPDATE SET
			label=excluded.label, permissions=excluded.permissions,
			expires_at=excluded.expires_at, revoked=excluded.revoked,
			allowed_tools=excluded.allowed_tools`,
		t.Token, t.Label, int64(t.Permissions), t.CreatedAt, t.ExpiresAt, t.Revoked,
		strings.Join(t.AllowedTools, "\n"))
	return corekind.Wrap(corekind.Io, "pg.UpsertToken", err)
}

func (s *Store) Load() ([]auth.Token, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `SELECT token, label, permissions, created_at, expires_at, revoked, allowed_tools FROM auth_tokens`)
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "pg.Load", err)
	}
	defer rows.Close()

	var out []auth.Token
	for rows.Next() {
		var t auth.Token
		var perms int64
		var tools string
		if err := rows.Scan(&t.Token, &t.Label, &perms, &t.CreatedAt, &t.ExpiresAt, &t.Revoked, &tools); err != nil {
			return nil, corekind.Wrap(corekind.Io, "pg.Load", err)
		}
		t.Permissions = auth.Permission(perms)
		if tools != "" {
			t.AllowedTools = strings.Split(tools, "\n")
		}
		out = append(out, t)
	}
	return out, corekind.Wrap(corekind.Io, "pg.Load", rows.Err())
}

var _ sessions.Store = (*Store)(nil)

func (s *Store) UpsertSession(sess *sessions.Session) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (key, channel, chat_id, summary, total_messages, created_at, last_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			summary=excluded.summary, total_messages=excluded.total_messages,
			last_active=excluded.last_active`,
		sess.Key, sess.Transport, sess.ConvID, sess.Summary, sess.TotalMessages, sess.CreatedAt, sess.LastActive)
	return corekind.Wrap(corekind.Io, "pg.UpsertSession", err)
}

func (s *Store) AppendMessage(key string, m sessions.Message) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_messages (session_key, role, content, timestamp_ms) VALUES ($1, $2, $3, $4)`,
		key, string(m.Role), m.Content, m.Timestamp)
	return corekind.Wrap(corekind.Io, "pg.AppendMessage", err)
}

func (s *Store) DeleteSession(key string) error {
	ctx := context.Background()
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE key = $1`, key); err != nil {
		return corekind.Wrap(corekind.Io, "pg.DeleteSession", err)
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM session_messages WHERE session_key = $1`, key)
	return corekind.Wrap(corekind.Io, "pg.DeleteSession", err)
}

var _ cron.Store = (*Store)(nil)

func (s *Store) UpsertJob(j *cron.Job) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cron_jobs (id, name, action, state, schedule_kind, schedule_text, interval_sec,
			next_run, last_run, run_count, fail_count, command, args, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			state=excluded.state, next_run=excluded.next_run, last_run=excluded.last_run,
			run_count=excluded.run_count, fail_count=excluded.fail_count`,
		j.ID, j.Name, int(j.Action), int(j.State), int(j.ScheduleKind), j.ScheduleText, j.IntervalSec,
		j.NextRun, j.LastRun, j.RunCount, j.FailCount, j.Command, j.Args, j.CreatedAt)
	return corekind.Wrap(corekind.Io, "pg.UpsertJob", err)
}

func (s *Store) LoadJobs() ([]cron.Job, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `SELECT id, name, action, state, schedule_kind, schedule_text, interval_sec,
		next_run, last_run, run_count, fail_count, command, args, created_at FROM cron_jobs`)
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "pg.LoadJobs", err)
	}
	defer rows.Close()

	var out []cron.Job
	for rows.Next() {
		var j cron.Job
		var action, state, scheduleKind int
		if err := rows.Scan(&j.ID, &j.Name, &action, &state, &scheduleKind, &j.ScheduleText, &j.IntervalSec,
			&j.NextRun, &j.LastRun, &j.RunCount, &j.FailCount, &j.Command, &j.Args, &j.CreatedAt); err != nil {
			return nil, corekind.Wrap(corekind.Io, "pg.LoadJobs", err)
		}
		j.Action = cron.ActionKind(action)
		j.State = cron.State(state)
		j.ScheduleKind = cron.ScheduleKind(scheduleKind)
		out = append(out, j)
	}
	return out, corekind.Wrap(corekind.Io, "pg.LoadJobs", rows.Err())
}

func (s *Store) AppendLog(jobID int64, status, output string, executedAt, durationMs int64) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cron_log (job_id, status, output, executed_at, duration_ms) VALUES ($1, $2, $3, $4, $5)`,
		jobID, status, output, executedAt, durationMs)
	return corekind.Wrap(corekind.Io, "pg.AppendLog", err)
}

// AppendHeartbeatLog records an injected or completed heartbeat event.
func (s *Store) AppendHeartbeatLog(eventType, taskLine string, executedAt int64) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO heartbeat_log (event_type, task_line, executed_at) VALUES ($1, $2, $3)`,
		eventType, taskLine, executedAt)
	return corekind.Wrap(corekind.Io, "pg.AppendHeartbeatLog", err)
}
