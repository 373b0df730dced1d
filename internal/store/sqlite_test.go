package store

import (
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/auth"
	"github.com/nextlevelbuilder/goclaw/internal/cron"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAuthTokenRoundTrip(t *testing.T) {
	s := openTestStore(t)
	tok := auth.Token{
		Token:        "abc123",
		Label:        "ci",
		Permissions:  auth.PermChat | auth.PermTools,
		CreatedAt:    1000,
		AllowedTools: []string{"search", "time"},
	}
	if err := s.UpsertToken(tok); err != nil {
		t.Fatalf("UpsertToken: %v", err)
	}

	rows, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Token != tok.Token || rows[0].Permissions != tok.Permissions {
		t.Fatalf("got %+v, want %+v", rows[0], tok)
	}
	if len(rows[0].AllowedTools) != 2 {
		t.Fatalf("got allowed tools %+v", rows[0].AllowedTools)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	sess := &sessions.Session{
		Key:       "telegram:100",
		Transport: "telegram",
		ConvID:    "100",
		Summary:   "",
	}
	if err := s.UpsertSession(sess); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	if err := s.AppendMessage(sess.Key, sessions.Message{Role: sessions.RoleUser, Content: "hi", Timestamp: 1}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.DeleteSession(sess.Key); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
}

func TestCronJobRoundTrip(t *testing.T) {
	s := openTestStore(t)
	job := &cron.Job{
		ID:           1,
		Name:         "greet",
		Action:       cron.ActionBusMessage,
		State:        cron.StateActive,
		ScheduleKind: cron.ScheduleInterval,
		ScheduleText: "@every 30s",
		IntervalSec:  30,
	}
	if err := s.UpsertJob(job); err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}
	jobs, err := s.LoadJobs()
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "greet" {
		t.Fatalf("got %+v", jobs)
	}
	if err := s.AppendLog(1, "ok", "", 1000, 5); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
}

func TestHeartbeatLog(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendHeartbeatLog("injected", "Check inbox", 1000); err != nil {
		t.Fatalf("AppendHeartbeatLog: %v", err)
	}
}
