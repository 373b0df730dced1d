package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

func TestInitRequiresWebhookURL(t *testing.T) {
	ch := New(config.SlackConfig{}, bus.New())
	if err := ch.Init(context.Background()); corekind.KindOf(err) != corekind.Config {
		t.Fatalf("expected Config error, got %v", err)
	}
}

func TestPollAlwaysTimeout(t *testing.T) {
	ch := New(config.SlackConfig{WebhookURL: "http://example.invalid"}, bus.New())
	if err := ch.Poll(context.Background()); corekind.KindOf(err) != corekind.Timeout {
		t.Fatalf("expected Timeout, got %v", err)
	}
}

func TestSendPostsToWebhook(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := New(config.SlackConfig{WebhookURL: srv.URL}, bus.New())
	err := ch.Send(context.Background(), bus.OutboundMessage{Channel: "slack", ChatID: "C1", Content: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if received.Text != "hello" {
		t.Fatalf("received = %+v", received)
	}
}

func TestSendErrorsOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ch := New(config.SlackConfig{WebhookURL: srv.URL}, bus.New())
	err := ch.Send(context.Background(), bus.OutboundMessage{Content: "x"})
	if corekind.KindOf(err) != corekind.Io {
		t.Fatalf("expected Io error, got %v", err)
	}
}
