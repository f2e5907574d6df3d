package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/vesaa/queuewatch/internal/models"
)

func TestNewEmailChannelValidation(t *testing.T) {
	if _, err := NewEmailChannel("", 25, "", "", "a@b", []string{"x@y"}); err == nil {
		t.Fatalf("missing host must be rejected")
	}
	if _, err := NewEmailChannel("smtp.example.com", 25, "", "", "a@b", nil); err == nil {
		t.Fatalf("empty recipient list must be rejected")
	}
	if _, err := NewEmailChannel("smtp.example.com", 25, "", "", "a@b", []string{"x@y"}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestEmailSendBuildsHTMLMail(t *testing.T) {
	ch, err := NewEmailChannel("smtp.example.com", 587, "user", "pass", "alerts@example.com", []string{"ops@example.com"})
	if err != nil {
		t.Fatalf("channel: %v", err)
	}

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	ch.sendMail = func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	ev := Event{
		Entity:      "mon-Q1",
		TrafficKb:   2.5,
		ThresholdKb: 10,
		Stage:       models.StageFirst,
		When:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := ch.Send(context.Background(), ev); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("addr = %q", gotAddr)
	}
	if gotFrom != "alerts@example.com" || len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Fatalf("envelope wrong: from=%q to=%v", gotFrom, gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Low traffic alert: mon-Q1\r\n") {
		t.Fatalf("subject header missing:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "Content-Type: text/html") {
		t.Fatalf("HTML content type missing:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "mon-Q1") {
		t.Fatalf("body missing entity:\n%s", gotMsg)
	}
}

func TestEmailSendHonorsCancelledContext(t *testing.T) {
	ch, err := NewEmailChannel("smtp.example.com", 25, "", "", "a@b", []string{"x@y"})
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	called := false
	ch.sendMail = func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ch.Send(ctx, Event{Entity: "Q1"}); err == nil {
		t.Fatalf("expected context error")
	}
	if called {
		t.Fatalf("sendMail reached despite cancelled context")
	}
}
