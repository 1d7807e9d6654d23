package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type captured struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestMailer(fn sendFunc) *Mailer {
	m := New(Config{Host: "smtp.example.com", From: "noreply@example.com", FromName: "CoachHub"}, zap.NewNop())
	m.send = fn
	return m
}

func TestMailer_Send_Multipart(t *testing.T) {
	var got captured
	m := newTestMailer(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		got = captured{addr: addr, from: from, to: to, msg: string(msg)}
		return nil
	})

	err := m.Send(context.Background(), Email{
		To:       "client@example.com",
		Subject:  "Hello",
		TextBody: "plain body",
		HTMLBody: "<p>html body</p>",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got.addr != "smtp.example.com:587" {
		t.Errorf("addr: got %q", got.addr)
	}
	if len(got.to) != 1 || got.to[0] != "client@example.com" {
		t.Errorf("to: got %v", got.to)
	}
	for _, want := range []string{"multipart/alternative", "plain body", "<p>html body</p>", "Subject: Hello"} {
		if !strings.Contains(got.msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestMailer_Send_TextOnly(t *testing.T) {
	var msg string
	m := newTestMailer(func(_ string, _ smtp.Auth, _ string, _ []string, b []byte) error {
		msg = string(b)
		return nil
	})
	if err := m.Send(context.Background(), Email{To: "a@example.com", Subject: "s", TextBody: "only text"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if strings.Contains(msg, "multipart") {
		t.Error("text-only email should not be multipart")
	}
	if !strings.HasSuffix(msg, "only text") {
		t.Errorf("unexpected body: %q", msg)
	}
}

func TestMailer_Send_Errors(t *testing.T) {
	m := newTestMailer(func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	})
	if err := m.Send(context.Background(), Email{}); err == nil {
		t.Error("expected error for missing recipient")
	}
	if err := m.Send(context.Background(), Email{To: "a@example.com"}); err == nil {
		t.Error("expected SMTP error to be returned")
	}
}

func TestMailer_Send_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	m := newTestMailer(func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Send(ctx, Email{To: "a@example.com"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestBuildInvitationEmail(t *testing.T) {
	e := BuildInvitationEmail(ConnectionEmailData{
		SiteName:  "CoachHub",
		FromName:  "Jane <script>",
		ActionURL: "https://coachhub.example.com/signup?invite=abc",
		ExpiresIn: "14 days",
	})
	if !strings.Contains(e.TextBody, "14 days") {
		t.Error("text body should mention expiry")
	}
	if strings.Contains(e.HTMLBody, "<script>") {
		t.Error("html body must escape names")
	}
	if !strings.Contains(e.HTMLBody, "https://coachhub.example.com/signup?invite=abc") {
		t.Error("html body should link to the signup URL")
	}
}

func TestBuildConnectionResponseEmail(t *testing.T) {
	accepted := BuildConnectionResponseEmail(ConnectionEmailData{SiteName: "CoachHub", FromName: "Sam", Accepted: true})
	if !strings.Contains(accepted.Subject, "accepted") {
		t.Errorf("subject: got %q", accepted.Subject)
	}
	declined := BuildConnectionResponseEmail(ConnectionEmailData{SiteName: "CoachHub", FromName: "Sam"})
	if !strings.Contains(declined.Subject, "declined") {
		t.Errorf("subject: got %q", declined.Subject)
	}
	req := BuildConnectionRequestEmail(ConnectionEmailData{SiteName: "CoachHub", FromName: "Jane", ActionURL: "https://x"})
	if !strings.Contains(req.TextBody, "https://x") {
		t.Error("request email should include the action URL")
	}
}
