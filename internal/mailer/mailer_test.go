package mailer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSend_NotConfigured(t *testing.T) {
	m := New(Options{})

	err := m.Send(context.Background(), []string{"ops@example.com"}, "subject", "body")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Send() error = %v, want ErrNotConfigured", err)
	}
}

func TestSend_NoRecipients(t *testing.T) {
	m := New(Options{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})

	if err := m.Send(context.Background(), nil, "subject", "body"); err == nil {
		t.Error("Send() error = nil, want error for empty recipients")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("noreply@example.com",
		[]string{"a@example.com", "b@example.com"}, "Alert", "Something fired"))

	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	if !found {
		t.Fatalf("message has no header/body separator: %q", msg)
	}
	for _, want := range []string{
		"From: noreply@example.com",
		"To: a@example.com, b@example.com",
		"Subject: Alert",
		"Content-Type: text/plain",
	} {
		if !strings.Contains(headers, want) {
			t.Errorf("headers missing %q:\n%s", want, headers)
		}
	}
	if body != "Something fired" {
		t.Errorf("body = %q, want %q", body, "Something fired")
	}
}

func TestSanitizeHeader(t *testing.T) {
	got := sanitizeHeader("Alert\r\nBcc: attacker@example.com")
	if strings.ContainsAny(got, "\r\n") {
		t.Errorf("sanitizeHeader() = %q, contains line breaks", got)
	}
}
