package parser

import (
	"strings"
	"testing"
)

func TestParseMail_PlainText(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: Alice <alice@example.org>",
		"To: bob@example.org",
		"Subject: hello",
		"Message-ID: <abc123@example.org>",
		"Date: Mon, 02 Jan 2006 15:04:05 -0700",
		"Content-Type: text/plain",
		"",
		"hi there",
	}, "\r\n")

	parsed, err := NewMailParser().Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	if parsed.FromAddr != "alice@example.org" {
		t.Errorf("unexpected from: %q", parsed.FromAddr)
	}
	if parsed.FromName != "Alice" {
		t.Errorf("unexpected from name: %q", parsed.FromName)
	}
	if parsed.Subject != "hello" {
		t.Errorf("unexpected subject: %q", parsed.Subject)
	}
	if parsed.MessageID != "abc123@example.org" {
		t.Errorf("unexpected message id: %q", parsed.MessageID)
	}
	if parsed.Text != "hi there" {
		t.Errorf("unexpected text: %q", parsed.Text)
	}
	if parsed.EphemeralTimer != "" {
		t.Errorf("unexpected ephemeral timer: %q", parsed.EphemeralTimer)
	}
	if parsed.Date.IsZero() {
		t.Error("date not parsed")
	}
}

func TestParseMail_EphemeralTimerHeader(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: alice@example.org",
		"Chat-Ephemeral-Timer: 3600",
		"Content-Type: text/plain",
		"",
		"ping",
	}, "\r\n")

	parsed, err := NewMailParser().Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if parsed.EphemeralTimer != "3600" {
		t.Errorf("unexpected ephemeral timer: %q", parsed.EphemeralTimer)
	}
}

func TestParseMail_MultipartPrefersPlain(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: alice@example.org",
		`Content-Type: multipart/alternative; boundary="xyz"`,
		"",
		"--xyz",
		"Content-Type: text/plain",
		"",
		"plain version",
		"--xyz",
		"Content-Type: text/html",
		"",
		"<b>html version</b>",
		"--xyz--",
	}, "\r\n")

	parsed, err := NewMailParser().Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if parsed.Text != "plain version" {
		t.Errorf("unexpected text: %q", parsed.Text)
	}
}

func TestParseMail_StripsSignatureAndQuote(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: alice@example.org",
		"Content-Type: text/plain",
		"",
		"sounds good",
		"",
		"> are you coming?",
		"-- ",
		"Alice",
	}, "\r\n")

	parsed, err := NewMailParser().Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if parsed.Text != "sounds good" {
		t.Errorf("unexpected text: %q", parsed.Text)
	}
}

func TestParseMail_HTMLOnly(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: alice@example.org",
		"Content-Type: text/html",
		"",
		"<p>first</p><p>second</p><script>alert(1)</script>",
	}, "\r\n")

	parsed, err := NewMailParser().Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if parsed.Text != "first\nsecond" {
		t.Errorf("unexpected text: %q", parsed.Text)
	}
}
