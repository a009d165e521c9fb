package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// EphemeralTimerHeader carries the per-chat ephemeral timer value on
// every chat message, so all members converge on the same setting.
const EphemeralTimerHeader = "Chat-Ephemeral-Timer"

// ParsedMail is the subset of an incoming message the chat layer
// stores.
type ParsedMail struct {
	MessageID      string
	FromAddr       string
	FromName       string
	Subject        string
	Date           time.Time
	Text           string
	EphemeralTimer string // raw header value, empty when absent
}

// MailParser parses raw RFC 822 messages into chat messages.
type MailParser struct {
	html *HTMLParser
}

// NewMailParser creates a new mail parser
func NewMailParser() *MailParser {
	return &MailParser{html: NewHTMLParser()}
}

// Parse reads a raw message and extracts headers and a plain text
// body. HTML-only messages are converted to text.
func (p *MailParser) Parse(raw []byte) (*ParsedMail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	parsed := &ParsedMail{}

	if id, err := mr.Header.MessageID(); err == nil {
		parsed.MessageID = id
	}
	if subject, err := mr.Header.Subject(); err == nil {
		parsed.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		parsed.Date = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		parsed.FromAddr = from[0].Address
		parsed.FromName = from[0].Name
	}
	parsed.EphemeralTimer = strings.TrimSpace(mr.Header.Get(EphemeralTimerHeader))

	var textBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep what was parsed so far, a broken part should not
			// lose the whole message.
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := h.ContentType()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/plain") && textBody == "":
			textBody = string(body)
		case strings.HasPrefix(ct, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}

	parsed.Text = Simplify(textBody)
	if parsed.Text == "" && htmlBody != "" {
		if text, err := p.html.Parse(htmlBody); err == nil {
			parsed.Text = Simplify(text)
		}
	}

	return parsed, nil
}
