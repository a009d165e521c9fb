// Package smtpclient wraps outbound mail delivery.
package smtpclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	gomail "gopkg.in/gomail.v2"
)

// Params holds the connection settings for one SMTP server.
type Params struct {
	Host      string
	Port      int
	Username  string
	Password  string
	SSL       bool // implicit TLS instead of STARTTLS
	StrictTLS bool
}

// Sender delivers messages through a configured SMTP server.
type Sender struct {
	dialer *gomail.Dialer
	logger *slog.Logger
}

// New creates a sender for the given server parameters.
func New(p Params, logger *slog.Logger) *Sender {
	dialer := gomail.NewDialer(p.Host, p.Port, p.Username, p.Password)
	dialer.SSL = p.SSL
	dialer.TLSConfig = &tls.Config{
		ServerName:         p.Host,
		InsecureSkipVerify: !p.StrictTLS,
	}
	return &Sender{dialer: dialer, logger: logger.With("component", "smtp")}
}

// Send dials the server and delivers the message.
func (s *Sender) Send(msg *gomail.Message) error {
	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
