package core

import (
	"context"
	"log/slog"

	"github.com/mixelka/chatmail/internal/smtpclient"
)

// Smtp is the outbound connection of the scheduler. The sender is
// rebuilt lazily from the stored credentials.
type Smtp struct {
	sender   *smtpclient.Sender
	fromAddr string
	logger   *slog.Logger
}

func newSmtp(logger *slog.Logger) *Smtp {
	return &Smtp{logger: logger}
}

// connectConfigured builds the sender from the stored credentials.
func (s *Smtp) connectConfigured(ctx context.Context, c *Context) error {
	if s.sender != nil {
		return nil
	}

	host, err := c.GetConfig(ctx, ConfigSendServer)
	if err != nil {
		return err
	}
	user, err := c.GetConfig(ctx, ConfigSendUser)
	if err != nil {
		return err
	}
	password, err := c.GetConfig(ctx, ConfigSendPw)
	if err != nil {
		return err
	}
	addr, err := c.GetConfig(ctx, ConfigAddr)
	if err != nil {
		return err
	}
	if host == "" || addr == "" {
		return ErrNotConfigured
	}
	if user == "" {
		user = addr
	}
	port := c.GetConfigInt64(ctx, ConfigSendPort)
	if port == 0 {
		port = 465
	}
	checks, err := c.GetConfig(ctx, ConfigCertificateChecks)
	if err != nil {
		return err
	}

	s.sender = smtpclient.New(smtpclient.Params{
		Host:      host,
		Port:      int(port),
		Username:  user,
		Password:  password,
		SSL:       port == 465,
		StrictTLS: checks != CertificateChecksAcceptInvalidCerts,
	}, s.logger)
	s.fromAddr = addr
	return nil
}

// triggerReconnect drops the sender so the next job rebuilds it.
func (s *Smtp) triggerReconnect() {
	s.sender = nil
}
