// Package imapclient provides the low-level IMAP connection
// primitives: TCP/TLS connect, STARTTLS upgrade and login. A
// successful login turns a Client into a Session.
package imapclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
)

// Client is an unauthenticated IMAP connection.
type Client struct {
	c        *client.Client
	isSecure bool
	logger   *slog.Logger
}

func buildTLSConfig(sniDomain string, strictTLS bool) *tls.Config {
	return &tls.Config{
		ServerName: sniDomain,
		// Loose mode is only for user-overridden self-signed servers.
		InsecureSkipVerify: !strictTLS,
	}
}

// ConnectSecure dials addr, performs the TLS handshake and reads the
// server greeting.
func ConnectSecure(addr, sniDomain string, strictTLS bool, dialTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, buildTLSConfig(sniDomain, strictTLS))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read greeting: %w", err)
	}

	return &Client{c: c, isSecure: true, logger: logger}, nil
}

// ConnectInsecure dials addr without TLS and reads the server
// greeting. Use Secure to upgrade via STARTTLS before logging in.
func ConnectInsecure(addr string, dialTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read greeting: %w", err)
	}

	return &Client{c: c, isSecure: false, logger: logger}, nil
}

// Secure upgrades the connection via STARTTLS. It is a no-op on an
// already secure connection.
func (c *Client) Secure(sniDomain string, strictTLS bool) error {
	if c.isSecure {
		return nil
	}
	if err := c.c.StartTLS(buildTLSConfig(sniDomain, strictTLS)); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	c.isSecure = true
	return nil
}

// IsSecure reports whether the connection is TLS protected.
func (c *Client) IsSecure() bool {
	return c.isSecure
}

// Login authenticates with LOGIN and returns a session. On failure
// the client stays connected so the caller can retry without
// reconnecting.
func (c *Client) Login(username, password string) (*Session, error) {
	if err := c.c.Login(username, password); err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	return newSession(c.c, c.logger), nil
}

// Authenticate runs a SASL exchange and returns a session. On failure
// the client stays connected so the caller can retry without
// reconnecting.
func (c *Client) Authenticate(mech sasl.Client) (*Session, error) {
	if err := c.c.Authenticate(mech); err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	return newSession(c.c, c.logger), nil
}

// Close terminates the connection without logging in.
func (c *Client) Close() error {
	return c.c.Logout()
}
