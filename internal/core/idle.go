package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// idle enters IMAP IDLE on the watch folder and blocks until the
// server reports news, the timeout elapses or an interrupt arrives.
// Queued unsolicited EXISTS responses short-circuit the wait so the
// caller fetches immediately.
func (i *Imap) idle(ctx context.Context, c *Context, watchFolder string) (InterruptInfo, error) {
	var info InterruptInfo

	if !i.canIdle {
		return info, errors.New("IMAP server does not have IDLE capability")
	}
	if err := i.connectConfigured(ctx, c); err != nil {
		return info, err
	}
	if err := i.selectFolder(ctx, c, watchFolder); err != nil {
		return info, err
	}

	session := i.session
	if session.DrainUpdates() {
		i.logger.Info("skip idle, got unsolicited EXISTS")
		return info, nil
	}

	stopIdle := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- session.Idle(stopIdle)
	}()

	timeout := time.NewTimer(c.timeouts.IdleTimeout)
	defer timeout.Stop()

	i.logger.Debug("idle entering wait-on-remote state")
	var idleErr error
	ended := false
	select {
	case <-session.Updates():
		i.logger.Info("idle has new data")
	case <-timeout.C:
		i.logger.Info("idle timeout")
	case info = <-i.idleInterrupt:
		i.logger.Info("idle wait was interrupted")
	case <-i.stop:
	case idleErr = <-done:
		ended = true
	}

	if !ended {
		close(stopIdle)
		select {
		case idleErr = <-done:
		case <-time.After(c.timeouts.IdleDoneTimeout):
			i.triggerReconnect()
			return info, errors.New("IMAP IDLE protocol timed out")
		}
	}
	if idleErr != nil {
		i.triggerReconnect()
		return info, fmt.Errorf("idle failed: %w", idleErr)
	}
	return info, nil
}

// fakeIdle polls for new messages when real IDLE is unavailable. With
// an empty watch folder it only waits for an interrupt; this also
// covers unconfigured accounts waiting for credentials.
func (i *Imap) fakeIdle(ctx context.Context, c *Context, watchFolder string) InterruptInfo {
	start := time.Now()

	if watchFolder == "" {
		i.logger.Info("fake idle: no folder, waiting for interrupt")
		select {
		case info := <-i.idleInterrupt:
			return info
		case <-i.stop:
			return InterruptInfo{}
		}
	}

	i.logger.Info("fake idling", "folder", watchFolder)
	ticker := time.NewTicker(c.timeouts.PollInterval)
	defer ticker.Stop()

	var info InterruptInfo
loop:
	for {
		select {
		case <-ticker.C:
			// Try to connect with the stored credentials; they may
			// have appeared since the last attempt.
			if err := i.connectConfigured(ctx, c); err != nil {
				i.logger.Warn("fake idle: could not connect", "error", err)
				continue
			}
			if i.canIdle {
				// We only fake-idled because the network was gone
				// during IDLE; the caller switches back to real IDLE.
				break loop
			}
			fetched, err := i.fetchNewMessages(ctx, c, watchFolder)
			if err != nil {
				i.logger.Error("fake idle: could not fetch", "folder", watchFolder, "error", err)
				i.triggerReconnect()
				continue
			}
			if fetched {
				// Behave as if IDLE had data; the messages are
				// already stored, so the next fetch is a no-op.
				break loop
			}
		case info = <-i.idleInterrupt:
			break loop
		case <-i.stop:
			break loop
		}
	}

	i.logger.Info("fake idle done", "elapsed", time.Since(start))
	return info
}
