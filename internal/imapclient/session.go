package imapclient

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-imap"
	idle "github.com/emersion/go-imap-idle"
	"github.com/emersion/go-imap/client"
)

// RawMessage is a fetched message as raw RFC 822 bytes plus its UID.
type RawMessage struct {
	UID  uint32
	Body []byte
}

// Session is an authenticated IMAP connection.
type Session struct {
	c       *client.Client
	updates chan client.Update
	logger  *slog.Logger
}

func newSession(c *client.Client, logger *slog.Logger) *Session {
	// Unsolicited responses are delivered here; they are drained
	// before entering IDLE and watched while idling.
	updates := make(chan client.Update, 64)
	c.Updates = updates
	return &Session{c: c, updates: updates, logger: logger}
}

// SupportsIdle reports whether the server advertises the IDLE
// capability.
func (s *Session) SupportsIdle() bool {
	ok, err := s.c.Support("IDLE")
	if err != nil {
		s.logger.Warn("failed to query capabilities", "error", err)
		return false
	}
	return ok
}

// Select opens the given folder read-write.
func (s *Session) Select(folder string) (*imap.MailboxStatus, error) {
	mbox, err := s.c.Select(folder, false)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", folder, err)
	}
	return mbox, nil
}

// CloseFolder closes the selected folder, expunging messages flagged
// as deleted.
func (s *Session) CloseFolder() error {
	if err := s.c.Close(); err != nil {
		return fmt.Errorf("failed to close folder: %w", err)
	}
	return nil
}

// Expunge removes messages flagged as deleted from the selected
// folder.
func (s *Session) Expunge() error {
	if err := s.c.Expunge(nil); err != nil {
		return fmt.Errorf("failed to expunge: %w", err)
	}
	return nil
}

// UIDSearch returns the UIDs matching the criteria in the selected
// folder.
func (s *Session) UIDSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return uids, nil
}

// FetchRaw downloads the full bodies of the given UIDs.
func (s *Session) FetchRaw(uids []uint32) ([]RawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqSet, items, messages)
	}()

	var result []RawMessage
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			s.logger.Warn("message without body section", "uid", msg.Uid)
			continue
		}
		body, err := io.ReadAll(r)
		if err != nil {
			s.logger.Warn("failed to read message body", "uid", msg.Uid, "error", err)
			continue
		}
		result = append(result, RawMessage{UID: msg.Uid, Body: body})
	}

	if err := <-done; err != nil {
		return result, fmt.Errorf("failed to fetch: %w", err)
	}
	return result, nil
}

func (s *Session) addFlags(uid uint32, flags ...interface{}) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return s.c.UidStore(seqSet, item, flags, nil)
}

// MarkSeen adds the \Seen flag to a message.
func (s *Session) MarkSeen(uid uint32) error {
	if err := s.addFlags(uid, imap.SeenFlag); err != nil {
		return fmt.Errorf("failed to mark as seen: %w", err)
	}
	return nil
}

// MarkDeleted adds the \Deleted flag to a message. The actual removal
// happens on the next expunge or folder close.
func (s *Session) MarkDeleted(uid uint32) error {
	if err := s.addFlags(uid, imap.DeletedFlag); err != nil {
		return fmt.Errorf("failed to mark as deleted: %w", err)
	}
	return nil
}

// Updates exposes the unsolicited response channel.
func (s *Session) Updates() <-chan client.Update {
	return s.updates
}

// DrainUpdates consumes all queued unsolicited responses and reports
// whether any of them was an EXISTS (new mail in the selected folder).
func (s *Session) DrainUpdates() bool {
	exists := false
	for {
		select {
		case upd := <-s.updates:
			switch upd.(type) {
			case *client.MailboxUpdate:
				exists = true
			default:
			}
		default:
			return exists
		}
	}
}

// Idle issues IDLE and blocks until stop is closed or the server
// terminates the command. New mail shows up on Updates while idling.
func (s *Session) Idle(stop <-chan struct{}) error {
	idleClient := idle.NewClient(s.c)
	return idleClient.Idle(stop)
}

// Logout ends the session, forcing the connection closed when the
// server does not answer in time.
func (s *Session) Logout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		_ = s.c.Logout()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		_ = s.c.Terminate()
	}
}
