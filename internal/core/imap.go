package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap"
	"github.com/mixelka/chatmail/internal/imapclient"
	"github.com/mixelka/chatmail/internal/parser"
	"github.com/mixelka/chatmail/pkg/models"
)

// ErrNotConfigured is returned when the account has no mail server
// credentials yet.
var ErrNotConfigured = errors.New("account not configured")

// Imap is one IMAP connection of the scheduler: session state, the
// currently selected folder and the idle-interrupt plumbing.
type Imap struct {
	session         *imapclient.Session
	canIdle         bool
	shouldReconnect bool

	selectedFolder string
	needsExpunge   bool

	idleInterrupt <-chan InterruptInfo
	stop          <-chan struct{}

	parser *parser.MailParser
	logger *slog.Logger
}

func newImap(idleInterrupt <-chan InterruptInfo, stop <-chan struct{}, logger *slog.Logger) *Imap {
	return &Imap{
		idleInterrupt: idleInterrupt,
		stop:          stop,
		parser:        parser.NewMailParser(),
		logger:        logger,
	}
}

// CanIdle reports whether the connected server supports IDLE.
func (i *Imap) CanIdle() bool {
	return i.canIdle
}

// triggerReconnect marks the session as broken; the next connect
// tears it down and dials again.
func (i *Imap) triggerReconnect() {
	i.shouldReconnect = true
}

func (i *Imap) disconnect() {
	if i.session != nil {
		// Quick logout, forced close on stall.
		i.session.Logout(2 * time.Second)
		i.session = nil
	}
	i.canIdle = false
	i.selectedFolder = ""
	i.needsExpunge = false
}

type imapParams struct {
	host      string
	port      int64
	user      string
	password  string
	strictTLS bool
}

func (i *Imap) loadParams(ctx context.Context, c *Context) (*imapParams, error) {
	host, err := c.GetConfig(ctx, ConfigMailServer)
	if err != nil {
		return nil, err
	}
	user, err := c.GetConfig(ctx, ConfigMailUser)
	if err != nil {
		return nil, err
	}
	password, err := c.GetConfig(ctx, ConfigMailPw)
	if err != nil {
		return nil, err
	}
	if host == "" || user == "" {
		return nil, ErrNotConfigured
	}
	port := c.GetConfigInt64(ctx, ConfigMailPort)
	if port == 0 {
		port = 993
	}
	checks, err := c.GetConfig(ctx, ConfigCertificateChecks)
	if err != nil {
		return nil, err
	}
	return &imapParams{
		host:      host,
		port:      port,
		user:      user,
		password:  password,
		strictTLS: checks != CertificateChecksAcceptInvalidCerts,
	}, nil
}

// connectConfigured (re)establishes the session using the stored
// credentials. A healthy session is left untouched.
func (i *Imap) connectConfigured(ctx context.Context, c *Context) error {
	if i.session != nil && !i.shouldReconnect {
		return nil
	}
	if i.session != nil {
		i.disconnect()
	}
	i.shouldReconnect = false

	params, err := i.loadParams(ctx, c)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", params.host, params.port)
	var client *imapclient.Client
	if params.port == 143 {
		client, err = imapclient.ConnectInsecure(addr, c.timeouts.DialTimeout, i.logger)
		if err == nil {
			if err = client.Secure(params.host, params.strictTLS); err != nil {
				client.Close()
			}
		}
	} else {
		client, err = imapclient.ConnectSecure(addr, params.host, params.strictTLS, c.timeouts.DialTimeout, i.logger)
	}
	if err != nil {
		return err
	}

	session, err := client.Login(params.user, params.password)
	if err != nil {
		client.Close()
		return err
	}

	i.session = session
	i.canIdle = session.SupportsIdle()
	i.logger.Info("connected to imap server", "server", addr, "can_idle", i.canIdle)
	return nil
}

// selectFolder makes folder the selected one, closing (and thereby
// expunging) the previous folder when needed.
func (i *Imap) selectFolder(ctx context.Context, c *Context, folder string) error {
	if i.session == nil {
		return ErrNotConfigured
	}
	if folder == i.selectedFolder {
		return nil
	}
	if err := i.maybeCloseFolder(ctx, c); err != nil {
		return err
	}
	if _, err := i.session.Select(folder); err != nil {
		i.triggerReconnect()
		return err
	}
	i.selectedFolder = folder
	return nil
}

// maybeCloseFolder closes the selected folder if deletions are
// pending, so the server expunges them.
func (i *Imap) maybeCloseFolder(ctx context.Context, c *Context) error {
	if i.session == nil || i.selectedFolder == "" || !i.needsExpunge {
		return nil
	}
	if err := i.session.CloseFolder(); err != nil {
		i.triggerReconnect()
		return err
	}
	i.logger.Info("closed folder", "folder", i.selectedFolder)
	i.selectedFolder = ""
	i.needsExpunge = false
	return nil
}

// fetch selects the folder and stores new messages.
func (i *Imap) fetch(ctx context.Context, c *Context, folder string) error {
	_, err := i.fetchNewMessages(ctx, c, folder)
	return err
}

// fetchNewMessages downloads messages above the stored UID cursor,
// stores them as chat messages and reports whether anything new
// arrived.
func (i *Imap) fetchNewMessages(ctx context.Context, c *Context, folder string) (bool, error) {
	if err := i.selectFolder(ctx, c, folder); err != nil {
		return false, err
	}

	cursorKey := ConfigKey("imap_uidnext_" + folder)
	lastUID := uint32(c.GetConfigInt64(ctx, cursorKey))

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(lastUID+1, 0)
	criteria := imap.NewSearchCriteria()
	criteria.Uid = seqSet

	uids, err := i.session.UIDSearch(criteria)
	if err != nil {
		i.triggerReconnect()
		return false, err
	}
	// Servers may answer a UID range search with older UIDs as well.
	fresh := uids[:0]
	for _, uid := range uids {
		if uid > lastUID {
			fresh = append(fresh, uid)
		}
	}
	if len(fresh) == 0 {
		return false, nil
	}

	raws, err := i.session.FetchRaw(fresh)
	if err != nil {
		i.triggerReconnect()
		return false, err
	}

	stored := false
	maxUID := lastUID
	for _, raw := range raws {
		if raw.UID > maxUID {
			maxUID = raw.UID
		}
		if ok := i.storeMessage(ctx, c, folder, raw); ok {
			stored = true
		}
	}

	if maxUID > lastUID {
		if err := c.SetConfig(ctx, cursorKey, fmt.Sprintf("%d", maxUID)); err != nil {
			c.logger.Warn("failed to advance uid cursor", "folder", folder, "error", err)
		}
	}
	return stored, nil
}

func (i *Imap) storeMessage(ctx context.Context, c *Context, folder string, raw imapclient.RawMessage) bool {
	parsed, err := i.parser.Parse(raw.Body)
	if err != nil {
		i.logger.Warn("failed to parse message", "uid", raw.UID, "error", err)
		return false
	}

	if parsed.MessageID != "" {
		_, found, err := c.db.QueryInt64(ctx, "SELECT id FROM msgs WHERE rfc724_mid=?", parsed.MessageID)
		if err == nil && found {
			return false
		}
	}

	chatID, err := getOrCreateChatByAddr(ctx, c, parsed.FromAddr, parsed.FromName)
	if err != nil {
		i.logger.Warn("failed to look up chat", "from", parsed.FromAddr, "error", err)
		return false
	}

	// A peer announcing a new per-chat timer value; apply it without
	// sending anything back, before the message inherits the chat
	// timer below.
	if parsed.EphemeralTimer != "" {
		if timer, err := models.ParseTimer(parsed.EphemeralTimer); err == nil {
			if err := InnerSetChatEphemeralTimer(ctx, c, chatID, timer); err != nil {
				i.logger.Warn("failed to apply ephemeral timer header", "chat_id", chatID, "error", err)
			}
		}
	}

	timer, err := GetChatEphemeralTimer(ctx, c, chatID)
	if err != nil {
		i.logger.Warn("failed to read chat timer", "chat_id", chatID, "error", err)
	}

	timestamp := parsed.Date.Unix()
	if parsed.Date.IsZero() {
		timestamp = 0
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO msgs (chat_id, rfc724_mid, server_folder, server_uid, from_addr, subject, txt, state, timestamp, ephemeral_timer)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chatID, parsed.MessageID, folder, raw.UID, parsed.FromAddr,
		parsed.Subject, parsed.Text, models.StateInFresh, timestamp, timer)
	if err != nil {
		i.logger.Warn("failed to store message", "uid", raw.UID, "error", err)
		return false
	}
	id, _ := res.LastInsertId()

	c.emitMsgsChanged(uint32(chatID), uint32(id))
	return true
}
