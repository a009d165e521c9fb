// Package core implements one account of the chat engine: its
// database, configuration, connection scheduler and the ephemeral
// message lifecycle.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mixelka/chatmail/internal/database"
	"github.com/mixelka/chatmail/internal/event"
)

// Timeouts bundles the connection timing knobs of one account.
type Timeouts struct {
	IdleTimeout     time.Duration // max time in one IDLE command
	IdleDoneTimeout time.Duration // hard bound for terminating IDLE
	DialTimeout     time.Duration
	PollInterval    time.Duration // fake-idle poll interval
}

// DefaultTimeouts returns the standard timing configuration. The IDLE
// timeout stays below the 29 minute ceiling of RFC 2177.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		IdleTimeout:     23 * time.Minute,
		IdleDoneTimeout: 15 * time.Second,
		DialTimeout:     30 * time.Second,
		PollInterval:    time.Minute,
	}
}

// ErrClosed is returned by SendMsg once the context has been closed,
// e.g. after its account was removed.
var ErrClosed = errors.New("account closed")

// Context is one account: a database, a blob directory and the I/O
// machinery driving its mail connections.
type Context struct {
	ID      uint32
	osName  string
	dbfile  string
	blobdir string

	db       *database.DB
	events   *event.Emitter
	logger   *slog.Logger
	timeouts Timeouts

	schedulerMu sync.RWMutex
	scheduler   *Scheduler

	// ephemeralMu guards the single pending wake task.
	ephemeralMu   sync.Mutex
	ephemeralTask *ephemeralTask

	closedMu sync.RWMutex
	closed   bool
}

// DeriveBlobdir returns the blob directory belonging to a database
// file. The mapping is stable, it is shared with account migration.
func DeriveBlobdir(dbfile string) string {
	return dbfile + "-blobs"
}

// New opens (creating if needed) the account database at dbfile and
// its derived blob directory.
func New(osName, dbfile string, id uint32, timeouts Timeouts, logger *slog.Logger) (*Context, error) {
	return WithBlobdir(osName, dbfile, DeriveBlobdir(dbfile), id, timeouts, logger)
}

// WithBlobdir is like New but uses an explicit blob directory.
func WithBlobdir(osName, dbfile, blobdir string, id uint32, timeouts Timeouts, logger *slog.Logger) (*Context, error) {
	db, err := database.New(dbfile)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	if err := os.MkdirAll(blobdir, 0755); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	c := &Context{
		ID:       id,
		osName:   osName,
		dbfile:   dbfile,
		blobdir:  blobdir,
		db:       db,
		events:   event.NewEmitter(256),
		logger:   logger.With("account_id", id),
		timeouts: timeouts,
	}
	return c, nil
}

// Dbfile returns the path of the account database.
func (c *Context) Dbfile() string {
	return c.dbfile
}

// Blobdir returns the blob directory of the account.
func (c *Context) Blobdir() string {
	return c.blobdir
}

// DB exposes the SQL store.
func (c *Context) DB() *database.DB {
	return c.db
}

// Events returns the event emitter of this account.
func (c *Context) Events() *event.Emitter {
	return c.events
}

// EmitEvent queues an event on the account's emitter.
func (c *Context) EmitEvent(ev event.Event) {
	ev.AccountID = c.ID
	c.events.Emit(ev)
}

func (c *Context) emitMsgsChanged(chatID, msgID uint32) {
	c.EmitEvent(event.Event{Kind: event.KindMsgsChanged, ChatID: chatID, MsgID: msgID})
}

// StartIO starts the connection scheduler. Starting an already
// running account is a no-op.
func (c *Context) StartIO() {
	if c.IsClosed() {
		c.logger.Warn("cannot start io on a closed account")
		return
	}
	c.schedulerMu.Lock()
	defer c.schedulerMu.Unlock()
	if c.scheduler != nil {
		c.logger.Warn("io already running")
		return
	}
	c.scheduler = startScheduler(c)
}

// StopIO stops the connection scheduler and waits until all four
// loops have exited. No job perform is in flight after it returns.
func (c *Context) StopIO() {
	c.schedulerMu.Lock()
	sched := c.scheduler
	c.scheduler = nil
	c.schedulerMu.Unlock()

	if sched == nil {
		return
	}
	sched.PreStop()
	sched.Stop()
}

// IsIORunning reports whether the scheduler is running.
func (c *Context) IsIORunning() bool {
	c.schedulerMu.RLock()
	defer c.schedulerMu.RUnlock()
	return c.scheduler != nil
}

// MaybeNetwork indicates that the network likely has come back.
func (c *Context) MaybeNetwork() {
	c.schedulerMu.RLock()
	defer c.schedulerMu.RUnlock()
	if c.scheduler != nil {
		c.scheduler.maybeNetwork()
	}
}

// InterruptInbox wakes the inbox loop out of idle.
func (c *Context) InterruptInbox(info InterruptInfo) {
	c.schedulerMu.RLock()
	defer c.schedulerMu.RUnlock()
	if c.scheduler != nil {
		c.scheduler.interruptInbox(info)
	}
}

// InterruptSmtp wakes the SMTP loop out of idle.
func (c *Context) InterruptSmtp(info InterruptInfo) {
	c.schedulerMu.RLock()
	defer c.schedulerMu.RUnlock()
	if c.scheduler != nil {
		c.scheduler.interruptSmtp(info)
	}
}

// Close shuts the account down: stops I/O, cancels the ephemeral wake
// task and releases the database. Afterwards SendMsg fails with
// ErrClosed and StartIO is refused; other operations are not checked
// against the closed flag and fail with the closed database's error.
func (c *Context) Close() {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return
	}
	c.closed = true
	c.closedMu.Unlock()

	c.StopIO()

	c.ephemeralMu.Lock()
	if c.ephemeralTask != nil {
		close(c.ephemeralTask.cancel)
		c.ephemeralTask = nil
	}
	c.ephemeralMu.Unlock()

	c.events.Close()
	if err := c.db.Close(); err != nil {
		c.logger.Warn("failed to close database", "error", err)
	}
}

// IsClosed reports whether the account has been closed.
func (c *Context) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// RestoreDatabase replaces the account database with the contents of
// the given file. Used by backup import; the scheduler must be
// stopped.
func (c *Context) RestoreDatabase(ctx context.Context, srcFile string) error {
	if c.IsIORunning() {
		return errors.New("cannot restore database while io is running")
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	if err := copyFile(srcFile, c.dbfile); err != nil {
		return err
	}
	db, err := database.New(c.dbfile)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return err
	}
	c.db = db
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Sync()
}
