package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mixelka/chatmail/pkg/models"
)

// InterruptInfo is the wake signal delivered to a scheduler task.
type InterruptInfo struct {
	// ProbeNetwork is set when the caller believes connectivity just
	// came back.
	ProbeNetwork bool
	// MsgID optionally names the message whose job triggered the
	// interrupt, so the job loader can prioritise it.
	MsgID models.MsgID
}

// connectionState is the control surface of one scheduler task: a
// stop channel, the matching shutdown acknowledgement and the
// capacity-1 idle-interrupt channel.
type connectionState struct {
	stopCh        chan struct{}
	stopOnce      sync.Once
	shutdownCh    chan struct{}
	idleInterrupt chan InterruptInfo
}

func newConnectionState() *connectionState {
	return &connectionState{
		stopCh:        make(chan struct{}),
		shutdownCh:    make(chan struct{}, 1),
		idleInterrupt: make(chan InterruptInfo, 1),
	}
}

// interrupt delivers a wake signal without blocking. When the buffer
// already holds an undelivered interrupt the new one is coalesced
// into it: the pending signal is at least as good for driving a
// retry.
func (s *connectionState) interrupt(info InterruptInfo) {
	select {
	case s.idleInterrupt <- info:
	default:
	}
}

// stop shuts the task down and waits for its acknowledgement.
func (s *connectionState) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.shutdownCh
}

// Scheduler drives the four connection loops of one account.
type Scheduler struct {
	inbox   *connectionState
	mvbox   *connectionState
	sentbox *connectionState
	smtp    *connectionState

	inboxDone   chan struct{}
	mvboxDone   chan struct{}
	sentboxDone chan struct{}
	smtpDone    chan struct{}

	stopped bool
	logger  *slog.Logger
}

// startScheduler spawns the four loops and blocks until every one of
// them (or its stand-in acknowledgement) has signalled start. Only
// then can stop and interrupt not race against uninitialised tasks.
func startScheduler(c *Context) *Scheduler {
	ctx := context.Background()
	s := &Scheduler{
		inbox:       newConnectionState(),
		mvbox:       newConnectionState(),
		sentbox:     newConnectionState(),
		smtp:        newConnectionState(),
		inboxDone:   make(chan struct{}),
		mvboxDone:   make(chan struct{}),
		sentboxDone: make(chan struct{}),
		smtpDone:    make(chan struct{}),
		logger:      c.logger.With("component", "scheduler"),
	}

	inboxStarted := make(chan struct{}, 1)
	mvboxStarted := make(chan struct{}, 1)
	sentboxStarted := make(chan struct{}, 1)
	smtpStarted := make(chan struct{}, 1)

	inboxConn := newImap(s.inbox.idleInterrupt, s.inbox.stopCh, c.logger.With("loop", "inbox"))
	go inboxLoop(c, inboxStarted, inboxConn, s.inbox, s.inboxDone)

	if c.GetConfigBool(ctx, ConfigMvboxWatch) {
		conn := newImap(s.mvbox.idleInterrupt, s.mvbox.stopCh, c.logger.With("loop", "mvbox"))
		go simpleImapLoop(c, mvboxStarted, conn, s.mvbox, s.mvboxDone, ConfigConfiguredMvboxFolder)
	} else {
		releaseUnusedTask(mvboxStarted, s.mvbox, s.mvboxDone)
	}

	if c.GetConfigBool(ctx, ConfigSentboxWatch) {
		conn := newImap(s.sentbox.idleInterrupt, s.sentbox.stopCh, c.logger.With("loop", "sentbox"))
		go simpleImapLoop(c, sentboxStarted, conn, s.sentbox, s.sentboxDone, ConfigConfiguredSentboxFolder)
	} else {
		releaseUnusedTask(sentboxStarted, s.sentbox, s.sentboxDone)
	}

	smtpConn := newSmtp(c.logger.With("loop", "smtp"))
	go smtpLoop(c, smtpStarted, smtpConn, s.smtp, s.smtpDone)

	// Start barrier: all four loops must be up before the scheduler
	// counts as running.
	<-inboxStarted
	<-mvboxStarted
	<-sentboxStarted
	<-smtpStarted

	s.logger.Info("scheduler is running")
	return s
}

// releaseUnusedTask satisfies the start barrier and the stop
// handshake for a loop that is not spawned.
func releaseUnusedTask(started chan<- struct{}, st *connectionState, done chan struct{}) {
	started <- struct{}{}
	close(st.shutdownCh)
	close(done)
}

// maybeNetwork fans a network-recovery hint to all four tasks.
func (s *Scheduler) maybeNetwork() {
	var wg sync.WaitGroup
	for _, st := range []*connectionState{s.inbox, s.mvbox, s.sentbox, s.smtp} {
		wg.Add(1)
		go func(st *connectionState) {
			defer wg.Done()
			st.interrupt(InterruptInfo{ProbeNetwork: true})
		}(st)
	}
	wg.Wait()
}

func (s *Scheduler) interruptInbox(info InterruptInfo) { s.inbox.interrupt(info) }
func (s *Scheduler) interruptSmtp(info InterruptInfo)  { s.smtp.interrupt(info) }

// PreStop halts all four tasks and waits for their shutdown
// acknowledgements. It must be called before Stop.
func (s *Scheduler) PreStop() {
	if s.stopped {
		panic("scheduler: already stopped")
	}
	var wg sync.WaitGroup
	for _, st := range []*connectionState{s.inbox, s.mvbox, s.sentbox, s.smtp} {
		wg.Add(1)
		go func(st *connectionState) {
			defer wg.Done()
			st.stop()
		}(st)
	}
	wg.Wait()
}

// Stop joins the task goroutines. It must only be called after
// PreStop.
func (s *Scheduler) Stop() {
	if s.stopped {
		panic("scheduler: already stopped")
	}
	<-s.inboxDone
	<-s.mvboxDone
	<-s.sentboxDone
	<-s.smtpDone
	s.stopped = true
}

func stopRequested(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// inboxLoop alternates between executing IMAP jobs and fetching. At
// most 20 jobs run back to back; then a fetch is forced so a job
// storm cannot starve inbound mail.
func inboxLoop(c *Context, started chan<- struct{}, conn *Imap, st *connectionState, done chan struct{}) {
	defer close(done)
	defer func() { st.shutdownCh <- struct{}{} }()

	logger := conn.logger
	logger.Info("starting inbox loop")
	started <- struct{}{}

	ctx := context.Background()
	jobsLoaded := 0
	var info InterruptInfo
	for {
		if stopRequested(st.stopCh) {
			logger.Info("shutting down inbox loop")
			conn.disconnect()
			return
		}

		job := loadNextJob(ctx, c, models.ThreadImap, info)
		switch {
		case job != nil && jobsLoaded < 20:
			jobsLoaded++
			performImapJob(ctx, c, conn, job)
			info = InterruptInfo{}
		case job != nil:
			// Let the fetch run, but return to the job afterwards.
			jobsLoaded = 0
			if c.GetConfigBool(ctx, ConfigInboxWatch) {
				logger.Info("postponing imap job to run fetch", "job_id", job.ID)
				fetchInbox(ctx, c, conn)
			}
		default:
			jobsLoaded = 0

			// Expunge the folder if needed, e.g. if jobs deleted
			// messages on the server.
			if err := conn.maybeCloseFolder(ctx, c); err != nil {
				logger.Warn("failed to close folder", "error", err)
			}

			maybeRunHousekeeping(ctx, c)

			if c.GetConfigBool(ctx, ConfigInboxWatch) {
				info = fetchIdle(ctx, c, conn, ConfigConfiguredInboxFolder)
			} else {
				info = conn.fakeIdle(ctx, c, "")
			}
		}
	}
}

// fetchInbox fetches the inbox folder once, without idling.
func fetchInbox(ctx context.Context, c *Context, conn *Imap) {
	watch, err := c.GetConfig(ctx, ConfigConfiguredInboxFolder)
	if err != nil || watch == "" {
		conn.logger.Warn("cannot fetch inbox folder, not set")
		return
	}
	if err := conn.connectConfigured(ctx, c); err != nil {
		conn.logger.Error("connection failed", "error", err)
		return
	}
	if err := conn.fetch(ctx, c, watch); err != nil {
		conn.triggerReconnect()
		conn.logger.Warn("fetch failed", "folder", watch, "error", err)
	}
}

// fetchIdle is the shared connect-fetch-idle chain of the IMAP loops.
// Every failure degrades to fake idle or a reconnect hint instead of
// exiting the loop.
func fetchIdle(ctx context.Context, c *Context, conn *Imap, folderKey ConfigKey) InterruptInfo {
	watch, err := c.GetConfig(ctx, folderKey)
	if err != nil || watch == "" {
		conn.logger.Warn("cannot watch folder, not set", "key", folderKey)
		return conn.fakeIdle(ctx, c, "")
	}

	// Connect, and fake idle if unable to connect.
	if err := conn.connectConfigured(ctx, c); err != nil {
		conn.logger.Warn("imap connection failed", "error", err)
		return conn.fakeIdle(ctx, c, watch)
	}

	if err := conn.fetch(ctx, c, watch); err != nil {
		conn.triggerReconnect()
		conn.logger.Warn("fetch failed", "folder", watch, "error", err)
	}

	if conn.CanIdle() {
		info, err := conn.idle(ctx, c, watch)
		if err != nil {
			conn.triggerReconnect()
			conn.logger.Warn("idle failed", "error", err)
			return InterruptInfo{}
		}
		return info
	}
	return conn.fakeIdle(ctx, c, watch)
}

// simpleImapLoop watches one folder forever; mvbox and sentbox need
// nothing more.
func simpleImapLoop(c *Context, started chan<- struct{}, conn *Imap, st *connectionState, done chan struct{}, folderKey ConfigKey) {
	defer close(done)
	defer func() { st.shutdownCh <- struct{}{} }()

	logger := conn.logger
	logger.Info("starting simple loop", "folder_key", folderKey)
	started <- struct{}{}

	ctx := context.Background()
	for {
		if stopRequested(st.stopCh) {
			logger.Info("shutting down simple loop", "folder_key", folderKey)
			conn.disconnect()
			return
		}
		fetchIdle(ctx, c, conn, folderKey)
	}
}

// smtpLoop executes SMTP jobs one at a time and otherwise blocks on
// its interrupt channel; there is no server push worth polling for.
func smtpLoop(c *Context, started chan<- struct{}, conn *Smtp, st *connectionState, done chan struct{}) {
	defer close(done)
	defer func() { st.shutdownCh <- struct{}{} }()

	logger := conn.logger
	logger.Info("starting smtp loop")
	started <- struct{}{}

	ctx := context.Background()
	var info InterruptInfo
	for {
		if stopRequested(st.stopCh) {
			logger.Info("shutting down smtp loop")
			return
		}

		job := loadNextJob(ctx, c, models.ThreadSmtp, info)
		if job != nil {
			logger.Info("executing smtp job", "job_id", job.ID)
			performSmtpJob(ctx, c, conn, job)
			info = InterruptInfo{}
			continue
		}

		logger.Debug("smtp idle, waiting for interrupt")
		select {
		case info = <-st.idleInterrupt:
		case <-st.stopCh:
		}
	}
}
