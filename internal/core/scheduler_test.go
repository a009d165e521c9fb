package core

import (
	"testing"
	"time"

	"github.com/mixelka/chatmail/pkg/models"
)

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)

	c.StartIO()
	if !c.IsIORunning() {
		t.Fatal("scheduler not running after StartIO")
	}

	// Starting twice is a no-op.
	c.StartIO()

	done := make(chan struct{})
	go func() {
		c.StopIO()
		close(done)
	}()
	waitOrFail(t, done, 30*time.Second, "scheduler shutdown")

	if c.IsIORunning() {
		t.Error("scheduler still running after StopIO")
	}

	// Stopping again is a no-op on the context level.
	c.StopIO()
}

func TestSchedulerRestart(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)

	for i := 0; i < 3; i++ {
		c.StartIO()
		if !c.IsIORunning() {
			t.Fatalf("round %d: scheduler not running", i)
		}
		done := make(chan struct{})
		go func() {
			c.StopIO()
			close(done)
		}()
		waitOrFail(t, done, 30*time.Second, "scheduler shutdown")
	}
}

func TestSchedulerInterrupts(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)

	// Interrupts on a stopped scheduler are dropped silently.
	c.InterruptInbox(InterruptInfo{})
	c.InterruptSmtp(InterruptInfo{})
	c.MaybeNetwork()

	c.StartIO()
	for i := 0; i < 5; i++ {
		c.InterruptInbox(InterruptInfo{MsgID: models.MsgID(i)})
		c.InterruptSmtp(InterruptInfo{MsgID: models.MsgID(i)})
	}
	c.MaybeNetwork()

	done := make(chan struct{})
	go func() {
		c.StopIO()
		close(done)
	}()
	waitOrFail(t, done, 30*time.Second, "scheduler shutdown")
}

func TestSchedulerStopPanicsWhenStopped(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)

	s := startScheduler(c)
	s.PreStop()
	s.Stop()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on stopping a stopped scheduler")
		}
	}()
	s.Stop()
}

func TestInterruptCoalescing(t *testing.T) {
	t.Parallel()

	st := newConnectionState()

	// A burst of interrupts collapses into the first pending one; the
	// try-send never blocks.
	st.interrupt(InterruptInfo{MsgID: 1})
	st.interrupt(InterruptInfo{MsgID: 2})
	st.interrupt(InterruptInfo{MsgID: 3})

	select {
	case info := <-st.idleInterrupt:
		if info.MsgID != 1 {
			t.Errorf("expected the first interrupt to survive, got %d", info.MsgID)
		}
	default:
		t.Fatal("no interrupt pending")
	}

	select {
	case info := <-st.idleInterrupt:
		t.Errorf("coalesced interrupt leaked through: %+v", info)
	default:
	}
}

func TestConnectionStateStopIdempotent(t *testing.T) {
	t.Parallel()

	st := newConnectionState()
	// Stand in for the task: acknowledge shutdown once.
	st.shutdownCh <- struct{}{}
	close(st.shutdownCh)

	st.stop()
	// A second stop must not close the channel again.
	st.stop()
}

func TestLoadNextJob(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	ctx := testCtx()

	if job := loadNextJob(ctx, c, models.ThreadSmtp, InterruptInfo{}); job != nil {
		t.Fatalf("unexpected job on empty queue: %+v", job)
	}

	if err := addJob(ctx, c, models.ActionSendMsg, 7, "", 0); err != nil {
		t.Fatalf("failed to add job: %v", err)
	}
	if err := addJob(ctx, c, models.ActionSendMsg, 8, "", time.Hour); err != nil {
		t.Fatalf("failed to add deferred job: %v", err)
	}

	job := loadNextJob(ctx, c, models.ThreadSmtp, InterruptInfo{})
	if job == nil || job.ForeignID != 7 {
		t.Fatalf("expected the due job for msg 7, got %+v", job)
	}
	if job := loadNextJob(ctx, c, models.ThreadImap, InterruptInfo{}); job != nil {
		t.Errorf("smtp job leaked onto imap thread: %+v", job)
	}

	// The message hint picks the matching job even when deferred.
	job = loadNextJob(ctx, c, models.ThreadSmtp, InterruptInfo{MsgID: 8})
	if job == nil || job.ForeignID != 8 {
		t.Errorf("hint not honoured, got %+v", job)
	}

	// A network probe loads deferred jobs too.
	jobDone(ctx, c, &models.Job{ID: 1})
	job = loadNextJob(ctx, c, models.ThreadSmtp, InterruptInfo{ProbeNetwork: true})
	if job == nil || job.ForeignID != 8 {
		t.Errorf("probe did not load the deferred job, got %+v", job)
	}
}
