package core

import (
	"testing"
	"time"

	"github.com/mixelka/chatmail/internal/event"
	"github.com/mixelka/chatmail/pkg/models"
)

func TestCreateChatAboveReservedRange(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)

	chatID := createTestChat(t, c)
	if chatID.IsSpecial() {
		t.Errorf("real chat got a reserved id: %d", chatID)
	}
}

func TestSendMsg(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	ctx := testCtx()
	chatID := createTestChat(t, c)

	msgID, err := SendTextMsg(ctx, c, chatID, "hello")
	if err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	msg, err := GetMessage(ctx, c, msgID)
	if err != nil {
		t.Fatalf("failed to load message: %v", err)
	}
	if msg.State != models.StateOutPending {
		t.Errorf("unexpected state %d", msg.State)
	}
	if msg.Text != "hello" {
		t.Errorf("unexpected text %q", msg.Text)
	}
	if msg.RfcMsgID == "" {
		t.Error("message has no rfc message id")
	}

	job := loadNextJob(ctx, c, models.ThreadSmtp, InterruptInfo{})
	if job == nil || job.Action != models.ActionSendMsg || job.ForeignID != uint32(msgID) {
		t.Errorf("send job not queued, got %+v", job)
	}

	events := drainEvents(c)
	if n := countEvents(events, event.KindMsgsChanged); n != 1 {
		t.Errorf("expected one MsgsChanged, got %d", n)
	}
}

func TestSendMsgInheritsChatTimer(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	ctx := testCtx()
	chatID := createTestChat(t, c)

	if err := InnerSetChatEphemeralTimer(ctx, c, chatID, models.TimerFromSeconds(60)); err != nil {
		t.Fatalf("failed to set timer: %v", err)
	}

	msgID, err := SendTextMsg(ctx, c, chatID, "self destructing")
	if err != nil {
		t.Fatalf("failed to send: %v", err)
	}
	msg, err := GetMessage(ctx, c, msgID)
	if err != nil {
		t.Fatalf("failed to load message: %v", err)
	}
	if msg.EphemeralTimer != models.TimerFromSeconds(60) {
		t.Errorf("message did not inherit chat timer: %v", msg.EphemeralTimer)
	}
}

func TestSendMsgToSpecialChatFails(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)

	if _, err := SendTextMsg(testCtx(), c, models.ChatIDTrash, "nope"); err == nil {
		t.Error("expected error sending to trash chat")
	}
}

func TestMarkSeenMsgs(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	ctx := testCtx()
	chatID := createTestChat(t, c)
	now := time.Now().Unix()

	msgID := insertTestMsg(t, c, models.Message{
		ChatID:         chatID,
		ServerFolder:   "INBOX",
		ServerUID:      5,
		State:          models.StateInFresh,
		Timestamp:      now,
		EphemeralTimer: models.TimerFromSeconds(100),
	})

	if err := MarkSeenMsgs(ctx, c, []models.MsgID{msgID}); err != nil {
		t.Fatalf("failed to mark seen: %v", err)
	}

	msg, err := GetMessage(ctx, c, msgID)
	if err != nil {
		t.Fatalf("failed to load message: %v", err)
	}
	if msg.State != models.StateInSeen {
		t.Errorf("unexpected state %d", msg.State)
	}
	if msg.EphemeralTimestamp == 0 {
		t.Error("ephemeral timer not armed on seen")
	}

	job := loadNextJob(ctx, c, models.ThreadImap, InterruptInfo{})
	if job == nil || job.Action != models.ActionMarkseenMsgOnImap {
		t.Errorf("markseen job not queued, got %+v", job)
	}

	// Marking again does not rearm or requeue.
	armed := msg.EphemeralTimestamp
	jobDone(ctx, c, job)
	if err := MarkSeenMsgs(ctx, c, []models.MsgID{msgID}); err != nil {
		t.Fatalf("failed to re-mark seen: %v", err)
	}
	msg, _ = GetMessage(ctx, c, msgID)
	if msg.EphemeralTimestamp != armed {
		t.Error("second mark seen rearmed the timer")
	}
	if job := loadNextJob(ctx, c, models.ThreadImap, InterruptInfo{}); job != nil {
		t.Errorf("second mark seen queued a job: %+v", job)
	}
}

func TestDeleteMsgIfOrphaned(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	ctx := testCtx()

	// In trash without server coordinates: row disappears.
	gone := insertTestMsg(t, c, models.Message{ChatID: models.ChatIDTrash, Text: "DELETED"})
	if err := deleteMsgIfOrphaned(ctx, c, gone); err != nil {
		t.Fatalf("failed to purge: %v", err)
	}
	if _, err := GetMessage(ctx, c, gone); err == nil {
		t.Error("orphaned trash row still present")
	}

	// Still on the server: row stays for the deletion job.
	kept := insertTestMsg(t, c, models.Message{ChatID: models.ChatIDTrash, Text: "DELETED", ServerFolder: "INBOX", ServerUID: 3})
	if err := deleteMsgIfOrphaned(ctx, c, kept); err != nil {
		t.Fatalf("failed to purge: %v", err)
	}
	if _, err := GetMessage(ctx, c, kept); err != nil {
		t.Error("trash row with server copy was purged early")
	}
}
