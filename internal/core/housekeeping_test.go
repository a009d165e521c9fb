package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/mixelka/chatmail/pkg/models"
)

func deviceMsgCount(t *testing.T, c *Context) int64 {
	t.Helper()
	n, _, err := c.db.QueryInt64(testCtx(),
		"SELECT COUNT(*) FROM msgs WHERE chat_id IN (SELECT id FROM chats WHERE special=?)",
		models.ChatSpecialDevice)
	if err != nil {
		t.Fatalf("failed to count device messages: %v", err)
	}
	return n
}

func TestBackupReminder(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	ctx := testCtx()

	// A fresh account starts the clock instead of warning right away.
	maybeAddTimeBasedWarnings(ctx, c)
	if n := deviceMsgCount(t, c); n != 0 {
		t.Fatalf("fresh account got %d device messages", n)
	}
	if c.GetConfigInt64(ctx, ConfigLastBackupReminder) == 0 {
		t.Fatal("reminder clock not started")
	}

	// A month without a backup triggers exactly one reminder.
	monthAgo := time.Now().Add(-31 * 24 * time.Hour).Unix()
	if err := c.SetConfig(ctx, ConfigLastBackupReminder, fmt.Sprintf("%d", monthAgo)); err != nil {
		t.Fatalf("failed to backdate reminder: %v", err)
	}
	maybeAddTimeBasedWarnings(ctx, c)
	if n := deviceMsgCount(t, c); n != 1 {
		t.Fatalf("expected one reminder, got %d", n)
	}
	maybeAddTimeBasedWarnings(ctx, c)
	if n := deviceMsgCount(t, c); n != 1 {
		t.Errorf("reminder repeated, got %d", n)
	}

	// A recent backup suppresses the reminder.
	if err := c.SetConfig(ctx, ConfigLastBackupReminder, fmt.Sprintf("%d", monthAgo)); err != nil {
		t.Fatalf("failed to backdate reminder: %v", err)
	}
	if err := c.SetConfig(ctx, ConfigBackupTime, fmt.Sprintf("%d", time.Now().Unix())); err != nil {
		t.Fatalf("failed to record backup: %v", err)
	}
	maybeAddTimeBasedWarnings(ctx, c)
	if n := deviceMsgCount(t, c); n != 1 {
		t.Errorf("reminder fired despite recent backup, got %d", n)
	}
}

func TestAddDeviceMsg(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	ctx := testCtx()

	msgID, err := AddDeviceMsg(ctx, c, "hello from the device")
	if err != nil {
		t.Fatalf("failed to add device message: %v", err)
	}
	msg, err := GetMessage(ctx, c, msgID)
	if err != nil {
		t.Fatalf("failed to load message: %v", err)
	}
	if msg.Text != "hello from the device" {
		t.Errorf("unexpected text %q", msg.Text)
	}

	deviceChat := lookupChatBySpecial(ctx, c, models.ChatSpecialDevice)
	if deviceChat == 0 || msg.ChatID != deviceChat {
		t.Errorf("message not in the device chat (chat=%d, device=%d)", msg.ChatID, deviceChat)
	}

	// The second message reuses the chat.
	if _, err := AddDeviceMsg(ctx, c, "again"); err != nil {
		t.Fatalf("failed to add second device message: %v", err)
	}
	if again := lookupChatBySpecial(ctx, c, models.ChatSpecialDevice); again != deviceChat {
		t.Errorf("device chat duplicated: %d vs %d", again, deviceChat)
	}

	// Device messages survive the delete_device_after sweep.
	if err := c.SetConfig(ctx, ConfigDeleteDeviceAfter, "1"); err != nil {
		t.Fatalf("failed to set config: %v", err)
	}
	if _, err := c.db.Execute(ctx, "UPDATE msgs SET timestamp=? WHERE id=?", time.Now().Unix()-7200, msgID); err != nil {
		t.Fatalf("failed to backdate message: %v", err)
	}
	if _, err := DeleteExpiredMessages(ctx, c); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	msg, err = GetMessage(ctx, c, msgID)
	if err != nil {
		t.Fatalf("failed to load message: %v", err)
	}
	if msg.ChatID != deviceChat {
		t.Error("device message was swept away")
	}
}
