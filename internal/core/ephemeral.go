// Ephemeral messages carry a per-chat timer that deletes them from
// device and server a fixed time after they were first seen. Two
// device-wide settings complement the per-chat timers:
// delete_device_after bounds local storage time for all messages,
// delete_server_after bounds how long the server keeps copies.
//
// A locally deleted message moves to the trash chat with blanked
// text; the row keeps the server folder and UID until the server copy
// is gone too, then it is removed entirely.

package core

import (
	"context"
	"fmt"
	"time"

	"github.com/mixelka/chatmail/internal/event"
	"github.com/mixelka/chatmail/pkg/models"
)

// ephemeralTask is the pending single-shot wake task of one account.
type ephemeralTask struct {
	cancel chan struct{}
}

// GetChatEphemeralTimer returns the chat's ephemeral timer.
func GetChatEphemeralTimer(ctx context.Context, c *Context, chatID models.ChatID) (models.Timer, error) {
	var timer models.Timer
	found, err := c.db.QueryRowOptional(ctx, &timer,
		"SELECT ephemeral_timer FROM chats WHERE id=?", chatID)
	if err != nil {
		return models.TimerDisabled, err
	}
	if !found {
		return models.TimerDisabled, nil
	}
	return timer, nil
}

// InnerSetChatEphemeralTimer updates the timer without sending a
// message. Used when a peer's message announces a new value.
func InnerSetChatEphemeralTimer(ctx context.Context, c *Context, chatID models.ChatID, timer models.Timer) error {
	if chatID.IsSpecial() {
		return fmt.Errorf("invalid chat id %d", chatID)
	}

	if _, err := c.db.Execute(ctx,
		"UPDATE chats SET ephemeral_timer=? WHERE id=?", timer, chatID); err != nil {
		return err
	}

	c.EmitEvent(event.Event{
		Kind:   event.KindChatEphemeralTimerModified,
		ChatID: uint32(chatID),
		Timer:  timer.Seconds(),
	})
	return nil
}

// SetChatEphemeralTimer sets the chat's timer and announces the
// change to the other members with a system message. Setting the
// current value again is a no-op. A failed send is only logged: the
// local state is authoritative and peers pick the value up from any
// later message header.
func SetChatEphemeralTimer(ctx context.Context, c *Context, chatID models.ChatID, timer models.Timer) error {
	current, err := GetChatEphemeralTimer(ctx, c, chatID)
	if err != nil {
		return err
	}
	if timer == current {
		return nil
	}
	if err := InnerSetChatEphemeralTimer(ctx, c, chatID, timer); err != nil {
		return err
	}

	msg := &models.Message{
		Text:  StockEphemeralTimerChanged(timer, models.ContactIDSelf),
		Param: int(models.SystemMessageEphemeralTimerChanged),
	}
	if _, err := SendMsg(ctx, c, chatID, msg); err != nil {
		c.logger.Error("failed to send ephemeral timer change message", "chat_id", chatID, "error", err)
	}
	return nil
}

// msgEphemeralTimer returns the timer stored on the message row.
func msgEphemeralTimer(ctx context.Context, c *Context, msgID models.MsgID) (models.Timer, error) {
	var timer models.Timer
	found, err := c.db.QueryRowOptional(ctx, &timer,
		"SELECT ephemeral_timer FROM msgs WHERE id=?", msgID)
	if err != nil || !found {
		return models.TimerDisabled, err
	}
	return timer, nil
}

// StartEphemeralTimer arms the message's expiry when it is first
// seen. An already armed, earlier expiry is never pushed out.
func StartEphemeralTimer(ctx context.Context, c *Context, msgID models.MsgID) error {
	timer, err := msgEphemeralTimer(ctx, c, msgID)
	if err != nil {
		return err
	}
	if !timer.IsEnabled() {
		return nil
	}

	ephemeralTimestamp := time.Now().Unix() + int64(timer.Seconds())
	_, err = c.db.Execute(ctx,
		`UPDATE msgs SET ephemeral_timestamp=?
		 WHERE (ephemeral_timestamp == 0 OR ephemeral_timestamp > ?) AND id=?`,
		ephemeralTimestamp, ephemeralTimestamp, msgID)
	if err != nil {
		return err
	}
	ScheduleEphemeralTask(c)
	return nil
}

// DeleteExpiredMessages moves messages that are expired according to
// their ephemeral timestamp or the delete_device_after setting to the
// trash chat. It returns true when anything was deleted so the caller
// can emit MsgsChanged; the function itself must not emit it, because
// it runs on every chatlist reload and would loop the reload forever.
func DeleteExpiredMessages(ctx context.Context, c *Context) (bool, error) {
	now := time.Now().Unix()

	n, err := c.db.Execute(ctx,
		`UPDATE msgs SET txt='DELETED', chat_id=?
		 WHERE ephemeral_timestamp != 0 AND ephemeral_timestamp < ? AND chat_id != ?`,
		models.ChatIDTrash, now, models.ChatIDTrash)
	if err != nil {
		return false, err
	}
	updated := n > 0

	if deleteDeviceAfter := c.GetConfigInt64(ctx, ConfigDeleteDeviceAfter); deleteDeviceAfter > 0 {
		selfChat := lookupChatBySpecial(ctx, c, models.ChatSpecialSelf)
		deviceChat := lookupChatBySpecial(ctx, c, models.ChatSpecialDevice)
		threshold := now - deleteDeviceAfter

		// Only touch the rows that have to change, to avoid spurious
		// modification events.
		n, err := c.db.Execute(ctx,
			`UPDATE msgs SET txt='DELETED', chat_id=?
			 WHERE timestamp < ? AND chat_id > ? AND chat_id != ? AND chat_id != ?`,
			models.ChatIDTrash, threshold, models.ChatIDLastSpecial, selfChat, deviceChat)
		if err != nil {
			return updated, err
		}
		updated = updated || n > 0
	}

	ScheduleEphemeralTask(c)
	return updated, nil
}

// ScheduleEphemeralTask arranges for a MsgsChanged event exactly when
// the next local deletion is due. The previous wake task is cancelled
// first, so at most one is pending per account. Only per-chat timers
// are considered; the device-wide windows are at least an hour long
// and user activity triggers deletion often enough for them.
func ScheduleEphemeralTask(c *Context) {
	ctx := context.Background()
	ts, found, err := c.db.QueryInt64(ctx,
		`SELECT ephemeral_timestamp FROM msgs
		 WHERE ephemeral_timestamp != 0 AND chat_id != ?
		 ORDER BY ephemeral_timestamp ASC LIMIT 1`,
		models.ChatIDTrash)
	if err != nil {
		c.logger.Warn("cannot calculate next ephemeral timeout", "error", err)
		return
	}

	c.ephemeralMu.Lock()
	if c.ephemeralTask != nil {
		close(c.ephemeralTask.cancel)
		c.ephemeralTask = nil
	}
	if !found {
		c.ephemeralMu.Unlock()
		return
	}

	// The extra second lets the sweep see a strictly smaller
	// timestamp.
	delay := time.Until(time.Unix(ts+1, 0))
	if delay <= 0 {
		c.ephemeralMu.Unlock()
		c.emitMsgsChanged(0, 0)
		return
	}

	task := &ephemeralTask{cancel: make(chan struct{})}
	c.ephemeralTask = task
	c.ephemeralMu.Unlock()

	go func() {
		select {
		case <-time.After(delay):
			c.ephemeralMu.Lock()
			if c.ephemeralTask == task {
				c.ephemeralTask = nil
			}
			c.ephemeralMu.Unlock()
			c.emitMsgsChanged(0, 0)
		case <-task.cancel:
		}
	}()
}

// LoadImapDeletionMsgID returns one message that should be deleted
// from the server, looking into the trash chat too: those rows are
// gone locally but still have a server copy.
func LoadImapDeletionMsgID(ctx context.Context, c *Context) (models.MsgID, bool, error) {
	now := time.Now().Unix()

	var threshold int64
	if deleteServerAfter := c.GetConfigInt64(ctx, ConfigDeleteServerAfter); deleteServerAfter > 0 {
		threshold = now - deleteServerAfter
	}

	id, found, err := c.db.QueryInt64(ctx,
		`SELECT id FROM msgs
		 WHERE (timestamp < ? OR (ephemeral_timestamp != 0 AND ephemeral_timestamp < ?))
		 AND server_uid != 0 LIMIT 1`,
		threshold, now)
	if err != nil {
		return 0, false, err
	}
	return models.MsgID(id), found, nil
}

// StartEphemeralTimers arms the timers of seen messages that missed
// their arming, e.g. across a crash or an upgrade. Called from
// housekeeping.
func StartEphemeralTimers(ctx context.Context, c *Context) error {
	_, err := c.db.Execute(ctx,
		`UPDATE msgs SET ephemeral_timestamp = ? + ephemeral_timer
		 WHERE ephemeral_timer > 0 AND ephemeral_timestamp = 0 AND state NOT IN (?, ?, ?)`,
		time.Now().Unix(), models.StateInFresh, models.StateInNoticed, models.StateOutDraft)
	return err
}
